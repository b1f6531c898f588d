package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/werkstatthub/signpad-server-go/internal/cache"
	"github.com/werkstatthub/signpad-server-go/internal/config"
	"github.com/werkstatthub/signpad-server-go/internal/database"
	"github.com/werkstatthub/signpad-server-go/internal/docstore"
	"github.com/werkstatthub/signpad-server-go/internal/handler"
	"github.com/werkstatthub/signpad-server-go/internal/hub"
	"github.com/werkstatthub/signpad-server-go/internal/jobs"
	"github.com/werkstatthub/signpad-server-go/internal/middleware"
	"github.com/werkstatthub/signpad-server-go/internal/redis"
	"github.com/werkstatthub/signpad-server-go/internal/repository"
	"github.com/werkstatthub/signpad-server-go/internal/service"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	tabletRepo := repository.NewTabletRepository(db.DB)
	workstationRepo := repository.NewWorkstationRepository(db.DB)
	pairingCodeRepo := repository.NewPairingCodeRepository(db.DB)

	registry := service.NewDeviceRegistry(tabletRepo)
	connectionHub := hub.New(redisClient, registry)
	registry.SetHub(connectionHub)
	defer connectionHub.Close()

	backend := docstore.NewClient(cfg.BackendBaseURL, cfg.BackendAPIKey)
	artifactCache := cache.NewArtifactCache(cfg.ArtifactCacheTTL())

	pairingService := service.NewPairingService(
		pairingCodeRepo, workstationRepo,
		cfg.PairingCodeTTL(), cfg.TabletStreamEndpoint(),
	)
	signatureService := service.NewSignatureService(
		registry, connectionHub, artifactCache, backend, backend,
		cfg.SessionTimeout(), cfg.MaxSignatureImageBytes,
	)
	rateLimiter := service.NewRateLimiter()

	deviceTokenMiddleware := middleware.NewDeviceTokenMiddleware(registry)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(cfg.MaxSignatureImageBytes * 2)
	pairingLimit := middleware.NewRateLimitMiddleware(rateLimiter, "pairing", config.RateLimitPairingPerMin)
	signatureLimit := middleware.NewRateLimitMiddleware(rateLimiter, "signature", config.RateLimitSignaturePerMin)
	generalLimit := middleware.NewRateLimitMiddleware(rateLimiter, "general", config.RateLimitGeneralPerMin)

	pairingHandler := handler.NewPairingHandler(pairingService)
	sessionHandler := handler.NewSessionHandler(signatureService)
	tabletHandler := handler.NewTabletHandler(signatureService, registry, connectionHub)
	streamHandler := handler.NewStreamHandler(connectionHub, workstationRepo)
	devicesHandler := handler.NewDevicesHandler(registry)
	healthHandler := handler.NewHealthHandler(connectionHub, artifactCache)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(bodyLimitMiddleware.Handler)

	r.Get("/health", healthHandler.ServeHTTP)

	r.Route("/v1/pairing", func(r chi.Router) {
		r.With(middleware.TenantMiddleware, pairingLimit.Handler).
			Post("/codes", pairingHandler.GenerateCode)
		r.With(pairingLimit.Handler).
			Post("/redeem", pairingHandler.Redeem)
	})

	r.Route("/v1/sessions", func(r chi.Router) {
		r.Use(middleware.TenantMiddleware)
		r.Use(signatureLimit.Handler)
		r.Mount("/", sessionHandler.Routes())
	})

	r.Route("/v1/devices", func(r chi.Router) {
		r.Use(middleware.TenantMiddleware)
		r.Use(generalLimit.Handler)
		r.Get("/", devicesHandler.ListDevices)
	})

	r.Route("/v1/tablet", func(r chi.Router) {
		r.Use(deviceTokenMiddleware.Handler)
		r.Get("/stream", streamHandler.TabletStream)
		r.With(signatureLimit.Handler).Mount("/", tabletHandler.Routes())
	})

	r.With(middleware.TenantMiddleware).
		Get("/v1/workstation/stream", streamHandler.WorkstationStream)

	cleanupJob := jobs.NewCleanupJob(
		pairingCodeRepo, signatureService, artifactCache, connectionHub,
		cfg.HeartbeatGrace(), config.CleanupJobInterval,
	)
	cleanupJob.Start()
	defer cleanupJob.Stop()

	server := &http.Server{
		Addr:        cfg.Addr(),
		Handler:     r,
		ReadTimeout: config.ServerReadTimeout,
		// WriteTimeout stays 0: event streams are long-lived.
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	connectionHub.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
