package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/werkstatthub/signpad-server-go/internal/cache"
	"github.com/werkstatthub/signpad-server-go/internal/hub"
	"github.com/werkstatthub/signpad-server-go/internal/repository"
	"github.com/werkstatthub/signpad-server-go/internal/service"
)

// CleanupJob owns the periodic sweeps: spent pairing codes, overdue signature
// sessions, expired cached artifacts and connections past the heartbeat grace
// window. Started on boot, stopped on shutdown; every sweep snapshots before
// it acts so request traffic is never blocked behind a scan.
type CleanupJob struct {
	pairingCodeRepo  repository.PairingCodeRepository
	signatureService *service.SignatureService
	artifactCache    *cache.ArtifactCache
	hub              *hub.Hub
	heartbeatGrace   time.Duration
	interval         time.Duration
	done             chan struct{}
}

func NewCleanupJob(
	pairingCodeRepo repository.PairingCodeRepository,
	signatureService *service.SignatureService,
	artifactCache *cache.ArtifactCache,
	h *hub.Hub,
	heartbeatGrace time.Duration,
	interval time.Duration,
) *CleanupJob {
	return &CleanupJob{
		pairingCodeRepo:  pairingCodeRepo,
		signatureService: signatureService,
		artifactCache:    artifactCache,
		hub:              h,
		heartbeatGrace:   heartbeatGrace,
		interval:         interval,
		done:             make(chan struct{}),
	}
}

func (j *CleanupJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("cleanup job started")
}

func (j *CleanupJob) Stop() {
	close(j.done)
	log.Info().Msg("cleanup job stopped")
}

func (j *CleanupJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.cleanup()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.cleanup()
		}
	}
}

func (j *CleanupJob) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if count, err := j.pairingCodeRepo.DeleteExpired(ctx); err != nil {
		log.Error().Err(err).Msg("failed to cleanup pairing codes")
	} else if count > 0 {
		log.Info().Int64("count", count).Msg("cleaned up pairing codes")
	}

	j.signatureService.SweepExpired(ctx)
	j.artifactCache.SweepExpired()

	if closed := j.hub.CloseIdle(ctx, j.heartbeatGrace); closed > 0 {
		log.Info().Int("count", closed).Msg("closed idle device connections")
	}
}
