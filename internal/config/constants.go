package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts. WriteTimeout stays 0 because event streams are
// long-lived.
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Background sweep interval shared by pairing-code purge, session expiry,
// artifact cache and stale connections.
const CleanupJobInterval = 5 * time.Minute

// Rate limits per endpoint class, requests per minute per client.
const (
	RateLimitSignaturePerMin = 20
	RateLimitPairingPerMin   = 10
	RateLimitGeneralPerMin   = 60
)

// Connection manager tuning.
const (
	ConnectionSendTimeout = 5 * time.Second
	ConnectionEventBuffer = 32
	StreamHeartbeatPeriod = 30 * time.Second
)

// Pairing.
const (
	MaxActiveCodesPerWorkstation = 5
	MaxPairingCodeTTL            = 30 * time.Minute
)

// Session coordinator bounds.
const (
	MaxSessionTimeout = 60 * time.Minute
	MinSessionTimeout = time.Minute
)
