// Package config provides centralized configuration management for the import
// server and CLI. It loads configuration from environment variables with
// sensible defaults and validates all settings on startup to fail fast on
// misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server     ServerConfig
	Store      StoreConfig
	Import     ImportConfig
	Checkpoint CheckpointConfig
	Database   DatabaseConfig
	Source     SourceConfig
	Redis      RedisConfig
	History    HistoryConfig
	Rate       RateLimitConfig
	Security   SecurityConfig
	Logging    LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing a response. Imports run
	// synchronously, so the default of 0 leaves it to IMPORT_TIMEOUT.
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 60s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"60s"`

	// MaxBodyBytes caps job request bodies (default: 1MB)
	MaxBodyBytes int64 `env:"SERVER_MAX_BODY_BYTES" default:"1048576"`
}

// StoreConfig holds the target GraphQL store settings.
type StoreConfig struct {
	// Endpoint is the GraphQL endpoint URL (required)
	Endpoint string `env:"STORE_ENDPOINT" envAlt:"GRAPHQL_URL" required:"true"`

	// Token is sent as a bearer token when set
	Token string `env:"STORE_TOKEN"`

	// Timeout bounds one store request (default: 60s)
	Timeout time.Duration `env:"STORE_TIMEOUT" default:"60s"`

	// RatePerSecond throttles store requests (default: 20)
	RatePerSecond int `env:"STORE_RATE_PER_SECOND" default:"20"`

	// RateBurst is the throttle burst size (default: 5)
	RateBurst int `env:"STORE_RATE_BURST" default:"5"`

	// PageSize is the lookup page size (default: 200)
	PageSize int `env:"STORE_PAGE_SIZE" default:"200"`

	// MaxResponseBytes caps a decoded store response (default: 64MB)
	MaxResponseBytes int64 `env:"STORE_MAX_RESPONSE_BYTES" default:"67108864"`
}

// ImportConfig holds import run settings.
type ImportConfig struct {
	// LookupCeiling rejects relation and dedup lookups with more matches (default: 20000)
	LookupCeiling int `env:"IMPORT_LOOKUP_CEILING" default:"20000"`

	// RowCeiling rejects non-batched runs with more rows (default: 50000)
	RowCeiling int `env:"IMPORT_ROW_CEILING" default:"50000"`

	// MaxConcurrent is the maximum number of parallel runs (default: 4)
	MaxConcurrent int `env:"IMPORT_MAX_CONCURRENT" default:"4"`

	// MaxWaitTime is how long a run waits for a slot (default: 30s)
	MaxWaitTime time.Duration `env:"IMPORT_MAX_WAIT_TIME" default:"30s"`

	// Timeout bounds a single run, 0 for none (default: 30m)
	Timeout time.Duration `env:"IMPORT_TIMEOUT" default:"30m"`

	// DateLocation is the IANA zone date cells are read in (default: UTC)
	DateLocation string `env:"IMPORT_DATE_LOCATION" default:"UTC"`
}

// Location resolves DateLocation; callers run Validate first.
func (c *ImportConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.DateLocation)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Checkpoint backends.
const (
	CheckpointStore    = "store"
	CheckpointPostgres = "postgres"
	CheckpointMemory   = "memory"
)

// CheckpointConfig selects where batch checkpoints live.
type CheckpointConfig struct {
	// Backend is store, postgres or memory (default: store)
	Backend string `env:"CHECKPOINT_BACKEND" default:"store"`
}

// DatabaseConfig holds the optional PostgreSQL settings for run history and
// the postgres checkpoint backend.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string. Empty disables history.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// Enabled reports whether a database is configured.
func (c *DatabaseConfig) Enabled() bool { return c.URL != "" }

// SourceConfig holds row source fetch settings.
type SourceConfig struct {
	// HTTPTimeout bounds a source download (default: 5m)
	HTTPTimeout time.Duration `env:"SOURCE_HTTP_TIMEOUT" default:"5m"`

	// MaxFileSize is the maximum source size in bytes (default: 100MB)
	MaxFileSize int64 `env:"SOURCE_MAX_FILE_SIZE" default:"104857600"`

	// AllowLocalFiles enables file:// and bare path sources (default: false)
	AllowLocalFiles bool `env:"SOURCE_ALLOW_LOCAL_FILES" default:"false"`

	// S3Endpoint enables s3:// sources, e.g. "s3.amazonaws.com" or "minio:9000"
	S3Endpoint  string `env:"S3_ENDPOINT"`
	S3AccessKey string `env:"S3_ACCESS_KEY"`
	S3SecretKey string `env:"S3_SECRET_KEY"`
	S3Region    string `env:"S3_REGION"`
	S3UseSSL    bool   `env:"S3_USE_SSL" default:"true"`
}

// RedisConfig holds the optional distributed run lock settings.
type RedisConfig struct {
	// URL enables the Redis run lock, e.g. redis://localhost:6379/0
	URL string `env:"REDIS_URL"`

	// LockTTL is the lease length, refreshed while a run holds it (default: 30s)
	LockTTL time.Duration `env:"REDIS_LOCK_TTL" default:"30s"`
}

// HistoryConfig holds run history retention settings.
type HistoryConfig struct {
	// RetentionDays is how long run records are kept (default: 30)
	RetentionDays int `env:"HISTORY_RETENTION_DAYS" default:"30"`

	// PurgeSchedule is the cron expression of the purge job (default: @daily)
	PurgeSchedule string `env:"HISTORY_PURGE_SCHEDULE" default:"@daily"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// ImportLimit is requests per minute for import runs (default: 10)
	ImportLimit int `env:"RATE_LIMIT_IMPORT" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey enforces API key auth on /api routes (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted keys
	APIKeys []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
