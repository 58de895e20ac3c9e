package app

import (
	"fmt"
	"strings"
	"time"
)

// Storage backends selectable with FLAREHUB_STORAGE.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	StorageRedis    = "redis"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	// Storage selects the KV backend. Empty means postgres when DatabaseURL
	// is set, redis when RedisURL is set, memory otherwise.
	Storage string

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	DBHealthCheckPeriod time.Duration
	DBMaxConnIdleTime   time.Duration

	RedisURL string

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int

	// If true, /readyz returns 503 unless a durable backend is configured and reachable.
	ReadinessRequireDB bool

	// If true, FLAREHUB_TOKEN_HMAC_KEY must be set (>= 32 bytes) and client
	// namespaces are hashed with HMAC.
	RequireTokenHMAC bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("FLAREHUB_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("FLAREHUB_LOG_LEVEL", "info"),
		LogFormat: EnvString("FLAREHUB_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("FLAREHUB_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("FLAREHUB_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("FLAREHUB_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("FLAREHUB_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("FLAREHUB_HTTP_MAX_HEADER_BYTES", 1<<20),

		Storage: strings.ToLower(EnvString("FLAREHUB_STORAGE", "")),

		DatabaseURL: EnvString("FLAREHUB_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("FLAREHUB_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("FLAREHUB_DB_MIN_CONNS", 0),

		DBHealthCheckPeriod: EnvDuration("FLAREHUB_DB_HEALTH_CHECK_PERIOD", 30*time.Second),
		DBMaxConnIdleTime:   EnvDuration("FLAREHUB_DB_MAX_CONN_IDLE", 5*time.Minute),

		RedisURL: EnvString("FLAREHUB_REDIS_URL", ""),

		CORSAllowedOrigins:   EnvCSV("FLAREHUB_CORS_ALLOWED_ORIGINS", nil),
		CORSAllowCredentials: EnvBool("FLAREHUB_CORS_ALLOW_CREDENTIALS", true),
		CORSMaxAgeSeconds:    EnvInt("FLAREHUB_CORS_MAX_AGE_SECONDS", 600),

		ReadinessRequireDB: EnvBool("FLAREHUB_READINESS_REQUIRE_DB", false),

		RequireTokenHMAC: EnvBool("FLAREHUB_REQUIRE_TOKEN_HMAC", false),
	}
}

// StorageBackend resolves the effective backend and checks its prerequisites.
func (c Config) StorageBackend() (string, error) {
	backend := strings.ToLower(strings.TrimSpace(c.Storage))
	if backend == "" {
		switch {
		case c.DatabaseURL != "":
			backend = StoragePostgres
		case c.RedisURL != "":
			backend = StorageRedis
		default:
			backend = StorageMemory
		}
	}

	switch backend {
	case StorageMemory:
		return backend, nil
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return "", fmt.Errorf("config: FLAREHUB_STORAGE=postgres requires FLAREHUB_DATABASE_URL")
		}
		return backend, nil
	case StorageRedis:
		if c.RedisURL == "" {
			return "", fmt.Errorf("config: FLAREHUB_STORAGE=redis requires FLAREHUB_REDIS_URL")
		}
		return backend, nil
	default:
		return "", fmt.Errorf("config: unknown FLAREHUB_STORAGE %q", c.Storage)
	}
}
