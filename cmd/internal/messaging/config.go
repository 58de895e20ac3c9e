package messaging

import (
	"os"
	"strconv"
	"strings"
	"time"

	"flarehub/cmd/internal/httpx"
	"flarehub/cmd/internal/notify"
)

const maxContentChars = 4000

// Config configures Service and Handler.
type Config struct {
	// Latency is the simulated delivery delay applied before a message is stored.
	Latency time.Duration
	// HistoryLimit is the page size when the caller does not ask for one.
	HistoryLimit int
	// SessionRecheck is how often a live socket re-reads its session.
	SessionRecheck time.Duration
	MaxBodyBytes   int64

	// Live carries the websocket origin, queue, heartbeat and rate settings.
	Live notify.GatewayConfig
}

func DefaultConfig() Config {
	return Config{
		Latency:        500 * time.Millisecond,
		HistoryLimit:   defaultHistoryLimit,
		SessionRecheck: 5 * time.Second,
		MaxBodyBytes:   httpx.DefaultMaxBodyBytes,
		Live:           notify.DefaultGatewayConfig(),
	}
}

// LoadConfigFromEnv reads the FLAREHUB_MESSAGE_* keys and the shared
// FLAREHUB_WS_* websocket keys.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	cfg.Live = notify.LoadGatewayConfigFromEnv()

	if v := strings.TrimSpace(os.Getenv("FLAREHUB_MESSAGE_LATENCY")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, ErrConfig
		}
		cfg.Latency = d
	}
	if v := strings.TrimSpace(os.Getenv("FLAREHUB_MESSAGE_SESSION_RECHECK")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.SessionRecheck = d
	}
	if v := strings.TrimSpace(os.Getenv("FLAREHUB_MESSAGE_HISTORY_LIMIT")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxHistoryLimit {
			return Config{}, ErrConfig
		}
		cfg.HistoryLimit = n
	}
	return cfg, nil
}
