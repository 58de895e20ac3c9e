package notify

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultSendQueueSize  = 256
	minSendQueueSize      = 32
	defaultWriteTimeout   = 5 * time.Second
	defaultHeartbeatEvery = 25 * time.Second
	defaultHeartbeatWait  = 5 * time.Second
	defaultRateEvents     = 30
	defaultRateWindow     = 10 * time.Second
	defaultAllowedOrigins = "http://localhost,http://127.0.0.1"

	maxFrameBytes = 4 << 10
)

// GatewayConfig configures WSGateway.
type GatewayConfig struct {
	// OriginRequired rejects handshakes without an Origin header.
	OriginRequired bool
	// AllowedOrigins is the origin allowlist; "*" allows any origin.
	AllowedOrigins []string
	// DevInsecure disables the websocket library's own origin check.
	DevInsecure bool

	SendQueueSize    int
	WriteTimeout     time.Duration
	HeartbeatEvery   time.Duration
	HeartbeatTimeout time.Duration

	// RateEvents inbound frames are allowed per RateWindow.
	RateEvents int
	RateWindow time.Duration
}

func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		OriginRequired:   true,
		AllowedOrigins:   splitCSV(defaultAllowedOrigins),
		SendQueueSize:    defaultSendQueueSize,
		WriteTimeout:     defaultWriteTimeout,
		HeartbeatEvery:   defaultHeartbeatEvery,
		HeartbeatTimeout: defaultHeartbeatWait,
		RateEvents:       defaultRateEvents,
		RateWindow:       defaultRateWindow,
	}
}

// LoadGatewayConfigFromEnv reads the FLAREHUB_WS_* keys. Invalid values fall
// back to defaults.
func LoadGatewayConfigFromEnv() GatewayConfig {
	cfg := DefaultGatewayConfig()

	cfg.DevInsecure = envBool("FLAREHUB_WS_DEV_INSECURE", false)
	cfg.OriginRequired = envBool("FLAREHUB_WS_ORIGIN_REQUIRED", cfg.OriginRequired)
	if v := strings.TrimSpace(os.Getenv("FLAREHUB_WS_ALLOWED_ORIGINS")); v != "" {
		cfg.AllowedOrigins = splitCSV(v)
	}
	cfg.SendQueueSize = envInt("FLAREHUB_WS_SEND_QUEUE", cfg.SendQueueSize)
	cfg.WriteTimeout = envDuration("FLAREHUB_WS_WRITE_TIMEOUT", cfg.WriteTimeout)
	cfg.HeartbeatEvery = envDuration("FLAREHUB_WS_HEARTBEAT_INTERVAL", cfg.HeartbeatEvery)
	cfg.HeartbeatTimeout = envDuration("FLAREHUB_WS_HEARTBEAT_TIMEOUT", cfg.HeartbeatTimeout)
	cfg.RateEvents = envInt("FLAREHUB_WS_RATE_EVENTS", cfg.RateEvents)
	cfg.RateWindow = envDuration("FLAREHUB_WS_RATE_WINDOW", cfg.RateWindow)
	return cfg
}

// Normalized replaces unset or out-of-range fields with defaults.
func (c GatewayConfig) Normalized() GatewayConfig {
	d := DefaultGatewayConfig()
	if c.SendQueueSize < minSendQueueSize {
		c.SendQueueSize = minSendQueueSize
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.HeartbeatEvery <= 0 {
		c.HeartbeatEvery = d.HeartbeatEvery
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = d.HeartbeatTimeout
	}
	if c.RateEvents <= 0 {
		c.RateEvents = d.RateEvents
	}
	if c.RateWindow <= 0 {
		c.RateWindow = d.RateWindow
	}
	return c
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
