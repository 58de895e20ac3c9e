package authapi

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config controls auth API transport behavior.
type Config struct {
	TrustProxy   bool
	MaxBodyBytes int64

	// ClientCookieName carries the signed client token for browsers.
	ClientCookieName string
	// ClientTokenHeader returns a freshly minted token to non-browser clients.
	ClientTokenHeader string

	CookiePath     string
	CookieDomain   string
	CookieSecure   bool
	CookieSameSite http.SameSite

	// RestoreTimeout bounds the per-request session restore.
	RestoreTimeout time.Duration
}

// LoadConfigFromEnv loads auth config from environment variables with safe defaults.
func LoadConfigFromEnv() Config {
	cfg := Config{
		TrustProxy:        envBool("FLAREHUB_AUTH_TRUST_PROXY", false),
		MaxBodyBytes:      envInt64("FLAREHUB_AUTH_MAX_BODY_BYTES", 1<<20), // 1 MiB
		ClientCookieName:  envString("FLAREHUB_AUTH_CLIENT_COOKIE_NAME", "flarehub_client"),
		ClientTokenHeader: envString("FLAREHUB_AUTH_CLIENT_TOKEN_HEADER", "X-Flarehub-Client-Token"),
		CookiePath:        envString("FLAREHUB_AUTH_COOKIE_PATH", "/"),
		CookieDomain:      strings.TrimSpace(os.Getenv("FLAREHUB_AUTH_COOKIE_DOMAIN")),
		CookieSecure:      envBool("FLAREHUB_AUTH_COOKIE_SECURE", true),
		CookieSameSite:    parseSameSite(os.Getenv("FLAREHUB_AUTH_COOKIE_SAMESITE")),
		RestoreTimeout:    envDuration("FLAREHUB_AUTH_RESTORE_TIMEOUT", 3*time.Second),
	}

	// Browsers reject SameSite=None without Secure.
	if cfg.CookieSameSite == http.SameSiteNoneMode {
		cfg.CookieSecure = true
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}

	return cfg
}

// DefaultConfig returns the configuration used when no environment is set.
func DefaultConfig() Config {
	return Config{
		MaxBodyBytes:      1 << 20,
		ClientCookieName:  "flarehub_client",
		ClientTokenHeader: "X-Flarehub-Client-Token",
		CookiePath:        "/",
		CookieSecure:      true,
		CookieSameSite:    http.SameSiteLaxMode,
		RestoreTimeout:    3 * time.Second,
	}
}

func parseSameSite(v string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	case "default":
		return http.SameSiteDefaultMode
	default:
		return http.SameSiteLaxMode
	}
}

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
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

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
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
