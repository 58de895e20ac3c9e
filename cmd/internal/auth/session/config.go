package session

import (
	"os"
	"strings"
	"time"
)

// Token formats accepted by NewClientTokenManager.
const (
	TokenFormatPaseto = "paseto"
	TokenFormatJWT    = "jwt"
)

const minJWTSecretBytes = 32

// Config defines runtime configuration for sessions and client tokens.
type Config struct {
	// Issuer is the value set in the "iss" claim of client tokens.
	Issuer string

	// ClientTokenTTL is the lifetime of a client token (and its cookie).
	ClientTokenTTL time.Duration

	// ClockSkew defines the allowed time skew during token validation.
	ClockSkew time.Duration

	// Latency is the simulated delay applied before Login and Signup resolve.
	Latency time.Duration

	// TokenFormat selects the client token encoding: "paseto" or "jwt".
	TokenFormat string

	// PasetoV4SecretKeyHex is the hex-encoded Ed25519 secret key for v4.public.
	// Empty means an ephemeral key is generated at startup.
	PasetoV4SecretKeyHex string

	// JWTSecret is the HS256 secret, required when TokenFormat is "jwt".
	JWTSecret string
}

// DefaultConfig returns the development defaults.
func DefaultConfig() Config {
	return Config{
		Issuer:         "flarehub",
		ClientTokenTTL: 30 * 24 * time.Hour,
		ClockSkew:      30 * time.Second,
		Latency:        time.Second,
		TokenFormat:    TokenFormatPaseto,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Optional (durations must be valid Go duration strings):
//   - FLAREHUB_AUTH_ISSUER
//   - FLAREHUB_AUTH_CLIENT_TTL
//   - FLAREHUB_AUTH_CLOCK_SKEW
//   - FLAREHUB_AUTH_LATENCY
//   - FLAREHUB_AUTH_TOKEN_FORMAT (paseto|jwt)
//   - FLAREHUB_PASETO_V4_SECRET_KEY_HEX
//   - FLAREHUB_JWT_SECRET (required, >= 32 bytes, when the format is jwt)
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("FLAREHUB_AUTH_ISSUER"); v != "" {
		cfg.Issuer = v
	}

	if v := os.Getenv("FLAREHUB_AUTH_CLIENT_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.ClientTokenTTL = d
	}

	if v := os.Getenv("FLAREHUB_AUTH_CLOCK_SKEW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, ErrConfig
		}
		cfg.ClockSkew = d
	}

	if v := os.Getenv("FLAREHUB_AUTH_LATENCY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, ErrConfig
		}
		cfg.Latency = d
	}

	if v := strings.ToLower(strings.TrimSpace(os.Getenv("FLAREHUB_AUTH_TOKEN_FORMAT"))); v != "" {
		cfg.TokenFormat = v
	}

	cfg.PasetoV4SecretKeyHex = strings.TrimSpace(os.Getenv("FLAREHUB_PASETO_V4_SECRET_KEY_HEX"))
	cfg.JWTSecret = strings.TrimSpace(os.Getenv("FLAREHUB_JWT_SECRET"))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field invariants.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Issuer) == "" || c.ClientTokenTTL <= 0 || c.ClockSkew < 0 || c.Latency < 0 {
		return ErrConfig
	}
	switch c.TokenFormat {
	case TokenFormatPaseto:
		return nil
	case TokenFormatJWT:
		if len(c.JWTSecret) < minJWTSecretBytes {
			return ErrConfig
		}
		return nil
	default:
		return ErrConfig
	}
}
