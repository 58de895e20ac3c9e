package app

import (
	"errors"

	"flarehub/cmd/security/token"
)

// ValidateSecurityConfig enforces the startup security policy.
// It checks the same package that performs namespace hashing.
func ValidateSecurityConfig(cfg Config) error {
	if !cfg.RequireTokenHMAC {
		return nil
	}

	// HMAC-SHA256 keys are measured in bytes, minimum 32.
	if _, err := token.HMACKeyFromEnv(32); err != nil {
		switch {
		case errors.Is(err, token.ErrHMACKeyMissing):
			return errors.New("security policy: FLAREHUB_REQUIRE_TOKEN_HMAC=true but FLAREHUB_TOKEN_HMAC_KEY is missing")
		case errors.Is(err, token.ErrHMACKeyTooShort):
			return errors.New("security policy: FLAREHUB_REQUIRE_TOKEN_HMAC=true but FLAREHUB_TOKEN_HMAC_KEY is too short (min 32 bytes)")
		default:
			return err
		}
	}

	if !token.HMACEnabled() {
		return errors.New("security policy: FLAREHUB_REQUIRE_TOKEN_HMAC=true but token hasher is not in HMAC mode")
	}

	return nil
}
