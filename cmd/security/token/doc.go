// Package token provides keyed hashing primitives for Flare Hub.
//
// It is the single source of truth for how client ids are turned into
// storage namespaces.
//
// Modes:
// - Default dev mode: SHA-256(id) when no HMAC key is configured.
// - Enforced mode: HMAC-SHA256(id, key) when policy requires it.
// - Output is always a stable 64-char hex string.
//
// Environment:
// - FLAREHUB_TOKEN_HMAC_KEY: when set, enables HMAC mode.
// Policy:
//   - If RequireTokenHMAC=true, callers MUST enforce a minimum key size (>= 32 bytes)
//     and MUST use HMAC (no SHA fallback).
package token
