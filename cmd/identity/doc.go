// Package identity defines Flare Hub's authenticated principal and the single
// persistence boundary for it.
//
// An Identity carries a closed Role variant; approval is payload of the
// Applicant case only. The Repository keeps the per-client current-identity
// slot and the shared identity collection on top of a storage.KV, and is the
// only code that reads or writes either key.
package identity
