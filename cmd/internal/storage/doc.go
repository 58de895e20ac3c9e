// Package storage implements Flare Hub's client-durable key/value substrate.
//
// Values are JSON documents addressed by (namespace, key). A namespace is either
// the shared namespace (collections every client sees) or a per-client namespace
// derived from the client id (the browser-local slots).
//
// Backends: in-memory (dev/tests), PostgreSQL (pgx + goose migrations) and Redis.
// Multi-key writes go through Update, which is atomic on every backend.
package storage
