// Package session owns "who is logged in" for one client.
//
// A Store is constructed per client (there is no process-wide session). It
// starts in StateLoading, moves to Authenticated or Unauthenticated on
// Restore, and exposes Login, Signup and Logout. Login and Signup wait a
// simulated latency before resolving and never write storage on failure.
//
// Clients are identified by an opaque client id carried in a signed client
// token (PASETO v4.public by default, HS256 JWT optionally); see
// ClientTokenManager.
package session
