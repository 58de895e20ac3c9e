// Package guard decides whether a protected view renders or redirects.
//
// Evaluate is a pure function of a session snapshot and an optional required
// role. Watcher re-evaluates on every session change and drives a Navigator;
// Require adapts the same decision to HTTP.
package guard
