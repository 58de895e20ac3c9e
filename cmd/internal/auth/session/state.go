package session

import "flarehub/cmd/identity"

// State is the tri-state derived from identity presence.
type State int

const (
	StateLoading State = iota
	StateAuthenticated
	StateUnauthenticated
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// Snapshot is an immutable view of a Store.
// Identity is the zero value unless State is StateAuthenticated.
type Snapshot struct {
	State    State
	Identity identity.Identity
}

// Authenticated reports whether the snapshot carries an identity.
func (s Snapshot) Authenticated() bool { return s.State == StateAuthenticated }

// Navigation is a navigation the caller must perform.
type Navigation struct {
	Location string
	// FullReload means consumers must navigate away rather than re-render in place.
	FullReload bool
}

// LandingPath is the public landing view.
const LandingPath = "/"
