package guard

import (
	"flarehub/cmd/identity"
	"flarehub/cmd/internal/auth/session"
)

// View paths the guard redirects to.
const (
	LoginPath     = "/login"
	PendingPath   = "/dashboard/pending"
	DashboardPath = "/dashboard"
)

// Kind enumerates guard outcomes.
type Kind int

const (
	// Wait means restore has not finished; show a neutral indicator, do not navigate.
	Wait Kind = iota
	RedirectLogin
	RedirectPending
	RedirectDashboard
	Render
)

func (k Kind) String() string {
	switch k {
	case Wait:
		return "wait"
	case RedirectLogin:
		return "redirect_login"
	case RedirectPending:
		return "redirect_pending"
	case RedirectDashboard:
		return "redirect_dashboard"
	case Render:
		return "render"
	default:
		return "unknown"
	}
}

// Decision is the outcome of one evaluation.
type Decision struct {
	Kind Kind
	// Location is set for redirects only.
	Location string
}

// IsRedirect reports whether d navigates away.
func (d Decision) IsRedirect() bool { return d.Location != "" }

// Requirement restricts a view to one role. The zero value allows any
// authenticated identity.
type Requirement struct {
	Role identity.RoleName
}

// AnyRole returns the requirement satisfied by every authenticated identity.
func AnyRole() Requirement { return Requirement{} }

// RequireRole returns the requirement for a single role.
func RequireRole(r identity.RoleName) Requirement { return Requirement{Role: r} }

func (r Requirement) satisfiedBy(role identity.Role) bool {
	return r.Role == "" || role.Name() == r.Role
}

// Evaluate applies the redirect policy to snap.
func Evaluate(snap session.Snapshot, req Requirement) Decision {
	switch snap.State {
	case session.StateLoading:
		return Decision{Kind: Wait}
	case session.StateUnauthenticated:
		return Decision{Kind: RedirectLogin, Location: LoginPath}
	case session.StateAuthenticated:
	default:
		return Decision{Kind: RedirectLogin, Location: LoginPath}
	}

	role := snap.Identity.Role
	if role == nil {
		return Decision{Kind: RedirectLogin, Location: LoginPath}
	}
	if req.satisfiedBy(role) {
		return Decision{Kind: Render}
	}

	switch r := role.(type) {
	case identity.Applicant:
		if !r.Approved {
			return Decision{Kind: RedirectPending, Location: PendingPath}
		}
		return Decision{Kind: RedirectDashboard, Location: DashboardPath}
	case identity.Startup, identity.Admin, identity.Mentor:
		return Decision{Kind: RedirectDashboard, Location: DashboardPath}
	default:
		return Decision{Kind: RedirectLogin, Location: LoginPath}
	}
}
