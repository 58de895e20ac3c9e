package guard

import (
	"testing"

	"flarehub/cmd/identity"
	"flarehub/cmd/internal/auth/session"
)

func authed(role identity.Role) session.Snapshot {
	return session.Snapshot{
		State:    session.StateAuthenticated,
		Identity: identity.Identity{ID: "x", Email: "x@x.com", Name: "X", Role: role},
	}
}

var allRoles = []identity.RoleName{
	identity.RoleApplicant, identity.RoleStartup, identity.RoleAdmin, identity.RoleMentor,
}

func TestEvaluate_Loading(t *testing.T) {
	t.Parallel()

	for _, req := range []Requirement{AnyRole(), RequireRole(identity.RoleAdmin)} {
		d := Evaluate(session.Snapshot{State: session.StateLoading}, req)
		if d.Kind != Wait || d.IsRedirect() {
			t.Fatalf("loading must wait without navigation, got %+v", d)
		}
	}
}

func TestEvaluate_Unauthenticated(t *testing.T) {
	t.Parallel()

	for _, req := range []Requirement{AnyRole(), RequireRole(identity.RoleStartup)} {
		d := Evaluate(session.Snapshot{State: session.StateUnauthenticated}, req)
		if d.Kind != RedirectLogin || d.Location != LoginPath {
			t.Fatalf("expected login redirect, got %+v", d)
		}
	}
}

func TestEvaluate_RoleMismatchNonApplicantGoesToDashboard(t *testing.T) {
	t.Parallel()

	for _, role := range []identity.Role{identity.Startup{}, identity.Admin{}, identity.Mentor{}} {
		for _, required := range allRoles {
			if role.Name() == required {
				continue
			}
			d := Evaluate(authed(role), RequireRole(required))
			if d.Kind != RedirectDashboard || d.Location != DashboardPath {
				t.Fatalf("%T guarded by %s: expected dashboard redirect, got %+v", role, required, d)
			}
		}
	}
}

func TestEvaluate_UnapprovedApplicantAlwaysPending(t *testing.T) {
	t.Parallel()

	for _, required := range []identity.RoleName{identity.RoleStartup, identity.RoleAdmin, identity.RoleMentor} {
		d := Evaluate(authed(identity.Applicant{Approved: false}), RequireRole(required))
		if d.Kind != RedirectPending || d.Location != PendingPath {
			t.Fatalf("guarded by %s: expected pending redirect, got %+v", required, d)
		}
	}
}

func TestEvaluate_ApprovedApplicantMismatchGoesToDashboard(t *testing.T) {
	t.Parallel()

	d := Evaluate(authed(identity.Applicant{Approved: true}), RequireRole(identity.RoleStartup))
	if d.Kind != RedirectDashboard {
		t.Fatalf("expected dashboard redirect, got %+v", d)
	}
}

func TestEvaluate_Render(t *testing.T) {
	t.Parallel()

	cases := []struct {
		role identity.Role
		req  Requirement
	}{
		{identity.Admin{}, RequireRole(identity.RoleAdmin)},
		{identity.Startup{}, RequireRole(identity.RoleStartup)},
		{identity.Mentor{}, RequireRole(identity.RoleMentor)},
		{identity.Applicant{}, RequireRole(identity.RoleApplicant)},
		{identity.Applicant{}, AnyRole()},
		{identity.Admin{}, AnyRole()},
	}
	for _, tc := range cases {
		if d := Evaluate(authed(tc.role), tc.req); d.Kind != Render || d.IsRedirect() {
			t.Fatalf("%T with %+v: expected render, got %+v", tc.role, tc.req, d)
		}
	}
}

func TestEvaluate_AuthenticatedWithoutRole(t *testing.T) {
	t.Parallel()

	d := Evaluate(session.Snapshot{State: session.StateAuthenticated}, AnyRole())
	if d.Kind != RedirectLogin {
		t.Fatalf("identity without role must not render, got %+v", d)
	}
}

func TestEvaluate_Idempotent(t *testing.T) {
	t.Parallel()

	snap := authed(identity.Applicant{})
	first := Evaluate(snap, RequireRole(identity.RoleStartup))
	for i := 0; i < 5; i++ {
		if got := Evaluate(snap, RequireRole(identity.RoleStartup)); got != first {
			t.Fatalf("evaluation not stable: %+v vs %+v", got, first)
		}
	}
}
