package identity

import "fmt"

// RoleName is the persisted spelling of a role.
type RoleName string

const (
	RoleApplicant RoleName = "applicant"
	RoleStartup   RoleName = "startup"
	RoleAdmin     RoleName = "admin"
	RoleMentor    RoleName = "mentor"
)

// Valid reports whether n is one of the known role names.
func (n RoleName) Valid() bool {
	switch n {
	case RoleApplicant, RoleStartup, RoleAdmin, RoleMentor:
		return true
	default:
		return false
	}
}

// Role is a closed variant. The only implementations are Applicant, Startup,
// Admin and Mentor; callers switch on the concrete type.
type Role interface {
	Name() RoleName
	role()
}

// Applicant is a founder whose application may or may not be approved yet.
type Applicant struct {
	Approved bool
}

// Startup is an accepted founder.
type Startup struct{}

// Admin runs the program.
type Admin struct{}

// Mentor shares opportunities with startups.
type Mentor struct{}

func (Applicant) Name() RoleName { return RoleApplicant }
func (Startup) Name() RoleName   { return RoleStartup }
func (Admin) Name() RoleName     { return RoleAdmin }
func (Mentor) Name() RoleName    { return RoleMentor }

func (Applicant) role() {}
func (Startup) role()   {}
func (Admin) role()     {}
func (Mentor) role()    {}

// ParseRole builds the variant for a persisted role name. The approval flag
// is only meaningful for applicants.
func ParseRole(name RoleName, approved bool) (Role, error) {
	switch name {
	case RoleApplicant:
		return Applicant{Approved: approved}, nil
	case RoleStartup:
		return Startup{}, nil
	case RoleAdmin:
		return Admin{}, nil
	case RoleMentor:
		return Mentor{}, nil
	default:
		return nil, invalid("identity.ParseRole", fmt.Sprintf("unknown role %q", name))
	}
}

// IsApproved reports the persisted approval flag for r.
// Every role other than Applicant is approved by construction.
func IsApproved(r Role) bool {
	switch v := r.(type) {
	case Applicant:
		return v.Approved
	case Startup, Admin, Mentor:
		return true
	default:
		return false
	}
}

// AwaitingApproval reports whether r is an applicant that has not been approved.
func AwaitingApproval(r Role) bool {
	a, ok := r.(Applicant)
	return ok && !a.Approved
}
