package identity

import (
	"encoding/json"
	"strings"
)

// Identity is the authenticated principal.
type Identity struct {
	ID    string
	Email string
	Name  string
	Role  Role
}

// record is the persisted layout shared by flare_hub_user and flare_hub_users.
type record struct {
	ID       string   `json:"id"`
	Email    string   `json:"email"`
	Name     string   `json:"name"`
	Role     RoleName `json:"role"`
	Approved bool     `json:"approved"`
}

// Approved reports the identity's approval flag.
func (i Identity) Approved() bool { return IsApproved(i.Role) }

// Validate checks the fields every persisted identity must carry.
func (i Identity) Validate() error {
	const op = "identity.Validate"
	if strings.TrimSpace(i.ID) == "" {
		return invalid(op, "missing id")
	}
	if strings.TrimSpace(i.Email) == "" {
		return invalid(op, "missing email")
	}
	if i.Role == nil {
		return invalid(op, "missing role")
	}
	return nil
}

func (i Identity) MarshalJSON() ([]byte, error) {
	if err := i.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(record{
		ID:       i.ID,
		Email:    i.Email,
		Name:     i.Name,
		Role:     i.Role.Name(),
		Approved: IsApproved(i.Role),
	})
}

func (i *Identity) UnmarshalJSON(b []byte) error {
	const op = "identity.UnmarshalJSON"

	var r record
	if err := json.Unmarshal(b, &r); err != nil {
		return malformed(op, err.Error())
	}
	role, err := ParseRole(r.Role, r.Approved)
	if err != nil {
		return malformed(op, err.Error())
	}
	out := Identity{ID: r.ID, Email: r.Email, Name: r.Name, Role: role}
	if err := out.Validate(); err != nil {
		return malformed(op, err.Error())
	}
	*i = out
	return nil
}
