package identity

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestIdentityJSON_PersistedLayout(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   Identity
		want string
	}{
		{
			name: "unapproved applicant",
			in:   Identity{ID: "a1", Email: "a@x.com", Name: "Ann", Role: Applicant{}},
			want: `{"id":"a1","email":"a@x.com","name":"Ann","role":"applicant","approved":false}`,
		},
		{
			name: "approved applicant",
			in:   Identity{ID: "a2", Email: "b@x.com", Name: "Bo", Role: Applicant{Approved: true}},
			want: `{"id":"a2","email":"b@x.com","name":"Bo","role":"applicant","approved":true}`,
		},
		{
			name: "admin is always approved",
			in:   Identity{ID: "1", Email: "admin@flarehub.com", Name: "Admin User", Role: Admin{}},
			want: `{"id":"1","email":"admin@flarehub.com","name":"Admin User","role":"admin","approved":true}`,
		},
		{
			name: "mentor",
			in:   Identity{ID: "m", Email: "m@x.com", Name: "M", Role: Mentor{}},
			want: `{"id":"m","email":"m@x.com","name":"M","role":"mentor","approved":true}`,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			b, err := json.Marshal(tc.in)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if string(b) != tc.want {
				t.Fatalf("layout mismatch:\n got=%s\nwant=%s", b, tc.want)
			}

			var back Identity
			if err := json.Unmarshal(b, &back); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if back != tc.in {
				t.Fatalf("round trip mismatch: got=%+v want=%+v", back, tc.in)
			}
		})
	}
}

func TestIdentityJSON_Malformed(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{
		`null`,
		`{}`,
		`{"id":"1","email":"a@x.com","name":"A","role":"superuser","approved":true}`,
		`{"id":"","email":"a@x.com","role":"admin"}`,
		`{"id":"1","email":"","role":"admin"}`,
		`{"id":1,"email":"a@x.com","role":"admin"}`,
	} {
		var id Identity
		err := json.Unmarshal([]byte(raw), &id)
		if err == nil {
			t.Fatalf("expected error for %s", raw)
		}
		if !IsMalformed(err) {
			t.Fatalf("expected ErrMalformed for %s, got %v", raw, err)
		}
	}
}

func TestIdentityJSON_NonApplicantIgnoresApprovedFlag(t *testing.T) {
	t.Parallel()

	var id Identity
	if err := json.Unmarshal([]byte(`{"id":"2","email":"s@x.com","name":"S","role":"startup","approved":false}`), &id); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := id.Role.(Startup); !ok {
		t.Fatalf("expected Startup role, got %T", id.Role)
	}
	if !id.Approved() {
		t.Fatalf("startup must read as approved")
	}
}

func TestMarshal_RejectsIncompleteIdentity(t *testing.T) {
	t.Parallel()

	_, err := json.Marshal(Identity{ID: "1", Email: "a@x.com"})
	if err == nil {
		t.Fatalf("expected error for missing role")
	}
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestParseRole(t *testing.T) {
	t.Parallel()

	r, err := ParseRole(RoleApplicant, true)
	if err != nil {
		t.Fatalf("ParseRole: %v", err)
	}
	if r != (Applicant{Approved: true}) {
		t.Fatalf("unexpected role %#v", r)
	}
	if !IsApproved(r) || AwaitingApproval(r) {
		t.Fatalf("approved applicant misreported")
	}

	if !AwaitingApproval(Applicant{}) {
		t.Fatalf("unapproved applicant must await approval")
	}
	for _, r := range []Role{Startup{}, Admin{}, Mentor{}} {
		if AwaitingApproval(r) || !IsApproved(r) {
			t.Fatalf("%T must be approved", r)
		}
	}

	if _, err := ParseRole("owner", false); !IsInvalidInput(err) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if RoleName("owner").Valid() || !RoleMentor.Valid() {
		t.Fatalf("RoleName.Valid mismatch")
	}
}

func TestSeeds_ReturnsCopy(t *testing.T) {
	t.Parallel()

	s := Seeds()
	if len(s) != 3 {
		t.Fatalf("expected 3 seeds, got %d", len(s))
	}
	s[0].Email = "changed@example.com"
	if Seeds()[0].Email != "admin@flarehub.com" {
		t.Fatalf("Seeds leaked internal slice")
	}
}
