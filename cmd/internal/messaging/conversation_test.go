package messaging

import (
	"context"
	"errors"
	"testing"

	"flarehub/cmd/identity"
)

type mapDirectory map[string]identity.Identity

func (d mapDirectory) FindByID(_ context.Context, id string) (identity.Identity, bool, error) {
	v, ok := d[id]
	return v, ok, nil
}

type brokenDirectory struct{}

func (brokenDirectory) FindByID(context.Context, string) (identity.Identity, bool, error) {
	return identity.Identity{}, false, errors.New("storage down")
}

var (
	mentorMo    = identity.Identity{ID: "m1", Email: "mo@flarehub.com", Name: "Mo Mentor", Role: identity.Mentor{}}
	mentorAda   = identity.Identity{ID: "m2", Email: "ada@flarehub.com", Name: "Ada Mentor", Role: identity.Mentor{}}
	startupAcme = identity.Identity{ID: "s1", Email: "acme@example.com", Name: "Acme", Role: identity.Startup{}}
	adminRoot   = identity.Identity{ID: "a1", Email: "admin@flarehub.com", Name: "Admin", Role: identity.Admin{}}
	applicant   = identity.Identity{ID: "p1", Email: "new@example.com", Name: "New", Role: identity.Applicant{}}
)

func testDirectory() mapDirectory {
	return mapDirectory{
		mentorMo.ID:    mentorMo,
		mentorAda.ID:   mentorAda,
		startupAcme.ID: startupAcme,
		adminRoot.ID:   adminRoot,
		applicant.ID:   applicant,
	}
}

func TestConversation_SideOf(t *testing.T) {
	t.Parallel()

	c := Conversation{MentorID: "m1", StartupID: "s1"}
	if side, ok := c.SideOf("m1"); !ok || side != SideMentor {
		t.Fatalf("mentor side: %q %v", side, ok)
	}
	if side, ok := c.SideOf("s1"); !ok || side != SideStartup {
		t.Fatalf("startup side: %q %v", side, ok)
	}
	for _, outsider := range []string{"", "m2", "a1"} {
		if _, ok := c.SideOf(outsider); ok {
			t.Fatalf("%q must not be a member", outsider)
		}
	}
	if c.ID() != "m1:s1" {
		t.Fatalf("id=%q", c.ID())
	}
}

func TestOpen_SameConversationFromBothSides(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := testDirectory()

	fromMentor, peer, err := Open(ctx, dir, mentorMo, startupAcme.ID)
	if err != nil {
		t.Fatalf("mentor open: %v", err)
	}
	if peer.ID != startupAcme.ID {
		t.Fatalf("peer=%+v", peer)
	}
	fromStartup, peer, err := Open(ctx, dir, startupAcme, mentorMo.ID)
	if err != nil {
		t.Fatalf("startup open: %v", err)
	}
	if peer.ID != mentorMo.ID {
		t.Fatalf("peer=%+v", peer)
	}
	if fromMentor != fromStartup {
		t.Fatalf("conversations differ: %+v vs %+v", fromMentor, fromStartup)
	}

	other, _, err := Open(ctx, dir, mentorAda, startupAcme.ID)
	if err != nil {
		t.Fatalf("second mentor open: %v", err)
	}
	if other.ID() == fromMentor.ID() {
		t.Fatalf("each mentor gets a separate thread")
	}
}

func TestOpen_RejectsWrongPairs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := testDirectory()

	cases := []struct {
		name   string
		caller identity.Identity
		peer   string
		want   error
	}{
		{"admin caller", adminRoot, startupAcme.ID, ErrForbidden},
		{"applicant caller", applicant, mentorMo.ID, ErrForbidden},
		{"mentor to mentor", mentorMo, mentorAda.ID, ErrNotFound},
		{"mentor to applicant", mentorMo, applicant.ID, ErrNotFound},
		{"startup to admin", startupAcme, adminRoot.ID, ErrNotFound},
		{"unknown peer", mentorMo, "nope", ErrNotFound},
		{"blank peer", mentorMo, "  ", ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := Open(ctx, dir, tc.caller, tc.peer); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestOpen_DirectoryFailure(t *testing.T) {
	t.Parallel()

	_, _, err := Open(context.Background(), brokenDirectory{}, mentorMo, "s1")
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrForbidden) {
		t.Fatalf("expected storage error, got %v", err)
	}
}
