package messaging

import (
	"context"
	"fmt"
	"strings"

	"flarehub/cmd/identity"
)

// Side is the participant a message was sent from.
type Side string

const (
	SideMentor  Side = "mentor"
	SideStartup Side = "startup"
)

// Conversation is the thread between one mentor and one startup.
type Conversation struct {
	MentorID  string `json:"mentorId"`
	StartupID string `json:"startupId"`
}

// ID is the same for both participants.
func (c Conversation) ID() string {
	return c.MentorID + ":" + c.StartupID
}

// SideOf reports the side identityID sits on. Anyone else is not a member.
func (c Conversation) SideOf(identityID string) (Side, bool) {
	switch {
	case identityID == "":
		return "", false
	case identityID == c.MentorID:
		return SideMentor, true
	case identityID == c.StartupID:
		return SideStartup, true
	default:
		return "", false
	}
}

// Directory resolves identities by id. identity.Repository satisfies it.
type Directory interface {
	FindByID(ctx context.Context, id string) (identity.Identity, bool, error)
}

// Open returns the conversation between caller and peerID, and the peer.
//
// Mentors talk to startups and startups to mentors. Any other caller is
// forbidden; a peer that does not exist or has the wrong role is not found.
func Open(ctx context.Context, dir Directory, caller identity.Identity, peerID string) (Conversation, identity.Identity, error) {
	const op = "messaging.Open"

	var want identity.RoleName
	switch caller.Role.(type) {
	case identity.Mentor:
		want = identity.RoleStartup
	case identity.Startup:
		want = identity.RoleMentor
	default:
		return Conversation{}, identity.Identity{}, OpError{Op: op, Kind: ErrForbidden}
	}

	peerID = strings.TrimSpace(peerID)
	if peerID == "" || peerID == caller.ID {
		return Conversation{}, identity.Identity{}, OpError{Op: op, Kind: ErrNotFound}
	}
	peer, ok, err := dir.FindByID(ctx, peerID)
	if err != nil {
		return Conversation{}, identity.Identity{}, fmt.Errorf("%s: %w", op, err)
	}
	if !ok || peer.Role == nil || peer.Role.Name() != want {
		return Conversation{}, identity.Identity{}, OpError{Op: op, Kind: ErrNotFound, Msg: peerID}
	}

	if want == identity.RoleStartup {
		return Conversation{MentorID: caller.ID, StartupID: peer.ID}, peer, nil
	}
	return Conversation{MentorID: peer.ID, StartupID: caller.ID}, peer, nil
}
