package storage

import (
	"context"
	"errors"
	"strings"
)

// Well-known keys. The layout mirrors the dashboard's local storage.
const (
	KeyCurrentUser   = "flare_hub_user"
	KeyUsers         = "flare_hub_users"
	KeyApplications  = "flare_hub_applications"
	KeyOpportunities = "flare_hub_opportunities"
	KeyDonors        = "flare_hub_donors"
	KeyMentors       = "flare_hub_mentors"
	KeyProjects      = "flare_hub_projects"
	KeyReports       = "flare_hub_reports"

	// KeyMessages prefixes one key per mentor/startup conversation.
	KeyMessages = "flare_hub_messages"
)

// SharedNamespace holds the collections that are visible to every client.
const SharedNamespace = "shared"

const clientNamespacePrefix = "client:"

var (
	// ErrInvalidKey is returned for empty namespaces or keys.
	ErrInvalidKey = errors.New("storage: invalid key")
	// ErrClosed is returned when the backend has been closed.
	ErrClosed = errors.New("storage: closed")
)

// ClientNamespace returns the namespace owned by a single client.
// The argument must already be a hashed client id (see security/token).
func ClientNamespace(hashedClientID string) string {
	return clientNamespacePrefix + strings.TrimSpace(hashedClientID)
}

// Reader reads single values.
type Reader interface {
	// Get returns the raw value and whether it exists.
	Get(ctx context.Context, namespace, key string) ([]byte, bool, error)
}

// Tx is the read/write surface available inside an Update.
type Tx interface {
	Reader
	Set(ctx context.Context, namespace, key string, value []byte) error
	Delete(ctx context.Context, namespace, key string) error
}

// KV is a durable key/value store.
//
// Set and Delete outside Update are single-key writes. Update runs fn
// atomically: either every write made through the Tx is applied or none is.
type KV interface {
	Tx
	Update(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

func validKey(namespace, key string) error {
	if strings.TrimSpace(namespace) == "" || strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	return nil
}
