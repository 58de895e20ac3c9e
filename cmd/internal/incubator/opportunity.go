package incubator

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"
)

// sharedWithAll is the persisted marker for an opportunity visible to every startup.
const sharedWithAll = "All"

// Audience is who an opportunity is shared with: every startup, or a list of
// startup ids. It persists as the string "All" or a JSON array.
type Audience struct {
	All      bool
	Startups []string
}

func (a Audience) Shared() bool { return a.All || len(a.Startups) > 0 }

// Includes reports whether startupID can see the opportunity.
func (a Audience) Includes(startupID string) bool {
	if a.All {
		return true
	}
	for _, s := range a.Startups {
		if s == startupID {
			return true
		}
	}
	return false
}

func (a Audience) MarshalJSON() ([]byte, error) {
	if a.All {
		return json.Marshal(sharedWithAll)
	}
	if a.Startups == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(a.Startups)
}

func (a *Audience) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*a = Audience{}
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s != sharedWithAll {
			return errors.New("incubator: audience string must be \"All\"")
		}
		*a = Audience{All: true}
		return nil
	}
	var ids []string
	if err := json.Unmarshal(b, &ids); err != nil {
		return err
	}
	*a = Audience{Startups: ids}
	return nil
}

// Opportunity is a mentor-posted opening persisted under flare_hub_opportunities.
type Opportunity struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Deadline    string    `json:"deadline"`
	Link        string    `json:"link"`
	Shared      bool      `json:"shared"`
	SharedWith  Audience  `json:"sharedWith"`
	CreatedAt   time.Time `json:"createdAt"`
	CreatedBy   string    `json:"createdBy,omitempty"`
}
