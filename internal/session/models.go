package session

import (
	"time"

	"github.com/scyber100-hub/realtimesignlanguage/internal/ratelimit"
	"github.com/scyber100-hub/realtimesignlanguage/internal/timeline"
)

// ID identifies a logical utterance stream, supplied by the client.
type ID string

// State is everything the pipeline keeps for one session. It is only read or
// written through a Handle.
type State struct {
	ID ID

	// CurrentText is the last accepted full utterance.
	CurrentText string
	// CurrentEvents are the events of the last broadcast timeline.
	CurrentEvents []timeline.Event
	// BaseID is the id of the session's first timeline; empty until then.
	BaseID string

	// StartOffsetMS and GapMS are sticky compile parameters; nil means
	// "use the server default".
	StartOffsetMS *int64
	GapMS         *int64

	Admission ratelimit.Window

	CreatedAt    time.Time
	LastUpdateAt time.Time
	Updates      int64
}

// Initialized reports whether a timeline has been broadcast for the session.
func (s *State) Initialized() bool {
	return s.BaseID != ""
}

// lastActivity is the timestamp idle expiry is measured from.
func (s *State) lastActivity() time.Time {
	if s.LastUpdateAt.IsZero() {
		return s.CreatedAt
	}
	return s.LastUpdateAt
}

// Summary is a read-only view of a session for listings.
type Summary struct {
	ID           ID        `json:"session_id"`
	Text         string    `json:"text"`
	Events       int       `json:"events"`
	BaseID       string    `json:"base_id,omitempty"`
	Updates      int64     `json:"updates"`
	CreatedAt    time.Time `json:"created_at"`
	LastUpdateAt time.Time `json:"last_update_at,omitempty"`
}

func (s *State) summary() Summary {
	return Summary{
		ID:           s.ID,
		Text:         s.CurrentText,
		Events:       len(s.CurrentEvents),
		BaseID:       s.BaseID,
		Updates:      s.Updates,
		CreatedAt:    s.CreatedAt,
		LastUpdateAt: s.LastUpdateAt,
	}
}
