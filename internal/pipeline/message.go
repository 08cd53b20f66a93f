package pipeline

import "github.com/scyber100-hub/realtimesignlanguage/internal/timeline"

// UpdateType distinguishes interim from settled text.
type UpdateType string

const (
	Partial UpdateType = "partial"
	Final   UpdateType = "final"
)

// Broadcast message kinds.
const (
	KindTimeline = "timeline"
	KindReplace  = "timeline.replace"
)

// Ingest is one inbound text update.
type Ingest struct {
	Type              UpdateType `json:"type"`
	SessionID         string     `json:"session_id"`
	Text              string     `json:"text"`
	StartOffsetMS     *int64     `json:"start_offset_ms,omitempty"`
	GapMS             *int64     `json:"gap_ms,omitempty"`
	OriginTimestampMS *float64   `json:"origin_timestamp_ms,omitempty"`
}

// IsFinal reports whether the update settles the utterance.
func (in Ingest) IsFinal() bool { return in.Type == Final }

// Ack answers every ingest message.
type Ack struct {
	Accepted     bool   `json:"accepted"`
	RateLimited  bool   `json:"rate_limited,omitempty"`
	Suppressed   bool   `json:"suppressed,omitempty"`
	SessionID    string `json:"session_id"`
	IsFinal      bool   `json:"is_final"`
	ProcessingMS *int64 `json:"processing_ms,omitempty"`
	Error        string `json:"error,omitempty"`
}

// TimelineMessage carries a session's complete timeline.
type TimelineMessage struct {
	Kind      string            `json:"kind"`
	SessionID string            `json:"session_id"`
	Data      timeline.Timeline `json:"data"`
}

// ReplaceMessage patches the viewer's copy of the timeline identified by
// Data.ID from FromOffsetMS onward.
type ReplaceMessage struct {
	Kind         string      `json:"kind"`
	SessionID    string      `json:"session_id"`
	FromOffsetMS int64       `json:"from_offset_ms"`
	Data         ReplaceData `json:"data"`
}

// ReplaceData is the payload of a replacement message.
type ReplaceData struct {
	ID     string           `json:"id"`
	Events []timeline.Event `json:"events"`
}
