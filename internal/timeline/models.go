package timeline

// Channel is the animation track an event plays on.
type Channel string

const (
	ChannelDefault Channel = "default"
	ChannelFace    Channel = "face"
	ChannelGaze    Channel = "gaze"
)

// Event is one timed clip. Events are created by the Compiler and never
// mutated afterwards.
type Event struct {
	OffsetMS   int64   `json:"offset_ms"`
	ClipID     string  `json:"clip_id"`
	DurationMS int64   `json:"duration_ms"`
	Channel    Channel `json:"channel"`
	Confidence float64 `json:"confidence"`
}

// Meta describes how a timeline was produced.
type Meta struct {
	Version   string `json:"version"`
	Generator string `json:"generator"`
}

// Timeline is the compiled result of one update.
type Timeline struct {
	ID        string  `json:"id"`
	CreatedAt int64   `json:"created_at"` // unix milliseconds
	Lang      string  `json:"lang"`
	Events    []Event `json:"events"`
	Meta      Meta    `json:"meta"`
}

// EndMS is the offset at which the last event finishes, or 0 for an empty list.
func EndMS(events []Event) int64 {
	var end int64
	for _, e := range events {
		if t := e.OffsetMS + e.DurationMS; t > end {
			end = t
		}
	}
	return end
}
