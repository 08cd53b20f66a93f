package stats

import "time"

// BroadcastEvent records one published timeline message.
type BroadcastEvent struct {
	TS           time.Time `json:"ts"`
	SessionID    string    `json:"session_id"`
	Kind         string    `json:"kind"`
	Events       int       `json:"events"`
	FromOffsetMS *int64    `json:"from_offset_ms,omitempty"`
	IsFinal      bool      `json:"is_final"`
}

// EventQuery selects a page of recent events, newest first. An empty
// SessionID matches every session.
type EventQuery struct {
	N         int
	Offset    int
	SessionID string
}

// EventSummary counts the events a query selects.
type EventSummary struct {
	Total    int     `json:"total"`
	Replaces int     `json:"replaces"`
	Ratio    float64 `json:"ratio"`
}

// Recent returns recorded broadcast events matching q, newest first.
func (c *Collector) Recent(q EventQuery) []BroadcastEvent {
	c.mu.Lock()
	all := c.events.items()
	c.mu.Unlock()

	if q.Offset < 0 {
		q.Offset = 0
	}
	out := make([]BroadcastEvent, 0, min(max(q.N, 0), len(all)))
	skipped := 0
	for i := len(all) - 1; i >= 0 && len(out) < q.N; i-- {
		ev := all[i]
		if q.SessionID != "" && ev.SessionID != q.SessionID {
			continue
		}
		if skipped < q.Offset {
			skipped++
			continue
		}
		out = append(out, ev)
	}
	return out
}

// Summarize returns totals over the events Recent(q) would return.
func (c *Collector) Summarize(q EventQuery) EventSummary {
	evs := c.Recent(q)
	s := EventSummary{Total: len(evs)}
	for _, ev := range evs {
		if ev.Kind == KindReplace {
			s.Replaces++
		}
	}
	s.Ratio = ratio(int64(s.Replaces), int64(s.Total))
	return s
}
