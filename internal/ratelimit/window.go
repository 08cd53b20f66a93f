package ratelimit

import (
	"context"
	"sync/atomic"
	"time"
)

// Defaults for admission control.
const (
	DefaultWidth = time.Second
	DefaultLimit = 20
)

// Window is a per-session record of recently admitted update times, oldest
// first. It is not safe for concurrent use; it lives inside session state and
// is only touched while the session is held exclusively.
type Window struct {
	times []time.Time
}

// Admit expires entries older than now-width, then rejects if limit entries
// remain; otherwise it records now and accepts. A rejection leaves the window
// as it was apart from expiry.
func (w *Window) Admit(now time.Time, width time.Duration, limit int) bool {
	w.expire(now, width)
	if len(w.times) >= limit {
		return false
	}
	w.times = append(w.times, now)
	return true
}

func (w *Window) expire(now time.Time, width time.Duration) {
	cutoff := now.Add(-width)
	i := 0
	for i < len(w.times) && w.times[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		w.times = append(w.times[:0], w.times[i:]...)
	}
}

// Len reports how many admissions the window currently holds.
func (w *Window) Len() int {
	return len(w.times)
}

// Limiter decides whether a session may submit another update.
type Limiter interface {
	Admit(ctx context.Context, sessionID string, w *Window, now time.Time) bool
}

// SlidingWindow admits against the session's own Window. The limit can be
// changed at runtime.
type SlidingWindow struct {
	width time.Duration
	limit atomic.Int64
}

// NewSlidingWindow returns a limiter allowing limit admissions per width.
// Non-positive arguments select the defaults.
func NewSlidingWindow(limit int, width time.Duration) *SlidingWindow {
	if width <= 0 {
		width = DefaultWidth
	}
	s := &SlidingWindow{width: width}
	s.SetLimit(limit)
	return s
}

// Admit implements Limiter.
func (s *SlidingWindow) Admit(_ context.Context, _ string, w *Window, now time.Time) bool {
	return w.Admit(now, s.width, s.Limit())
}

// Limit returns the current per-window limit.
func (s *SlidingWindow) Limit() int {
	return int(s.limit.Load())
}

// SetLimit changes the per-window limit. Non-positive values reset to the default.
func (s *SlidingWindow) SetLimit(limit int) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	s.limit.Store(int64(limit))
}

// Width returns the window width.
func (s *SlidingWindow) Width() time.Duration {
	return s.width
}
