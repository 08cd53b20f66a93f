package pipeline

import "sync"

// Values are the compile parameters that can change at runtime.
type Values struct {
	IncludeAuxChannels bool  `json:"include_aux_channels"`
	DefaultStartMS     int64 `json:"default_start_ms"`
	DefaultGapMS       int64 `json:"default_gap_ms"`
}

// Settings holds Values behind a lock so the admin surface can change them
// while updates are in flight.
type Settings struct {
	mu sync.RWMutex
	v  Values
}

// NewSettings returns Settings initialized to v.
func NewSettings(v Values) *Settings {
	return &Settings{v: v}
}

// Load returns a copy of the current values.
func (s *Settings) Load() Values {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v
}

// Store replaces the current values.
func (s *Settings) Store(v Values) {
	s.mu.Lock()
	s.v = v
	s.mu.Unlock()
}

// Update applies fn to the current values under the write lock and returns
// the result. Concurrent updates to different fields do not overwrite each
// other.
func (s *Settings) Update(fn func(*Values)) Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.v)
	return s.v
}
