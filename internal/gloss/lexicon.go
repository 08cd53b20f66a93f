package gloss

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"
)

// Gloss is one translated symbol with the translator's confidence.
type Gloss struct {
	Symbol     string  `json:"gloss"`
	Confidence float64 `json:"confidence"`
}

// Confidence assigned to lexicon and rule hits, and to pass-through tokens.
const (
	KnownConfidence   = 0.9
	UnknownConfidence = 0.5
)

var baseLexicon = map[string]string{
	"안녕하세요": "HELLO",
	"안녕":    "HELLO",
	"한국":    "KOREA",
	"대한민국":  "KOREA",
	"날씨":    "WEATHER",
	"오늘":    "TODAY",
	"내일":    "TOMORROW",
	"속보":    "BREAKING",
	"지진":    "EARTHQUAKE",
	"태풍":    "TYPHOON",
	"비":     "RAIN",
	"눈":     "SNOW",
	"맑음":    "SUNNY",
}

// Lexicon maps words to gloss symbols. The overlay is editable at runtime
// and takes precedence over the built-in entries.
type Lexicon struct {
	mu      sync.RWMutex
	base    map[string]string
	overlay map[string]string
}

// NewLexicon returns a lexicon with the built-in entries and an empty overlay.
func NewLexicon() *Lexicon {
	return &Lexicon{
		base:    maps.Clone(baseLexicon),
		overlay: make(map[string]string),
	}
}

// Lookup resolves a word, overlay first.
func (l *Lexicon) Lookup(word string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if g, ok := l.overlay[word]; ok {
		return g, true
	}
	g, ok := l.base[word]
	return g, ok
}

// Merge adds or replaces overlay entries. An empty gloss deletes the word
// from the overlay.
func (l *Lexicon) Merge(entries map[string]string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for w, g := range entries {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		if g == "" {
			delete(l.overlay, w)
			continue
		}
		l.overlay[w] = strings.ToUpper(g)
	}
}

// Overlay returns a copy of the overlay entries.
func (l *Lexicon) Overlay() map[string]string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return maps.Clone(l.overlay)
}

// ReplaceOverlay swaps the whole overlay.
func (l *Lexicon) ReplaceOverlay(entries map[string]string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.overlay = maps.Clone(entries)
	if l.overlay == nil {
		l.overlay = make(map[string]string)
	}
}

// ErrSnapshotNotFound is returned when a named overlay snapshot does not exist.
var ErrSnapshotNotFound = errors.New("lexicon snapshot not found")

// Snapshot is a named copy of the overlay.
type Snapshot struct {
	Name      string            `json:"name"`
	CreatedAt time.Time         `json:"created_at"`
	Entries   map[string]string `json:"entries"`
}

// SnapshotInfo describes a snapshot without its entries.
type SnapshotInfo struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Size      int       `json:"size"`
}

// SnapshotStore persists overlay snapshots.
type SnapshotStore interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context, name string) (Snapshot, error)
	List(ctx context.Context) ([]SnapshotInfo, error)
}

// Overlays manages overlay edits and their snapshots.
type Overlays struct {
	mu    sync.Mutex
	lex   *Lexicon
	store SnapshotStore
	now   func() time.Time
}

// NewOverlays binds a lexicon to a snapshot store.
func NewOverlays(lex *Lexicon, store SnapshotStore) *Overlays {
	return &Overlays{lex: lex, store: store, now: time.Now}
}

// Apply merges entries into the live overlay.
func (o *Overlays) Apply(entries map[string]string) map[string]string {
	o.lex.Merge(entries)
	return o.lex.Overlay()
}

// Versions lists stored snapshots, oldest first.
func (o *Overlays) Versions(ctx context.Context) ([]SnapshotInfo, error) {
	return o.store.List(ctx)
}

// Snapshot stores the current overlay as "overlay-<n>".
func (o *Overlays) Snapshot(ctx context.Context) (SnapshotInfo, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	existing, err := o.store.List(ctx)
	if err != nil {
		return SnapshotInfo{}, fmt.Errorf("list snapshots: %w", err)
	}
	snap := Snapshot{
		Name:      fmt.Sprintf("overlay-%d", len(existing)),
		CreatedAt: o.now().UTC(),
		Entries:   o.lex.Overlay(),
	}
	if err := o.store.Save(ctx, snap); err != nil {
		return SnapshotInfo{}, fmt.Errorf("save snapshot %s: %w", snap.Name, err)
	}
	return SnapshotInfo{Name: snap.Name, CreatedAt: snap.CreatedAt, Size: len(snap.Entries)}, nil
}

// Rollback replaces the live overlay with the named snapshot.
func (o *Overlays) Rollback(ctx context.Context, name string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	snap, err := o.store.Load(ctx, name)
	if err != nil {
		return err
	}
	o.lex.ReplaceOverlay(snap.Entries)
	return nil
}
