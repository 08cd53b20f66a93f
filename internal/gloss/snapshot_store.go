package gloss

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	_ "modernc.org/sqlite" // CGO-free SQLite
)

// InMemorySnapshotStore keeps snapshots for the life of the process.
type InMemorySnapshotStore struct {
	mu    sync.RWMutex
	order []string
	snaps map[string]Snapshot
}

// NewInMemorySnapshotStore returns an empty store.
func NewInMemorySnapshotStore() *InMemorySnapshotStore {
	return &InMemorySnapshotStore{snaps: make(map[string]Snapshot)}
}

// Save implements SnapshotStore.Save. Saving an existing name replaces it.
func (s *InMemorySnapshotStore) Save(_ context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.snaps[snap.Name]; !exists {
		s.order = append(s.order, snap.Name)
	}
	snap.Entries = maps.Clone(snap.Entries)
	s.snaps[snap.Name] = snap
	return nil
}

// Load implements SnapshotStore.Load.
func (s *InMemorySnapshotStore) Load(_ context.Context, name string) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snaps[name]
	if !ok {
		return Snapshot{}, ErrSnapshotNotFound
	}
	snap.Entries = maps.Clone(snap.Entries)
	return snap, nil
}

// List implements SnapshotStore.List.
func (s *InMemorySnapshotStore) List(_ context.Context) ([]SnapshotInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SnapshotInfo, 0, len(s.order))
	for _, name := range s.order {
		snap := s.snaps[name]
		out = append(out, SnapshotInfo{Name: name, CreatedAt: snap.CreatedAt, Size: len(snap.Entries)})
	}
	return out, nil
}

// SQLiteSnapshotStore persists snapshots in a SQLite database.
type SQLiteSnapshotStore struct {
	db *sql.DB
}

// NewSQLiteSnapshotStore opens (or creates) the database at path.
func NewSQLiteSnapshotStore(path string) (*SQLiteSnapshotStore, error) {
	// modernc.org/sqlite applies _pragma parameters on every new connection.
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := createSnapshotTable(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteSnapshotStore{db: db}, nil
}

func createSnapshotTable(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS lexicon_snapshots(
	  id           INTEGER PRIMARY KEY,
	  name         TEXT    NOT NULL UNIQUE,
	  created_ms   INTEGER NOT NULL,
	  entries_json TEXT    NOT NULL CHECK (json_valid(entries_json))
	);
	`)
	if err != nil {
		return fmt.Errorf("failed to create snapshot table: %w", err)
	}
	return nil
}

// Close releases the database.
func (s *SQLiteSnapshotStore) Close() error {
	return s.db.Close()
}

// Save implements SnapshotStore.Save. Saving an existing name replaces it.
func (s *SQLiteSnapshotStore) Save(ctx context.Context, snap Snapshot) error {
	entries := snap.Entries
	if entries == nil {
		entries = map[string]string{}
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal entries: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO lexicon_snapshots(name, created_ms, entries_json) VALUES(?, ?, json(?))
		 ON CONFLICT(name) DO UPDATE SET created_ms = excluded.created_ms, entries_json = excluded.entries_json`,
		snap.Name, snap.CreatedAt.UnixMilli(), string(raw))
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// Load implements SnapshotStore.Load.
func (s *SQLiteSnapshotStore) Load(ctx context.Context, name string) (Snapshot, error) {
	var (
		createdMS int64
		raw       string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT created_ms, entries_json FROM lexicon_snapshots WHERE name = ?`, name).
		Scan(&createdMS, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, ErrSnapshotNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to load snapshot: %w", err)
	}
	snap := Snapshot{Name: name, CreatedAt: time.UnixMilli(createdMS).UTC()}
	if err := json.Unmarshal([]byte(raw), &snap.Entries); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode snapshot entries: %w", err)
	}
	return snap, nil
}

// List implements SnapshotStore.List.
func (s *SQLiteSnapshotStore) List(ctx context.Context) ([]SnapshotInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, created_ms, (SELECT count(*) FROM json_each(entries_json)) FROM lexicon_snapshots ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var out []SnapshotInfo
	for rows.Next() {
		var (
			info      SnapshotInfo
			createdMS int64
		)
		if err := rows.Scan(&info.Name, &createdMS, &info.Size); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		info.CreatedAt = time.UnixMilli(createdMS).UTC()
		out = append(out, info)
	}
	return out, rows.Err()
}
