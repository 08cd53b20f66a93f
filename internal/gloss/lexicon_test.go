package gloss

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteStore(t *testing.T) *SQLiteSnapshotStore {
	t.Helper()
	store, err := NewSQLiteSnapshotStore(filepath.Join(t.TempDir(), "lexicon.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestOverlays_snapshot_and_rollback(t *testing.T) {
	stores := map[string]SnapshotStore{
		"memory": NewInMemorySnapshotStore(),
		"sqlite": newSQLiteStore(t),
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			lex := NewLexicon()
			ov := NewOverlays(lex, store)

			info, err := ov.Snapshot(ctx)
			require.NoError(t, err)
			assert.Equal(t, "overlay-0", info.Name)
			assert.Equal(t, 0, info.Size)

			ov.Apply(map[string]string{"서울": "seoul"})
			info, err = ov.Snapshot(ctx)
			require.NoError(t, err)
			assert.Equal(t, "overlay-1", info.Name)
			assert.Equal(t, 1, info.Size)

			versions, err := ov.Versions(ctx)
			require.NoError(t, err)
			require.Len(t, versions, 2)
			assert.Equal(t, "overlay-0", versions[0].Name)
			assert.Equal(t, 1, versions[1].Size)

			require.NoError(t, ov.Rollback(ctx, "overlay-0"))
			_, ok := lex.Lookup("서울")
			assert.False(t, ok, "rollback to empty overlay should drop the entry")

			require.NoError(t, ov.Rollback(ctx, "overlay-1"))
			g, ok := lex.Lookup("서울")
			assert.True(t, ok)
			assert.Equal(t, "SEOUL", g)

			assert.ErrorIs(t, ov.Rollback(ctx, "overlay-9"), ErrSnapshotNotFound)
		})
	}
}

func TestInMemorySnapshotStore_isolates_entries(t *testing.T) {
	ctx := context.Background()
	store := NewInMemorySnapshotStore()
	entries := map[string]string{"a": "A"}
	require.NoError(t, store.Save(ctx, Snapshot{Name: "x", Entries: entries}))
	entries["b"] = "B"

	snap, err := store.Load(ctx, "x")
	require.NoError(t, err)
	assert.Len(t, snap.Entries, 1)
}

func TestSQLiteSnapshotStore_pragmas(t *testing.T) {
	store := newSQLiteStore(t)

	var mode string
	require.NoError(t, store.db.QueryRow(`PRAGMA journal_mode`).Scan(&mode))
	assert.Equal(t, "wal", mode)

	var timeout int
	require.NoError(t, store.db.QueryRow(`PRAGMA busy_timeout`).Scan(&timeout))
	assert.Equal(t, 5000, timeout)
}

func TestSQLiteSnapshotStore_save_replaces(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)
	require.NoError(t, store.Save(ctx, Snapshot{Name: "x", Entries: map[string]string{"a": "A"}}))
	require.NoError(t, store.Save(ctx, Snapshot{Name: "x", Entries: map[string]string{"a": "A", "b": "B"}}))

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 2, list[0].Size)

	snap, err := store.Load(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, "B", snap.Entries["b"])
}
