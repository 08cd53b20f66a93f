package session

import (
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

const defaultShards = 32

// Lock order: shard lock, then entry lock. Code holding an entry lock (a
// Handle) must not call back into the Repository.
type shard struct {
	mu    sync.RWMutex
	store Store
}

// Repository gives exclusive per-session access to session state. Sessions
// are spread over shards so a busy session only contends with lookups on its
// own shard, and only while the entry is being found or created.
type Repository struct {
	shards []*shard
	now    func() time.Time
}

// NewRepository returns a repository backed by in-memory stores.
func NewRepository() *Repository {
	return NewRepositoryWithStores(defaultShards, func() Store { return NewInMemoryStore() })
}

// NewRepositoryWithStores builds a repository with n shards, each backed by a
// Store from newStore.
func NewRepositoryWithStores(n int, newStore func() Store) *Repository {
	if n <= 0 {
		n = defaultShards
	}
	r := &Repository{shards: make([]*shard, n), now: time.Now}
	for i := range r.shards {
		r.shards[i] = &shard{store: newStore()}
	}
	return r
}

func (r *Repository) shardFor(id ID) *shard {
	return r.shards[xxhash.Sum64String(string(id))%uint64(len(r.shards))]
}

// Handle is exclusive access to one session's state until Release.
type Handle struct {
	e    *Entry
	once sync.Once
}

// State returns the session state. It must not be retained after Release.
func (h *Handle) State() *State {
	return &h.e.state
}

// Release gives up exclusive access. Safe to call more than once.
func (h *Handle) Release() {
	h.once.Do(h.e.mu.Unlock)
}

// Acquire returns an exclusive handle to the session, creating it if it does
// not exist. It blocks while another caller holds the same session.
func (r *Repository) Acquire(id ID) *Handle {
	sh := r.shardFor(id)
	for {
		e := r.getOrCreate(sh, id)
		e.mu.Lock()
		if e.removed {
			// Purged or reset between lookup and lock; start over.
			e.mu.Unlock()
			continue
		}
		return &Handle{e: e}
	}
}

func (r *Repository) getOrCreate(sh *shard, id ID) *Entry {
	sh.mu.RLock()
	e, ok := sh.store.Get(id)
	sh.mu.RUnlock()
	if ok {
		return e
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if e, ok := sh.store.Get(id); ok {
		return e
	}
	e = &Entry{state: State{ID: id, CreatedAt: r.now().UTC()}}
	sh.store.Set(id, e)
	return e
}

// Get returns a summary of the session if it exists.
func (r *Repository) Get(id ID) (Summary, bool) {
	sh := r.shardFor(id)
	sh.mu.RLock()
	e, ok := sh.store.Get(id)
	sh.mu.RUnlock()
	if !ok {
		return Summary{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return Summary{}, false
	}
	return e.state.summary(), true
}

// List returns summaries of all sessions ordered by id.
func (r *Repository) List() []Summary {
	var entries []*Entry
	for _, sh := range r.shards {
		sh.mu.RLock()
		for _, id := range sh.store.List() {
			if e, ok := sh.store.Get(id); ok {
				entries = append(entries, e)
			}
		}
		sh.mu.RUnlock()
	}

	out := make([]Summary, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.removed {
			out = append(out, e.state.summary())
		}
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of sessions.
func (r *Repository) Len() int {
	n := 0
	for _, sh := range r.shards {
		sh.mu.RLock()
		n += sh.store.Len()
		sh.mu.RUnlock()
	}
	return n
}

// Reset removes a session. It waits for an in-flight update on that session
// to finish; other sessions on the shard are not held up meanwhile, and the
// next Acquire of id gets a fresh session. Reports whether the session
// existed.
func (r *Repository) Reset(id ID) bool {
	sh := r.shardFor(id)
	sh.mu.Lock()
	e, ok := sh.store.Get(id)
	if ok {
		sh.store.Delete(id)
	}
	sh.mu.Unlock()
	if !ok {
		return false
	}
	markRemoved(e)
	return true
}

// ResetAll removes every session and returns how many were removed.
func (r *Repository) ResetAll() int {
	n := 0
	for _, sh := range r.shards {
		var removed []*Entry
		sh.mu.Lock()
		for _, id := range sh.store.List() {
			if e, ok := sh.store.Get(id); ok {
				sh.store.Delete(id)
				removed = append(removed, e)
			}
		}
		sh.mu.Unlock()
		for _, e := range removed {
			markRemoved(e)
		}
		n += len(removed)
	}
	return n
}

// Purge removes sessions idle for longer than ttl as of now. Sessions that
// are currently held are skipped; they are not idle.
func (r *Repository) Purge(now time.Time, ttl time.Duration) []ID {
	var purged []ID
	for _, sh := range r.shards {
		sh.mu.Lock()
		for _, id := range sh.store.List() {
			e, ok := sh.store.Get(id)
			if !ok || !e.mu.TryLock() {
				continue
			}
			if now.Sub(e.state.lastActivity()) > ttl {
				e.removed = true
				sh.store.Delete(id)
				purged = append(purged, id)
			}
			e.mu.Unlock()
		}
		sh.mu.Unlock()
	}
	return purged
}

// markRemoved waits for the current holder of e, if any, then flags e so
// callers that looked it up before the delete retry against the store.
func markRemoved(e *Entry) {
	e.mu.Lock()
	e.removed = true
	e.mu.Unlock()
}
