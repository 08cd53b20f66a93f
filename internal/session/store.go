package session

import "sync"

// Entry pairs a session's state with the lock that serializes access to
// it. Its fields are private to the Repository; Stores only hold pointers.
type Entry struct {
	mu      sync.Mutex
	state   State
	removed bool
}

// Store is the persistence abstraction for one shard of session entries.
// Implementations are not required to be concurrency-safe; the Repository
// guards every call with the shard lock.
type Store interface {
	Get(id ID) (*Entry, bool)
	Set(id ID, e *Entry)
	Delete(id ID)
	List() []ID
	Len() int
}

// InMemoryStore is an in-memory implementation of Store.
type InMemoryStore struct {
	entries map[ID]*Entry
}

// NewInMemoryStore returns a new empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[ID]*Entry)}
}

// Get implements Store.Get.
func (s *InMemoryStore) Get(id ID) (*Entry, bool) {
	e, ok := s.entries[id]
	return e, ok
}

// Set implements Store.Set.
func (s *InMemoryStore) Set(id ID, e *Entry) {
	s.entries[id] = e
}

// Delete implements Store.Delete.
func (s *InMemoryStore) Delete(id ID) {
	delete(s.entries, id)
}

// List implements Store.List.
func (s *InMemoryStore) List() []ID {
	ids := make([]ID, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	return ids
}

// Len implements Store.Len.
func (s *InMemoryStore) Len() int {
	return len(s.entries)
}
