package session

import (
	"sync"
	"testing"
	"time"

	"github.com/scyber100-hub/realtimesignlanguage/internal/timeline"
)

func newTestRepository(now time.Time) *Repository {
	r := NewRepository()
	r.now = func() time.Time { return now }
	return r
}

func TestRepository_Acquire_creates_lazily(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	repo := newTestRepository(t0)

	if repo.Len() != 0 {
		t.Fatalf("expected empty repository, got %d", repo.Len())
	}
	h := repo.Acquire(ID("s1"))
	st := h.State()
	if st.ID != "s1" || !st.CreatedAt.Equal(t0) {
		t.Errorf("unexpected new state: %+v", st)
	}
	if st.Initialized() {
		t.Error("new session should not be initialized")
	}
	st.CurrentText = "안녕하세요"
	st.BaseID = "signtimeline-1"
	h.Release()
	h.Release()

	sum, ok := repo.Get(ID("s1"))
	if !ok {
		t.Fatal("Get: not found")
	}
	if sum.Text != "안녕하세요" || sum.BaseID != "signtimeline-1" {
		t.Errorf("state not kept across handles: %+v", sum)
	}
}

func TestRepository_Acquire_serializes_same_session(t *testing.T) {
	repo := NewRepository()
	const workers = 50

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h := repo.Acquire(ID("shared"))
			defer h.Release()
			st := h.State()
			n := st.Updates
			time.Sleep(time.Microsecond)
			st.Updates = n + 1
		}()
	}
	wg.Wait()

	sum, _ := repo.Get(ID("shared"))
	if sum.Updates != workers {
		t.Errorf("lost updates: got %d want %d", sum.Updates, workers)
	}
}

func TestRepository_Acquire_different_sessions_do_not_block(t *testing.T) {
	repo := NewRepository()
	held := repo.Acquire(ID("a"))
	defer held.Release()

	done := make(chan struct{})
	go func() {
		h := repo.Acquire(ID("b"))
		h.Release()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("acquiring another session blocked on a held one")
	}
}

func TestRepository_Purge(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	repo := newTestRepository(t0)
	ttl := 10 * time.Second

	h := repo.Acquire(ID("idle"))
	h.State().CurrentText = "old"
	h.State().CurrentEvents = []timeline.Event{{ClipID: "HELLO", DurationMS: 650}}
	h.State().BaseID = "base-1"
	h.State().LastUpdateAt = t0
	h.Release()

	h = repo.Acquire(ID("fresh"))
	h.State().LastUpdateAt = t0.Add(8 * time.Second)
	h.Release()

	t.Run("nothing_expired_yet", func(t *testing.T) {
		if got := repo.Purge(t0.Add(ttl), ttl); len(got) != 0 {
			t.Errorf("expected nothing purged at exactly ttl, got %v", got)
		}
	})

	t.Run("idle_removed", func(t *testing.T) {
		got := repo.Purge(t0.Add(ttl+time.Second), ttl)
		if len(got) != 1 || got[0] != "idle" {
			t.Fatalf("expected [idle] purged, got %v", got)
		}
		if _, ok := repo.Get(ID("idle")); ok {
			t.Error("purged session still listed")
		}
		if _, ok := repo.Get(ID("fresh")); !ok {
			t.Error("active session should survive")
		}
	})

	t.Run("next_update_starts_fresh", func(t *testing.T) {
		h := repo.Acquire(ID("idle"))
		defer h.Release()
		st := h.State()
		if st.Initialized() || st.CurrentText != "" || len(st.CurrentEvents) != 0 {
			t.Errorf("expected brand-new session, got %+v", st)
		}
	})
}

func TestRepository_Purge_skips_busy_sessions(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	repo := newTestRepository(t0)

	h := repo.Acquire(ID("busy"))
	if got := repo.Purge(t0.Add(time.Hour), time.Second); len(got) != 0 {
		t.Errorf("held session should not be purged, got %v", got)
	}
	h.Release()

	if got := repo.Purge(t0.Add(time.Hour), time.Second); len(got) != 1 {
		t.Errorf("expected purge once released, got %v", got)
	}
}

func TestRepository_Reset(t *testing.T) {
	repo := NewRepository()
	for _, id := range []ID{"a", "b", "c"} {
		repo.Acquire(id).Release()
	}

	if !repo.Reset(ID("b")) {
		t.Error("Reset(b) should report existing session")
	}
	if repo.Reset(ID("b")) {
		t.Error("second Reset(b) should report missing session")
	}

	list := repo.List()
	if len(list) != 2 || list[0].ID != "a" || list[1].ID != "c" {
		t.Errorf("List after reset: %+v", list)
	}

	if n := repo.ResetAll(); n != 2 {
		t.Errorf("ResetAll: got %d want 2", n)
	}
	if repo.Len() != 0 {
		t.Errorf("expected empty repository, got %d", repo.Len())
	}
}

func TestRepository_Reset_waits_for_holder(t *testing.T) {
	repo := NewRepository()
	h := repo.Acquire(ID("s1"))

	reset := make(chan bool)
	go func() { reset <- repo.Reset(ID("s1")) }()

	select {
	case <-reset:
		t.Fatal("Reset returned while session was held")
	case <-time.After(20 * time.Millisecond):
	}
	h.State().CurrentText = "in flight"
	h.Release()

	if ok := <-reset; !ok {
		t.Error("Reset should report existing session")
	}
	h = repo.Acquire(ID("s1"))
	defer h.Release()
	if h.State().CurrentText != "" {
		t.Error("session after reset should be fresh")
	}
}

func TestRepository_Reset_does_not_block_shard(t *testing.T) {
	for name, reset := range map[string]func(*Repository){
		"Reset":    func(r *Repository) { r.Reset(ID("busy")) },
		"ResetAll": func(r *Repository) { r.ResetAll() },
	} {
		t.Run(name, func(t *testing.T) {
			repo := NewRepositoryWithStores(1, func() Store { return NewInMemoryStore() })
			held := repo.Acquire(ID("busy"))

			resetDone := make(chan struct{})
			go func() {
				reset(repo)
				close(resetDone)
			}()
			time.Sleep(10 * time.Millisecond)

			acquired := make(chan struct{})
			go func() {
				repo.Acquire(ID("other")).Release()
				close(acquired)
			}()
			select {
			case <-acquired:
			case <-time.After(time.Second):
				t.Fatal("acquiring another session on the shard blocked behind a reset of a held session")
			}

			held.Release()
			select {
			case <-resetDone:
			case <-time.After(time.Second):
				t.Fatal("reset did not finish after the holder released")
			}
			if _, ok := repo.Get(ID("busy")); ok {
				t.Error("reset session should be gone")
			}
		})
	}
}

func TestNewRepositoryWithStores(t *testing.T) {
	var stores []*InMemoryStore
	repo := NewRepositoryWithStores(4, func() Store {
		s := NewInMemoryStore()
		stores = append(stores, s)
		return s
	})
	if len(stores) != 4 {
		t.Fatalf("expected 4 shard stores, got %d", len(stores))
	}

	for _, id := range []ID{"s1", "s2", "s3", "s4", "s5", "s6"} {
		repo.Acquire(id).Release()
	}
	total := 0
	for _, s := range stores {
		total += s.Len()
	}
	if total != 6 || repo.Len() != 6 {
		t.Errorf("injected stores should hold every session: total=%d len=%d", total, repo.Len())
	}
}
