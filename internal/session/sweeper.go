package session

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically purges idle sessions from a Repository.
type Sweeper struct {
	repo     *Repository
	ttl      time.Duration
	interval time.Duration
	log      *slog.Logger

	// OnPurge, when set, is called with the number of sessions removed by a
	// sweep that removed at least one.
	OnPurge func(n int)
}

// NewSweeper returns a sweeper that removes sessions idle longer than ttl
// every interval.
func NewSweeper(repo *Repository, ttl, interval time.Duration, log *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{repo: repo, ttl: ttl, interval: interval, log: log}
}

// Run sweeps until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Sweep(now)
		}
	}
}

// Sweep runs one purge pass as of now and returns the removed ids.
func (s *Sweeper) Sweep(now time.Time) []ID {
	purged := s.repo.Purge(now, s.ttl)
	if len(purged) == 0 {
		return nil
	}
	s.log.Info("purged idle sessions",
		slog.Int("count", len(purged)),
		slog.Duration("ttl", s.ttl),
		slog.Int("remaining", s.repo.Len()),
	)
	if s.OnPurge != nil {
		s.OnPurge(len(purged))
	}
	return purged
}
