package stats

import (
	"context"
	"log/slog"
	"time"
)

// KindStats is the message kind of periodic stats pushes.
const KindStats = "stats"

// Message is the envelope pushed to viewers.
type Message struct {
	Kind string   `json:"kind"`
	Data Snapshot `json:"data"`
}

// Fanouter delivers a message to every viewer.
type Fanouter interface {
	Fanout(msg any) int
}

// Pusher periodically evaluates alerts and pushes a snapshot to viewers.
type Pusher struct {
	c        *Collector
	out      Fanouter
	interval time.Duration
	log      *slog.Logger
	now      func() time.Time
}

// NewPusher returns a Pusher that fires every interval.
func NewPusher(c *Collector, out Fanouter, interval time.Duration, log *slog.Logger) *Pusher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pusher{c: c, out: out, interval: interval, log: log, now: time.Now}
}

// Run pushes until ctx is cancelled.
func (p *Pusher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Push()
		}
	}
}

// Push takes one snapshot, records alerts and fans the snapshot out.
func (p *Pusher) Push() Snapshot {
	snap := p.c.Snapshot(p.now())
	for _, a := range p.c.Evaluate(snap) {
		p.log.Warn("stats alert",
			slog.String("type", a.Type),
			slog.Float64("value", a.Value),
			slog.Float64("threshold", a.Threshold),
		)
	}
	p.out.Fanout(Message{Kind: KindStats, Data: snap})
	return snap
}
