package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scyber100-hub/realtimesignlanguage/internal/platform/metrics"
)

var (
	// ErrSubscriberClosed is returned when enqueuing to a disconnected subscriber.
	ErrSubscriberClosed = errors.New("broadcast: subscriber closed")
	// ErrQueueFull means the subscriber fell too far behind and was dropped.
	ErrQueueFull = errors.New("broadcast: subscriber queue full")
)

const (
	DefaultQueueSize   = 64
	DefaultSendTimeout = 2 * time.Second
)

// Sink is the send side of one viewer connection.
type Sink interface {
	// Send delivers one encoded message. It must honour ctx's deadline.
	Send(ctx context.Context, payload []byte) error
	Close() error
}

// Options configures a Broadcaster. Zero values select defaults.
type Options struct {
	QueueSize   int
	SendTimeout time.Duration
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
}

// Subscription is one connected viewer.
type Subscription struct {
	id    string
	sink  Sink
	queue chan []byte
	done  chan struct{}
	once  sync.Once
}

// ID returns the subscriber's unique id.
func (s *Subscription) ID() string { return s.id }

// Done is closed once the subscriber has been disconnected.
func (s *Subscription) Done() <-chan struct{} { return s.done }

func (s *Subscription) enqueue(payload []byte) error {
	select {
	case <-s.done:
		return ErrSubscriberClosed
	default:
	}
	select {
	case s.queue <- payload:
		return nil
	default:
		return ErrQueueFull
	}
}

// Broadcaster owns the set of subscribers.
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[string]*Subscription
	wg   sync.WaitGroup

	queueSize   int
	sendTimeout time.Duration
	log         *slog.Logger
	metrics     *metrics.Metrics
}

// New returns an empty Broadcaster.
func New(opts Options) *Broadcaster {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = DefaultSendTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Broadcaster{
		subs:        make(map[string]*Subscription),
		queueSize:   opts.QueueSize,
		sendTimeout: opts.SendTimeout,
		log:         opts.Logger,
		metrics:     opts.Metrics,
	}
}

// Connect registers sink and starts its writer.
func (b *Broadcaster) Connect(sink Sink) *Subscription {
	sub := &Subscription{
		id:    uuid.NewString(),
		sink:  sink,
		queue: make(chan []byte, b.queueSize),
		done:  make(chan struct{}),
	}

	b.mu.Lock()
	b.subs[sub.id] = sub
	n := len(b.subs)
	b.mu.Unlock()
	b.metrics.SetActiveSubscribers(n)

	b.wg.Add(1)
	go b.writeLoop(sub)

	b.log.Debug("subscriber connected", slog.String("subscriber_id", sub.id), slog.Int("subscribers", n))
	return sub
}

// Disconnect removes sub and closes its sink. Safe to call concurrently and
// more than once.
func (b *Broadcaster) Disconnect(sub *Subscription) {
	b.disconnect(sub)
}

// disconnect reports whether this call removed sub from the set.
func (b *Broadcaster) disconnect(sub *Subscription) bool {
	b.mu.Lock()
	_, present := b.subs[sub.id]
	delete(b.subs, sub.id)
	n := len(b.subs)
	b.mu.Unlock()

	sub.once.Do(func() {
		close(sub.done)
		if err := sub.sink.Close(); err != nil {
			b.log.Debug("closing subscriber sink", slog.String("subscriber_id", sub.id), slog.Any("error", err))
		}
	})
	if present {
		b.metrics.SetActiveSubscribers(n)
		b.log.Debug("subscriber disconnected", slog.String("subscriber_id", sub.id), slog.Int("subscribers", n))
	}
	return present
}

func (b *Broadcaster) drop(sub *Subscription, err error) {
	if b.disconnect(sub) {
		b.log.Debug("dropped subscriber", slog.String("subscriber_id", sub.id), slog.Any("error", err))
		b.metrics.IncSubscriberDrops()
	}
}

// Fanout encodes msg once and queues it for every subscriber. It never
// blocks on a subscriber and returns how many subscribers it was queued for.
func (b *Broadcaster) Fanout(msg any) int {
	payload, err := json.Marshal(msg)
	if err != nil {
		b.log.Error("encoding broadcast message", slog.Any("error", err))
		return 0
	}
	return b.FanoutRaw(payload)
}

// FanoutRaw is Fanout for an already encoded message.
func (b *Broadcaster) FanoutRaw(payload []byte) int {
	b.mu.RLock()
	targets := make([]*Subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		targets = append(targets, sub)
	}
	b.mu.RUnlock()

	sent := 0
	for _, sub := range targets {
		switch err := sub.enqueue(payload); {
		case err == nil:
			sent++
		case errors.Is(err, ErrQueueFull):
			b.drop(sub, err)
		}
	}
	return sent
}

// Count returns the number of connected subscribers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close disconnects every subscriber and waits for their writers to exit.
func (b *Broadcaster) Close() {
	b.mu.RLock()
	all := make([]*Subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		all = append(all, sub)
	}
	b.mu.RUnlock()

	for _, sub := range all {
		b.Disconnect(sub)
	}
	b.wg.Wait()
}

func (b *Broadcaster) writeLoop(sub *Subscription) {
	defer b.wg.Done()
	for {
		select {
		case <-sub.done:
			return
		case payload := <-sub.queue:
			ctx, cancel := context.WithTimeout(context.Background(), b.sendTimeout)
			err := sub.sink.Send(ctx, payload)
			cancel()
			if err != nil {
				b.drop(sub, err)
				return
			}
		}
	}
}
