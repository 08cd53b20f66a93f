package stats

import (
	"math"
	"sort"
	"strconv"
	"sync"
	"time"
)

const (
	DefaultSampleCapacity = 1000
	DefaultEventCapacity  = 1000
	DefaultAlertHistory   = 200

	rateWindow = 60 * time.Second
)

// Broadcast kinds as they appear in recent events.
const (
	KindTimeline = "timeline"
	KindReplace  = "timeline.replace"
)

// latencyBuckets are the inclusive upper bounds of the histogram, in ms.
var latencyBuckets = []float64{50, 100, 200, 400, 800, 1600}

// Options configures a Collector. Zero values select defaults.
type Options struct {
	SampleCapacity int
	EventCapacity  int
	AlertHistory   int
	Thresholds     Thresholds

	// SessionCount and SubscriberCount are sampled by Snapshot outside the
	// collector's lock.
	SessionCount    func() int
	SubscriberCount func() int
}

// Collector aggregates pipeline counters and bounded samples. All methods are
// safe for concurrent use.
type Collector struct {
	mu sync.Mutex

	broadcasts  int64
	replaces    int64
	partials    int64
	finals      int64
	rateLimited int64
	suppressed  int64
	failures    int64
	invalid     int64

	broadcastRate rateCounter
	ingestRate    rateCounter
	latencies     *ring[float64]
	events        *ring[BroadcastEvent]

	alertMu    sync.Mutex
	thresholds Thresholds
	alerts     *ring[Alert]

	sessionCount    func() int
	subscriberCount func() int
}

// New returns an empty Collector.
func New(opts Options) *Collector {
	if opts.SampleCapacity <= 0 {
		opts.SampleCapacity = DefaultSampleCapacity
	}
	if opts.EventCapacity <= 0 {
		opts.EventCapacity = DefaultEventCapacity
	}
	if opts.AlertHistory <= 0 {
		opts.AlertHistory = DefaultAlertHistory
	}
	return &Collector{
		latencies:       newRing[float64](opts.SampleCapacity),
		events:          newRing[BroadcastEvent](opts.EventCapacity),
		thresholds:      opts.Thresholds,
		alerts:          newRing[Alert](opts.AlertHistory),
		sessionCount:    opts.SessionCount,
		subscriberCount: opts.SubscriberCount,
	}
}

// RecordIngest counts an admitted update. final selects the final counter.
func (c *Collector) RecordIngest(final bool, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if final {
		c.finals++
	} else {
		c.partials++
	}
	c.ingestRate.add(at)
}

func (c *Collector) RecordRateLimited() { c.add(&c.rateLimited) }
func (c *Collector) RecordSuppressed()  { c.add(&c.suppressed) }
func (c *Collector) RecordFailure()     { c.add(&c.failures) }
func (c *Collector) RecordInvalid()     { c.add(&c.invalid) }

func (c *Collector) add(n *int64) {
	c.mu.Lock()
	*n++
	c.mu.Unlock()
}

// RecordBroadcast counts one published timeline message.
func (c *Collector) RecordBroadcast(ev BroadcastEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.broadcasts++
	if ev.Kind == KindReplace {
		c.replaces++
	}
	c.broadcastRate.add(ev.TS)
	c.events.push(ev)
}

// RecordLatency adds an end-to-end latency sample in milliseconds. Negative
// samples come from skewed client clocks and are dropped.
func (c *Collector) RecordLatency(ms float64) {
	if ms < 0 || math.IsNaN(ms) {
		return
	}
	c.mu.Lock()
	c.latencies.push(ms)
	c.mu.Unlock()
}

// Reset clears all counters and samples. Alert history is kept.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.broadcasts, c.replaces, c.partials, c.finals = 0, 0, 0, 0
	c.rateLimited, c.suppressed, c.failures, c.invalid = 0, 0, 0, 0
	c.broadcastRate.reset()
	c.ingestRate.reset()
	c.latencies.reset()
	c.events.reset()
}

// Latency summarizes the latency samples.
type Latency struct {
	Count int            `json:"count"`
	P50   float64        `json:"p50"`
	P90   float64        `json:"p90"`
	P99   float64        `json:"p99"`
	Hist  map[string]int `json:"hist"`
}

// Snapshot is a point-in-time view of the collector.
type Snapshot struct {
	TS int64 `json:"ts"`

	BroadcastTotal   int64 `json:"timeline_broadcast_total"`
	ReplaceTotal     int64 `json:"timeline_replace_total"`
	IngestPartial    int64 `json:"ingest_partial_total"`
	IngestFinal      int64 `json:"ingest_final_total"`
	RateLimitedTotal int64 `json:"rate_limited_total"`
	SuppressedTotal  int64 `json:"suppressed_total"`
	FailureTotal     int64 `json:"failure_total"`
	InvalidTotal     int64 `json:"invalid_total"`

	BroadcastPerMin float64 `json:"broadcast_rate_per_min_1m"`
	BroadcastPerSec float64 `json:"broadcast_rate_per_sec_1m"`
	IngestPerMin    float64 `json:"ingest_rate_per_min_1m"`
	IngestPerSec    float64 `json:"ingest_rate_per_sec_1m"`

	ReplaceRatio   float64 `json:"timeline_replace_ratio"`
	RateLimitRatio float64 `json:"rate_limit_ratio"`

	Latency Latency `json:"latency_ms"`

	SessionCount int `json:"session_count"`
	WSClients    int `json:"ws_clients"`
}

// Snapshot computes the current statistics as of now.
func (c *Collector) Snapshot(now time.Time) Snapshot {
	c.mu.Lock()
	snap := Snapshot{
		TS:               now.UnixMilli(),
		BroadcastTotal:   c.broadcasts,
		ReplaceTotal:     c.replaces,
		IngestPartial:    c.partials,
		IngestFinal:      c.finals,
		RateLimitedTotal: c.rateLimited,
		SuppressedTotal:  c.suppressed,
		FailureTotal:     c.failures,
		InvalidTotal:     c.invalid,
	}
	b := c.broadcastRate.since(now)
	i := c.ingestRate.since(now)
	latencies := c.latencies.items()
	c.mu.Unlock()

	snap.BroadcastPerMin = float64(b)
	snap.BroadcastPerSec = round3(float64(b) / rateWindow.Seconds())
	snap.IngestPerMin = float64(i)
	snap.IngestPerSec = round3(float64(i) / rateWindow.Seconds())

	snap.ReplaceRatio = ratio(snap.ReplaceTotal, snap.BroadcastTotal)
	admitted := snap.IngestPartial + snap.IngestFinal
	snap.RateLimitRatio = ratio(snap.RateLimitedTotal, admitted+snap.RateLimitedTotal)

	snap.Latency = summarize(latencies)

	if c.sessionCount != nil {
		snap.SessionCount = c.sessionCount()
	}
	if c.subscriberCount != nil {
		snap.WSClients = c.subscriberCount()
	}
	return snap
}

func ratio(num, den int64) float64 {
	if den == 0 {
		return 0
	}
	return round3(float64(num) / float64(den))
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func summarize(samples []float64) Latency {
	l := Latency{Count: len(samples), Hist: make(map[string]int, len(latencyBuckets)+1)}
	for _, le := range latencyBuckets {
		l.Hist[bucketLabel(le)] = 0
	}
	l.Hist["+Inf"] = 0
	if len(samples) == 0 {
		return l
	}

	sort.Float64s(samples)
	l.P50 = Percentile(samples, 50)
	l.P90 = Percentile(samples, 90)
	l.P99 = Percentile(samples, 99)

	for _, v := range samples {
		l.Hist[bucketFor(v)]++
	}
	return l
}

// Percentile returns the p-th percentile of sorted using the nearest-rank
// index ceil(p/100*n)-1, clamped to the slice.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(n))) - 1
	idx = max(0, min(idx, n-1))
	return sorted[idx]
}

func bucketFor(v float64) string {
	for _, le := range latencyBuckets {
		if v <= le {
			return bucketLabel(le)
		}
	}
	return "+Inf"
}

func bucketLabel(le float64) string {
	return "<=" + strconv.FormatFloat(le, 'f', -1, 64)
}
