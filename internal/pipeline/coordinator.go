package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/scyber100-hub/realtimesignlanguage/internal/gloss"
	"github.com/scyber100-hub/realtimesignlanguage/internal/platform/metrics"
	"github.com/scyber100-hub/realtimesignlanguage/internal/platform/tracing"
	"github.com/scyber100-hub/realtimesignlanguage/internal/ratelimit"
	"github.com/scyber100-hub/realtimesignlanguage/internal/session"
	"github.com/scyber100-hub/realtimesignlanguage/internal/stats"
	"github.com/scyber100-hub/realtimesignlanguage/internal/timeline"
)

// Outcome labels for ingest metrics.
const (
	outcomePublished   = "published"
	outcomeUnchanged   = "unchanged"
	outcomeRateLimited = "rate_limited"
	outcomeSuppressed  = "suppressed"
	outcomeFailed      = "failed"
	outcomeInvalid     = "invalid"
)

// Publisher delivers a message to every viewer.
type Publisher interface {
	Fanout(msg any) int
}

// Deps are the collaborators of a Coordinator. Stats, Metrics and Logger are
// optional.
type Deps struct {
	Translator gloss.Translator
	Compiler   timeline.Compiler
	Limiter    ratelimit.Limiter
	Sessions   *session.Repository
	Publisher  Publisher
	Settings   *Settings
	Stats      *stats.Collector
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// Coordinator runs each ingest update through admission, translation,
// compilation, diffing and publication. Updates for one session are applied
// in admission order; updates for different sessions run concurrently.
type Coordinator struct {
	translator gloss.Translator
	compiler   timeline.Compiler
	limiter    ratelimit.Limiter
	sessions   *session.Repository
	publisher  Publisher
	settings   *Settings
	stats      *stats.Collector
	metrics    *metrics.Metrics
	log        *slog.Logger
	now        func() time.Time
}

// NewCoordinator returns a Coordinator over d. Logger, Settings and Stats
// default when nil.
func NewCoordinator(d Deps) *Coordinator {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Settings == nil {
		d.Settings = NewSettings(Values{IncludeAuxChannels: true, DefaultGapMS: 60})
	}
	if d.Stats == nil {
		d.Stats = stats.New(stats.Options{})
	}
	return &Coordinator{
		translator: d.Translator,
		compiler:   d.Compiler,
		limiter:    d.Limiter,
		sessions:   d.Sessions,
		publisher:  d.Publisher,
		settings:   d.Settings,
		stats:      d.Stats,
		metrics:    d.Metrics,
		log:        d.Logger,
		now:        time.Now,
	}
}

// HandleRaw decodes one wire message and handles it. It always returns an
// ack, and the error explaining any non-published outcome.
func (c *Coordinator) HandleRaw(ctx context.Context, raw []byte) (Ack, error) {
	in, err := DecodeIngest(raw)
	if err != nil {
		c.stats.RecordInvalid()
		c.metrics.IncIngest("unknown", outcomeInvalid)
		c.log.Debug("rejected ingest message", slog.Any("error", err))
		return Ack{SessionID: sessionIDOf(raw), Error: err.Error()}, err
	}
	return c.Handle(ctx, in)
}

// Handle processes one decoded update. The returned error is nil when the
// update was applied, ErrAdmissionRejected, ErrSuppressed or a
// *ProcessingError otherwise. The ack is always usable.
func (c *Coordinator) Handle(ctx context.Context, in Ingest) (Ack, error) {
	start := c.now()
	ack := Ack{SessionID: in.SessionID, IsFinal: in.IsFinal()}

	ctx, span := tracing.Tracer().Start(ctx, "pipeline.ingest", trace.WithAttributes(
		attribute.String("session.id", in.SessionID),
		attribute.String("ingest.type", string(in.Type)),
	))
	defer span.End()

	h := c.sessions.Acquire(session.ID(in.SessionID))
	defer h.Release()
	st := h.State()

	if !c.limiter.Admit(ctx, in.SessionID, &st.Admission, start) {
		c.stats.RecordRateLimited()
		c.metrics.IncIngest(string(in.Type), outcomeRateLimited)
		span.SetAttributes(attribute.String("ingest.outcome", outcomeRateLimited))
		ack.RateLimited = true
		ack.Error = ErrAdmissionRejected.Error()
		return c.finish(ack, start), ErrAdmissionRejected
	}
	c.stats.RecordIngest(in.IsFinal(), start)

	if !in.IsFinal() && st.Initialized() && in.Text == st.CurrentText {
		st.LastUpdateAt = start
		c.stats.RecordSuppressed()
		c.metrics.IncIngest(string(in.Type), outcomeSuppressed)
		span.SetAttributes(attribute.String("ingest.outcome", outcomeSuppressed))
		ack.Accepted = true
		ack.Suppressed = true
		return c.finish(ack, start), ErrSuppressed
	}

	startMS, gapMS := c.compileParams(in, st)
	tl, err := c.recompute(ctx, in.Text, startMS, gapMS)
	if err != nil {
		c.stats.RecordFailure()
		c.metrics.IncIngest(string(in.Type), outcomeFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.log.Error("ingest processing failed",
			slog.String("session_id", in.SessionID),
			slog.String("type", string(in.Type)),
			slog.Any("error", err),
		)
		ack.Error = err.Error()
		return c.finish(ack, start), err
	}

	msg, ev := c.plan(st, in, tl)

	st.CurrentText = in.Text
	st.CurrentEvents = tl.Events
	if !st.Initialized() {
		st.BaseID = tl.ID
	}
	if in.StartOffsetMS != nil {
		v := *in.StartOffsetMS
		st.StartOffsetMS = &v
	}
	if in.GapMS != nil {
		v := *in.GapMS
		st.GapMS = &v
	}
	st.LastUpdateAt = start
	st.Updates++

	outcome := outcomeUnchanged
	if msg != nil {
		outcome = outcomePublished
		c.publish(ctx, msg, ev, in)
	}
	c.metrics.IncIngest(string(in.Type), outcome)
	span.SetAttributes(attribute.String("ingest.outcome", outcome))

	ack.Accepted = true
	return c.finish(ack, start), nil
}

func (c *Coordinator) finish(ack Ack, start time.Time) Ack {
	ms := c.now().Sub(start).Milliseconds()
	ack.ProcessingMS = &ms
	return ack
}

// compileParams resolves start offset and gap: message value, then the
// session's sticky value, then the server default.
func (c *Coordinator) compileParams(in Ingest, st *session.State) (startMS, gapMS int64) {
	v := c.settings.Load()
	startMS, gapMS = v.DefaultStartMS, v.DefaultGapMS
	switch {
	case in.StartOffsetMS != nil:
		startMS = *in.StartOffsetMS
	case st.StartOffsetMS != nil:
		startMS = *st.StartOffsetMS
	}
	switch {
	case in.GapMS != nil:
		gapMS = *in.GapMS
	case st.GapMS != nil:
		gapMS = *st.GapMS
	}
	return startMS, gapMS
}

// recompute translates and compiles text. Collaborator panics are returned
// as processing errors.
func (c *Coordinator) recompute(ctx context.Context, text string, startMS, gapMS int64) (tl timeline.Timeline, err error) {
	stage := "translate"
	defer func() {
		if r := recover(); r != nil {
			err = &ProcessingError{Stage: stage, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	tctx, span := tracing.Tracer().Start(ctx, "pipeline.translate")
	glosses, err := c.translator.Translate(tctx, text)
	span.SetAttributes(attribute.Int("gloss.count", len(glosses)))
	span.End()
	if err != nil {
		return timeline.Timeline{}, &ProcessingError{Stage: stage, Err: err}
	}

	stage = "compile"
	cctx, span := tracing.Tracer().Start(ctx, "pipeline.compile")
	tl, err = c.compiler.Compile(cctx, glosses, startMS, gapMS, c.settings.Load().IncludeAuxChannels)
	span.SetAttributes(attribute.Int("event.count", len(tl.Events)))
	span.End()
	if err != nil {
		return timeline.Timeline{}, &ProcessingError{Stage: stage, Err: err}
	}
	return tl, nil
}

// plan decides what to broadcast for the new timeline. A nil message means
// viewers already have these events.
func (c *Coordinator) plan(st *session.State, in Ingest, tl timeline.Timeline) (any, stats.BroadcastEvent) {
	ev := stats.BroadcastEvent{SessionID: in.SessionID, IsFinal: in.IsFinal()}

	if !st.Initialized() || len(st.CurrentEvents) == 0 {
		if st.Initialized() && len(tl.Events) == 0 {
			return nil, ev
		}
		if st.Initialized() {
			tl.ID = st.BaseID
		}
		ev.Kind = KindTimeline
		ev.Events = len(tl.Events)
		return TimelineMessage{Kind: KindTimeline, SessionID: in.SessionID, Data: tl}, ev
	}

	start, end, changed := timeline.ReplaceWindow(st.CurrentEvents, tl.Events)
	if !changed {
		return nil, ev
	}
	from := timeline.FromOffsetMS(tl.Events, start)
	ev.Kind = KindReplace
	ev.Events = end - start
	ev.FromOffsetMS = &from
	return ReplaceMessage{
		Kind:         KindReplace,
		SessionID:    in.SessionID,
		FromOffsetMS: from,
		Data: ReplaceData{
			ID:     st.BaseID,
			Events: append([]timeline.Event(nil), tl.Events[start:end]...),
		},
	}, ev
}

func (c *Coordinator) publish(ctx context.Context, msg any, ev stats.BroadcastEvent, in Ingest) {
	_, span := tracing.Tracer().Start(ctx, "pipeline.publish", trace.WithAttributes(
		attribute.String("broadcast.kind", ev.Kind),
	))
	n := c.publisher.Fanout(msg)
	span.SetAttributes(attribute.Int("broadcast.subscribers", n))
	span.End()

	done := c.now()
	ev.TS = done
	c.stats.RecordBroadcast(ev)
	c.metrics.IncBroadcast(ev.Kind)

	if in.OriginTimestampMS != nil {
		latency := float64(done.UnixMilli()) - *in.OriginTimestampMS
		c.stats.RecordLatency(latency)
		if latency >= 0 {
			c.metrics.ObserveLatency(latency)
		}
	}
}
