package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scyber100-hub/realtimesignlanguage/internal/gloss"
	"github.com/scyber100-hub/realtimesignlanguage/internal/platform/logger"
	"github.com/scyber100-hub/realtimesignlanguage/internal/ratelimit"
	"github.com/scyber100-hub/realtimesignlanguage/internal/session"
	"github.com/scyber100-hub/realtimesignlanguage/internal/stats"
	"github.com/scyber100-hub/realtimesignlanguage/internal/timeline"
)

type capturePublisher struct {
	mu   sync.Mutex
	msgs []any
}

func (p *capturePublisher) Fanout(msg any) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return 1
}

func (p *capturePublisher) all() []any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]any(nil), p.msgs...)
}

// failingTranslator fails or panics on marker words and otherwise defers to
// the rule translator.
type failingTranslator struct {
	next gloss.Translator
}

func (f failingTranslator) Translate(ctx context.Context, text string) ([]gloss.Gloss, error) {
	switch {
	case strings.Contains(text, "boom"):
		return nil, errors.New("lexicon unavailable")
	case strings.Contains(text, "panic"):
		panic("translator bug")
	}
	return f.next.Translate(ctx, text)
}

type fixture struct {
	coord    *Coordinator
	pub      *capturePublisher
	sessions *session.Repository
	stats    *stats.Collector
	limiter  *ratelimit.SlidingWindow
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		pub:      &capturePublisher{},
		sessions: session.NewRepository(),
		stats:    stats.New(stats.Options{}),
		limiter:  ratelimit.NewSlidingWindow(20, time.Second),
	}
	f.coord = NewCoordinator(Deps{
		Translator: failingTranslator{next: gloss.NewRuleTranslator(gloss.NewLexicon())},
		Compiler:   timeline.NewClipCompiler(),
		Limiter:    f.limiter,
		Sessions:   f.sessions,
		Publisher:  f.pub,
		Settings:   NewSettings(Values{DefaultGapMS: 60}),
		Stats:      f.stats,
		Logger:     logger.Discard(),
	})
	return f
}

func (f *fixture) send(t *testing.T, typ UpdateType, sid, text string) (Ack, error) {
	t.Helper()
	return f.coord.Handle(context.Background(), Ingest{Type: typ, SessionID: sid, Text: text})
}

func TestCoordinator_first_full_then_replacements(t *testing.T) {
	f := newFixture(t)

	ack, err := f.send(t, Partial, "s1", "안녕하세요 오늘")
	require.NoError(t, err)
	assert.True(t, ack.Accepted)
	assert.Equal(t, "s1", ack.SessionID)
	require.NotNil(t, ack.ProcessingMS)

	ack, err = f.send(t, Partial, "s1", "안녕하세요 오늘 날씨")
	require.NoError(t, err)
	assert.True(t, ack.Accepted)

	ack, err = f.send(t, Final, "s1", "안녕하세요 내일 날씨")
	require.NoError(t, err)
	assert.True(t, ack.IsFinal)

	msgs := f.pub.all()
	require.Len(t, msgs, 3)

	full, ok := msgs[0].(TimelineMessage)
	require.True(t, ok, "first broadcast must be a full timeline, got %T", msgs[0])
	assert.Equal(t, KindTimeline, full.Kind)
	assert.Equal(t, []string{"HELLO", "TODAY"}, timeline.Symbols(full.Data.Events))
	baseID := full.Data.ID
	require.NotEmpty(t, baseID)

	grow, ok := msgs[1].(ReplaceMessage)
	require.True(t, ok, "got %T", msgs[1])
	assert.Equal(t, KindReplace, grow.Kind)
	assert.Equal(t, baseID, grow.Data.ID)
	assert.Equal(t, []string{"WEATHER"}, timeline.Symbols(grow.Data.Events))
	// HELLO 620 + gap 60 + TODAY 500 + gap 60
	assert.Equal(t, int64(1240), grow.FromOffsetMS)

	swap, ok := msgs[2].(ReplaceMessage)
	require.True(t, ok, "got %T", msgs[2])
	assert.Equal(t, baseID, swap.Data.ID)
	// TOMORROW is 20ms longer than TODAY so WEATHER shifts too.
	assert.Equal(t, []string{"TOMORROW", "WEATHER"}, timeline.Symbols(swap.Data.Events))
	assert.Equal(t, int64(680), swap.FromOffsetMS)

	sum, ok := f.sessions.Get(session.ID("s1"))
	require.True(t, ok)
	assert.Equal(t, "안녕하세요 내일 날씨", sum.Text)
	assert.Equal(t, baseID, sum.BaseID)
	assert.Equal(t, 3, sum.Events)
	assert.Equal(t, int64(3), sum.Updates)

	snap := f.stats.Snapshot(time.Now())
	assert.Equal(t, int64(3), snap.BroadcastTotal)
	assert.Equal(t, int64(2), snap.ReplaceTotal)
	assert.Equal(t, int64(2), snap.IngestPartial)
	assert.Equal(t, int64(1), snap.IngestFinal)
}

func TestCoordinator_replacement_reconstructs_timeline(t *testing.T) {
	f := newFixture(t)
	texts := []string{"속보 지진", "속보 태풍 비", "오늘 속보 태풍 비 눈", "오늘 비"}

	var viewer []timeline.Event
	for _, text := range texts {
		before := len(f.pub.all())
		_, err := f.send(t, Partial, "s1", text)
		require.NoError(t, err)
		msgs := f.pub.all()
		require.Len(t, msgs, before+1)

		switch m := msgs[len(msgs)-1].(type) {
		case TimelineMessage:
			viewer = m.Data.Events
		case ReplaceMessage:
			h := f.sessions.Acquire(session.ID("s1"))
			next := h.State().CurrentEvents
			h.Release()
			start, end, _ := timeline.ReplaceWindow(viewer, next)
			require.Equal(t, next[start:end], m.Data.Events)
			viewer = timeline.Apply(viewer, next, start, end)
		}
		h := f.sessions.Acquire(session.ID("s1"))
		assert.Equal(t, h.State().CurrentEvents, viewer, "viewer diverged after %q", text)
		h.Release()
	}
}

func TestCoordinator_duplicate_partial_suppressed(t *testing.T) {
	f := newFixture(t)

	_, err := f.send(t, Partial, "s1", "안녕 한국")
	require.NoError(t, err)
	ack, err := f.send(t, Partial, "s1", "안녕 한국")
	require.ErrorIs(t, err, ErrSuppressed)
	assert.True(t, ack.Accepted)
	assert.True(t, ack.Suppressed)

	assert.Len(t, f.pub.all(), 1)
	assert.Equal(t, int64(1), f.stats.Snapshot(time.Now()).SuppressedTotal)
}

func TestCoordinator_identical_final_not_suppressed(t *testing.T) {
	f := newFixture(t)

	_, err := f.send(t, Partial, "s1", "안녕 한국")
	require.NoError(t, err)
	ack, err := f.send(t, Final, "s1", "안녕 한국")
	require.NoError(t, err)
	assert.True(t, ack.Accepted)
	assert.False(t, ack.Suppressed)
	assert.Len(t, f.pub.all(), 1, "unchanged events must not be rebroadcast")

	sum, _ := f.sessions.Get(session.ID("s1"))
	assert.Equal(t, int64(2), sum.Updates)
}

func TestCoordinator_rate_limited(t *testing.T) {
	f := newFixture(t)
	f.limiter.SetLimit(1)

	_, err := f.send(t, Partial, "s1", "안녕")
	require.NoError(t, err)
	ack, err := f.send(t, Partial, "s1", "안녕 한국")
	require.ErrorIs(t, err, ErrAdmissionRejected)
	assert.False(t, ack.Accepted)
	assert.True(t, ack.RateLimited)

	_, err = f.send(t, Partial, "other", "안녕")
	require.NoError(t, err, "limits are per session")

	sum, _ := f.sessions.Get(session.ID("s1"))
	assert.Equal(t, "안녕", sum.Text)
	assert.Len(t, f.pub.all(), 2)
	assert.Equal(t, int64(1), f.stats.Snapshot(time.Now()).RateLimitedTotal)
}

func TestCoordinator_processing_failure_leaves_state(t *testing.T) {
	for _, text := range []string{"boom", "panic"} {
		t.Run(text, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.send(t, Partial, "s1", "안녕 한국")
			require.NoError(t, err)

			ack, err := f.send(t, Partial, "s1", text)
			var pe *ProcessingError
			require.True(t, errors.As(err, &pe), "expected *ProcessingError, got %v", err)
			assert.Equal(t, "translate", pe.Stage)
			assert.False(t, ack.Accepted)
			assert.NotEmpty(t, ack.Error)

			sum, _ := f.sessions.Get(session.ID("s1"))
			assert.Equal(t, "안녕 한국", sum.Text)
			assert.Equal(t, 2, sum.Events)
			assert.Equal(t, int64(1), sum.Updates)
			assert.Len(t, f.pub.all(), 1)

			_, err = f.send(t, Partial, "s1", "안녕 한국 날씨")
			require.NoError(t, err, "session must keep working after a failure")
			assert.Equal(t, int64(1), f.stats.Snapshot(time.Now()).FailureTotal)
		})
	}
}

func TestCoordinator_sticky_compile_params(t *testing.T) {
	f := newFixture(t)
	gap, start := int64(0), int64(1000)

	_, err := f.coord.Handle(context.Background(), Ingest{Type: Partial, SessionID: "s1", Text: "안녕", GapMS: &gap, StartOffsetMS: &start})
	require.NoError(t, err)
	_, err = f.send(t, Partial, "s1", "안녕 한국")
	require.NoError(t, err)

	msgs := f.pub.all()
	require.Len(t, msgs, 2)
	rep := msgs[1].(ReplaceMessage)
	require.Len(t, rep.Data.Events, 1)
	assert.Equal(t, int64(1620), rep.Data.Events[0].OffsetMS)
}

func TestCoordinator_aux_channels_follow_settings(t *testing.T) {
	f := newFixture(t)
	f.coord.settings.Store(Values{IncludeAuxChannels: true, DefaultGapMS: 60})

	_, err := f.send(t, Partial, "s1", "속보")
	require.NoError(t, err)
	full := f.pub.all()[0].(TimelineMessage)
	channels := map[timeline.Channel]bool{}
	for _, ev := range full.Data.Events {
		channels[ev.Channel] = true
	}
	assert.True(t, channels[timeline.ChannelFace])
	assert.True(t, channels[timeline.ChannelGaze])
}

func TestCoordinator_HandleRaw_invalid(t *testing.T) {
	f := newFixture(t)

	ack, err := f.coord.HandleRaw(context.Background(), []byte(`{"type":"bogus","session_id":"s1","text":"x"}`))
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.False(t, ack.Accepted)
	assert.Equal(t, "s1", ack.SessionID)
	assert.Equal(t, 0, f.sessions.Len(), "invalid input must not create a session")
	assert.Equal(t, int64(1), f.stats.Snapshot(time.Now()).InvalidTotal)
}

func TestCoordinator_records_latency(t *testing.T) {
	f := newFixture(t)
	origin := float64(time.Now().Add(-150 * time.Millisecond).UnixMilli())

	_, err := f.coord.Handle(context.Background(), Ingest{Type: Final, SessionID: "s1", Text: "안녕", OriginTimestampMS: &origin})
	require.NoError(t, err)

	lat := f.stats.Snapshot(time.Now()).Latency
	require.Equal(t, 1, lat.Count)
	assert.GreaterOrEqual(t, lat.P50, 150.0)
}

func TestCoordinator_concurrent_sessions(t *testing.T) {
	f := newFixture(t)
	const sessions = 20

	var wg sync.WaitGroup
	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sid := fmt.Sprintf("s%d", i)
			for _, text := range []string{"안녕", "안녕 한국", "안녕 한국 날씨"} {
				_, err := f.send(t, Partial, sid, text)
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	full, replace := 0, 0
	for _, m := range f.pub.all() {
		switch m.(type) {
		case TimelineMessage:
			full++
		case ReplaceMessage:
			replace++
		}
	}
	assert.Equal(t, sessions, full)
	assert.Equal(t, 2*sessions, replace)
	assert.Equal(t, sessions, f.sessions.Len())
}
