package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCollector_Recent(t *testing.T) {
	c := New(Options{EventCapacity: 5})
	kinds := []string{KindTimeline, KindReplace, KindReplace, KindTimeline, KindReplace, KindReplace}
	for i, k := range kinds {
		sid := "a"
		if i%2 == 1 {
			sid = "b"
		}
		c.RecordBroadcast(BroadcastEvent{TS: t0.Add(time.Duration(i) * time.Second), SessionID: sid, Kind: k, Events: i})
	}

	t.Run("newest_first_bounded", func(t *testing.T) {
		got := c.Recent(EventQuery{N: 10})
		assert.Len(t, got, 5)
		assert.Equal(t, 5, got[0].Events)
		assert.Equal(t, 1, got[4].Events)
	})

	t.Run("offset", func(t *testing.T) {
		got := c.Recent(EventQuery{N: 2, Offset: 1})
		assert.Len(t, got, 2)
		assert.Equal(t, 4, got[0].Events)
		assert.Equal(t, 3, got[1].Events)
	})

	t.Run("session_filter", func(t *testing.T) {
		got := c.Recent(EventQuery{N: 10, SessionID: "b"})
		assert.Len(t, got, 3)
		for _, ev := range got {
			assert.Equal(t, "b", ev.SessionID)
		}
	})

	t.Run("zero_n", func(t *testing.T) {
		assert.Empty(t, c.Recent(EventQuery{}))
	})
}

func TestCollector_Summarize(t *testing.T) {
	c := New(Options{})
	c.RecordBroadcast(BroadcastEvent{TS: t0, SessionID: "a", Kind: KindTimeline})
	c.RecordBroadcast(BroadcastEvent{TS: t0, SessionID: "a", Kind: KindReplace})
	c.RecordBroadcast(BroadcastEvent{TS: t0, SessionID: "a", Kind: KindReplace})
	c.RecordBroadcast(BroadcastEvent{TS: t0, SessionID: "b", Kind: KindTimeline})

	assert.Equal(t, EventSummary{Total: 4, Replaces: 2, Ratio: 0.5}, c.Summarize(EventQuery{N: 10}))
	assert.Equal(t, EventSummary{Total: 3, Replaces: 2, Ratio: 0.667}, c.Summarize(EventQuery{N: 10, SessionID: "a"}))
	assert.Equal(t, EventSummary{}, c.Summarize(EventQuery{N: 10, SessionID: "missing"}))
}
