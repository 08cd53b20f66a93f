package timeline

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/scyber100-hub/realtimesignlanguage/internal/gloss"
)

// DefaultDurationMS is used for glosses without a clip table entry.
const DefaultDurationMS = 650

type clip struct {
	id         string
	durationMS int64
}

var clips = map[string]clip{
	"HELLO":      {"HELLO", 620},
	"KOREA":      {"KOREA", 700},
	"WEATHER":    {"WEATHER", 680},
	"TODAY":      {"TODAY", 500},
	"TOMORROW":   {"TOMORROW", 520},
	"BREAKING":   {"BREAKING", 600},
	"EARTHQUAKE": {"EARTHQUAKE", 900},
	"TYPHOON":    {"TYPHOON", 900},
	"RAIN":       {"RAIN", 700},
	"SNOW":       {"SNOW", 700},
	"SUNNY":      {"SUNNY", 650},
}

var faceClips = map[string]clip{
	"BREAKING":   {"FACE_ALERT", 500},
	"EARTHQUAKE": {"FACE_ALERT", 700},
	"TYPHOON":    {"FACE_ALERT", 700},
}

var gazeClips = map[string]clip{
	"BREAKING":   {"GAZE_FORWARD", 500},
	"EARTHQUAKE": {"GAZE_FORWARD", 700},
	"TYPHOON":    {"GAZE_FORWARD", 700},
}

// Compiler turns glosses into a timeline.
type Compiler interface {
	Compile(ctx context.Context, glosses []gloss.Gloss, startMS, gapMS int64, includeAux bool) (Timeline, error)
}

// ClipCompiler lays glosses out back to back using a static clip table.
// Alert glosses optionally add face and gaze events that start with the
// manual clip and never outlast it.
type ClipCompiler struct {
	now   func() time.Time
	newID func() string
}

// NewClipCompiler returns a compiler using wall-clock time and uuid ids.
func NewClipCompiler() *ClipCompiler {
	return &ClipCompiler{
		now:   time.Now,
		newID: func() string { return "signtimeline-" + uuid.NewString() },
	}
}

// Compile implements Compiler. Event offsets depend only on the inputs.
func (c *ClipCompiler) Compile(ctx context.Context, glosses []gloss.Gloss, startMS, gapMS int64, includeAux bool) (Timeline, error) {
	if err := ctx.Err(); err != nil {
		return Timeline{}, err
	}
	if startMS < 0 {
		startMS = 0
	}
	if gapMS < 0 {
		gapMS = 0
	}

	events := make([]Event, 0, len(glosses))
	t := startMS
	for _, g := range glosses {
		spec, ok := clips[g.Symbol]
		if !ok {
			spec = clip{id: g.Symbol, durationMS: DefaultDurationMS}
		}
		conf := roundConfidence(g.Confidence)
		events = append(events, Event{
			OffsetMS:   t,
			ClipID:     spec.id,
			DurationMS: spec.durationMS,
			Channel:    ChannelDefault,
			Confidence: conf,
		})
		if includeAux {
			if face, ok := faceClips[g.Symbol]; ok {
				events = append(events, auxEvent(t, face, spec, ChannelFace, conf))
			}
			if gaze, ok := gazeClips[g.Symbol]; ok {
				events = append(events, auxEvent(t, gaze, spec, ChannelGaze, conf))
			}
		}
		t += spec.durationMS + gapMS
	}

	now := c.now()
	return Timeline{
		ID:        c.newID(),
		CreatedAt: now.UnixMilli(),
		Lang:      "ko-KR->KSL",
		Events:    events,
		Meta:      Meta{Version: "v0", Generator: "timeline.ClipCompiler"},
	}, nil
}

func auxEvent(offset int64, aux, manual clip, ch Channel, conf float64) Event {
	return Event{
		OffsetMS:   offset,
		ClipID:     aux.id,
		DurationMS: min(aux.durationMS, manual.durationMS),
		Channel:    ch,
		Confidence: conf,
	}
}

func roundConfidence(c float64) float64 {
	c = math.Max(0, math.Min(1, c))
	return math.Round(c*1000) / 1000
}
