package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/scyber100-hub/realtimesignlanguage/internal/broadcast"
	"github.com/scyber100-hub/realtimesignlanguage/internal/gloss"
	"github.com/scyber100-hub/realtimesignlanguage/internal/pipeline"
	"github.com/scyber100-hub/realtimesignlanguage/internal/platform/metrics"
	"github.com/scyber100-hub/realtimesignlanguage/internal/ratelimit"
	"github.com/scyber100-hub/realtimesignlanguage/internal/session"
	"github.com/scyber100-hub/realtimesignlanguage/internal/stats"
	"github.com/scyber100-hub/realtimesignlanguage/internal/timeline"
)

const maxBodyBytes = 1 << 20

// Deps are the components the HTTP surface exposes. Metrics may be nil.
type Deps struct {
	Coordinator *pipeline.Coordinator
	Sessions    *session.Repository
	Broadcaster *broadcast.Broadcaster
	Stats       *stats.Collector
	Limiter     *ratelimit.SlidingWindow
	Settings    *pipeline.Settings
	Translator  gloss.Translator
	Compiler    timeline.Compiler
	Overlays    *gloss.Overlays
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

// Handler exposes the pipeline over HTTP and WebSocket using go-chi.
type Handler struct {
	coord      *pipeline.Coordinator
	sessions   *session.Repository
	bc         *broadcast.Broadcaster
	stats      *stats.Collector
	limiter    *ratelimit.SlidingWindow
	settings   *pipeline.Settings
	translator gloss.Translator
	compiler   timeline.Compiler
	overlays   *gloss.Overlays
	metrics    *metrics.Metrics
	log        *slog.Logger
	upgrader   websocket.Upgrader
	now        func() time.Time
}

// NewHandler returns a Handler over d.
func NewHandler(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Handler{
		coord:      d.Coordinator,
		sessions:   d.Sessions,
		bc:         d.Broadcaster,
		stats:      d.Stats,
		limiter:    d.Limiter,
		settings:   d.Settings,
		translator: d.Translator,
		compiler:   d.Compiler,
		overlays:   d.Overlays,
		metrics:    d.Metrics,
		log:        d.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		now: time.Now,
	}
}

// Register mounts every route on r. When apiKey is non-empty, routes that
// write session state or expose admin data require it.
func (h *Handler) Register(r chi.Router, apiKey string) {
	r.Get("/healthz", h.Healthz)
	r.Post("/text2gloss", h.TextToGloss)
	r.Post("/gloss2timeline", h.GlossToTimeline)
	r.Get("/ws/timeline", h.TimelineWS)

	r.Group(func(r chi.Router) {
		r.Use(RequireAPIKey(apiKey))

		r.Post("/ingest", h.Ingest)
		r.Post("/ingest_text", h.IngestText)
		r.Get("/ws/ingest", h.IngestWS)

		r.Get("/sessions", h.ListSessions)
		r.Post("/sessions/reset", h.ResetSessions)

		r.Get("/stats", h.Stats)
		r.Get("/stats/alerts/history", h.AlertHistory)
		r.Get("/events/recent", h.RecentEvents)
		r.Get("/events/summary", h.EventSummary)

		r.Get("/config", h.GetConfig)
		r.Post("/config/update", h.UpdateConfig)

		r.Route("/lexicon", func(r chi.Router) {
			r.Get("/versions", h.LexiconVersions)
			r.Post("/overlay", h.LexiconOverlay)
			r.Post("/snapshot", h.LexiconSnapshot)
			r.Post("/rollback", h.LexiconRollback)
		})
	})
}

// UpdateGauges refreshes the session and subscriber gauges. Used as the
// /metrics pre-scrape hook.
func (h *Handler) UpdateGauges() {
	h.metrics.SetActiveSessions(h.sessions.Len())
	h.metrics.SetActiveSubscribers(h.bc.Count())
}

// Healthz handles GET /healthz.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "ts": h.now().UnixMilli()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}
