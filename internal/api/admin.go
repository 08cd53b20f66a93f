package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/scyber100-hub/realtimesignlanguage/internal/gloss"
	"github.com/scyber100-hub/realtimesignlanguage/internal/pipeline"
	"github.com/scyber100-hub/realtimesignlanguage/internal/session"
	"github.com/scyber100-hub/realtimesignlanguage/internal/stats"
)

const defaultListN = 50

// ListSessions handles GET /sessions.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	items := h.sessions.List()
	writeJSON(w, http.StatusOK, map[string]any{"count": len(items), "items": items})
}

type resetRequest struct {
	SessionID string `json:"session_id"`
}

// ResetSessions handles POST /sessions/reset. An empty or missing
// session_id resets every session.
func (h *Handler) ResetSessions(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if r.ContentLength != 0 {
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid body")
			return
		}
	}

	if req.SessionID == "" {
		n := h.sessions.ResetAll()
		h.log.Info("all sessions reset", slog.Int("count", n))
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "reset": n})
		return
	}
	if !h.sessions.Reset(session.ID(req.SessionID)) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	h.log.Info("session reset", slog.String("session_id", req.SessionID))
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "reset": 1})
}

// Stats handles GET /stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.stats.Snapshot(h.now()))
}

// AlertHistory handles GET /stats/alerts/history?n=.
func (h *Handler) AlertHistory(w http.ResponseWriter, r *http.Request) {
	n, ok := queryInt(w, r, "n", defaultListN)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": h.stats.AlertHistory(n)})
}

// RecentEvents handles GET /events/recent?n=&offset=&session_id=.
func (h *Handler) RecentEvents(w http.ResponseWriter, r *http.Request) {
	q, ok := eventQuery(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": h.stats.Recent(q)})
}

// EventSummary handles GET /events/summary?n=&offset=&session_id=.
func (h *Handler) EventSummary(w http.ResponseWriter, r *http.Request) {
	q, ok := eventQuery(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.stats.Summarize(q))
}

func eventQuery(w http.ResponseWriter, r *http.Request) (stats.EventQuery, bool) {
	n, ok := queryInt(w, r, "n", defaultListN)
	if !ok {
		return stats.EventQuery{}, false
	}
	offset, ok := queryInt(w, r, "offset", 0)
	if !ok {
		return stats.EventQuery{}, false
	}
	return stats.EventQuery{N: n, Offset: offset, SessionID: r.URL.Query().Get("session_id")}, true
}

// queryInt reads a non-negative integer query parameter, writing a 400 when
// it is malformed.
func queryInt(w http.ResponseWriter, r *http.Request, name string, fallback int) (int, bool) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return n, true
}

// runtimeConfig is the adjustable configuration as exposed by /config.
type runtimeConfig struct {
	pipeline.Values
	MaxIngestRPS int `json:"max_ingest_rps"`
	stats.Thresholds
}

type configUpdate struct {
	IncludeAuxChannels *bool    `json:"include_aux_channels"`
	DefaultStartMS     *int64   `json:"default_start_ms"`
	DefaultGapMS       *int64   `json:"default_gap_ms"`
	MaxIngestRPS       *int     `json:"max_ingest_rps"`
	LatencyP90WarnMS   *float64 `json:"latency_p90_warn_ms"`
	ReplaceRatioWarn   *float64 `json:"replace_ratio_warn"`
	RateLimitRatioWarn *float64 `json:"rate_limit_ratio_warn"`
}

var errNegative = errors.New("values must not be negative")

func (u configUpdate) validate() error {
	for _, p := range []*int64{u.DefaultStartMS, u.DefaultGapMS} {
		if p != nil && *p < 0 {
			return errNegative
		}
	}
	for _, p := range []*float64{u.LatencyP90WarnMS, u.ReplaceRatioWarn, u.RateLimitRatioWarn} {
		if p != nil && *p < 0 {
			return errNegative
		}
	}
	if u.MaxIngestRPS != nil && *u.MaxIngestRPS < 1 {
		return errors.New("max_ingest_rps must be at least 1")
	}
	return nil
}

func (h *Handler) currentConfig() runtimeConfig {
	return runtimeConfig{
		Values:       h.settings.Load(),
		MaxIngestRPS: h.limiter.Limit(),
		Thresholds:   h.stats.Thresholds(),
	}
}

// GetConfig handles GET /config.
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.currentConfig())
}

// UpdateConfig handles POST /config/update. Only fields present in the body
// change.
func (h *Handler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var u configUpdate
	if r.ContentLength != 0 {
		if err := decodeBody(w, r, &u); err != nil {
			writeError(w, http.StatusBadRequest, "invalid body")
			return
		}
	}
	if err := u.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.settings.Update(func(v *pipeline.Values) {
		if u.IncludeAuxChannels != nil {
			v.IncludeAuxChannels = *u.IncludeAuxChannels
		}
		if u.DefaultStartMS != nil {
			v.DefaultStartMS = *u.DefaultStartMS
		}
		if u.DefaultGapMS != nil {
			v.DefaultGapMS = *u.DefaultGapMS
		}
	})

	if u.MaxIngestRPS != nil {
		h.limiter.SetLimit(*u.MaxIngestRPS)
	}

	h.stats.UpdateThresholds(func(t *stats.Thresholds) {
		if u.LatencyP90WarnMS != nil {
			t.LatencyP90MS = *u.LatencyP90WarnMS
		}
		if u.ReplaceRatioWarn != nil {
			t.ReplaceRatio = *u.ReplaceRatioWarn
		}
		if u.RateLimitRatioWarn != nil {
			t.RateLimitRatio = *u.RateLimitRatioWarn
		}
	})

	cfg := h.currentConfig()
	h.log.Info("runtime config updated",
		slog.Bool("include_aux_channels", cfg.IncludeAuxChannels),
		slog.Int("max_ingest_rps", cfg.MaxIngestRPS),
	)
	writeJSON(w, http.StatusOK, cfg)
}

// LexiconVersions handles GET /lexicon/versions.
func (h *Handler) LexiconVersions(w http.ResponseWriter, r *http.Request) {
	items, err := h.overlays.Versions(r.Context())
	if err != nil {
		h.log.Error("list lexicon snapshots failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	if items == nil {
		items = []gloss.SnapshotInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type overlayRequest struct {
	Entries map[string]string `json:"entries"`
}

// LexiconOverlay handles POST /lexicon/overlay. An empty gloss removes the
// word from the overlay.
func (h *Handler) LexiconOverlay(w http.ResponseWriter, r *http.Request) {
	var req overlayRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	overlay := h.overlays.Apply(req.Entries)
	h.log.Info("lexicon overlay updated", slog.Int("changed", len(req.Entries)), slog.Int("size", len(overlay)))
	writeJSON(w, http.StatusOK, map[string]any{"overlay": overlay})
}

// LexiconSnapshot handles POST /lexicon/snapshot.
func (h *Handler) LexiconSnapshot(w http.ResponseWriter, r *http.Request) {
	info, err := h.overlays.Snapshot(r.Context())
	if err != nil {
		h.log.Error("lexicon snapshot failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "snapshot failed")
		return
	}
	h.log.Info("lexicon snapshot saved", slog.String("name", info.Name), slog.Int("size", info.Size))
	writeJSON(w, http.StatusCreated, info)
}

type rollbackRequest struct {
	Name string `json:"name"`
}

// LexiconRollback handles POST /lexicon/rollback.
func (h *Handler) LexiconRollback(w http.ResponseWriter, r *http.Request) {
	var req rollbackRequest
	if err := decodeBody(w, r, &req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "name required")
		return
	}
	if err := h.overlays.Rollback(r.Context(), req.Name); err != nil {
		if errors.Is(err, gloss.ErrSnapshotNotFound) {
			writeError(w, http.StatusNotFound, "snapshot not found")
			return
		}
		h.log.Error("lexicon rollback failed", slog.String("name", req.Name), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "rollback failed")
		return
	}
	h.log.Info("lexicon rolled back", slog.String("name", req.Name))
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "name": req.Name})
}
