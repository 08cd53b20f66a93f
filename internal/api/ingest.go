package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/scyber100-hub/realtimesignlanguage/internal/gloss"
	"github.com/scyber100-hub/realtimesignlanguage/internal/pipeline"
	"github.com/scyber100-hub/realtimesignlanguage/internal/timeline"
)

// Ingest handles POST /ingest. Body is one ingest message; the response is
// its ack.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "body too large")
		return
	}
	ack, err := h.coord.HandleRaw(r.Context(), raw)
	writeJSON(w, ackStatus(err), ack)
}

func ackStatus(err error) int {
	var ve *pipeline.ValidationError
	var pe *pipeline.ProcessingError
	switch {
	case err == nil, errors.Is(err, pipeline.ErrSuppressed):
		return http.StatusOK
	case errors.Is(err, pipeline.ErrAdmissionRejected):
		return http.StatusTooManyRequests
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.As(err, &pe):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

type textRequest struct {
	Text string `json:"text"`
}

// TextToGloss handles POST /text2gloss.
func (h *Handler) TextToGloss(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	glosses, err := h.translator.Translate(r.Context(), req.Text)
	if err != nil {
		h.log.Error("translate failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "translate failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tokens":  gloss.Tokenize(req.Text),
		"glosses": glosses,
	})
}

type compileRequest struct {
	Glosses            []gloss.Gloss `json:"glosses"`
	StartMS            int64         `json:"start_ms"`
	GapMS              *int64        `json:"gap_ms"`
	IncludeAuxChannels *bool         `json:"include_aux_channels"`
}

// GlossToTimeline handles POST /gloss2timeline. Glosses without a confidence
// are treated as lexicon hits.
func (h *Handler) GlossToTimeline(w http.ResponseWriter, r *http.Request) {
	var req compileRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	for i := range req.Glosses {
		if req.Glosses[i].Confidence == 0 {
			req.Glosses[i].Confidence = gloss.KnownConfidence
		}
	}
	tl, err := h.compile(r, req.Glosses, req.StartMS, req.GapMS, req.IncludeAuxChannels)
	if err != nil {
		h.log.Error("compile failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "compile failed")
		return
	}
	writeJSON(w, http.StatusOK, tl)
}

type ingestTextRequest struct {
	Text    string `json:"text"`
	StartMS int64  `json:"start_ms"`
	GapMS   *int64 `json:"gap_ms"`
	ID      string `json:"id"`
}

// IngestText handles POST /ingest_text: a one-shot translate and compile
// whose full timeline is broadcast without touching any session.
func (h *Handler) IngestText(w http.ResponseWriter, r *http.Request) {
	var req ingestTextRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	glosses, err := h.translator.Translate(r.Context(), req.Text)
	if err != nil {
		h.log.Error("translate failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "translate failed")
		return
	}
	tl, err := h.compile(r, glosses, req.StartMS, req.GapMS, nil)
	if err != nil {
		h.log.Error("compile failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "compile failed")
		return
	}
	if req.ID != "" {
		tl.ID = req.ID
	}
	n := h.bc.Fanout(pipeline.TimelineMessage{Kind: pipeline.KindTimeline, Data: tl})
	h.metrics.IncBroadcast(pipeline.KindTimeline)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "subscribers": n, "timeline": tl})
}

func (h *Handler) compile(r *http.Request, glosses []gloss.Gloss, startMS int64, gapMS *int64, aux *bool) (timeline.Timeline, error) {
	v := h.settings.Load()
	gap := v.DefaultGapMS
	if gapMS != nil {
		gap = *gapMS
	}
	includeAux := v.IncludeAuxChannels
	if aux != nil {
		includeAux = *aux
	}
	return h.compiler.Compile(r.Context(), glosses, startMS, gap, includeAux)
}
