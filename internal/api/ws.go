package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait     = 5 * time.Second
	wsMaxViewerRead = 4 << 10
	wsMaxIngestRead = 64 << 10
)

// wsSink adapts a viewer connection to broadcast.Sink. Only the
// broadcaster's writer goroutine calls Send.
type wsSink struct {
	conn      *websocket.Conn
	closeOnce sync.Once
}

func (s *wsSink) Send(ctx context.Context, payload []byte) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(wsWriteWait)
	}
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

func (s *wsSink) Close() error {
	var err error
	s.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = s.conn.Close()
	})
	return err
}

// TimelineWS handles GET /ws/timeline. Viewers only receive; anything they
// send is read and discarded so close frames and pings are processed.
func (h *Handler) TimelineWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("timeline websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	conn.SetReadLimit(wsMaxViewerRead)

	sub := h.bc.Connect(&wsSink{conn: conn})
	defer h.bc.Disconnect(sub)
	h.log.Info("viewer connected",
		slog.String("subscriber_id", sub.ID()),
		slog.String("remote_addr", r.RemoteAddr),
	)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debug("viewer read error", slog.String("subscriber_id", sub.ID()), slog.String("error", err.Error()))
			}
			h.log.Info("viewer disconnected", slog.String("subscriber_id", sub.ID()))
			return
		}
	}
}

// IngestWS handles GET /ws/ingest. Each text frame is one ingest message and
// is answered with exactly one ack frame, in order.
func (h *Handler) IngestWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("ingest websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsMaxIngestRead)

	ctx := context.WithoutCancel(r.Context())
	for {
		mt, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debug("ingest read error", slog.String("error", err.Error()))
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		ack, _ := h.coord.HandleRaw(ctx, raw)
		if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
			return
		}
		if err := conn.WriteJSON(ack); err != nil {
			h.log.Debug("ingest ack write failed", slog.String("error", err.Error()))
			return
		}
	}
}
