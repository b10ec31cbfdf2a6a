package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const streamWriteTimeout = 10 * time.Second

// handleStream upgrades to a websocket and pushes the session's view after
// every change until either side goes away. The stream is one-way; actions
// go through the HTTP endpoints.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	c, err := s.controller(r)
	if err != nil {
		s.writeError(w, nil, err)
		return
	}

	// Subscribe before the upgrade so no change after the handshake is missed.
	views, cancel, err := s.sessions.Subscribe(r.Context(), c.SessionID())
	if err != nil {
		s.writeError(w, nil, err)
		return
	}
	defer cancel()

	// The server's write timeout must not cut a long-lived stream.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.originPatterns,
	})
	if err != nil {
		slog.Warn("websocket accept failed", "session_id", c.SessionID(), "error", err)
		return
	}
	defer conn.CloseNow()

	// CloseRead discards client frames and cancels ctx when the peer closes.
	ctx := conn.CloseRead(context.WithoutCancel(r.Context()))

	slog.Debug("view stream opened", "session_id", c.SessionID())
	for {
		select {
		case <-ctx.Done():
			slog.Debug("view stream closed by client", "session_id", c.SessionID())
			return
		case v, ok := <-views:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "session ended")
				return
			}
			writeCtx, cancelWrite := context.WithTimeout(ctx, streamWriteTimeout)
			err := wsjson.Write(writeCtx, conn, v)
			cancelWrite()
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					slog.Warn("view stream write failed", "session_id", c.SessionID(), "error", err)
				}
				return
			}
		}
	}
}
