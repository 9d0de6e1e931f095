package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mkempf/covert-duel-backend/internal/hub"
	"github.com/mkempf/covert-duel-backend/internal/protocol"
	"github.com/mkempf/covert-duel-backend/internal/session"
)

// Handler upgrades a connection and shuttles messages between it and the
// session actor named by the ?code= query parameter.
func Handler(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}

		reply := make(chan *session.Machine, 1)
		h.Inbox() <- hub.GetSession{Code: code, Reply: reply}
		s := <-reply
		if s == nil {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		out := make(chan protocol.ServerMessage, 64)
		connID := uuid.NewString()

		// Every inbox send selects on Done: a finished session stops
		// draining its inbox, and blocking here would leak the connection.
		select {
		case s.Inbox() <- session.Join{ConnID: connID, Outbox: out}:
		case <-s.Done():
			return
		}
		defer func() {
			select {
			case s.Inbox() <- session.Leave{ConnID: connID}:
			case <-s.Done():
			}
		}()

		// Writer goroutine: drains the session outbox until the session
		// closes it, then closes the socket so the reader unblocks.
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for msg := range out {
				payload, err := json.Marshal(msg)
				if err != nil {
					log.Warn("marshal outbound message", zap.Error(err))
					continue
				}
				ctx, cancel := context.WithTimeout(writeCtx, 3*time.Second)
				if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
					// Unreachable participant: logged, never retried.
					log.Warn("write to client failed",
						zap.String("conn", connID), zap.Error(err))
				}
				cancel()
			}
			conn.Close(websocket.StatusNormalClosure, "session closed")
		}()

		// Reader loop.
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					return
				}
				return
			}

			var msg protocol.ClientMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				_ = conn.Write(r.Context(), websocket.MessageText,
					[]byte(`{"type":"Error","error":"bad json"}`))
				continue
			}
			if msg.Type == "" {
				_ = conn.Write(r.Context(), websocket.MessageText,
					[]byte(`{"type":"Error","error":"missing type"}`))
				continue
			}

			select {
			case s.Inbox() <- session.FromClient{ConnID: connID, Msg: msg}:
			case <-s.Done():
				return
			}
		}
	}
}
