package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tafahom/backend/internal/auth"
	"github.com/tafahom/backend/internal/config"
	"github.com/tafahom/backend/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// clientMessage is the envelope every JSON message from the client uses.
// Heartbeats carry a type; translation control carries an action.
type clientMessage struct {
	Type       string `json:"type"`
	Action     string `json:"action"`
	OutputType string `json:"output_type,omitempty"`
}

// SessionFactory builds a session controller bound to an authenticated
// user and a transport emitter.
type SessionFactory func(userID string, emit session.Emitter) *session.Controller

// Handler upgrades /ws/translation/stream/ connections and runs their read loop.
type Handler struct {
	verifier auth.Verifier
	limits   config.StreamingConfig
	sessions SessionFactory
	log      *slog.Logger
}

func NewHandler(verifier auth.Verifier, limits config.StreamingConfig, sessions SessionFactory, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{verifier: verifier, limits: limits, sessions: sessions, log: log}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	conn := newConn(wsConn, h.log)
	go conn.writePump()

	// The token is checked after the upgrade so the client receives a
	// proper close code instead of an opaque handshake failure.
	claims, err := h.verifier.Verify(bearerToken(r))
	if err != nil {
		h.log.Info("websocket auth rejected", "error", err)
		conn.Close(session.CloseUnauthorized, "unauthorized")
		return
	}

	ctrl := h.sessions(claims.UserID, conn)
	go ctrl.Run()

	h.readLoop(conn, ctrl)
}

// readLoop owns all reads from the connection. It enforces the per-second
// message cap and routes frames and JSON messages into the controller.
// When it returns, the session is shut down and the connection torn down.
func (h *Handler) readLoop(conn *Conn, ctrl *session.Controller) {
	defer func() {
		// A specific close code may already be queued; this is a no-op then.
		conn.Close(websocket.CloseNormalClosure, "")
		ctrl.Shutdown(context.Background())
		// Give writePump a moment to flush the close frame before the
		// socket is torn down underneath it.
		select {
		case <-conn.done:
		case <-time.After(writeWait):
			conn.teardown()
		}
	}()

	conn.ws.SetReadLimit(maxMsgSize)
	conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	conn.ws.SetPongHandler(func(string) error {
		conn.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	limiter := newMessageRate(h.limits.MaxMessagesPerSecond)

	for {
		msgType, payload, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("websocket read ended", "session_id", ctrl.ID, "error", err)
			}
			return
		}

		if !limiter.allow(time.Now()) {
			h.log.Info("message rate exceeded", "session_id", ctrl.ID, "user_id", ctrl.UserID)
			conn.Close(session.CloseRateLimited, "message rate exceeded")
			return
		}

		if msgType == websocket.BinaryMessage {
			ctrl.OnFrame(payload)
			continue
		}

		var msg clientMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			conn.SendJSON(session.Error("Invalid JSON"))
			continue
		}

		switch {
		case msg.Type == "ping":
			ctrl.OnPing()
		case msg.Action == "start":
			ctrl.StartTranslation(context.Background(), msg.OutputType)
		case msg.Action == "stop":
			ctrl.StopTranslation(context.Background(), "client request")
		default:
			conn.SendJSON(session.Error("Unknown action"))
		}
	}
}

// bearerToken extracts the session token from the Authorization header or,
// for browser clients that cannot set headers on websocket dials, from the
// token query parameter.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// messageRate is a one-second sliding window over message arrival times.
// It is only touched by the read loop, so it needs no locking.
type messageRate struct {
	limit  int
	stamps []time.Time
}

func newMessageRate(limit int) *messageRate {
	return &messageRate{limit: limit, stamps: make([]time.Time, 0, limit)}
}

func (m *messageRate) allow(now time.Time) bool {
	cutoff := now.Add(-time.Second)
	keep := 0
	for keep < len(m.stamps) && !m.stamps[keep].After(cutoff) {
		keep++
	}
	m.stamps = m.stamps[keep:]

	if len(m.stamps) >= m.limit {
		return false
	}
	m.stamps = append(m.stamps, now)
	return true
}
