// Package ws is the websocket transport for streaming translation
// sessions: upgrade, token auth, message rate limiting, and routing of
// client messages into a session controller.
package ws

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	writeWait  = 10 * time.Second
	maxMsgSize = 512 * 1024
	sendBuffer = 256
)

var (
	ErrConnClosed     = errors.New("ws: connection closed")
	ErrSendBufferFull = errors.New("ws: send buffer full")
)

type closeFrame struct {
	code   int
	reason string
}

// Conn wraps a websocket connection. All writes go through the send and
// closing channels into writePump, the only goroutine that touches the
// underlying connection for writing.
type Conn struct {
	ws      *websocket.Conn
	send    chan []byte
	closing chan closeFrame
	done    chan struct{}

	closeOnce sync.Once
	downOnce  sync.Once

	log *slog.Logger
}

func newConn(ws *websocket.Conn, log *slog.Logger) *Conn {
	return &Conn{
		ws:      ws,
		send:    make(chan []byte, sendBuffer),
		closing: make(chan closeFrame, 1),
		done:    make(chan struct{}),
		log:     log,
	}
}

// SendJSON marshals v and queues it for delivery. A full send buffer drops
// the message rather than blocking the caller.
func (c *Conn) SendJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrConnClosed
	case c.send <- payload:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close requests a close frame with the given code. Safe to call more than
// once and from any goroutine; the frame itself is written by writePump.
func (c *Conn) Close(code int, reason string) {
	c.closeOnce.Do(func() {
		select {
		case c.closing <- closeFrame{code: code, reason: reason}:
		default:
		}
	})
}

// writePump serializes all writes: queued messages, protocol pings, and
// the final close frame. It tears the connection down on exit, which
// unblocks the read loop.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.teardown()
	}()

	for {
		select {
		case msg := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
			// Drain whatever else is queued before selecting again.
			n := len(c.send)
			for i := 0; i < n; i++ {
				if err := c.ws.WriteMessage(websocket.TextMessage, <-c.send); err != nil {
					return
				}
			}

		case frame := <-c.closing:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			msg := websocket.FormatCloseMessage(frame.code, frame.reason)
			if err := c.ws.WriteMessage(websocket.CloseMessage, msg); err != nil {
				c.log.Debug("close frame write failed", "error", err)
			}
			return

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

func (c *Conn) teardown() {
	c.downOnce.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}
