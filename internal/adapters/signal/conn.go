// Package signal is the websocket signaling adapter: it owns the
// connection pumps, the request dispatcher and the per-connection session
// state machine.
package signal

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/vcall/internal/protocol"
)

var ErrBackpressure = errors.New("backpressure")

// wsConn wraps one websocket with a buffered outbound queue. A slow reader
// loses events instead of blocking the room.
type wsConn struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func newWsConn(ws *websocket.Conn) *wsConn {
	return &wsConn{
		conn: ws,
		send: make(chan []byte, 32),
	}
}

func (c *wsConn) TrySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- data:
	default:
		return ErrBackpressure
	}
	return nil
}

// Notify implements core.Notifier: server→client events ride the same
// envelope as requests, without an id.
func (c *wsConn) Notify(event string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("event", event).Msg("notify marshal")
		return
	}
	c.sendEnvelope(protocol.Envelope{Type: event, Payload: body})
}

func (c *wsConn) sendEnvelope(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("envelope marshal")
		return
	}
	if err := c.TrySend(b); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("dropping outbound frame")
	}
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}
