// Package client implements the negotiation agent that mirrors the server
// handshake sequence over the signaling socket.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/vcall/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var ErrSignalerClosed = errors.New("signaler closed")

// ServerError carries the wire error string a request was rejected with.
type ServerError struct {
	Op   string
	Text string
}

func (e *ServerError) Error() string { return fmt.Sprintf("%s: %s", e.Op, e.Text) }

// IsServerError reports whether err is a server rejection with the given
// wire text.
func IsServerError(err error, text string) bool {
	var se *ServerError
	return errors.As(err, &se) && se.Text == text
}

// Signaler is the request/response and event surface of the signaling
// socket. A dropped connection invalidates everything built on it; callers
// discard the agent and start over.
type Signaler interface {
	Request(ctx context.Context, op string, payload any, out any) error
	Send(op string, payload any) error
	OnEvent(event string, fn func(json.RawMessage))
	Close() error
}

// WSSignaler correlates request envelopes with their replies by id and
// fans events out to registered handlers.
type WSSignaler struct {
	conn *websocket.Conn

	outgoing chan []byte
	done     chan struct{}

	mu       sync.Mutex
	pending  map[string]chan protocol.Response
	handlers map[string][]func(json.RawMessage)
	closed   bool
}

func Dial(url string) (*WSSignaler, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial signaling server: %w", err)
	}
	s := &WSSignaler{
		conn:     conn,
		outgoing: make(chan []byte, 16),
		done:     make(chan struct{}),
		pending:  make(map[string]chan protocol.Response),
		handlers: make(map[string][]func(json.RawMessage)),
	}

	conn.SetReadLimit(maxMessageSize)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go s.readPump()
	go s.writePump()
	return s, nil
}

// Request sends one envelope and blocks for its correlated reply.
func (s *WSSignaler) Request(ctx context.Context, op string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", op, err)
	}
	id := uuid.NewString()
	reply := make(chan protocol.Response, 1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSignalerClosed
	}
	s.pending[id] = reply
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}()

	if err := s.enqueue(protocol.Envelope{Type: op, ID: id, Payload: body}); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrSignalerClosed
	case resp := <-reply:
		if resp.Error != "" {
			return &ServerError{Op: op, Text: resp.Error}
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(resp.Payload, out); err != nil {
			return fmt.Errorf("decode %s response: %w", op, err)
		}
		return nil
	}
}

// Send fires an envelope without waiting for a reply.
func (s *WSSignaler) Send(op string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", op, err)
	}
	return s.enqueue(protocol.Envelope{Type: op, Payload: body})
}

// OnEvent registers a handler for a server→client event type. Handlers run
// on the read pump goroutine; they must not block.
func (s *WSSignaler) OnEvent(event string, fn func(json.RawMessage)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[event] = append(s.handlers[event], fn)
}

func (s *WSSignaler) enqueue(env protocol.Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	select {
	case s.outgoing <- b:
		return nil
	case <-s.done:
		return ErrSignalerClosed
	}
}

func (s *WSSignaler) readPump() {
	defer s.shutdown()

	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		s.route(data)
	}
}

// route demultiplexes one inbound frame: replies resolve their pending
// request, everything else is an event.
func (s *WSSignaler) route(data []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "client.signaler").Msg("bad inbound frame")
		return
	}

	if env.Type == protocol.TypeResponse {
		var resp protocol.Response
		if err := json.Unmarshal(data, &resp); err != nil {
			log.Warn().Err(err).Str("module", "client.signaler").Msg("bad response frame")
			return
		}
		s.mu.Lock()
		reply, ok := s.pending[resp.ID]
		s.mu.Unlock()
		if ok {
			reply <- resp
		}
		return
	}

	s.mu.Lock()
	fns := make([]func(json.RawMessage), len(s.handlers[env.Type]))
	copy(fns, s.handlers[env.Type])
	s.mu.Unlock()
	for _, fn := range fns {
		fn(env.Payload)
	}
}

func (s *WSSignaler) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case data := <-s.outgoing:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// shutdown fails every outstanding request and stops the pumps.
func (s *WSSignaler) shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	close(s.done)
	_ = s.conn.Close()
}

func (s *WSSignaler) Close() error {
	s.shutdown()
	return nil
}
