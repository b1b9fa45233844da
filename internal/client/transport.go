package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/dkeye/vcall/internal/domain"
	"github.com/dkeye/vcall/internal/protocol"
)

// clientTransport pairs the server-side transport with its lazy connect
// handshake: the answer is generated and exchanged on first use, so
// produce/consume never race their own transport's negotiation.
type clientTransport struct {
	sig   Signaler
	media MediaStack
	info  domain.TransportInfo

	mu        sync.Mutex
	connected bool
	closed    bool
}

func newClientTransport(sig Signaler, media MediaStack, info domain.TransportInfo) *clientTransport {
	return &clientTransport{sig: sig, media: media, info: info}
}

func (t *clientTransport) id() string { return t.info.ID }

// ensureConnected runs the connect handshake exactly once. Concurrent
// callers serialize on the lock; the loser sees connected and returns.
func (t *clientTransport) ensureConnected(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return fmt.Errorf("transport %s closed", t.info.ID)
	}
	if t.connected {
		return nil
	}

	answer, err := t.media.Answer(t.info.Offer)
	if err != nil {
		return fmt.Errorf("answer offer: %w", err)
	}
	err = t.sig.Request(ctx, protocol.OpConnectTransport, protocol.ConnectTransportRequest{
		TransportID: t.info.ID,
		Answer:      answer,
	}, nil)
	if err != nil {
		return fmt.Errorf("connect transport %s: %w", t.info.ID, err)
	}
	t.connected = true
	return nil
}

func (t *clientTransport) close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.connected = false
}
