// Package core declares the ports the orchestration layer is written
// against. Implementations live in adapters.
package core

import (
	"context"

	"github.com/dkeye/vcall/internal/domain"
)

// Worker is one independent media-processing resource. The pool creates the
// fixed set at boot; a dead worker is fatal to the process.
type Worker interface {
	ID() string
	// CreateRouter allocates a per-room routing context bound to this worker.
	CreateRouter(ctx context.Context, codecs []domain.CodecCapability) (Router, error)
	// OnDied sets the death handler. Called at most once.
	OnDied(fn func())
	Close()
}

// Router is the per-room media-routing context.
type Router interface {
	Capabilities() domain.RouterCapabilities
	CreateTransport(ctx context.Context, dir domain.TransportDirection) (Transport, error)
	// CanConsume reports whether caps are compatible with the producer.
	// Mandatory gate before Transport.Consume.
	CanConsume(producerID string, caps domain.RouterCapabilities) bool
	Close()
}

// Transport carries one direction of media between a peer and the engine.
// A failed transport is closed and never resurrected.
type Transport interface {
	ID() string
	Info() domain.TransportInfo
	// Connect completes the ICE/DTLS handshake with the remote answer.
	Connect(answer string) error
	// Produce creates an outbound-track binding on a send transport.
	Produce(kind domain.MediaKind, rtp domain.RTPParameters) (Producer, error)
	// Consume subscribes this recv transport to a producer hosted on the
	// same router.
	Consume(producerID string, caps domain.RouterCapabilities) (Consumer, error)
	OnStateChange(fn func(domain.TransportState))
	// Close tears down the transport together with every producer and
	// consumer created on it; their close hooks fire as usual. The failed
	// transport handler relies on this cascade.
	Close()
}

// Producer is one published media track.
type Producer interface {
	ID() string
	Kind() domain.MediaKind
	// OnClose registers a handler fired exactly once when the producer
	// reaches its terminal state, whatever triggered it.
	OnClose(fn func())
	Close()
}

// Consumer is one peer's subscription to a remote producer. It references
// its source producer by identifier only; the producer object is never
// shared across peers.
type Consumer interface {
	ID() string
	ProducerID() string
	Kind() domain.MediaKind
	Info() domain.ConsumerInfo
	// OnProducerClose registers the propagation handler fired when the
	// source producer closes.
	OnProducerClose(fn func())
	Close()
}
