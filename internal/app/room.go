package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/vcall/internal/core"
	"github.com/dkeye/vcall/internal/domain"
	"github.com/dkeye/vcall/internal/protocol"
)

// Room is one call session: a router bound to one worker plus the set of
// currently joined peers. The router is bound asynchronously after
// construction; operations needing it fail with not-ready until then.
type Room struct {
	id  domain.RoomID
	log zerolog.Logger

	mu        sync.RWMutex
	router    core.Router
	routerErr error
	peers     map[domain.PeerID]*Peer
}

func NewRoom(id domain.RoomID) *Room {
	return &Room{
		id:    id,
		log:   log.With().Str("module", "app.room").Str("room", string(id)).Logger(),
		peers: make(map[domain.PeerID]*Peer),
	}
}

func (r *Room) ID() domain.RoomID { return r.id }

// bindRouter resolves the asynchronous router initialization.
func (r *Room) bindRouter(router core.Router, err error) {
	r.mu.Lock()
	r.router = router
	r.routerErr = err
	r.mu.Unlock()
	if err != nil {
		r.log.Error().Err(err).Msg("router initialization failed")
		return
	}
	r.log.Info().Msg("router ready")
}

func (r *Room) routerOrErr() (core.Router, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.routerErr != nil {
		return nil, fmt.Errorf("router: %w", r.routerErr)
	}
	if r.router == nil {
		return nil, fmt.Errorf("router: %w", core.ErrNotReady)
	}
	return r.router, nil
}

func (r *Room) Capabilities() (domain.RouterCapabilities, error) {
	router, err := r.routerOrErr()
	if err != nil {
		return domain.RouterCapabilities{}, err
	}
	return router.Capabilities(), nil
}

func (r *Room) AddPeer(p *Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[p.ID()] = p
	r.log.Info().Str("peer", string(p.ID())).Str("identity", p.Identity()).Msg("peer added")
}

func (r *Room) Peer(id domain.PeerID) (*Peer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[id]
	if !ok {
		return nil, fmt.Errorf("peer %s: %w", id, core.ErrNotFound)
	}
	return p, nil
}

func (r *Room) PeerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// ProducerList returns every producer currently held by any peer, used to
// backfill a newly joined peer with the existing media graph.
func (r *Room) ProducerList() []domain.ProducerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ProducerInfo, 0)
	for id, p := range r.peers {
		for _, pid := range p.ProducerIDs() {
			out = append(out, domain.ProducerInfo{ProducerID: pid, PeerID: id})
		}
	}
	return out
}

func (r *Room) Snapshot() domain.RoomSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	peers := make([]domain.PeerSnapshot, 0, len(r.peers))
	for _, p := range r.peers {
		peers = append(peers, p.Snapshot())
	}
	return domain.RoomSnapshot{ID: r.id, Peers: peers}
}

// Broadcast delivers an event to every peer except from.
func (r *Room) Broadcast(from domain.PeerID, event string, payload any) {
	r.mu.RLock()
	targets := make([]*Peer, 0, len(r.peers))
	for id, p := range r.peers {
		if id == from {
			continue
		}
		targets = append(targets, p)
	}
	r.mu.RUnlock()
	for _, p := range targets {
		p.Notify(event, payload)
	}
}

// CreateTransport asks the router for a transport in the given direction,
// wires the failure handler and registers it on the peer.
func (r *Room) CreateTransport(ctx context.Context, peerID domain.PeerID, dir domain.TransportDirection) (domain.TransportInfo, error) {
	router, err := r.routerOrErr()
	if err != nil {
		return domain.TransportInfo{}, err
	}
	peer, err := r.Peer(peerID)
	if err != nil {
		return domain.TransportInfo{}, err
	}

	transport, err := router.CreateTransport(ctx, dir)
	if err != nil {
		return domain.TransportInfo{}, fmt.Errorf("create transport: %w", err)
	}

	// A failed transport is closed and never resurrected; the client must
	// renegotiate from scratch.
	transport.OnStateChange(func(state domain.TransportState) {
		switch state {
		case domain.TransportFailed:
			r.log.Warn().Str("peer", string(peerID)).Str("transport", transport.ID()).Msg("transport failed, closing")
			transport.Close()
		case domain.TransportClosed:
			peer.RemoveTransport(transport.ID())
		}
	})

	peer.AddTransport(transport)
	r.log.Info().Str("peer", string(peerID)).Str("transport", transport.ID()).Str("direction", string(dir)).Msg("transport created")
	return transport.Info(), nil
}

// ConnectTransport completes the handshake parameter exchange for an
// existing transport.
func (r *Room) ConnectTransport(peerID domain.PeerID, transportID, answer string) error {
	peer, err := r.Peer(peerID)
	if err != nil {
		return err
	}
	transport, err := peer.Transport(transportID)
	if err != nil {
		return err
	}
	if err := transport.Connect(answer); err != nil {
		return fmt.Errorf("connect transport %s: %w", transportID, err)
	}
	return nil
}

// Produce creates a producer on the peer's named transport, enforcing the
// one-producer-per-label invariant, then advertises it to every other peer.
func (r *Room) Produce(peerID domain.PeerID, transportID string, label domain.MediaLabel, kind domain.MediaKind, rtp domain.RTPParameters) (string, error) {
	peer, err := r.Peer(peerID)
	if err != nil {
		return "", err
	}
	if label == "" {
		label = domain.MediaLabel(kind)
	}
	labelKind, err := label.Kind()
	if err != nil {
		return "", err
	}
	if labelKind != kind {
		return "", fmt.Errorf("label %s does not carry kind %s: %w", label, kind, domain.ErrUnknownLabel)
	}
	if peer.HasLabel(label) {
		return "", fmt.Errorf("label %s: %w", label, core.ErrDuplicateLabel)
	}

	transport, err := peer.Transport(transportID)
	if err != nil {
		return "", err
	}
	producer, err := transport.Produce(kind, rtp)
	if err != nil {
		return "", fmt.Errorf("produce: %w", err)
	}
	if err := peer.AddProducer(label, producer); err != nil {
		// Lost a concurrent duplicate: roll the engine-side producer back.
		producer.Close()
		return "", err
	}
	producer.OnClose(func() {
		peer.RemoveProducer(producer.ID())
		r.log.Info().Str("peer", string(peerID)).Str("producer", producer.ID()).Msg("producer closed")
	})

	r.log.Info().Str("peer", string(peerID)).Str("producer", producer.ID()).Str("label", string(label)).Msg("producing")
	r.Broadcast(peerID, protocol.EvtNewProducers, []domain.ProducerInfo{
		{ProducerID: producer.ID(), PeerID: peerID},
	})
	return producer.ID(), nil
}

// Consume subscribes the peer's recv transport to a producer. Capability
// compatibility is checked before touching the engine; the producer-closed
// propagation handler notifies only the consuming peer's connection.
func (r *Room) Consume(peerID domain.PeerID, transportID, producerID string, caps domain.RouterCapabilities) (domain.ConsumerInfo, error) {
	router, err := r.routerOrErr()
	if err != nil {
		return domain.ConsumerInfo{}, err
	}
	peer, err := r.Peer(peerID)
	if err != nil {
		return domain.ConsumerInfo{}, err
	}
	if !router.CanConsume(producerID, caps) {
		return domain.ConsumerInfo{}, fmt.Errorf("incompatible capabilities for producer %s: %w", producerID, core.ErrEngine)
	}
	transport, err := peer.Transport(transportID)
	if err != nil {
		return domain.ConsumerInfo{}, err
	}
	consumer, err := transport.Consume(producerID, caps)
	if err != nil {
		return domain.ConsumerInfo{}, fmt.Errorf("consume: %w", err)
	}
	peer.AddConsumer(consumer)
	consumer.OnProducerClose(func() {
		peer.RemoveConsumer(consumer.ID())
		consumer.Close()
		peer.Notify(protocol.EvtConsumerClosed, protocol.ConsumerClosedEvent{ConsumerID: consumer.ID()})
		r.log.Info().Str("peer", string(peerID)).Str("consumer", consumer.ID()).Msg("consumer closed with its producer")
	})

	r.log.Info().Str("peer", string(peerID)).Str("producer", producerID).Str("consumer", consumer.ID()).Msg("consuming")
	return consumer.Info(), nil
}

// CloseProducer closes one producer explicitly; the engine's close
// propagation removes derived consumers on other peers.
func (r *Room) CloseProducer(peerID domain.PeerID, producerID string) error {
	peer, err := r.Peer(peerID)
	if err != nil {
		return err
	}
	producer, err := peer.Producer(producerID)
	if err != nil {
		return err
	}
	producer.Close()
	return nil
}

// RemovePeer closes the peer's resources and drops it from the set,
// reporting whether the room is now empty.
func (r *Room) RemovePeer(peerID domain.PeerID) (empty bool, err error) {
	r.mu.Lock()
	peer, ok := r.peers[peerID]
	if ok {
		delete(r.peers, peerID)
	}
	remaining := len(r.peers)
	r.mu.Unlock()
	if !ok {
		return remaining == 0, fmt.Errorf("peer %s: %w", peerID, core.ErrNotFound)
	}
	peer.Close()
	r.log.Info().Str("peer", string(peerID)).Int("remaining", remaining).Msg("peer removed")
	return remaining == 0, nil
}

// closeRouter releases the engine-side routing context once the room is
// destroyed.
func (r *Room) closeRouter() {
	r.mu.Lock()
	router := r.router
	r.router = nil
	r.mu.Unlock()
	if router != nil {
		router.Close()
	}
}
