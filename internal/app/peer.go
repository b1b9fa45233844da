package app

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/vcall/internal/core"
	"github.com/dkeye/vcall/internal/domain"
)

// Peer is the ownership container for one connected participant: its
// transports, producers and consumers, plus the label index enforcing at
// most one active producer per logical media kind.
type Peer struct {
	id       domain.PeerID
	identity string
	name     string
	notifier core.Notifier

	mu         sync.Mutex
	transports map[string]core.Transport
	producers  map[string]core.Producer
	consumers  map[string]core.Consumer
	labels     map[domain.MediaLabel]string
	closed     bool
}

func NewPeer(id domain.PeerID, identity, name string, notifier core.Notifier) *Peer {
	return &Peer{
		id:         id,
		identity:   identity,
		name:       name,
		notifier:   notifier,
		transports: make(map[string]core.Transport),
		producers:  make(map[string]core.Producer),
		consumers:  make(map[string]core.Consumer),
		labels:     make(map[domain.MediaLabel]string),
	}
}

func (p *Peer) ID() domain.PeerID { return p.id }
func (p *Peer) Identity() string  { return p.identity }
func (p *Peer) Name() string      { return p.name }

// Notify delivers an event to this peer's connection, point-to-point.
func (p *Peer) Notify(event string, payload any) {
	if p.notifier != nil {
		p.notifier.Notify(event, payload)
	}
}

func (p *Peer) AddTransport(t core.Transport) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transports[t.ID()] = t
}

// Transport resolves an owned transport; unknown identifiers fail with
// not-found, guarding against stale client-side references.
func (p *Peer) Transport(id string) (core.Transport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.transports[id]
	if !ok {
		return nil, fmt.Errorf("transport %s: %w", id, core.ErrNotFound)
	}
	return t, nil
}

func (p *Peer) RemoveTransport(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.transports, id)
}

// HasLabel reports whether a producer for the label is already active.
func (p *Peer) HasLabel(label domain.MediaLabel) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.labels[label]
	return ok
}

// AddProducer registers a freshly created producer under its label. The
// label check is repeated under the lock so a concurrent duplicate loses and
// the caller can roll the engine-side producer back.
func (p *Peer) AddProducer(label domain.MediaLabel, pr core.Producer) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.labels[label]; ok {
		return fmt.Errorf("label %s: %w", label, core.ErrDuplicateLabel)
	}
	p.labels[label] = pr.ID()
	p.producers[pr.ID()] = pr
	return nil
}

func (p *Peer) Producer(id string) (core.Producer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pr, ok := p.producers[id]
	if !ok {
		return nil, fmt.Errorf("producer %s: %w", id, core.ErrNotFound)
	}
	return pr, nil
}

// RemoveProducer drops the producer and frees its label slot.
func (p *Peer) RemoveProducer(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.producers, id)
	for label, pid := range p.labels {
		if pid == id {
			delete(p.labels, label)
		}
	}
}

func (p *Peer) ProducerIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.producers))
	for id := range p.producers {
		out = append(out, id)
	}
	return out
}

func (p *Peer) AddConsumer(c core.Consumer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.consumers[c.ID()] = c
}

func (p *Peer) Consumer(id string) (core.Consumer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.consumers[id]
	if !ok {
		return nil, fmt.Errorf("consumer %s: %w", id, core.ErrNotFound)
	}
	return c, nil
}

func (p *Peer) RemoveConsumer(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.consumers, id)
}

// ResourceCount returns transports+producers+consumers still owned.
func (p *Peer) ResourceCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.transports) + len(p.producers) + len(p.consumers)
}

func (p *Peer) Snapshot() domain.PeerSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	producers := make([]string, 0, len(p.producers))
	for id := range p.producers {
		producers = append(producers, id)
	}
	return domain.PeerSnapshot{
		ID:        p.id,
		Identity:  p.identity,
		Name:      p.name,
		Producers: producers,
	}
}

// Close tears everything down in consumers → producers → transports order so
// no consumer outlives its transport and no dangling reference survives.
// Best-effort: a failing sub-step is logged and the rest still proceeds.
func (p *Peer) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	consumers := make([]core.Consumer, 0, len(p.consumers))
	for _, c := range p.consumers {
		consumers = append(consumers, c)
	}
	producers := make([]core.Producer, 0, len(p.producers))
	for _, pr := range p.producers {
		producers = append(producers, pr)
	}
	transports := make([]core.Transport, 0, len(p.transports))
	for _, t := range p.transports {
		transports = append(transports, t)
	}
	p.consumers = make(map[string]core.Consumer)
	p.producers = make(map[string]core.Producer)
	p.transports = make(map[string]core.Transport)
	p.labels = make(map[domain.MediaLabel]string)
	p.mu.Unlock()

	for _, c := range consumers {
		c.Close()
	}
	for _, pr := range producers {
		pr.Close()
	}
	for _, t := range transports {
		t.Close()
	}
	log.Info().Str("module", "app.peer").Str("peer", string(p.id)).Msg("peer closed")
}
