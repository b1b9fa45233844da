package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/vcall/internal/core"
	"github.com/dkeye/vcall/internal/domain"
)

// In-memory media engine fakes. They honor the port contracts (close
// propagation, capability gating, immediate hook fire after close) without
// touching the network.

var testCodecs = []domain.CodecCapability{
	{Kind: domain.MediaAudio, MimeType: "audio/opus", ClockRate: 48000, Channels: 2, PreferredPayloadType: 111},
	{Kind: domain.MediaVideo, MimeType: "video/VP8", ClockRate: 90000, PreferredPayloadType: 96},
}

type fakeWorker struct {
	id        string
	mu        sync.Mutex
	onDied    func()
	routers   int
	closed    bool
	routerErr error
}

func (w *fakeWorker) ID() string { return w.id }

func (w *fakeWorker) CreateRouter(ctx context.Context, codecs []domain.CodecCapability) (core.Router, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.routerErr != nil {
		return nil, w.routerErr
	}
	w.routers++
	return newFakeRouter(codecs), nil
}

func (w *fakeWorker) OnDied(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onDied = fn
}

func (w *fakeWorker) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
}

type fakeRouter struct {
	caps domain.RouterCapabilities

	mu        sync.Mutex
	seq       int
	producers map[string]*fakeProducer
	closed    bool
}

func newFakeRouter(codecs []domain.CodecCapability) *fakeRouter {
	return &fakeRouter{
		caps:      domain.RouterCapabilities{Codecs: codecs},
		producers: make(map[string]*fakeProducer),
	}
}

func (r *fakeRouter) Capabilities() domain.RouterCapabilities { return r.caps }

func (r *fakeRouter) CreateTransport(ctx context.Context, dir domain.TransportDirection) (core.Transport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, errors.New("router closed")
	}
	r.seq++
	return &fakeTransport{
		id:     fmt.Sprintf("transport-%d", r.seq),
		dir:    dir,
		router: r,
	}, nil
}

func (r *fakeRouter) CanConsume(producerID string, caps domain.RouterCapabilities) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.producers[producerID]
	if !ok {
		return false
	}
	return caps.Supports(p.rtp.MimeType)
}

func (r *fakeRouter) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}

type fakeTransport struct {
	id     string
	dir    domain.TransportDirection
	router *fakeRouter

	mu        sync.Mutex
	answer    string
	stateFns  []func(domain.TransportState)
	producers []*fakeProducer
	consumers []*fakeConsumer
	closed    bool
}

func (t *fakeTransport) ID() string { return t.id }

func (t *fakeTransport) Info() domain.TransportInfo {
	return domain.TransportInfo{ID: t.id, Direction: t.dir, Offer: "v=0 offer " + t.id}
}

func (t *fakeTransport) Connect(answer string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errors.New("transport closed")
	}
	t.answer = answer
	return nil
}

func (t *fakeTransport) Produce(kind domain.MediaKind, rtp domain.RTPParameters) (core.Producer, error) {
	if t.dir != domain.DirectionSend {
		return nil, errors.New("produce on recv transport")
	}
	t.router.mu.Lock()
	t.router.seq++
	p := &fakeProducer{
		id:     fmt.Sprintf("producer-%d", t.router.seq),
		kind:   kind,
		rtp:    rtp,
		router: t.router,
	}
	t.router.producers[p.id] = p
	t.router.mu.Unlock()

	t.mu.Lock()
	t.producers = append(t.producers, p)
	t.mu.Unlock()
	return p, nil
}

func (t *fakeTransport) Consume(producerID string, caps domain.RouterCapabilities) (core.Consumer, error) {
	if t.dir != domain.DirectionRecv {
		return nil, errors.New("consume on send transport")
	}
	t.router.mu.Lock()
	p, ok := t.router.producers[producerID]
	if !ok {
		t.router.mu.Unlock()
		return nil, errors.New("producer not found")
	}
	t.router.seq++
	c := &fakeConsumer{
		id:       fmt.Sprintf("consumer-%d", t.router.seq),
		producer: p,
	}
	t.router.mu.Unlock()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, errors.New("producer closed")
	}
	p.consumers = append(p.consumers, c)
	p.mu.Unlock()

	t.mu.Lock()
	t.consumers = append(t.consumers, c)
	t.mu.Unlock()
	return c, nil
}

func (t *fakeTransport) OnStateChange(fn func(domain.TransportState)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stateFns = append(t.stateFns, fn)
}

// fireState drives the transport state machine from tests.
func (t *fakeTransport) fireState(state domain.TransportState) {
	t.mu.Lock()
	fns := make([]func(domain.TransportState), len(t.stateFns))
	copy(fns, t.stateFns)
	t.mu.Unlock()
	for _, fn := range fns {
		fn(state)
	}
}

// Close cascades like the real engine: everything created on the
// transport goes down with it.
func (t *fakeTransport) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	producers := t.producers
	consumers := t.consumers
	t.producers = nil
	t.consumers = nil
	t.mu.Unlock()

	for _, c := range consumers {
		c.Close()
	}
	for _, p := range producers {
		p.Close()
	}
	t.fireState(domain.TransportClosed)
}

type fakeProducer struct {
	id     string
	kind   domain.MediaKind
	rtp    domain.RTPParameters
	router *fakeRouter

	mu        sync.Mutex
	consumers []*fakeConsumer
	onClose   []func()
	closed    bool
}

func (p *fakeProducer) ID() string             { return p.id }
func (p *fakeProducer) Kind() domain.MediaKind { return p.kind }

func (p *fakeProducer) OnClose(fn func()) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		fn()
		return
	}
	p.onClose = append(p.onClose, fn)
	p.mu.Unlock()
}

func (p *fakeProducer) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	consumers := p.consumers
	fns := p.onClose
	p.consumers = nil
	p.onClose = nil
	p.mu.Unlock()

	p.router.mu.Lock()
	delete(p.router.producers, p.id)
	p.router.mu.Unlock()

	for _, c := range consumers {
		c.producerClosed()
	}
	for _, fn := range fns {
		fn()
	}
}

type fakeConsumer struct {
	id       string
	producer *fakeProducer

	mu         sync.Mutex
	onProdGone []func()
	prodGone   bool
	closed     bool
}

func (c *fakeConsumer) ID() string             { return c.id }
func (c *fakeConsumer) ProducerID() string     { return c.producer.id }
func (c *fakeConsumer) Kind() domain.MediaKind { return c.producer.kind }

func (c *fakeConsumer) Info() domain.ConsumerInfo {
	return domain.ConsumerInfo{
		ID:         c.id,
		ProducerID: c.producer.id,
		Kind:       c.producer.kind,
		RTP:        c.producer.rtp,
	}
}

func (c *fakeConsumer) OnProducerClose(fn func()) {
	c.mu.Lock()
	if c.prodGone {
		c.mu.Unlock()
		fn()
		return
	}
	c.onProdGone = append(c.onProdGone, fn)
	c.mu.Unlock()
}

func (c *fakeConsumer) producerClosed() {
	c.mu.Lock()
	if c.prodGone {
		c.mu.Unlock()
		return
	}
	c.prodGone = true
	fns := c.onProdGone
	c.onProdGone = nil
	c.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (c *fakeConsumer) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// fakeNotifier records events delivered to one peer's connection.
type fakeNotifier struct {
	mu     sync.Mutex
	events []notified
}

type notified struct {
	event   string
	payload any
}

func (n *fakeNotifier) Notify(event string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notified{event: event, payload: payload})
}

func (n *fakeNotifier) eventsOf(event string) []notified {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notified, 0)
	for _, e := range n.events {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}
