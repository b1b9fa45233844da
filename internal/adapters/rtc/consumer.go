package rtc

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/vcall/internal/domain"
)

// Out-track lifecycle. Live tracks receive packets, muted tracks are
// skipped, deleted tracks are swept by the relay loop.
const (
	outLive int32 = iota
	outMuted
	outDeleted
)

// consumer is the subscriber side of one producer: a local static RTP
// track fed by the relay loop plus the sender that carries it.
type consumer struct {
	id       string
	producer *producer
	track    *webrtc.TrackLocalStaticRTP
	sender   *webrtc.RTPSender

	state atomic.Int32

	mu         sync.Mutex
	onProdGone []func()
	prodGone   bool
	stopped    bool
}

func newConsumer(p *producer, track *webrtc.TrackLocalStaticRTP, sender *webrtc.RTPSender) *consumer {
	return &consumer{
		id:       uuid.NewString(),
		producer: p,
		track:    track,
		sender:   sender,
	}
}

func (c *consumer) ID() string             { return c.id }
func (c *consumer) ProducerID() string     { return c.producer.id }
func (c *consumer) Kind() domain.MediaKind { return c.producer.kind }

func (c *consumer) Info() domain.ConsumerInfo {
	info := domain.ConsumerInfo{
		ID:         c.id,
		ProducerID: c.producer.id,
		Kind:       c.producer.kind,
		RTP:        c.producer.rtp,
	}
	if c.producer.kind == domain.MediaVideo {
		info.PreferredLayer = &domain.SimulcastLayer{Spatial: 2, Temporal: 2}
	}
	return info
}

func (c *consumer) trackState() int32 { return c.state.Load() }

func (c *consumer) markDelete() { c.state.Store(outDeleted) }

func (c *consumer) Pause() { c.state.CompareAndSwap(outLive, outMuted) }

func (c *consumer) Resume() { c.state.CompareAndSwap(outMuted, outLive) }

func (c *consumer) write(pkt *rtp.Packet) error {
	return c.track.WriteRTP(pkt)
}

// OnProducerClose fires immediately when the source producer is already
// gone, so handlers registered during a concurrent close still run.
func (c *consumer) OnProducerClose(fn func()) {
	c.mu.Lock()
	if c.prodGone {
		c.mu.Unlock()
		fn()
		return
	}
	c.onProdGone = append(c.onProdGone, fn)
	c.mu.Unlock()
}

// producerClosed is called by the source producer exactly once when it
// shuts down. Hooks fire once even if the consumer is also closing.
func (c *consumer) producerClosed() {
	c.mu.Lock()
	if c.prodGone {
		c.mu.Unlock()
		return
	}
	c.prodGone = true
	fns := c.onProdGone
	c.onProdGone = nil
	c.mu.Unlock()

	c.markDelete()
	for _, fn := range fns {
		fn()
	}
}

// Close detaches from the producer and stops the sender. Idempotent; the
// relay loop sweeps the deleted out-track on its next pass.
func (c *consumer) Close() {
	c.markDelete()
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.mu.Unlock()

	c.producer.unsubscribe(c.id)
	if c.sender != nil {
		_ = c.sender.Stop()
	}
}
