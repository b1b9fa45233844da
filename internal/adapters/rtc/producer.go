package rtc

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/dkeye/vcall/internal/core"
	"github.com/dkeye/vcall/internal/domain"
)

// producer is one published track: it reads RTP from the remote track and
// fans the packets out to every subscribed consumer's out-track.
type producer struct {
	id     string
	kind   domain.MediaKind
	rtp    domain.RTPParameters
	router *router
	log    zerolog.Logger

	mu      sync.RWMutex
	remote  *webrtc.TrackRemote
	outs    map[string]*consumer
	onClose []func()
	closed  bool
	cancel  context.CancelFunc
}

func newProducer(kind domain.MediaKind, params domain.RTPParameters, rt *router, logger zerolog.Logger) *producer {
	id := uuid.NewString()
	return &producer{
		id:     id,
		kind:   kind,
		rtp:    params,
		router: rt,
		log:    logger.With().Str("producer", id).Logger(),
		outs:   make(map[string]*consumer),
	}
}

func (p *producer) ID() string             { return p.id }
func (p *producer) Kind() domain.MediaKind { return p.kind }

// OnClose fires immediately when the producer is already gone, so handlers
// registered during a concurrent close are not lost.
func (p *producer) OnClose(fn func()) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		fn()
		return
	}
	p.onClose = append(p.onClose, fn)
	p.mu.Unlock()
}

// bindTrack attaches the remote track and starts the relay loop.
func (p *producer) bindTrack(remote *webrtc.TrackRemote) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.remote = remote
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.mu.Unlock()

	p.log.Info().Str("track_id", remote.ID()).Msg("track bound, starting relay loop")
	go p.loop(ctx, remote)
}

// loop reads RTP packets from the source track and forwards them to all
// subscribed out-tracks. A read error is the track's end of life.
func (p *producer) loop(ctx context.Context, remote *webrtc.TrackRemote) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		pkt, _, err := remote.ReadRTP()
		if err != nil {
			p.log.Info().Err(err).Msg("relay read ended, closing producer")
			p.Close()
			return
		}
		p.forward(pkt)
	}
}

func (p *producer) forward(pkt *rtp.Packet) {
	snapshot := make(map[string]*consumer, len(p.outs))
	p.mu.RLock()
	maps.Copy(snapshot, p.outs)
	p.mu.RUnlock()

	dirty := make([]string, 0, len(snapshot))
	for id, c := range snapshot {
		switch c.trackState() {
		case outDeleted:
			dirty = append(dirty, id)
		case outMuted:
		case outLive:
			if err := c.write(pkt); err != nil {
				p.log.Error().Err(err).Str("consumer", id).Msg("relay write error, dropping out-track")
				c.markDelete()
				dirty = append(dirty, id)
			}
		}
	}

	// Cleanup is done outside the RLock.
	if len(dirty) > 0 {
		p.mu.Lock()
		for _, id := range dirty {
			delete(p.outs, id)
		}
		p.mu.Unlock()
	}
}

// subscribe attaches a consumer. A concurrently closed producer refuses, so
// an in-flight consume fails cleanly instead of partially succeeding.
func (p *producer) subscribe(c *consumer) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("producer %s already closed: %w", p.id, core.ErrNotFound)
	}
	p.outs[c.id] = c
	return nil
}

func (p *producer) unsubscribe(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.outs, id)
}

// Close ends the relay, detaches from the router and propagates to every
// derived consumer, then fires the registered close handlers. Idempotent.
func (p *producer) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	cancel := p.cancel
	outs := make([]*consumer, 0, len(p.outs))
	for _, c := range p.outs {
		outs = append(outs, c)
	}
	p.outs = make(map[string]*consumer)
	fns := p.onClose
	p.onClose = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.router.unregisterProducer(p.id)
	for _, c := range outs {
		c.producerClosed()
	}
	for _, fn := range fns {
		fn()
	}
	p.log.Info().Msg("producer closed")
}
