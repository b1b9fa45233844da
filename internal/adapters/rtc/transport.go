package rtc

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/dkeye/vcall/internal/core"
	"github.com/dkeye/vcall/internal/domain"
)

// rembInterval is how often the incoming-bitrate cap is re-advertised;
// REMB is only honored by the sender while it keeps arriving.
const rembInterval = 3 * time.Second

// transport wraps one PeerConnection. The createTransport offer carries the
// ICE/DTLS parameters; Connect applies the remote answer.
type transport struct {
	id     string
	dir    domain.TransportDirection
	pc     *webrtc.PeerConnection
	router *router
	log    zerolog.Logger

	mu        sync.Mutex
	offer     string
	state     domain.TransportState
	stateFns  []func(domain.TransportState)
	pending   map[domain.MediaKind][]*producer
	producers []*producer
	consumers []*consumer
	closed    bool
}

func (t *transport) ID() string { return t.id }

func (t *transport) Info() domain.TransportInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return domain.TransportInfo{ID: t.id, Direction: t.dir, Offer: t.offer}
}

func (t *transport) createOffer() error {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	gathered := webrtc.GatheringCompletePromise(t.pc)
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	<-gathered

	t.mu.Lock()
	t.offer = t.pc.LocalDescription().SDP
	t.mu.Unlock()
	return nil
}

// Connect completes the handshake with the remote SDP answer.
func (t *transport) Connect(answer string) error {
	desc := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer}
	if err := t.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	return nil
}

func (t *transport) OnStateChange(fn func(domain.TransportState)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stateFns = append(t.stateFns, fn)
}

func (t *transport) setState(state domain.TransportState) {
	t.mu.Lock()
	if t.closed && state != domain.TransportClosed {
		t.mu.Unlock()
		return
	}
	t.state = state
	fns := make([]func(domain.TransportState), len(t.stateFns))
	copy(fns, t.stateFns)
	t.mu.Unlock()

	t.log.Info().Str("state", string(state)).Msg("transport state")
	for _, fn := range fns {
		fn(state)
	}
}

// Produce registers an outbound track binding. The producer is armed
// immediately; it binds to the matching remote track when the engine
// surfaces it.
func (t *transport) Produce(kind domain.MediaKind, rtp domain.RTPParameters) (core.Producer, error) {
	if t.dir != domain.DirectionSend {
		return nil, fmt.Errorf("produce on %s transport: %w", t.dir, core.ErrEngine)
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, fmt.Errorf("transport closed: %w", core.ErrNotFound)
	}
	p := newProducer(kind, rtp, t.router, t.log)
	t.pending[kind] = append(t.pending[kind], p)
	t.producers = append(t.producers, p)
	t.mu.Unlock()

	t.router.registerProducer(p)
	return p, nil
}

// handleTrack binds the next pending producer of the track's kind.
func (t *transport) handleTrack(remote *webrtc.TrackRemote) {
	kind := domain.MediaAudio
	if remote.Kind() == webrtc.RTPCodecTypeVideo {
		kind = domain.MediaVideo
	}
	t.mu.Lock()
	queue := t.pending[kind]
	if len(queue) == 0 {
		t.mu.Unlock()
		t.log.Warn().Str("kind", string(kind)).Msg("remote track without pending producer")
		return
	}
	p := queue[0]
	t.pending[kind] = queue[1:]
	t.mu.Unlock()

	p.bindTrack(remote)
	if t.router.cfg.MaxIncomingBitrate > 0 {
		go t.capIncomingBitrate(remote.SSRC())
	}
}

// rembPacket builds the receiver-side bitrate cap for one inbound track.
func rembPacket(bitrate int, ssrc webrtc.SSRC) []rtcp.Packet {
	return []rtcp.Packet{&rtcp.ReceiverEstimatedMaximumBitrate{
		Bitrate: float32(bitrate),
		SSRCs:   []uint32{uint32(ssrc)},
	}}
}

// capIncomingBitrate keeps the sending side under the configured bitrate
// by re-emitting REMB feedback until the transport closes.
func (t *transport) capIncomingBitrate(ssrc webrtc.SSRC) {
	ticker := time.NewTicker(rembInterval)
	defer ticker.Stop()
	pkt := rembPacket(t.router.cfg.MaxIncomingBitrate, ssrc)
	for range ticker.C {
		t.mu.Lock()
		closed := t.closed
		t.mu.Unlock()
		if closed {
			return
		}
		if err := t.pc.WriteRTCP(pkt); err != nil {
			t.log.Warn().Err(err).Msg("remb write")
			return
		}
	}
}

// Consume subscribes this recv transport to a router-hosted producer.
func (t *transport) Consume(producerID string, caps domain.RouterCapabilities) (core.Consumer, error) {
	if t.dir != domain.DirectionRecv {
		return nil, fmt.Errorf("consume on %s transport: %w", t.dir, core.ErrEngine)
	}
	p, ok := t.router.producerByID(producerID)
	if !ok {
		return nil, fmt.Errorf("producer %s: %w", producerID, core.ErrNotFound)
	}
	if !caps.Supports(p.rtp.MimeType) {
		return nil, fmt.Errorf("codec %s not supported by subscriber: %w", p.rtp.MimeType, core.ErrEngine)
	}

	track, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{
		MimeType:    p.rtp.MimeType,
		ClockRate:   p.rtp.ClockRate,
		Channels:    p.rtp.Channels,
		SDPFmtpLine: p.rtp.SDPFmtpLine,
	}, uuid.NewString(), "vcall")
	if err != nil {
		return nil, fmt.Errorf("new local track: %w", err)
	}
	sender, err := t.pc.AddTrack(track)
	if err != nil {
		return nil, fmt.Errorf("add track: %w", err)
	}

	c := newConsumer(p, track, sender)
	if err := p.subscribe(c); err != nil {
		_ = sender.Stop()
		return nil, err
	}

	t.mu.Lock()
	t.consumers = append(t.consumers, c)
	t.mu.Unlock()
	return c, nil
}

// Close tears down the PeerConnection together with everything created on
// this transport. Idempotent.
func (t *transport) Close() {
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
	t.pending = make(map[domain.MediaKind][]*producer)
	t.mu.Unlock()

	for _, c := range consumers {
		c.Close()
	}
	for _, p := range producers {
		p.Close()
	}
	if err := t.pc.Close(); err != nil {
		t.log.Error().Err(err).Msg("peer connection close")
	}
	t.setState(domain.TransportClosed)
}
