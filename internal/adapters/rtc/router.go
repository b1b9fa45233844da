package rtc

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/vcall/internal/core"
	"github.com/dkeye/vcall/internal/domain"
)

// router is the per-room media-routing context. It indexes every producer
// created through its transports so consume eligibility can be gated before
// the engine is touched.
type router struct {
	api  *webrtc.API
	caps domain.RouterCapabilities
	cfg  Config

	mu        sync.RWMutex
	producers map[string]*producer
	closed    bool
}

func newRouter(api *webrtc.API, codecs []domain.CodecCapability, cfg Config) *router {
	return &router{
		api:       api,
		caps:      domain.RouterCapabilities{Codecs: codecs},
		cfg:       cfg,
		producers: make(map[string]*producer),
	}
}

func (r *router) Capabilities() domain.RouterCapabilities { return r.caps }

// CreateTransport allocates one PeerConnection. Transceiver slots are
// pre-allocated per direction so the initial offer already carries the
// ICE/DTLS parameters the client needs.
func (r *router) CreateTransport(ctx context.Context, dir domain.TransportDirection) (core.Transport, error) {
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("router closed: %w", core.ErrNotReady)
	}

	iceServers := make([]webrtc.ICEServer, 0, len(r.cfg.STUNServers))
	for _, u := range r.cfg.STUNServers {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: []string{u}})
	}
	pc, err := r.api.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}

	t := &transport{
		id:      uuid.NewString(),
		dir:     dir,
		pc:      pc,
		router:  r,
		state:   domain.TransportNew,
		pending: make(map[domain.MediaKind][]*producer),
	}
	t.log = log.With().Str("module", "rtc.transport").Str("transport", t.id).Str("direction", string(dir)).Logger()

	transceiverDir := webrtc.RTPTransceiverDirectionRecvonly
	if dir == domain.DirectionRecv {
		transceiverDir = webrtc.RTPTransceiverDirectionSendonly
	}
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		if _, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{Direction: transceiverDir}); err != nil {
			_ = pc.Close()
			return nil, fmt.Errorf("add transceiver: %w", err)
		}
	}

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		t.setState(mapPeerState(s))
	})
	if dir == domain.DirectionSend {
		pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
			t.handleTrack(remote)
		})
	}

	if err := t.createOffer(); err != nil {
		_ = pc.Close()
		return nil, err
	}
	return t, nil
}

// CanConsume gates consumption on codec compatibility between the
// subscriber's capabilities and the producer's track.
func (r *router) CanConsume(producerID string, caps domain.RouterCapabilities) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.producers[producerID]
	if !ok {
		return false
	}
	return caps.Supports(p.rtp.MimeType)
}

func (r *router) registerProducer(p *producer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.producers[p.id] = p
}

func (r *router) unregisterProducer(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.producers, id)
}

func (r *router) producerByID(id string) (*producer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.producers[id]
	return p, ok
}

func (r *router) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	remaining := make([]*producer, 0, len(r.producers))
	for _, p := range r.producers {
		remaining = append(remaining, p)
	}
	r.producers = make(map[string]*producer)
	r.mu.Unlock()

	for _, p := range remaining {
		p.Close()
	}
}

func mapPeerState(s webrtc.PeerConnectionState) domain.TransportState {
	switch s {
	case webrtc.PeerConnectionStateConnecting:
		return domain.TransportConnecting
	case webrtc.PeerConnectionStateConnected:
		return domain.TransportConnected
	case webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateFailed:
		return domain.TransportFailed
	case webrtc.PeerConnectionStateClosed:
		return domain.TransportClosed
	}
	return domain.TransportNew
}
