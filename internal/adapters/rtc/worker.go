// Package rtc implements the media engine ports on pion/webrtc. One Worker
// owns a UDP port slice; each room's router gets its own codec-scoped API.
package rtc

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/vcall/internal/core"
	"github.com/dkeye/vcall/internal/domain"
)

type Config struct {
	MinPort            uint16
	MaxPort            uint16
	MaxIncomingBitrate int
	STUNServers        []string
}

func DefaultConfig() Config {
	return Config{
		MinPort:            10000,
		MaxPort:            10100,
		MaxIncomingBitrate: 1500000,
		STUNServers:        []string{"stun:stun.l.google.com:19302"},
	}
}

type Worker struct {
	id       string
	cfg      Config
	settings webrtc.SettingEngine

	mu     sync.Mutex
	onDied func()
	closed bool
}

func NewWorker(cfg Config, index int) (*Worker, error) {
	se := webrtc.SettingEngine{}
	if cfg.MinPort > 0 && cfg.MaxPort > 0 {
		if err := se.SetEphemeralUDPPortRange(cfg.MinPort, cfg.MaxPort); err != nil {
			return nil, fmt.Errorf("set udp port range: %w", err)
		}
	}
	w := &Worker{
		id:       fmt.Sprintf("worker-%d", index),
		cfg:      cfg,
		settings: se,
	}
	log.Info().Str("module", "rtc.worker").Str("worker", w.id).Msg("worker started")
	return w, nil
}

func (w *Worker) ID() string { return w.id }

func (w *Worker) OnDied(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onDied = fn
}

// CreateRouter builds a codec-scoped webrtc API for one room.
func (w *Worker) CreateRouter(ctx context.Context, codecs []domain.CodecCapability) (core.Router, error) {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("worker %s closed: %w", w.id, core.ErrNotReady)
	}

	media := &webrtc.MediaEngine{}
	for _, c := range codecs {
		typ := webrtc.RTPCodecTypeAudio
		if c.Kind == domain.MediaVideo {
			typ = webrtc.RTPCodecTypeVideo
		}
		params := webrtc.RTPCodecParameters{
			RTPCodecCapability: webrtc.RTPCodecCapability{
				MimeType:    c.MimeType,
				ClockRate:   c.ClockRate,
				Channels:    c.Channels,
				SDPFmtpLine: c.SDPFmtpLine,
			},
			PayloadType: webrtc.PayloadType(c.PreferredPayloadType),
		}
		if err := media.RegisterCodec(params, typ); err != nil {
			w.fail()
			return nil, fmt.Errorf("register codec %s: %w", c.MimeType, err)
		}
	}

	api := webrtc.NewAPI(webrtc.WithMediaEngine(media), webrtc.WithSettingEngine(w.settings))
	return newRouter(api, codecs, w.cfg), nil
}

// fail reports an unrecoverable worker error. Deliberately fatal upstream:
// media resources are not individually recoverable at this layer.
func (w *Worker) fail() {
	w.mu.Lock()
	fn := w.onDied
	w.mu.Unlock()
	log.Error().Str("module", "rtc.worker").Str("worker", w.id).Msg("worker died")
	if fn != nil {
		fn()
	}
}

func (w *Worker) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
}
