package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/vcall/internal/domain"
	"github.com/dkeye/vcall/internal/protocol"
)

var (
	ErrNotJoined         = errors.New("not joined to a room")
	ErrAlreadyJoined     = errors.New("already joined to a room")
	ErrDuplicateProducer = errors.New("producer for label already exists")
)

// capsRetry bounds the not-ready backoff while the room's router binds.
const (
	capsAttempts = 5
	capsBackoff  = 200 * time.Millisecond
)

type localProducer struct {
	id    string
	label domain.MediaLabel
	track LocalTrack
}

type remoteConsumer struct {
	id         string
	producerID string
	track      RemoteTrack
}

// Agent drives the mirrored negotiation sequence against the signaling
// server and owns every local resource it creates. A dropped signaling
// connection invalidates the agent; build a new one and join again.
type Agent struct {
	sig   Signaler
	media MediaStack
	view  View
	log   zerolog.Logger

	mu         sync.Mutex
	device     Device
	peerID     domain.PeerID
	roomID     domain.RoomID
	sendT      *clientTransport
	recvT      *clientTransport
	producers  map[domain.MediaLabel]*localProducer
	consumers  map[string]*remoteConsumer
	byProducer map[string]string
	joined     bool
}

func NewAgent(sig Signaler, media MediaStack, view View) *Agent {
	a := &Agent{
		sig:        sig,
		media:      media,
		view:       view,
		log:        log.With().Str("module", "client.agent").Logger(),
		producers:  make(map[domain.MediaLabel]*localProducer),
		consumers:  make(map[string]*remoteConsumer),
		byProducer: make(map[string]string),
	}
	sig.OnEvent(protocol.EvtNewProducers, a.onNewProducers)
	sig.OnEvent(protocol.EvtConsumerClosed, a.onConsumerClosed)
	return a
}

// Join runs the full entry sequence: create the room if needed, join it,
// load the capability model and stand up both transports, then request the
// backfill of already-published producers.
func (a *Agent) Join(ctx context.Context, roomID domain.RoomID, identity string) error {
	a.mu.Lock()
	if a.joined {
		a.mu.Unlock()
		return ErrAlreadyJoined
	}
	a.mu.Unlock()

	err := a.sig.Request(ctx, protocol.OpCreateRoom, protocol.CreateRoomRequest{RoomID: string(roomID)}, nil)
	if err != nil && !IsServerError(err, protocol.ErrTextAlreadyExists) {
		return fmt.Errorf("create room: %w", err)
	}

	var joinResp protocol.JoinResponse
	err = a.sig.Request(ctx, protocol.OpJoin, protocol.JoinRequest{RoomID: string(roomID), Email: identity}, &joinResp)
	if err != nil {
		return fmt.Errorf("join: %w", err)
	}

	caps, err := a.fetchCapabilities(ctx)
	if err != nil {
		return err
	}

	sendInfo, err := a.createTransport(ctx, domain.DirectionSend)
	if err != nil {
		return err
	}
	recvInfo, err := a.createTransport(ctx, domain.DirectionRecv)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.device.Load(caps)
	a.peerID = joinResp.PeerID
	a.roomID = roomID
	a.sendT = newClientTransport(a.sig, a.media, sendInfo)
	a.recvT = newClientTransport(a.sig, a.media, recvInfo)
	a.joined = true
	a.mu.Unlock()

	if err := a.sig.Send(protocol.OpGetProducers, struct{}{}); err != nil {
		a.log.Warn().Err(err).Msg("producer backfill request failed")
	}
	a.log.Info().Str("room", string(roomID)).Str("peer", string(joinResp.PeerID)).Msg("joined")
	return nil
}

// fetchCapabilities retries the transient not-ready window while the
// room's router finishes binding.
func (a *Agent) fetchCapabilities(ctx context.Context) (domain.RouterCapabilities, error) {
	var caps domain.RouterCapabilities
	for attempt := 0; ; attempt++ {
		err := a.sig.Request(ctx, protocol.OpGetRouterCapabilities, struct{}{}, &caps)
		if err == nil {
			return caps, nil
		}
		if !IsServerError(err, protocol.ErrTextNotReady) || attempt >= capsAttempts-1 {
			return domain.RouterCapabilities{}, fmt.Errorf("get capabilities: %w", err)
		}
		select {
		case <-ctx.Done():
			return domain.RouterCapabilities{}, ctx.Err()
		case <-time.After(capsBackoff * time.Duration(attempt+1)):
		}
	}
}

func (a *Agent) createTransport(ctx context.Context, dir domain.TransportDirection) (domain.TransportInfo, error) {
	var info domain.TransportInfo
	err := a.sig.Request(ctx, protocol.OpCreateTransport, protocol.CreateTransportRequest{Direction: dir}, &info)
	if err != nil {
		return domain.TransportInfo{}, fmt.Errorf("create %s transport: %w", dir, err)
	}
	return info, nil
}

// Produce captures a local track for the label and publishes it. Refused
// when a producer for the label already exists locally; the server enforces
// the same invariant.
func (a *Agent) Produce(ctx context.Context, label domain.MediaLabel, deviceID string) (string, error) {
	kind, err := label.Kind()
	if err != nil {
		return "", err
	}

	a.mu.Lock()
	if !a.joined {
		a.mu.Unlock()
		return "", ErrNotJoined
	}
	if _, ok := a.producers[label]; ok {
		a.mu.Unlock()
		return "", fmt.Errorf("label %s: %w", label, ErrDuplicateProducer)
	}
	sendT := a.sendT
	a.mu.Unlock()

	track, err := a.media.CaptureTrack(kind, deviceID)
	if err != nil {
		return "", fmt.Errorf("capture %s track: %w", kind, err)
	}
	if err := sendT.ensureConnected(ctx); err != nil {
		track.Close()
		return "", err
	}

	var resp protocol.ProduceResponse
	err = a.sig.Request(ctx, protocol.OpProduce, protocol.ProduceRequest{
		TransportID: sendT.id(),
		Kind:        kind,
		Label:       label,
		RTP:         track.RTP(),
	}, &resp)
	if err != nil {
		track.Close()
		return "", fmt.Errorf("produce: %w", err)
	}

	a.mu.Lock()
	a.producers[label] = &localProducer{id: resp.ProducerID, label: label, track: track}
	a.mu.Unlock()

	// Track end (device unplugged, permission revoked) tears the producer
	// down the same way an explicit close does.
	track.OnEnded(func() {
		a.log.Info().Str("label", string(label)).Msg("local track ended")
		_ = a.CloseProducer(context.Background(), label)
	})

	a.log.Info().Str("label", string(label)).Str("producer", resp.ProducerID).Msg("producing")
	return resp.ProducerID, nil
}

// CloseProducer stops the label's producer, notifies the server and frees
// the local track. Idempotent.
func (a *Agent) CloseProducer(ctx context.Context, label domain.MediaLabel) error {
	a.mu.Lock()
	lp, ok := a.producers[label]
	if ok {
		delete(a.producers, label)
	}
	a.mu.Unlock()
	if !ok {
		return nil
	}

	if err := a.sig.Send(protocol.OpProducerClosed, protocol.ProducerClosedNotice{ProducerID: lp.id}); err != nil {
		a.log.Warn().Err(err).Str("producer", lp.id).Msg("producer closed notice failed")
	}
	lp.track.Close()
	return nil
}

// PauseProducer mutes the label's track at the source. The producer stays
// registered server-side.
func (a *Agent) PauseProducer(label domain.MediaLabel) error {
	return a.setProducerEnabled(label, false)
}

// ResumeProducer unmutes a paused track.
func (a *Agent) ResumeProducer(label domain.MediaLabel) error {
	return a.setProducerEnabled(label, true)
}

func (a *Agent) setProducerEnabled(label domain.MediaLabel, enabled bool) error {
	a.mu.Lock()
	lp, ok := a.producers[label]
	a.mu.Unlock()
	if !ok {
		return fmt.Errorf("label %s: no active producer", label)
	}
	lp.track.SetEnabled(enabled)
	return nil
}

// Consume subscribes to a remote producer, builds a playable stream and
// registers it with the view under the consumer id. Idempotent per
// producer: the backfill and a racing live broadcast may both advertise
// the same id, and only one consumer is built for it.
func (a *Agent) Consume(ctx context.Context, producerID string) (string, error) {
	a.mu.Lock()
	if !a.joined {
		a.mu.Unlock()
		return "", ErrNotJoined
	}
	if cid, ok := a.byProducer[producerID]; ok {
		a.mu.Unlock()
		return cid, nil
	}
	// Reserve the producer while the handshake is in flight.
	a.byProducer[producerID] = ""
	recvT := a.recvT
	caps, err := a.device.Capabilities()
	a.mu.Unlock()

	release := func() {
		a.mu.Lock()
		delete(a.byProducer, producerID)
		a.mu.Unlock()
	}
	if err != nil {
		release()
		return "", err
	}

	if err := recvT.ensureConnected(ctx); err != nil {
		release()
		return "", err
	}

	var info domain.ConsumerInfo
	err = a.sig.Request(ctx, protocol.OpConsume, protocol.ConsumeRequest{
		TransportID:  recvT.id(),
		ProducerID:   producerID,
		Capabilities: caps,
	}, &info)
	if err != nil {
		release()
		return "", fmt.Errorf("consume %s: %w", producerID, err)
	}

	track, err := a.media.PlayTrack(info)
	if err != nil {
		release()
		return "", fmt.Errorf("play track: %w", err)
	}

	a.mu.Lock()
	a.consumers[info.ID] = &remoteConsumer{id: info.ID, producerID: producerID, track: track}
	a.byProducer[producerID] = info.ID
	a.mu.Unlock()
	a.view.AddMedia(info.ID, track)

	if err := a.sig.Request(ctx, protocol.OpResume, protocol.ResumeRequest{ConsumerID: info.ID}, nil); err != nil {
		a.log.Warn().Err(err).Str("consumer", info.ID).Msg("resume failed")
	}

	a.log.Info().Str("producer", producerID).Str("consumer", info.ID).Msg("consuming")
	return info.ID, nil
}

// RoomInfo fetches the current room snapshot.
func (a *Agent) RoomInfo(ctx context.Context) (domain.RoomSnapshot, error) {
	a.mu.Lock()
	joined := a.joined
	a.mu.Unlock()
	if !joined {
		return domain.RoomSnapshot{}, ErrNotJoined
	}
	var snap domain.RoomSnapshot
	if err := a.sig.Request(ctx, protocol.OpGetMyRoomInfo, struct{}{}, &snap); err != nil {
		return domain.RoomSnapshot{}, fmt.Errorf("room info: %w", err)
	}
	return snap, nil
}

// Exit requests the server-side room exit and then unconditionally
// reclaims every local resource. The local path runs even when the server
// request fails; it does not depend on the acknowledgment.
func (a *Agent) Exit(ctx context.Context) error {
	a.mu.Lock()
	joined := a.joined
	a.mu.Unlock()

	var reqErr error
	if joined {
		reqErr = a.sig.Request(ctx, protocol.OpExitRoom, struct{}{}, nil)
		if reqErr != nil {
			a.log.Warn().Err(reqErr).Msg("exit room request failed, cleaning up locally")
		}
	}
	a.cleanup()
	return reqErr
}

// cleanup tears down producers, consumers and transports and resets the
// agent to the pre-join state. Idempotent.
func (a *Agent) cleanup() {
	a.mu.Lock()
	producers := a.producers
	consumers := a.consumers
	sendT, recvT := a.sendT, a.recvT
	a.producers = make(map[domain.MediaLabel]*localProducer)
	a.consumers = make(map[string]*remoteConsumer)
	a.byProducer = make(map[string]string)
	a.sendT = nil
	a.recvT = nil
	a.peerID = ""
	a.roomID = ""
	a.joined = false
	a.device = Device{}
	a.mu.Unlock()

	for _, lp := range producers {
		lp.track.Close()
	}
	for id := range consumers {
		a.view.RemoveMedia(id)
	}
	if sendT != nil {
		sendT.close()
	}
	if recvT != nil {
		recvT.close()
	}
	a.log.Info().Msg("local session cleaned up")
}

// onNewProducers consumes each advertised producer. Runs off the event
// pump; consume issues blocking requests, so it gets its own goroutine.
func (a *Agent) onNewProducers(payload json.RawMessage) {
	var list []domain.ProducerInfo
	if err := json.Unmarshal(payload, &list); err != nil {
		a.log.Warn().Err(err).Msg("bad newProducers payload")
		return
	}
	go func() {
		for _, info := range list {
			if _, err := a.Consume(context.Background(), info.ProducerID); err != nil {
				a.log.Warn().Err(err).Str("producer", info.ProducerID).Msg("consume advertised producer")
			}
		}
	}()
}

// onConsumerClosed removes the dead consumer's view element.
func (a *Agent) onConsumerClosed(payload json.RawMessage) {
	var evt protocol.ConsumerClosedEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		a.log.Warn().Err(err).Msg("bad consumerClosed payload")
		return
	}
	a.mu.Lock()
	rc, ok := a.consumers[evt.ConsumerID]
	if ok {
		delete(a.consumers, evt.ConsumerID)
		delete(a.byProducer, rc.producerID)
	}
	a.mu.Unlock()
	if ok {
		a.view.RemoveMedia(evt.ConsumerID)
		a.log.Info().Str("consumer", evt.ConsumerID).Msg("consumer closed by server")
	}
}
