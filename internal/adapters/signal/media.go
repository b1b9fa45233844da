package signal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/vcall/internal/core"
	"github.com/dkeye/vcall/internal/protocol"
)

func (ctl *Controller) handleGetCapabilities(sess *session) (any, error) {
	room, _, ok := sess.joinedRoom()
	if !ok {
		return nil, fmt.Errorf("%s: %w", errNotInRoom, core.ErrNotFound)
	}
	return room.Capabilities()
}

func (ctl *Controller) handleCreateTransport(ctx context.Context, sess *session, payload json.RawMessage) (any, error) {
	room, peerID, ok := sess.joinedRoom()
	if !ok {
		return nil, fmt.Errorf("%s: %w", errNotInRoom, core.ErrNotFound)
	}
	var req protocol.CreateTransportRequest
	if err := ctl.decode(payload, &req); err != nil {
		return nil, err
	}
	return room.CreateTransport(ctx, peerID, req.Direction)
}

func (ctl *Controller) handleConnectTransport(sess *session, payload json.RawMessage) (any, error) {
	room, peerID, ok := sess.joinedRoom()
	if !ok {
		return nil, fmt.Errorf("%s: %w", errNotInRoom, core.ErrNotFound)
	}
	var req protocol.ConnectTransportRequest
	if err := ctl.decode(payload, &req); err != nil {
		return nil, err
	}
	if err := room.ConnectTransport(peerID, req.TransportID, req.Answer); err != nil {
		return nil, err
	}
	return protocol.AckResponse{OK: true}, nil
}

func (ctl *Controller) handleProduce(sess *session, payload json.RawMessage) (any, error) {
	room, peerID, ok := sess.joinedRoom()
	if !ok {
		return nil, fmt.Errorf("%s: %w", errNotInRoom, core.ErrNotFound)
	}
	var req protocol.ProduceRequest
	if err := ctl.decode(payload, &req); err != nil {
		return nil, err
	}
	producerID, err := room.Produce(peerID, req.TransportID, req.Label, req.Kind, req.RTP)
	if err != nil {
		return nil, err
	}
	return protocol.ProduceResponse{ProducerID: producerID}, nil
}

func (ctl *Controller) handleConsume(sess *session, payload json.RawMessage) (any, error) {
	room, peerID, ok := sess.joinedRoom()
	if !ok {
		return nil, fmt.Errorf("%s: %w", errNotInRoom, core.ErrNotFound)
	}
	var req protocol.ConsumeRequest
	if err := ctl.decode(payload, &req); err != nil {
		return nil, err
	}
	return room.Consume(peerID, req.TransportID, req.ProducerID, req.Capabilities)
}

// handleResume acknowledges the legacy resume call. Consumers start live
// server-side, so there is nothing to unpause.
func (ctl *Controller) handleResume(sess *session, payload json.RawMessage) (any, error) {
	if _, _, ok := sess.joinedRoom(); !ok {
		return nil, fmt.Errorf("%s: %w", errNotInRoom, core.ErrNotFound)
	}
	var req protocol.ResumeRequest
	if err := ctl.decode(payload, &req); err != nil {
		return nil, err
	}
	return protocol.AckResponse{OK: true}, nil
}

// handleProducerClosed is the fire-and-forget notice that a client stopped
// one of its tracks; close propagation notifies its consumers.
func (ctl *Controller) handleProducerClosed(sess *session, payload json.RawMessage) {
	room, peerID, ok := sess.joinedRoom()
	if !ok {
		sess.notifier.Notify(protocol.EvtError, map[string]string{"error": errNotInRoom})
		return
	}
	var req protocol.ProducerClosedNotice
	if err := ctl.decode(payload, &req); err != nil {
		sess.notifier.Notify(protocol.EvtError, map[string]string{"error": errBadPayload})
		return
	}
	if err := room.CloseProducer(peerID, req.ProducerID); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", sess.sid).Str("producer", req.ProducerID).Msg("producer closed notice")
	}
}
