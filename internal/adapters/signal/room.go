package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/vcall/internal/app"
	"github.com/dkeye/vcall/internal/core"
	"github.com/dkeye/vcall/internal/domain"
	"github.com/dkeye/vcall/internal/protocol"
)

func (ctl *Controller) handleCreateRoom(ctx context.Context, sess *session, payload json.RawMessage) (any, error) {
	var req protocol.CreateRoomRequest
	if err := ctl.decode(payload, &req); err != nil {
		return nil, err
	}
	roomID := domain.RoomID(req.RoomID)
	if err := roomID.Validate(); err != nil {
		return nil, errors.New(errBadPayload)
	}

	if _, err := ctl.registry.Create(ctx, roomID); err != nil {
		return nil, err
	}
	log.Info().Str("module", "signal").Str("sid", sess.sid).Str("room", req.RoomID).Msg("room created")
	return protocol.CreateRoomResponse{RoomID: req.RoomID}, nil
}

// handleJoin authorizes the identity against the membership directory and
// transitions the session to joined. Join is valid only before any room
// membership exists on this connection.
func (ctl *Controller) handleJoin(ctx context.Context, sess *session, payload json.RawMessage) (any, error) {
	var req protocol.JoinRequest
	if err := ctl.decode(payload, &req); err != nil {
		return nil, err
	}
	if _, _, joined := sess.joinedRoom(); joined {
		return nil, errors.New(errAlreadyJoined)
	}

	roomID := domain.RoomID(req.RoomID)
	if err := roomID.Validate(); err != nil {
		return nil, errors.New(errBadPayload)
	}
	room, err := ctl.registry.Get(roomID)
	if err != nil {
		return nil, err
	}
	if err := ctl.dir.Authorize(ctx, roomID, req.Email); err != nil {
		return nil, fmt.Errorf("authorize %s: %w", req.Email, err)
	}
	name, err := ctl.dir.DisplayName(ctx, req.Email)
	if err != nil {
		name = req.Email
	}

	peerID := domain.NewPeerID()
	peer := app.NewPeer(peerID, req.Email, name, sess.notifier)
	if !sess.setJoined(room, peerID) {
		return nil, errors.New(errAlreadyJoined)
	}
	room.AddPeer(peer)

	log.Info().Str("module", "signal").Str("sid", sess.sid).Str("room", req.RoomID).Str("identity", req.Email).Msg("joined")
	return protocol.JoinResponse{PeerID: peerID, Room: room.Snapshot()}, nil
}

func (ctl *Controller) handleGetMyRoomInfo(sess *session) (any, error) {
	room, _, ok := sess.joinedRoom()
	if !ok {
		return nil, fmt.Errorf("%s: %w", errNotInRoom, core.ErrNotFound)
	}
	return room.Snapshot(), nil
}

func (ctl *Controller) handleExitRoom(sess *session) (any, error) {
	if _, _, ok := sess.joinedRoom(); !ok {
		return nil, fmt.Errorf("%s: %w", errNotInRoom, core.ErrNotFound)
	}
	ctl.leave(sess)
	return protocol.ExitRoomResponse{Exited: true}, nil
}

// handleGetProducers backfills the requesting peer with the room's current
// producer list via the same event used for live announcements.
func (ctl *Controller) handleGetProducers(sess *session) {
	room, peerID, ok := sess.joinedRoom()
	if !ok {
		sess.notifier.Notify(protocol.EvtError, map[string]string{"error": errNotInRoom})
		return
	}
	producers := make([]domain.ProducerInfo, 0)
	for _, info := range room.ProducerList() {
		if info.PeerID == peerID {
			continue
		}
		producers = append(producers, info)
	}
	sess.notifier.Notify(protocol.EvtNewProducers, producers)
}
