package signal

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/vcall/internal/core"
	"github.com/dkeye/vcall/internal/domain"
	"github.com/dkeye/vcall/internal/protocol"
)

// Local aliases for the shared wire error strings.
const (
	errBadPayload    = protocol.ErrTextBadPayload
	errAlreadyExists = protocol.ErrTextAlreadyExists
	errNotReady      = protocol.ErrTextNotReady
	errNotFound      = protocol.ErrTextNotFound
	errUnauthorized  = protocol.ErrTextUnauthorized
	errRateLimited   = protocol.ErrTextRateLimited
	errDuplicate     = protocol.ErrTextDuplicate
	errNotInRoom     = protocol.ErrTextNotInRoom
	errAlreadyJoined = protocol.ErrTextAlreadyJoined
)

// dispatch routes one inbound frame. The rate-limit gate runs before any
// handler; an exhausted quota fails every operation uniformly until the
// window rolls over.
func (ctl *Controller) dispatch(ctx context.Context, sess *session, data []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		sess.notifier.Notify(protocol.EvtError, map[string]string{"error": errBadPayload})
		return
	}

	if !ctl.limiter.Allow(sess.sid) {
		ctl.respondErr(sess, env.ID, core.ErrRateLimited)
		return
	}

	switch env.Type {
	case protocol.OpCreateRoom:
		ctl.respond(sess, env.ID)(ctl.handleCreateRoom(ctx, sess, env.Payload))
	case protocol.OpJoin:
		ctl.respond(sess, env.ID)(ctl.handleJoin(ctx, sess, env.Payload))
	case protocol.OpGetRouterCapabilities:
		ctl.respond(sess, env.ID)(ctl.handleGetCapabilities(sess))
	case protocol.OpCreateTransport:
		ctl.respond(sess, env.ID)(ctl.handleCreateTransport(ctx, sess, env.Payload))
	case protocol.OpConnectTransport:
		ctl.respond(sess, env.ID)(ctl.handleConnectTransport(sess, env.Payload))
	case protocol.OpProduce:
		ctl.respond(sess, env.ID)(ctl.handleProduce(sess, env.Payload))
	case protocol.OpConsume:
		ctl.respond(sess, env.ID)(ctl.handleConsume(sess, env.Payload))
	case protocol.OpResume:
		ctl.respond(sess, env.ID)(ctl.handleResume(sess, env.Payload))
	case protocol.OpGetMyRoomInfo:
		ctl.respond(sess, env.ID)(ctl.handleGetMyRoomInfo(sess))
	case protocol.OpExitRoom:
		ctl.respond(sess, env.ID)(ctl.handleExitRoom(sess))
	case protocol.OpGetProducers:
		ctl.handleGetProducers(sess)
	case protocol.OpProducerClosed:
		ctl.handleProducerClosed(sess, env.Payload)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
		ctl.respondErr(sess, env.ID, core.ErrNotFound)
	}
}

// respond frames a handler's result as the reply to envelope id.
func (ctl *Controller) respond(sess *session, id string) func(any, error) {
	return func(payload any, err error) {
		if err != nil {
			ctl.respondErr(sess, id, err)
			return
		}
		body, merr := json.Marshal(payload)
		if merr != nil {
			log.Error().Err(merr).Str("module", "signal").Msg("response marshal")
			ctl.respondErr(sess, id, merr)
			return
		}
		sess.conn.sendEnvelope(protocol.Response{Type: protocol.TypeResponse, ID: id, Payload: body})
	}
}

func (ctl *Controller) respondErr(sess *session, id string, err error) {
	sess.conn.sendEnvelope(protocol.Response{Type: protocol.TypeResponse, ID: id, Error: errorString(err)})
}

// errorString flattens the error taxonomy onto stable wire strings; engine
// failures pass through verbatim.
func errorString(err error) string {
	switch {
	case errors.Is(err, core.ErrRoomExists):
		return errAlreadyExists
	case errors.Is(err, core.ErrNotReady):
		return errNotReady
	case errors.Is(err, core.ErrNotFound):
		return errNotFound
	case errors.Is(err, core.ErrUnauthorized):
		return errUnauthorized
	case errors.Is(err, core.ErrRateLimited):
		return errRateLimited
	case errors.Is(err, core.ErrDuplicateLabel):
		return errDuplicate
	case errors.Is(err, domain.ErrUnknownLabel):
		return errBadPayload
	}
	return err.Error()
}

// decode unmarshals and shape-validates a request payload.
func (ctl *Controller) decode(payload json.RawMessage, out any) error {
	if err := json.Unmarshal(payload, out); err != nil {
		return errors.New(errBadPayload)
	}
	if err := ctl.validate.Struct(out); err != nil {
		return errors.New(errBadPayload)
	}
	return nil
}
