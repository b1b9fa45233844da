// Package protocol defines the tagged signaling envelope and the
// request/response payload schema shared by the server dispatcher and the
// client negotiation agent.
package protocol

import (
	"encoding/json"

	"github.com/dkeye/vcall/internal/domain"
)

// Request/response operations.
const (
	OpCreateRoom            = "createRoom"
	OpJoin                  = "join"
	OpGetRouterCapabilities = "getRouterRtpCapabilities"
	OpCreateTransport       = "createWebRtcTransport"
	OpConnectTransport      = "connectTransport"
	OpProduce               = "produce"
	OpConsume               = "consume"
	OpResume                = "resume"
	OpGetMyRoomInfo         = "getMyRoomInfo"
	OpExitRoom              = "exitRoom"
)

// Fire-and-forget operations and server→client events.
const (
	OpGetProducers    = "getProducers"
	OpProducerClosed  = "producerClosed"
	EvtNewProducers   = "newProducers"
	EvtConsumerClosed = "consumerClosed"
	EvtError          = "error"
)

// TypeResponse tags every reply to a request envelope.
const TypeResponse = "response"

// Wire error strings carried in Response.Error. Both sides match on these.
const (
	ErrTextBadPayload    = "bad_payload"
	ErrTextAlreadyExists = "already exists"
	ErrTextNotReady      = "not ready"
	ErrTextNotFound      = "not found"
	ErrTextUnauthorized  = "unauthorized"
	ErrTextRateLimited   = "rate limited"
	ErrTextDuplicate     = "duplicate label"
	ErrTextNotInRoom     = "not in a room"
	ErrTextAlreadyJoined = "already joined"
)

// Envelope frames every signaling message. Requests carry an ID the reply
// echoes; events carry none.
type Envelope struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response is the reply side of the envelope. Exactly one of Payload and
// Error is set.
type Response struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Room identifier charset is checked by domain.RoomID.Validate; the tags
// here cover presence and size only.
type CreateRoomRequest struct {
	RoomID string `json:"room_id" validate:"required,max=50"`
}

type CreateRoomResponse struct {
	RoomID string `json:"room_id"`
}

type JoinRequest struct {
	RoomID string `json:"room_id" validate:"required,max=50"`
	Email  string `json:"email" validate:"required,email,max=100"`
}

type JoinResponse struct {
	PeerID domain.PeerID       `json:"peer_id"`
	Room   domain.RoomSnapshot `json:"room"`
}

type CreateTransportRequest struct {
	Direction domain.TransportDirection `json:"direction" validate:"required,oneof=send recv"`
}

type ConnectTransportRequest struct {
	TransportID string `json:"transport_id" validate:"required,uuid4"`
	Answer      string `json:"answer" validate:"required"`
}

type ProduceRequest struct {
	TransportID string               `json:"transport_id" validate:"required,uuid4"`
	Kind        domain.MediaKind     `json:"kind" validate:"required,oneof=audio video"`
	Label       domain.MediaLabel    `json:"label" validate:"omitempty,oneof=audio video screen"`
	RTP         domain.RTPParameters `json:"rtpParameters"`
}

type ProduceResponse struct {
	ProducerID string `json:"producer_id"`
}

type ConsumeRequest struct {
	TransportID  string                    `json:"transport_id" validate:"required,uuid4"`
	ProducerID   string                    `json:"producer_id" validate:"required,uuid4"`
	Capabilities domain.RouterCapabilities `json:"rtpCapabilities"`
}

type ResumeRequest struct {
	ConsumerID string `json:"consumer_id" validate:"required,uuid4"`
}

// AckResponse acknowledges operations with no result body.
type AckResponse struct {
	OK bool `json:"ok"`
}

type ProducerClosedNotice struct {
	ProducerID string `json:"producer_id" validate:"required,uuid4"`
}

type ConsumerClosedEvent struct {
	ConsumerID string `json:"consumer_id"`
}

type ExitRoomResponse struct {
	Exited bool `json:"exited"`
}
