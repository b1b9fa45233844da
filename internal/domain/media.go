package domain

import "errors"

// MediaKind is the track kind understood by the media engine.
type MediaKind string

const (
	MediaAudio MediaKind = "audio"
	MediaVideo MediaKind = "video"
)

// MediaLabel is the logical role of a producer. A peer holds at most one
// active producer per label.
type MediaLabel string

const (
	LabelAudio  MediaLabel = "audio"
	LabelVideo  MediaLabel = "video"
	LabelScreen MediaLabel = "screen"
)

var ErrUnknownLabel = errors.New("unknown media label")

// Kind maps a label onto its track kind; screen share is a video track.
func (l MediaLabel) Kind() (MediaKind, error) {
	switch l {
	case LabelAudio:
		return MediaAudio, nil
	case LabelVideo, LabelScreen:
		return MediaVideo, nil
	}
	return "", ErrUnknownLabel
}

// TransportDirection marks a transport as carrying peer-to-engine media
// (send) or engine-to-peer media (recv).
type TransportDirection string

const (
	DirectionSend TransportDirection = "send"
	DirectionRecv TransportDirection = "recv"
)

// TransportState mirrors the transport connection lifecycle.
type TransportState string

const (
	TransportNew        TransportState = "new"
	TransportConnecting TransportState = "connecting"
	TransportConnected  TransportState = "connected"
	TransportFailed     TransportState = "failed"
	TransportClosed     TransportState = "closed"
)

// CodecCapability describes one codec a router or peer supports.
type CodecCapability struct {
	Kind                 MediaKind `json:"kind"`
	MimeType             string    `json:"mimeType"`
	ClockRate            uint32    `json:"clockRate"`
	Channels             uint16    `json:"channels,omitempty"`
	PreferredPayloadType uint8     `json:"preferredPayloadType"`
	SDPFmtpLine          string    `json:"sdpFmtpLine,omitempty"`
}

// RouterCapabilities is the capability descriptor exchanged during the
// capability handshake and used to gate consume eligibility.
type RouterCapabilities struct {
	Codecs []CodecCapability `json:"codecs"`
}

// Supports reports whether caps contain a codec matching mimeType.
func (c RouterCapabilities) Supports(mimeType string) bool {
	for _, codec := range c.Codecs {
		if codec.MimeType == mimeType {
			return true
		}
	}
	return false
}

// RTPParameters carry the codec parameters of one track on the wire.
type RTPParameters struct {
	MimeType    string `json:"mimeType"`
	ClockRate   uint32 `json:"clockRate"`
	Channels    uint16 `json:"channels,omitempty"`
	PayloadType uint8  `json:"payloadType"`
	SSRC        uint32 `json:"ssrc"`
	SDPFmtpLine string `json:"sdpFmtpLine,omitempty"`
}

// TransportInfo is the createTransport result: the ICE/DTLS connection
// parameters travel inside the engine's SDP offer.
type TransportInfo struct {
	ID        string             `json:"id"`
	Direction TransportDirection `json:"direction"`
	Offer     string             `json:"offer"`
}

// SimulcastLayer is the fixed preferred layer passed through on simulcast
// consumers.
type SimulcastLayer struct {
	Spatial  uint8 `json:"spatialLayer"`
	Temporal uint8 `json:"temporalLayer"`
}

// ConsumerInfo is the consume result handed back to the consuming peer.
type ConsumerInfo struct {
	ID             string          `json:"id"`
	ProducerID     string          `json:"producerId"`
	Kind           MediaKind       `json:"kind"`
	RTP            RTPParameters   `json:"rtpParameters"`
	PreferredLayer *SimulcastLayer `json:"preferredLayer,omitempty"`
}

// ProducerInfo advertises one producer to the rest of the room.
type ProducerInfo struct {
	ProducerID string `json:"producer_id"`
	PeerID     PeerID `json:"producer_peer_id"`
}

// PeerSnapshot is a read-only view of one joined peer.
type PeerSnapshot struct {
	ID        PeerID   `json:"id"`
	Identity  string   `json:"identity"`
	Name      string   `json:"name"`
	Producers []string `json:"producers"`
}

// RoomSnapshot is the room state returned on join and getMyRoomInfo.
type RoomSnapshot struct {
	ID    RoomID         `json:"id"`
	Peers []PeerSnapshot `json:"peers"`
}
