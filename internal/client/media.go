package client

import "github.com/dkeye/vcall/internal/domain"

// LocalTrack is one captured device track ready to be produced.
type LocalTrack interface {
	ID() string
	Kind() domain.MediaKind
	RTP() domain.RTPParameters
	// SetEnabled mutes or unmutes the track at the capture source without
	// tearing down the producer.
	SetEnabled(enabled bool)
	// OnEnded fires when the device stops the track (unplugged, permission
	// revoked). Fires immediately if the track already ended.
	OnEnded(fn func())
	Close()
}

// RemoteTrack is a playable stream built from a consumer's parameters.
type RemoteTrack interface {
	ID() string
	Kind() domain.MediaKind
}

// MediaStack is the platform media layer: capture, playback and the SDP
// side of the transport handshake.
type MediaStack interface {
	// Answer produces the local SDP answer for a transport's offer.
	Answer(offer string) (string, error)
	CaptureTrack(kind domain.MediaKind, deviceID string) (LocalTrack, error)
	PlayTrack(info domain.ConsumerInfo) (RemoteTrack, error)
}

// View is the externally registered UI surface tracks are attached to.
type View interface {
	AddMedia(id string, track RemoteTrack)
	RemoveMedia(id string)
}
