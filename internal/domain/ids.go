// Package domain contains entity and wire types without logic, just meta-data
// and shape validation.
package domain

import (
	"errors"
	"regexp"

	"github.com/google/uuid"
)

const (
	MaxRoomIDLen   = 50
	MaxIdentityLen = 100
)

var (
	ErrRoomIDEmpty     = errors.New("room id empty")
	ErrRoomIDTooLong   = errors.New("room id too long")
	ErrRoomIDInvalid   = errors.New("room id contains invalid characters")
	ErrIdentityEmpty   = errors.New("identity empty")
	ErrIdentityTooLong = errors.New("identity too long")
)

type (
	// RoomID is the unique, stable room identifier chosen by the caller.
	RoomID string
	// PeerID identifies one signaling connection inside a room.
	PeerID string
)

var roomIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Validate checks the untrusted room identifier shape before it reaches
// room logic.
func (id RoomID) Validate() error {
	switch {
	case len(id) == 0:
		return ErrRoomIDEmpty
	case len(id) > MaxRoomIDLen:
		return ErrRoomIDTooLong
	case !roomIDPattern.MatchString(string(id)):
		return ErrRoomIDInvalid
	}
	return nil
}

// ValidateIdentity checks the participant identity shape.
func ValidateIdentity(identity string) error {
	switch {
	case len(identity) == 0:
		return ErrIdentityEmpty
	case len(identity) > MaxIdentityLen:
		return ErrIdentityTooLong
	}
	return nil
}

// NewPeerID mints a connection identity.
func NewPeerID() PeerID {
	return PeerID(uuid.NewString())
}
