package core

import (
	"context"

	"github.com/dkeye/vcall/internal/domain"
)

// Notifier delivers a server→client event to exactly one connection.
// Owned by the signaling adapter; the adapter must close the underlying
// channel.
type Notifier interface {
	Notify(event string, payload any)
}

// Directory is the read-only membership and identity collaborator. Room
// ownership and participant lists are persisted outside this process.
type Directory interface {
	// Authorize reports whether identity is the room's owner or a
	// registered participant. ErrUnauthorized on rejection, ErrNotFound
	// when the room has no persisted record.
	Authorize(ctx context.Context, room domain.RoomID, identity string) error
	// DisplayName resolves an identity to a human-readable name.
	DisplayName(ctx context.Context, identity string) (string, error)
}
