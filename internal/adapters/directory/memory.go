// Package directory provides in-process implementations of the membership
// directory port. Real deployments back this with the account service; the
// in-memory forms cover single-node and development setups.
package directory

import (
	"context"
	"fmt"
	"sync"

	"github.com/dkeye/vcall/internal/core"
	"github.com/dkeye/vcall/internal/domain"
)

// Member is one seeded participant record.
type Member struct {
	Identity string
	Name     string
}

// Memory is a strict seeded directory: a join is authorized only when the
// room has a record listing the identity as owner or participant.
type Memory struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID][]Member
	names map[string]string
}

func NewMemory() *Memory {
	return &Memory{
		rooms: make(map[domain.RoomID][]Member),
		names: make(map[string]string),
	}
}

// Seed registers a room's member list, replacing any previous record.
func (m *Memory) Seed(room domain.RoomID, members ...Member) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms[room] = members
	for _, member := range members {
		if member.Name != "" {
			m.names[member.Identity] = member.Name
		}
	}
}

func (m *Memory) Authorize(ctx context.Context, room domain.RoomID, identity string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	members, ok := m.rooms[room]
	if !ok {
		return fmt.Errorf("room %s has no membership record: %w", room, core.ErrNotFound)
	}
	for _, member := range members {
		if member.Identity == identity {
			return nil
		}
	}
	return fmt.Errorf("identity %s not a member of %s: %w", identity, room, core.ErrUnauthorized)
}

func (m *Memory) DisplayName(ctx context.Context, identity string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	name, ok := m.names[identity]
	if !ok {
		return "", fmt.Errorf("identity %s: %w", identity, core.ErrNotFound)
	}
	return name, nil
}

// Open authorizes every identity. Development only.
type Open struct{}

func (Open) Authorize(ctx context.Context, room domain.RoomID, identity string) error {
	if err := domain.ValidateIdentity(identity); err != nil {
		return fmt.Errorf("identity: %w", core.ErrUnauthorized)
	}
	return nil
}

func (Open) DisplayName(ctx context.Context, identity string) (string, error) {
	return identity, nil
}
