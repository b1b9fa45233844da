package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/vcall/internal/core"
	"github.com/dkeye/vcall/internal/domain"
)

// RoomInfo is a read-only registry entry for the REST surface.
type RoomInfo struct {
	ID        domain.RoomID `json:"id"`
	PeerCount int           `json:"peer_count"`
}

// Registry maps room identifier → room. Rooms are created on first
// createRoom and destroyed only when their peer set empties.
type Registry struct {
	pool   *WorkerPool
	codecs []domain.CodecCapability

	mu    sync.RWMutex
	rooms map[domain.RoomID]*Room
}

func NewRegistry(pool *WorkerPool, codecs []domain.CodecCapability) *Registry {
	return &Registry{
		pool:   pool,
		codecs: codecs,
		rooms:  make(map[domain.RoomID]*Room),
	}
}

// Create registers a room on the next worker. Duplicate ids are rejected
// idempotently with ErrRoomExists. The room is visible immediately; its
// router binds asynchronously and operations needing it report not-ready
// until then.
func (g *Registry) Create(ctx context.Context, id domain.RoomID) (*Room, error) {
	g.mu.Lock()
	if _, ok := g.rooms[id]; ok {
		g.mu.Unlock()
		return nil, fmt.Errorf("room %s: %w", id, core.ErrRoomExists)
	}
	worker := g.pool.Next()
	room := NewRoom(id)
	g.rooms[id] = room
	g.mu.Unlock()

	go func() {
		router, err := worker.CreateRouter(ctx, g.codecs)
		room.bindRouter(router, err)
	}()

	log.Info().Str("module", "app.registry").Str("room", string(id)).Str("worker", worker.ID()).Msg("room created")
	return room, nil
}

func (g *Registry) Get(id domain.RoomID) (*Room, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	room, ok := g.rooms[id]
	if !ok {
		return nil, fmt.Errorf("room %s: %w", id, core.ErrNotFound)
	}
	return room, nil
}

// RemoveIfEmpty deletes the room entry when its peer count reached zero.
// This is the only destruction path; rooms are never destroyed while peers
// remain.
func (g *Registry) RemoveIfEmpty(id domain.RoomID) bool {
	g.mu.Lock()
	room, ok := g.rooms[id]
	if !ok || room.PeerCount() > 0 {
		g.mu.Unlock()
		return false
	}
	delete(g.rooms, id)
	g.mu.Unlock()

	room.closeRouter()
	log.Info().Str("module", "app.registry").Str("room", string(id)).Msg("empty room removed")
	return true
}

func (g *Registry) List() []RoomInfo {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]RoomInfo, 0, len(g.rooms))
	for id, room := range g.rooms {
		out = append(out, RoomInfo{ID: id, PeerCount: room.PeerCount()})
	}
	return out
}
