package app

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/vcall/internal/core"
	"github.com/dkeye/vcall/internal/domain"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	pool, err := NewWorkerPool(context.Background(), 2,
		func(ctx context.Context, index int) (core.Worker, error) {
			return &fakeWorker{id: fmt.Sprintf("w%d", index)}, nil
		}, nil)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return NewRegistry(pool, testCodecs)
}

func TestRegistryCreateAndGet(t *testing.T) {
	reg := newTestRegistry(t)

	room, err := reg.Create(context.Background(), "r1")
	require.NoError(t, err)
	require.NotNil(t, room)

	got, err := reg.Get("r1")
	require.NoError(t, err)
	assert.Same(t, room, got)

	// The router binds asynchronously; capabilities become available.
	require.Eventually(t, func() bool {
		_, err := room.Capabilities()
		return err == nil
	}, time.Second, 5*time.Millisecond)
}

func TestRegistryDuplicateRoom(t *testing.T) {
	reg := newTestRegistry(t)

	_, err := reg.Create(context.Background(), "r2")
	require.NoError(t, err)

	_, err = reg.Create(context.Background(), "r2")
	require.ErrorIs(t, err, core.ErrRoomExists)

	// The existing room is unaffected by the rejected duplicate.
	room, err := reg.Get("r2")
	require.NoError(t, err)
	assert.Zero(t, room.PeerCount())
}

func TestRegistryGetUnknown(t *testing.T) {
	reg := newTestRegistry(t)
	_, err := reg.Get("nope")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestRegistryRemoveIfEmpty(t *testing.T) {
	reg := newTestRegistry(t)
	room, err := reg.Create(context.Background(), "r3")
	require.NoError(t, err)

	peer := NewPeer(domain.NewPeerID(), "a@x.io", "A", &fakeNotifier{})
	room.AddPeer(peer)

	// Occupied rooms survive.
	assert.False(t, reg.RemoveIfEmpty("r3"))
	_, err = reg.Get("r3")
	require.NoError(t, err)

	empty, err := room.RemovePeer(peer.ID())
	require.NoError(t, err)
	require.True(t, empty)

	assert.True(t, reg.RemoveIfEmpty("r3"))
	_, err = reg.Get("r3")
	require.ErrorIs(t, err, core.ErrNotFound)

	// Second removal is a no-op.
	assert.False(t, reg.RemoveIfEmpty("r3"))
}

func TestRegistryList(t *testing.T) {
	reg := newTestRegistry(t)
	_, err := reg.Create(context.Background(), "a")
	require.NoError(t, err)
	_, err = reg.Create(context.Background(), "b")
	require.NoError(t, err)

	infos := reg.List()
	require.Len(t, infos, 2)
	ids := []domain.RoomID{infos[0].ID, infos[1].ID}
	assert.ElementsMatch(t, []domain.RoomID{"a", "b"}, ids)
}

func TestRoomNotReadyBeforeBind(t *testing.T) {
	room := NewRoom("pending")

	_, err := room.Capabilities()
	require.ErrorIs(t, err, core.ErrNotReady)

	_, err = room.CreateTransport(context.Background(), "peer", domain.DirectionSend)
	require.ErrorIs(t, err, core.ErrNotReady)

	room.bindRouter(newFakeRouter(testCodecs), nil)
	caps, err := room.Capabilities()
	require.NoError(t, err)
	assert.True(t, caps.Supports("audio/opus"))
}

func TestRoomRouterBindFailure(t *testing.T) {
	room := NewRoom("broken")
	room.bindRouter(nil, errors.New("engine down"))

	_, err := room.Capabilities()
	require.Error(t, err)
	assert.NotErrorIs(t, err, core.ErrNotReady)
}
