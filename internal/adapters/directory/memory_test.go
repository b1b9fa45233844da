package directory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/vcall/internal/core"
)

func TestMemoryAuthorize(t *testing.T) {
	dir := NewMemory()
	dir.Seed("standup",
		Member{Identity: "owner@x.io", Name: "Owner"},
		Member{Identity: "guest@x.io", Name: "Guest"},
	)

	ctx := context.Background()
	require.NoError(t, dir.Authorize(ctx, "standup", "owner@x.io"))
	require.NoError(t, dir.Authorize(ctx, "standup", "guest@x.io"))

	err := dir.Authorize(ctx, "standup", "stranger@x.io")
	require.ErrorIs(t, err, core.ErrUnauthorized)

	err = dir.Authorize(ctx, "unknown-room", "owner@x.io")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestMemoryDisplayName(t *testing.T) {
	dir := NewMemory()
	dir.Seed("standup", Member{Identity: "owner@x.io", Name: "Owner"})

	name, err := dir.DisplayName(context.Background(), "owner@x.io")
	require.NoError(t, err)
	assert.Equal(t, "Owner", name)

	_, err = dir.DisplayName(context.Background(), "stranger@x.io")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestMemorySeedReplaces(t *testing.T) {
	dir := NewMemory()
	dir.Seed("r", Member{Identity: "a@x.io"})
	dir.Seed("r", Member{Identity: "b@x.io"})

	ctx := context.Background()
	require.Error(t, dir.Authorize(ctx, "r", "a@x.io"))
	require.NoError(t, dir.Authorize(ctx, "r", "b@x.io"))
}

func TestOpenAuthorizesAnyIdentity(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, Open{}.Authorize(ctx, "any", "anyone@x.io"))

	err := Open{}.Authorize(ctx, "any", "")
	require.ErrorIs(t, err, core.ErrUnauthorized)

	name, err := Open{}.DisplayName(ctx, "anyone@x.io")
	require.NoError(t, err)
	assert.Equal(t, "anyone@x.io", name)
}
