package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomIDValidate(t *testing.T) {
	assert.NoError(t, RoomID("team-standup_2").Validate())

	assert.ErrorIs(t, RoomID("").Validate(), ErrRoomIDEmpty)
	assert.ErrorIs(t, RoomID(strings.Repeat("a", MaxRoomIDLen+1)).Validate(), ErrRoomIDTooLong)
	assert.ErrorIs(t, RoomID("room with spaces").Validate(), ErrRoomIDInvalid)
	assert.ErrorIs(t, RoomID("room/../../etc").Validate(), ErrRoomIDInvalid)
}

func TestValidateIdentity(t *testing.T) {
	assert.NoError(t, ValidateIdentity("alice@example.com"))
	assert.ErrorIs(t, ValidateIdentity(""), ErrIdentityEmpty)
	assert.ErrorIs(t, ValidateIdentity(strings.Repeat("x", MaxIdentityLen+1)), ErrIdentityTooLong)
}

func TestMediaLabelKind(t *testing.T) {
	kind, err := LabelScreen.Kind()
	require.NoError(t, err)
	assert.Equal(t, MediaVideo, kind)

	kind, err = LabelAudio.Kind()
	require.NoError(t, err)
	assert.Equal(t, MediaAudio, kind)

	_, err = MediaLabel("banner").Kind()
	assert.ErrorIs(t, err, ErrUnknownLabel)
}
