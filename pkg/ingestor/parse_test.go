package ingestor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamrelay/platform/pkg/api"
)

func TestParseSourceInput_Username(t *testing.T) {
	kind, value, err := ParseSourceInput("@coolstreamer")
	require.NoError(t, err)
	assert.Equal(t, InputUsername, kind)
	assert.Equal(t, "coolstreamer", value)

	kind, value, err = ParseSourceInput("coolstreamer")
	require.NoError(t, err)
	assert.Equal(t, InputUsername, kind)
	assert.Equal(t, "coolstreamer", value)
}

func TestParseSourceInput_RoomID(t *testing.T) {
	kind, value, err := ParseSourceInput("7123456789012345678")
	require.NoError(t, err)
	assert.Equal(t, InputRoomID, kind)
	assert.Equal(t, "7123456789012345678", value)
}

func TestParseSourceInput_URLs(t *testing.T) {
	kind, value, err := ParseSourceInput("https://www.tiktok.com/@coolstreamer/live")
	require.NoError(t, err)
	assert.Equal(t, InputUsername, kind)
	assert.Equal(t, "coolstreamer", value)

	kind, value, err = ParseSourceInput("https://www.tiktok.com/live/7123456789012345678")
	require.NoError(t, err)
	assert.Equal(t, InputRoomID, kind)
	assert.Equal(t, "7123456789012345678", value)

	kind, value, err = ParseSourceInput("https://vm.tiktok.com/ZMabc123/")
	require.NoError(t, err)
	assert.Equal(t, InputShortURL, kind)
	assert.Equal(t, "ZMabc123", value)
}

func TestParseSourceInput_Invalid(t *testing.T) {
	_, _, err := ParseSourceInput("not a valid handle at all!!")
	require.Error(t, err)
	assert.True(t, errors.Is(err, api.ErrInvalidInput))

	_, _, err = ParseSourceInput("https://example.com/nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, api.ErrInvalidInput))
}
