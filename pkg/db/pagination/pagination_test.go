package pagination

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorTokenIsURLSafe(t *testing.T) {
	token, err := EncodeCursor(Cursor{ID: "1767225600000000001", CreatedAt: "2026-01-01T00:00:00Z"})
	require.NoError(t, err)
	assert.NotContains(t, token, "+")
	assert.NotContains(t, token, "/")
	assert.NotContains(t, token, "=")

	decoded, err := DecodeCursor(token)
	require.NoError(t, err)
	assert.Equal(t, "1767225600000000001", decoded.ID)
}

func TestBuildCursorPageInfo(t *testing.T) {
	items := []*int{new(int), new(int), new(int)}
	*items[0], *items[1], *items[2] = 1, 2, 3
	key := func(v *int) string { return string(rune('0' + *v)) }

	info := BuildCursorPageInfo(items, 2, key)
	assert.True(t, info.HasMore)
	assert.Equal(t, "2", info.NextPageToken)

	info = BuildCursorPageInfo(items[:2], 2, key)
	assert.False(t, info.HasMore)
	assert.Empty(t, info.NextPageToken)
}

func TestLimit(t *testing.T) {
	assert.Equal(t, DefaultPageSize, Pagination{}.Limit())
	assert.Equal(t, MaxPageSize, Pagination{PageSize: 1000}.Limit())
	assert.Equal(t, 10, Pagination{PageSize: 10}.Limit())
}

func TestKeysetRoundTrip(t *testing.T) {
	at := time.Date(2026, 4, 2, 10, 30, 0, 123, time.UTC)
	token := EncodeKeyset(snowflake.ID(42), at)

	cursor, err := DecodeKeyset(token)
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(42), cursor.ID)
	assert.True(t, cursor.CreatedAt.Equal(at))

	cursor, err = DecodeKeyset("")
	require.NoError(t, err)
	assert.Nil(t, cursor)

	_, err = DecodeKeyset("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidPageToken)
}
