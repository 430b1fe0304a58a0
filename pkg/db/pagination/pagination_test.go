package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct{ id string }

func TestCursorRoundTrip(t *testing.T) {
	token, err := EncodeCursor(Cursor{ID: "123", CreatedAt: "2026-01-02T03:04:05Z"})
	require.NoError(t, err)

	cursor, err := DecodeCursor(token)
	require.NoError(t, err)
	assert.Equal(t, "123", cursor.ID)
	assert.Equal(t, "2026-01-02T03:04:05Z", cursor.CreatedAt)

	_, err = DecodeCursor("%%%")
	assert.Error(t, err)
}

func TestBuildCursorPageInfo(t *testing.T) {
	rows := []*row{{"a"}, {"b"}, {"c"}}
	extract := func(r *row) string { return r.id }

	info := BuildCursorPageInfo(rows, 2, extract)
	assert.True(t, info.HasMore)
	assert.Equal(t, "b", info.NextPageToken)

	info = BuildCursorPageInfo(rows, 3, extract)
	assert.False(t, info.HasMore)
	assert.Empty(t, info.NextPageToken)
}
