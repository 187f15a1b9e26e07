package codec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type snapshot struct {
	ID        string
	Version   int64
	UpdatedAt time.Time
	UnlockAt  *time.Time
	Tags      map[string]string
}

func TestMarshal_DeterministicAndPreservesNanos(t *testing.T) {
	ts := time.Date(2026, 5, 1, 12, 0, 0, 123456789, time.UTC)
	in := snapshot{ID: "n1", Version: 3, UpdatedAt: ts, Tags: map[string]string{"b": "2", "a": "1"}}

	first, err := Marshal(in)
	require.NoError(t, err)
	second, err := Marshal(in)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	var out snapshot
	require.NoError(t, Unmarshal(first, &out))
	assert.True(t, out.UpdatedAt.Equal(ts))
	assert.Nil(t, out.UnlockAt)
	assert.Equal(t, in.Tags, out.Tags)
}

func TestUnmarshal_AnyUsesStringKeys(t *testing.T) {
	data, err := Marshal(map[string]any{"k": 1})
	require.NoError(t, err)

	var out any
	require.NoError(t, Unmarshal(data, &out))
	_, ok := out.(map[string]any)
	assert.True(t, ok)
}

func TestUnmarshal_Garbage(t *testing.T) {
	var out snapshot
	require.Error(t, Unmarshal([]byte{0xff, 0x00}, &out))
}
