package archive

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestObjectKeyHashesKeyword(t *testing.T) {
	t.Parallel()

	key := ObjectKey("2026-08-23", "군산 맛집")
	require.True(t, strings.HasPrefix(key, "snapshots/2026-08-23/"))
	require.True(t, strings.HasSuffix(key, ".json"))
	require.NotContains(t, key, "군산")

	// Same inputs must land on the same object.
	require.Equal(t, key, ObjectKey("2026-08-23", "군산 맛집"))
	require.NotEqual(t, key, ObjectKey("2026-08-23", "전주 카페"))
	require.NotEqual(t, key, ObjectKey("2026-08-22", "군산 맛집"))
}

func TestMemorySaveAndReadBack(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	uri, err := m.Save(context.Background(), "snapshots/2026-08-23/abc.json", "application/json", []byte(`{"total":10}`))
	require.NoError(t, err)
	require.Equal(t, "memory://snapshots/2026-08-23/abc.json", uri)

	data, ok := m.Object("snapshots/2026-08-23/abc.json")
	require.True(t, ok)
	require.JSONEq(t, `{"total":10}`, string(data))
	require.Equal(t, 1, m.Len())
}

func TestMemoryCopiesPayload(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	payload := []byte("original")
	_, err := m.Save(context.Background(), "k", "", payload)
	require.NoError(t, err)

	payload[0] = 'X'
	data, ok := m.Object("k")
	require.True(t, ok)
	require.Equal(t, "original", string(data))
}

func TestNoopDiscards(t *testing.T) {
	t.Parallel()

	uri, err := Noop{}.Save(context.Background(), "k", "application/json", []byte("data"))
	require.NoError(t, err)
	require.Empty(t, uri)
}
