package aliascache

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "alias.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "gwangjang market", NormalizeName("  Gwangjang   Market "))
	assert.Equal(t, "cafe onion", NormalizeName("Cafe\tOnion"))
	assert.Equal(t, "", NormalizeName("   "))
}

func TestFindMissReturnsEmpty(t *testing.T) {
	c := newTestCache(t)
	placeID, err := c.Find(context.Background(), "Unknown Place", "Seoul")
	require.NoError(t, err)
	assert.Empty(t, placeID)
}

func TestAddAndFind(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Add(ctx, "Gwangjang Market", "Seoul", "ChIJ123"))

	// Lookup normalizes the same way as Add.
	placeID, err := c.Find(ctx, "  gwangjang   MARKET ", "SEOUL")
	require.NoError(t, err)
	assert.Equal(t, "ChIJ123", placeID)

	// Different city is a miss.
	placeID, err = c.Find(ctx, "Gwangjang Market", "Busan")
	require.NoError(t, err)
	assert.Empty(t, placeID)
}

func TestAddIgnoresDuplicates(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Add(ctx, "Gwangjang Market", "Seoul", "ChIJ123"))
	require.NoError(t, c.Add(ctx, "Gwangjang Market", "Seoul", "ChIJ999"))

	// First write wins.
	placeID, err := c.Find(ctx, "Gwangjang Market", "Seoul")
	require.NoError(t, err)
	assert.Equal(t, "ChIJ123", placeID)
}

func TestAddIgnoresEmptyInputs(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Add(ctx, "", "Seoul", "ChIJ123"))
	require.NoError(t, c.Add(ctx, "   ", "Seoul", "ChIJ123"))
	require.NoError(t, c.Add(ctx, "Some Place", "Seoul", ""))

	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestHasPlaceID(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	ok, err := c.HasPlaceID(ctx, "ChIJ123")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Add(ctx, "Gwangjang Market", "Seoul", "ChIJ123"))
	require.NoError(t, c.Add(ctx, "Kwangjang Sijang", "Seoul", "ChIJ123"))

	ok, err = c.HasPlaceID(ctx, "ChIJ123")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.HasPlaceID(ctx, "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "alias.db")
	ctx := context.Background()

	c, err := Open(path, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, c.Add(ctx, "Gwangjang Market", "Seoul", "ChIJ123"))
	require.NoError(t, c.Close())

	c2, err := Open(path, zap.NewNop())
	require.NoError(t, err)
	defer c2.Close()

	placeID, err := c2.Find(ctx, "Gwangjang Market", "Seoul")
	require.NoError(t, err)
	assert.Equal(t, "ChIJ123", placeID)
}
