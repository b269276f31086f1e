package cache

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testingpkg "github.com/aristath/tailrisk/internal/testing"
)

func setupTestCache(t *testing.T) (*Cache, func()) {
	t.Helper()

	db, cleanup := testingpkg.NewTestDB(t, "cache")

	c, err := New(db.Conn())
	require.NoError(t, err)

	return c, cleanup
}

type cachedProfile struct {
	RunID  string             `msgpack:"run_id"`
	VaR    map[string]float64 `msgpack:"var"`
	Series []float64          `msgpack:"series"`
}

func TestCacheRoundTrip(t *testing.T) {
	c, cleanup := setupTestCache(t)
	defer cleanup()

	stored := cachedProfile{
		RunID:  "abc123",
		VaR:    map[string]float64{"historical": -5.0, "parametric": -4.8},
		Series: []float64{1.1, -2.2, 3.3},
	}
	require.NoError(t, c.Set("riskprofile:test", stored, time.Minute))

	var loaded cachedProfile
	require.NoError(t, c.Get("riskprofile:test", &loaded))
	assert.Equal(t, stored, loaded)
}

func TestCacheOverwrite(t *testing.T) {
	c, cleanup := setupTestCache(t)
	defer cleanup()

	require.NoError(t, c.Set("key", "first", time.Minute))
	require.NoError(t, c.Set("key", "second", time.Minute))

	var value string
	require.NoError(t, c.Get("key", &value))
	assert.Equal(t, "second", value)
}

func TestCacheExpiry(t *testing.T) {
	c, cleanup := setupTestCache(t)
	defer cleanup()

	// Already expired at write time.
	require.NoError(t, c.Set("stale", "value", -time.Second))

	var value string
	err := c.Get("stale", &value)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	// The expired row is deleted lazily by the failed read.
	assert.Zero(t, c.GetExpiresAt("stale"))
}

func TestCacheMiss(t *testing.T) {
	c, cleanup := setupTestCache(t)
	defer cleanup()

	var value string
	assert.ErrorIs(t, c.Get("absent", &value), sql.ErrNoRows)
}

func TestCacheDelete(t *testing.T) {
	c, cleanup := setupTestCache(t)
	defer cleanup()

	require.NoError(t, c.Set("gone", 42, time.Minute))
	require.NoError(t, c.Delete("gone"))

	var value int
	assert.ErrorIs(t, c.Get("gone", &value), sql.ErrNoRows)
}

func TestCacheDeleteByPrefix(t *testing.T) {
	c, cleanup := setupTestCache(t)
	defer cleanup()

	require.NoError(t, c.Set("riskprofile:a", 1, time.Minute))
	require.NoError(t, c.Set("riskprofile:b", 2, time.Minute))
	require.NoError(t, c.Set("other:c", 3, time.Minute))

	require.NoError(t, c.DeleteByPrefix("riskprofile:"))

	var value int
	assert.ErrorIs(t, c.Get("riskprofile:a", &value), sql.ErrNoRows)
	assert.ErrorIs(t, c.Get("riskprofile:b", &value), sql.ErrNoRows)
	assert.NoError(t, c.Get("other:c", &value))
}

func TestCleanupExpired(t *testing.T) {
	c, cleanup := setupTestCache(t)
	defer cleanup()

	require.NoError(t, c.Set("stale1", 1, -time.Second))
	require.NoError(t, c.Set("stale2", 2, -time.Second))
	require.NoError(t, c.Set("fresh", 3, time.Minute))

	removed, err := c.CleanupExpired()
	require.NoError(t, err)
	assert.EqualValues(t, 2, removed)

	var value int
	assert.NoError(t, c.Get("fresh", &value))
}
