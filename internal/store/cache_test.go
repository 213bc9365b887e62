package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachePutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	db, _ := testDB(t)
	cache := db.Cache(0)

	require.NoError(t, cache.Put(ctx, "giá vàng hôm nay", "SJC 120 triệu"))

	got, ok, err := cache.Get(ctx, "giá vàng hôm nay")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "SJC 120 triệu", got)
}

func TestCacheMiss(t *testing.T) {
	db, _ := testDB(t)

	_, ok, err := db.Cache(0).Get(context.Background(), "nothing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCacheTTLBoundary(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		age   time.Duration
		valid bool
	}{
		{"fresh", 0, true},
		{"five minutes", 5 * time.Minute, true},
		{"just under ttl", DefaultCacheTTL - time.Millisecond, true},
		{"exactly ttl", DefaultCacheTTL, false},
		{"past ttl", DefaultCacheTTL + time.Hour, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, clock := testDB(t)
			cache := db.Cache(0)
			require.NoError(t, cache.Put(ctx, "k", "v"))

			clock.Advance(tt.age)
			got, ok, err := cache.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, tt.valid, ok)

			var rows int
			require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM cache WHERE query = 'k'").Scan(&rows))
			if tt.valid {
				assert.Equal(t, "v", got)
				assert.Equal(t, 1, rows)
			} else {
				assert.Empty(t, got)
				assert.Equal(t, 0, rows, "expired entry should be deleted on read")
			}
		})
	}
}

func TestCachePutResetsTimestamp(t *testing.T) {
	ctx := context.Background()
	db, clock := testDB(t)
	cache := db.Cache(0)

	require.NoError(t, cache.Put(ctx, "k", "old"))
	clock.Advance(9 * time.Minute)
	require.NoError(t, cache.Put(ctx, "k", "new"))
	clock.Advance(9 * time.Minute)

	got, ok, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "new", got)
}

func TestCacheKeysAreExact(t *testing.T) {
	ctx := context.Background()
	db, _ := testDB(t)
	cache := db.Cache(0)

	require.NoError(t, cache.Put(ctx, "Weather", "sunny"))

	for _, k := range []string{"weather", "Weather ", " Weather"} {
		_, ok, err := cache.Get(ctx, k)
		require.NoError(t, err)
		assert.False(t, ok, "key %q should not match", k)
	}
}

func TestCacheClearExpired(t *testing.T) {
	ctx := context.Background()
	db, clock := testDB(t)
	cache := db.Cache(time.Minute)

	require.NoError(t, cache.Put(ctx, "old", "1"))
	clock.Advance(2 * time.Minute)
	require.NoError(t, cache.Put(ctx, "new", "2"))

	n, err := cache.ClearExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, ok, _ := cache.Get(ctx, "new")
	assert.True(t, ok)
}

func TestCacheClearAllAndDelete(t *testing.T) {
	ctx := context.Background()
	db, _ := testDB(t)
	cache := db.Cache(0)

	require.NoError(t, cache.Put(ctx, "a", "1"))
	require.NoError(t, cache.Put(ctx, "b", "2"))
	require.NoError(t, cache.Delete(ctx, "a"))
	require.NoError(t, cache.Delete(ctx, "missing"))

	n, err := cache.ClearAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestCachePruneBefore(t *testing.T) {
	ctx := context.Background()
	db, clock := testDB(t)
	cache := db.Cache(0)

	require.NoError(t, cache.Put(ctx, "old", "1"))
	clock.Advance(time.Hour)
	cutoff := clock.Now()
	require.NoError(t, cache.Put(ctx, "at-cutoff", "2"))

	n, err := cache.PruneBefore(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, ok, _ := cache.Get(ctx, "at-cutoff")
	assert.True(t, ok, "entries written at the cutoff are kept")
}
