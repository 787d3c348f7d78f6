package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisGuard(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	g := NewRedisGuard(rdb, time.Minute)
	ctx := context.Background()

	dup, err := g.Seen(ctx, "wamid.1")
	require.NoError(t, err)
	assert.False(t, dup)

	dup, err = g.Seen(ctx, "wamid.1")
	require.NoError(t, err)
	assert.True(t, dup)

	dup, err = g.Seen(ctx, "wamid.2")
	require.NoError(t, err)
	assert.False(t, dup)

	mr.FastForward(time.Minute + time.Second)
	dup, err = g.Seen(ctx, "wamid.1")
	require.NoError(t, err)
	assert.False(t, dup, "window elapsed")
}

func TestRedisGuardError(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	mr.Close()

	_, err := NewRedisGuard(rdb, time.Minute).Seen(context.Background(), "wamid.1")
	assert.Error(t, err)
}

func TestMemoryGuard(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g := NewMemoryGuard(time.Minute)
	g.now = func() time.Time { return now }
	ctx := context.Background()

	dup, _ := g.Seen(ctx, "wamid.1")
	assert.False(t, dup)
	dup, _ = g.Seen(ctx, "wamid.1")
	assert.True(t, dup)

	now = now.Add(time.Minute)
	dup, _ = g.Seen(ctx, "wamid.1")
	assert.False(t, dup)
	assert.Len(t, g.seen, 1)
}

func TestEmptyIDIsNeverDuplicate(t *testing.T) {
	g := NewMemoryGuard(time.Minute)
	for range 3 {
		dup, err := g.Seen(context.Background(), "")
		require.NoError(t, err)
		assert.False(t, dup)
	}
}
