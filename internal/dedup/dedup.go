// Package dedup drops duplicate deliveries of inbound messages.  The
// messaging platform retries a webhook it considers unacknowledged, so the
// same event id can arrive more than once within a short window.
package dedup

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Guard remembers event ids for a trailing window.  Seen records id and
// reports whether it had already been recorded within the window.  An empty
// id is never a duplicate.
type Guard interface {
	Seen(ctx context.Context, id string) (bool, error)
}

// RedisGuard records ids with SET NX and an expiry equal to the window, so
// duplicates are detected across instances.
type RedisGuard struct {
	rdb    *redis.Client
	window time.Duration
	prefix string
}

func NewRedisGuard(rdb *redis.Client, window time.Duration) *RedisGuard {
	return &RedisGuard{rdb: rdb, window: window, prefix: "wa:event:"}
}

func (g *RedisGuard) Seen(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	fresh, err := g.rdb.SetNX(ctx, g.prefix+id, 1, g.window).Result()
	if err != nil {
		return false, err
	}
	return !fresh, nil
}

// MemoryGuard is the single-process Guard.  Entries older than the window
// are purged lazily on every check.
type MemoryGuard struct {
	mu     sync.Mutex
	seen   map[string]time.Time
	window time.Duration
	now    func() time.Time
}

func NewMemoryGuard(window time.Duration) *MemoryGuard {
	return &MemoryGuard{seen: make(map[string]time.Time), window: window, now: time.Now}
}

func (g *MemoryGuard) Seen(_ context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	for k, at := range g.seen {
		if now.Sub(at) >= g.window {
			delete(g.seen, k)
		}
	}
	if _, ok := g.seen[id]; ok {
		return true, nil
	}
	g.seen[id] = now
	return false, nil
}
