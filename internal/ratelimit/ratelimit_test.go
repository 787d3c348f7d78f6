package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/showbook-chat/internal/config"
)

func newLimiter(t *testing.T, capacity int) (*Limiter, *time.Time) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	l := New(config.RateLimitConfig{
		Enabled:        true,
		Capacity:       capacity,
		RefillTokens:   1,
		RefillInterval: time.Second,
		TTL:            time.Minute,
		KeyStrategy:    "ip",
		Prefix:         "rl",
	}, rdb)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestBucketDrainsAndRefills(t *testing.T) {
	l, now := newLimiter(t, 2)
	ctx := context.Background()

	for i := range 2 {
		d, err := l.Allow(ctx, "wa:919800000001")
		require.NoError(t, err)
		assert.True(t, d.Allowed, "request %d", i)
	}
	d, err := l.Allow(ctx, "wa:919800000001")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, time.Second, d.RetryAfter)

	other, err := l.Allow(ctx, "wa:919800000002")
	require.NoError(t, err)
	assert.True(t, other.Allowed, "buckets are per key")

	*now = now.Add(1500 * time.Millisecond)
	d, err = l.Allow(ctx, "wa:919800000001")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Zero(t, d.Remaining)
}

func TestDisabledLimiterAllowsEverything(t *testing.T) {
	l := New(config.RateLimitConfig{Enabled: false, Capacity: 1}, nil)
	assert.False(t, l.Enabled())
	for range 5 {
		d, err := l.Allow(context.Background(), "k")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}
}

func TestLimiterFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	mr.Close()

	l := New(config.RateLimitConfig{Enabled: true, Capacity: 1, RefillTokens: 1, RefillInterval: time.Second, TTL: time.Minute}, rdb)
	d, err := l.Allow(context.Background(), "k")
	assert.Error(t, err)
	assert.True(t, d.Allowed)
}

func TestMiddlewareRejectsWithRetryAfter(t *testing.T) {
	l, _ := newLimiter(t, 1)
	e := echo.New()
	e.POST("/v1/tickets/verify", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, Middleware(l, "ip"))

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/tickets/verify", nil)
		req.RemoteAddr = "10.0.0.7:5555"
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}

	first := do()
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", first.Header().Get("X-RateLimit-Remaining"))

	second := do()
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "1", second.Header().Get("Retry-After"))
	assert.Contains(t, second.Body.String(), "too_many_requests")
}

func TestBuildRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/health")

	assert.Equal(t, "ip:192.0.2.1", buildRateKey("ip", c))
	assert.Equal(t, "route:GET /health", buildRateKey("route", c))
	assert.Equal(t, "ip:192.0.2.1:route:GET /health", buildRateKey("ip_route", c))
}
