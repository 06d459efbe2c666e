package cache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Total int64 `json:"total"`
}

func newTestCache(t *testing.T) (*RedisReportCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisReportCacheWithClient(client), mr
}

func TestRedisReportCacheRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	var got sample
	hit, err := c.Get(ctx, "dashboard", &got)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, c.Set(ctx, "dashboard", sample{Total: 42}, time.Minute))
	hit, err = c.Get(ctx, "dashboard", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, int64(42), got.Total)
}

func TestRedisReportCacheInvalidate(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "weekly", sample{Total: 1}, time.Minute))
	require.NoError(t, c.Invalidate(ctx))

	var got sample
	hit, err := c.Get(ctx, "weekly", &got)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestRedisReportCacheExpires(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "top", sample{Total: 1}, time.Second))
	mr.FastForward(2 * time.Second)

	var got sample
	hit, err := c.Get(ctx, "top", &got)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestNoopReportCacheNeverHits(t *testing.T) {
	var c ReportCache = NoopReportCache{}
	require.NoError(t, c.Set(context.Background(), "k", sample{Total: 1}, time.Minute))
	hit, err := c.Get(context.Background(), "k", &sample{})
	require.NoError(t, err)
	assert.False(t, hit)
}
