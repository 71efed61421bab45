package clinic

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	*StaticSource
	hoursCalls int
}

func (c *countingSource) BusinessHours(ctx context.Context, weekday int) (DayHours, error) {
	c.hoursCalls++
	return c.StaticSource.BusinessHours(ctx, weekday)
}

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestCachedSourceReadsThrough(t *testing.T) {
	mr, client := setupTestRedis(t)
	backing := &countingSource{StaticSource: NewDefaultSource()}
	cache := NewCachedSource(backing, client, time.Minute, nil)
	ctx := context.Background()

	first, err := cache.BusinessHours(ctx, 0)
	require.NoError(t, err)
	second, err := cache.BusinessHours(ctx, 0)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, civil.Time{Hour: 18}, second.Close)
	assert.Equal(t, 1, backing.hoursCalls)
	assert.True(t, mr.Exists("clinic:hours:0"))

	mr.FastForward(2 * time.Minute)
	_, err = cache.BusinessHours(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, backing.hoursCalls)
}

func TestCachedSourceDoesNotCacheMisses(t *testing.T) {
	mr, client := setupTestRedis(t)
	cache := NewCachedSource(NewDefaultSource(), client, time.Minute, nil)

	_, err := cache.Procedure(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, mr.Exists("clinic:procedure:nope"))
}

func TestCachedSourceFallsThroughWhenRedisDown(t *testing.T) {
	mr, client := setupTestRedis(t)
	cache := NewCachedSource(NewDefaultSource(), client, time.Minute, nil)
	mr.Close()

	p, err := cache.Procedure(context.Background(), "limpeza")
	require.NoError(t, err)
	assert.Equal(t, 30, p.DurationMin)
}

func TestCachedSourceInvalidate(t *testing.T) {
	mr, client := setupTestRedis(t)
	cache := NewCachedSource(NewDefaultSource(), client, time.Minute, nil)
	ctx := context.Background()

	_, err := cache.Procedures(ctx)
	require.NoError(t, err)
	require.True(t, mr.Exists("clinic:procedures"))

	require.NoError(t, cache.Invalidate(ctx))
	assert.False(t, mr.Exists("clinic:procedures"))
}
