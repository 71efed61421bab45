package conversation

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestMemoryLockerSerializesSameKey(t *testing.T) {
	locker := NewMemoryLocker()
	var active, maxActive int32
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithLock(context.Background(), "conv-1", func(context.Context) error {
				n := atomic.AddInt32(&active, 1)
				for {
					m := atomic.LoadInt32(&maxActive)
					if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&active, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxActive)
	assert.Empty(t, locker.locks)
}

func TestMemoryLockerHonoursContext(t *testing.T) {
	locker := NewMemoryLocker()
	hold := make(chan struct{})
	released := make(chan struct{})
	go func() {
		_ = locker.WithLock(context.Background(), "conv-1", func(context.Context) error {
			close(hold)
			<-released
			return nil
		})
	}()
	<-hold

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := locker.WithLock(ctx, "conv-1", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	err = locker.WithLock(context.Background(), "conv-2", func(context.Context) error { return nil })
	assert.NoError(t, err)
	close(released)
}

func TestRedisLockerAcquiresAndReleases(t *testing.T) {
	mr, client := setupTestRedis(t)
	locker := NewRedisLocker(client, time.Minute, 0)

	var inside bool
	err := locker.WithLock(context.Background(), "conv-1", func(context.Context) error {
		inside = true
		assert.True(t, mr.Exists("lock:conversation:conv-1"))
		return nil
	})
	require.NoError(t, err)
	assert.True(t, inside)
	assert.False(t, mr.Exists("lock:conversation:conv-1"))
}

func TestRedisLockerReportsContention(t *testing.T) {
	mr, client := setupTestRedis(t)
	require.NoError(t, mr.Set("lock:conversation:conv-1", "someone-else"))
	locker := NewRedisLocker(client, time.Minute, 100*time.Millisecond)

	called := false
	err := locker.WithLock(context.Background(), "conv-1", func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrLockNotAcquired)
	assert.False(t, called)

	// The foreign lease must survive.
	got, err := mr.Get("lock:conversation:conv-1")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestRedisLockerWaitsForRelease(t *testing.T) {
	mr, client := setupTestRedis(t)
	require.NoError(t, mr.Set("lock:conversation:conv-1", "someone-else"))
	locker := NewRedisLocker(client, time.Minute, 2*time.Second)

	go func() {
		time.Sleep(100 * time.Millisecond)
		mr.Del("lock:conversation:conv-1")
	}()

	err := locker.WithLock(context.Background(), "conv-1", func(context.Context) error { return nil })
	assert.NoError(t, err)
}

func TestRedisHistoryKeepsRecentTurns(t *testing.T) {
	mr, client := setupTestRedis(t)
	history := NewRedisHistory(client)
	ctx := context.Background()
	now := time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)

	for i := 0; i < maxHistoryTurns+4; i++ {
		require.NoError(t, history.Append(ctx, "conv-1", Turn{Direction: DirectionInbound, Text: string(rune('a' + i)), At: now}))
	}

	turns, err := history.Recent(ctx, "conv-1", 3)
	require.NoError(t, err)
	require.Len(t, turns, 3)
	assert.Equal(t, string(rune('a'+maxHistoryTurns+3)), turns[2].Text)

	all, err := history.Recent(ctx, "conv-1", 0)
	require.NoError(t, err)
	assert.Len(t, all, maxHistoryTurns)
	assert.Equal(t, conversationTTL, mr.TTL("conversation:conv-1:history"))

	empty, err := history.Recent(ctx, "missing", 3)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
