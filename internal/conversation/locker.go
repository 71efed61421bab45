package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockNotAcquired is returned when another turn for the same conversation
// holds the lock for longer than the caller is willing to wait.
var ErrLockNotAcquired = errors.New("conversation: lock not acquired")

// Locker serializes turns that share a key.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

const (
	defaultLockTTL   = 45 * time.Second
	defaultLockWait  = 10 * time.Second
	lockPollInterval = 50 * time.Millisecond
)

// RedisLocker holds a per-key Redis lease across processes. The lease expires
// after ttl so a crashed holder cannot wedge a conversation.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
}

func NewRedisLocker(client *redis.Client, ttl, wait time.Duration) *RedisLocker {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	if wait < 0 {
		wait = defaultLockWait
	}
	return &RedisLocker{client: client, ttl: ttl, wait: wait}
}

func (l *RedisLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	key = lockKey(key)
	token := uuid.NewString()

	if err := l.acquire(ctx, key, token); err != nil {
		return err
	}
	defer func() {
		// Released on a fresh context so a cancelled turn still frees the key.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = l.release(releaseCtx, key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

func (l *RedisLocker) acquire(ctx context.Context, key, token string) error {
	deadline := time.Now().Add(l.wait)
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("conversation: acquire lock: %w", err)
		}
		if ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			return ErrLockNotAcquired
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrLockNotAcquired, ctx.Err())
		case <-time.After(lockPollInterval):
		}
	}
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *RedisLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("conversation: release lock: %w", err)
	}
	return nil
}

func lockKey(key string) string {
	return fmt.Sprintf("lock:conversation:%s", key)
}

// MemoryLocker is a keyed mutex for single-process deployments and tests.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*memoryLock
}

type memoryLock struct {
	sem  chan struct{}
	refs int
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]*memoryLock)}
}

func (m *MemoryLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	lock := m.ref(key)
	defer m.unref(key)

	select {
	case lock.sem <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrLockNotAcquired, ctx.Err())
	}
	defer func() { <-lock.sem }()

	return fn(ctx)
}

func (m *MemoryLocker) ref(key string) *memoryLock {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[key]
	if !ok {
		lock = &memoryLock{sem: make(chan struct{}, 1)}
		m.locks[key] = lock
	}
	lock.refs++
	return lock
}

func (m *MemoryLocker) unref(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock := m.locks[key]
	lock.refs--
	if lock.refs == 0 {
		delete(m.locks, key)
	}
}
