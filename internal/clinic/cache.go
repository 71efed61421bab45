package clinic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/odonto-agent/pkg/logging"
)

const defaultCacheTTL = 5 * time.Minute

// CachedSource is a Redis read-through cache in front of another Source.
// Redis failures are logged and fall through to the backing source.
type CachedSource struct {
	next   Source
	redis  *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

// NewCachedSource wraps next. A non-positive ttl uses five minutes.
func NewCachedSource(next Source, redisClient *redis.Client, ttl time.Duration, logger *logging.Logger) *CachedSource {
	if next == nil {
		panic("clinic: backing source required")
	}
	if redisClient == nil {
		panic("clinic: redis client required")
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &CachedSource{next: next, redis: redisClient, ttl: ttl, logger: logger}
}

func procedureKey(code string) string { return fmt.Sprintf("clinic:procedure:%s", code) }
func hoursKey(weekday int) string     { return fmt.Sprintf("clinic:hours:%d", weekday) }

const proceduresKey = "clinic:procedures"

func (c *CachedSource) Procedure(ctx context.Context, code string) (Procedure, error) {
	var p Procedure
	if c.get(ctx, procedureKey(code), &p) {
		return p, nil
	}
	p, err := c.next.Procedure(ctx, code)
	if err != nil {
		return Procedure{}, err
	}
	c.set(ctx, procedureKey(code), p)
	return p, nil
}

func (c *CachedSource) Procedures(ctx context.Context) ([]Procedure, error) {
	var procs []Procedure
	if c.get(ctx, proceduresKey, &procs) {
		return procs, nil
	}
	procs, err := c.next.Procedures(ctx)
	if err != nil {
		return nil, err
	}
	c.set(ctx, proceduresKey, procs)
	return procs, nil
}

func (c *CachedSource) BusinessHours(ctx context.Context, weekday int) (DayHours, error) {
	var h DayHours
	if c.get(ctx, hoursKey(weekday), &h) {
		return h, nil
	}
	h, err := c.next.BusinessHours(ctx, weekday)
	if err != nil {
		return DayHours{}, err
	}
	c.set(ctx, hoursKey(weekday), h)
	return h, nil
}

// Invalidate drops every cached entry, e.g. after an admin edit.
func (c *CachedSource) Invalidate(ctx context.Context) error {
	keys := []string{proceduresKey}
	for wd := 0; wd < 7; wd++ {
		keys = append(keys, hoursKey(wd))
	}
	for _, code := range ProcedureCodes() {
		keys = append(keys, procedureKey(code))
	}
	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("clinic: invalidate cache: %w", err)
	}
	return nil
}

func (c *CachedSource) get(ctx context.Context, key string, dest any) bool {
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("clinic cache read failed", "key", key, "error", err)
		}
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Warn("clinic cache entry corrupt", "key", key, "error", err)
		return false
	}
	return true
}

func (c *CachedSource) set(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("clinic cache write failed", "key", key, "error", err)
	}
}
