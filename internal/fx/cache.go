package fx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "fx"

// Cache keeps the most recent rate table per base currency in Redis.
type Cache struct {
	redis redis.Cmdable
	ttl   time.Duration
}

func NewCache(client redis.Cmdable, ttl time.Duration) *Cache {
	return &Cache{redis: client, ttl: ttl}
}

// Get returns the cached table for base. A miss is (Table{}, false, nil).
func (c *Cache) Get(ctx context.Context, base string) (Table, bool, error) {
	val, err := c.redis.Get(ctx, cacheKey(base)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Table{}, false, nil
	}
	if err != nil {
		return Table{}, false, fmt.Errorf("redis get fx rates: %w", err)
	}
	var t Table
	if err := json.Unmarshal(val, &t); err != nil {
		return Table{}, false, fmt.Errorf("decode cached fx rates: %w", err)
	}
	return t, true, nil
}

func (c *Cache) Set(ctx context.Context, t Table) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode fx rates: %w", err)
	}
	if err := c.redis.Set(ctx, cacheKey(t.Base), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set fx rates: %w", err)
	}
	return nil
}

func cacheKey(base string) string {
	return fmt.Sprintf("%s:%s", cacheKeyPrefix, base)
}
