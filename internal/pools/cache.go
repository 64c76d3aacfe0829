package pools

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"ammdesk/internal/model"
)

const poolKeyPrefix = "ammdesk:pool:"

// Cache is a redis-backed pool snapshot cache. A nil Cache is valid
// and caches nothing.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewCache wraps a redis client. TTL of zero defaults to 30 seconds.
func NewCache(rdb *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Cache{rdb: rdb, ttl: ttl}
}

// GetPool returns the cached snapshot, or nil on miss.
func (c *Cache) GetPool(ctx context.Context, address string) (*model.Pool, error) {
	if c == nil || c.rdb == nil {
		return nil, nil
	}
	raw, err := c.rdb.Get(ctx, poolKeyPrefix+address).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var pool model.Pool
	if err := json.Unmarshal(raw, &pool); err != nil {
		return nil, err
	}
	return &pool, nil
}

// SetPool stores a snapshot with the configured TTL.
func (c *Cache) SetPool(ctx context.Context, pool model.Pool) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	raw, err := json.Marshal(pool)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, poolKeyPrefix+pool.Address, raw, c.ttl).Err()
}
