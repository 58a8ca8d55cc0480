package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"userdash/pkg/users"
)

const statsKey = "users:stats"

// StatsCache keeps the aggregate user counts in Redis.
type StatsCache struct {
	db  *redis.Client
	ttl time.Duration
}

// Connect dials Redis and verifies the connection.
func Connect(ctx context.Context, addr, password string) (*redis.Client, error) {
	const op = "cache.Connect"
	db := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	if err := db.Ping(ctx).Err(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return db, nil
}

func NewStatsCache(db *redis.Client, ttl time.Duration) *StatsCache {
	return &StatsCache{db: db, ttl: ttl}
}

// Get implements users.StatsCache. A miss is reported as ok=false with no error.
func (c *StatsCache) Get(ctx context.Context) (users.Stats, bool, error) {
	const op = "cache.Get"
	val, err := c.db.Get(ctx, statsKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return users.Stats{}, false, nil
	}
	if err != nil {
		return users.Stats{}, false, fmt.Errorf("%s: %w", op, err)
	}

	var stats users.Stats
	if err := json.Unmarshal(val, &stats); err != nil {
		return users.Stats{}, false, fmt.Errorf("%s: %w", op, err)
	}
	return stats, true, nil
}

func (c *StatsCache) Set(ctx context.Context, s users.Stats) error {
	const op = "cache.Set"
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := c.db.Set(ctx, statsKey, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (c *StatsCache) Invalidate(ctx context.Context) error {
	return c.db.Del(ctx, statsKey).Err()
}
