package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ticketing-service/internal/models"

	"github.com/go-redis/redis/v8"
)

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client and checks the connection
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// NewFromRedis wraps an existing go-redis client
func NewFromRedis(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the Redis connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func statsKey(key string) string {
	return fmt.Sprintf("stats:%s", key)
}

// GetStats returns cached stats. A miss returns (nil, nil).
func (c *Client) GetStats(ctx context.Context, key string) (*models.BookingStats, error) {
	data, err := c.rdb.Get(ctx, statsKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get stats cache: %w", err)
	}

	var stats models.BookingStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("decode stats cache: %w", err)
	}
	return &stats, nil
}

// statsVersionTTL outlives any in-flight stats read by a wide margin
const statsVersionTTL = 24 * time.Hour

func statsVersionKey(key string) string {
	return fmt.Sprintf("stats-version:%s", key)
}

// StatsVersion returns the invalidation counter of a stats key. Read it
// before computing stats and pass it to SetStats.
func (c *Client) StatsVersion(ctx context.Context, key string) (int64, error) {
	v, err := c.rdb.Get(ctx, statsVersionKey(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get stats version: %w", err)
	}
	return v, nil
}

// SetStats caches stats computed at version. Nothing is written, and false
// is returned, when the key was invalidated after that version was read.
func (c *Client) SetStats(ctx context.Context, key string, stats models.BookingStats, ttl time.Duration, version int64) (bool, error) {
	data, err := json.Marshal(stats)
	if err != nil {
		return false, fmt.Errorf("encode stats cache: %w", err)
	}

	vkey := statsVersionKey(key)
	written := false
	err = c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, vkey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != version {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, statsKey(key), data, ttl)
			return nil
		})
		if err == nil {
			written = true
		}
		return err
	}, vkey)
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("set stats cache: %w", err)
	}
	return written, nil
}

// InvalidateStats drops cached stats and bumps their versions so reads
// already in flight cannot write their snapshot back
func (c *Client) InvalidateStats(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, key := range keys {
			pipe.Del(ctx, statsKey(key))
			pipe.Incr(ctx, statsVersionKey(key))
			pipe.Expire(ctx, statsVersionKey(key), statsVersionTTL)
		}
		return nil
	})
	return err
}

// SetIdempotencyKey claims an idempotency key. It returns false if the key
// was already claimed.
func (c *Client) SetIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("idempotency:%s", key), time.Now().Unix(), ttl).Result()
}

// ReleaseIdempotencyKey removes a claim so the work can be retried
func (c *Client) ReleaseIdempotencyKey(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("idempotency:%s", key)).Err()
}
