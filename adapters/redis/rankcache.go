// Package redis implements the volatile rank-cache port on Redis.
// Everything here is advisory. The durable stores remain authoritative and
// callers treat failures from this package as warnings.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/artpar/tokenrank/ports"
	goredis "github.com/redis/go-redis/v9"
)

const (
	windowKeyPrefix     = "rank:"
	memberKeyPrefix     = "user:"
	throughputKeyPrefix = "system:throughput:"
	peakKey             = "system:throughput:peak"
)

// RankCache implements ports.RankCache on a Redis connection.
type RankCache struct {
	rdb *goredis.Client
}

// Open connects to Redis and verifies the connection with a short ping.
func Open(ctx context.Context, addr, password string, db int) (*RankCache, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RankCache{rdb: rdb}, nil
}

// Close releases the underlying connection pool.
func (c *RankCache) Close() error {
	return c.rdb.Close()
}

// HealthCheck pings the Redis server.
func (c *RankCache) HealthCheck(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// IncrWindow adds delta to the member's score in a ranking window sorted set.
func (c *RankCache) IncrWindow(ctx context.Context, window, member string, delta int64) error {
	return c.rdb.ZIncrBy(ctx, windowKeyPrefix+window, float64(delta), member).Err()
}

// IncrMemberTotal adds delta to the member's volatile summary counter.
func (c *RankCache) IncrMemberTotal(ctx context.Context, member string, delta int64) error {
	return c.rdb.HIncrBy(ctx, memberKeyPrefix+member, "total_tokens", delta).Err()
}

// IncrThroughput adds delta to the per-second bucket and refreshes its TTL.
// INCRBY and EXPIRE run in one pipeline round trip.
func (c *RankCache) IncrThroughput(ctx context.Context, second int64, delta int64, ttl time.Duration) (int64, error) {
	key := throughputKeyPrefix + strconv.FormatInt(second, 10)
	pipe := c.rdb.Pipeline()
	incr := pipe.IncrBy(ctx, key, delta)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// Peak returns the all-time peak per-second token total, 0 if unset.
func (c *RankCache) Peak(ctx context.Context) (int64, error) {
	v, err := c.rdb.Get(ctx, peakKey).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return v, nil
}

// SetPeak stores a new peak value. No compare-and-set; a concurrent writer
// can overwrite a higher value, which the reporting surface tolerates.
func (c *RankCache) SetPeak(ctx context.Context, v int64) error {
	return c.rdb.Set(ctx, peakKey, v, 0).Err()
}

var _ ports.RankCache = (*RankCache)(nil)
