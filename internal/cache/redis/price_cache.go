package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/knoxfield/regimebot/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes. Each scalar
// series (a symbol price, DXY, BTC dominance) is stored at "series:{key}"
// with fields "value" and "ts" (Unix nanosecond timestamp), so readers can
// apply their own freshness windows.
type PriceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPriceCache creates a PriceCache backed by the given Client. Entries
// expire after ttl; zero disables expiry.
func NewPriceCache(c *Client, ttl time.Duration) *PriceCache {
	return &PriceCache{rdb: c.Underlying(), ttl: ttl}
}

func seriesKey(key string) string {
	return "series:" + key
}

// Set stores the latest value and observation time for a series.
func (pc *PriceCache) Set(ctx context.Context, key string, value float64, ts time.Time) error {
	rkey := seriesKey(key)
	fields := map[string]interface{}{
		"value": strconv.FormatFloat(value, 'f', -1, 64),
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	}
	pipe := pc.rdb.Pipeline()
	pipe.HSet(ctx, rkey, fields)
	if pc.ttl > 0 {
		pipe.Expire(ctx, rkey, pc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set series %s: %w", key, err)
	}
	return nil
}

// Get retrieves the latest value and observation time for a series. It
// returns domain.ErrNotFound when the key does not exist.
func (pc *PriceCache) Get(ctx context.Context, key string) (float64, time.Time, error) {
	vals, err := pc.rdb.HGetAll(ctx, seriesKey(key)).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get series %s: %w", key, err)
	}
	if len(vals) == 0 {
		return 0, time.Time{}, domain.ErrNotFound
	}

	valueStr, ok := vals["value"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse series value %s: %w", key, err)
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse series ts %s: %w", key, err)
	}

	return value, time.Unix(0, tsNano), nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
