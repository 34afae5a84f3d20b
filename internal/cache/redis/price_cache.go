package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/etherfuse-arb/internal/domain"
)

// PriceCache stores the last observed price of an asset in a hash with the
// fields "price" and "ts" (unix nanoseconds).
type PriceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPriceCache creates a PriceCache. Entries expire after ttl when it is
// positive.
func NewPriceCache(c *Client, ttl time.Duration) *PriceCache {
	return &PriceCache{rdb: c.Underlying(), ttl: ttl}
}

func priceKey(assetID string) string {
	return keyPrefix + "price:" + assetID
}

// SetPrice stores price observed at ts.
func (pc *PriceCache) SetPrice(ctx context.Context, assetID string, price decimal.Decimal, ts time.Time) error {
	key := priceKey(assetID)
	pipe := pc.rdb.TxPipeline()
	pipe.HSet(ctx, key, "price", price.String(), "ts", strconv.FormatInt(ts.UnixNano(), 10))
	if pc.ttl > 0 {
		pipe.Expire(ctx, key, pc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set price %s: %w", assetID, err)
	}
	return nil
}

// GetPrice returns the cached price and when it was observed, or
// domain.ErrNotFound.
func (pc *PriceCache) GetPrice(ctx context.Context, assetID string) (decimal.Decimal, time.Time, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(assetID)).Result()
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("redis: get price %s: %w", assetID, err)
	}
	priceStr, okPrice := vals["price"]
	tsStr, okTS := vals["ts"]
	if !okPrice || !okTS {
		return decimal.Zero, time.Time{}, domain.ErrNotFound
	}

	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("redis: parse price %s: %w", assetID, err)
	}
	nanos, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("redis: parse ts %s: %w", assetID, err)
	}
	return price, time.Unix(0, nanos), nil
}

var _ domain.PriceCache = (*PriceCache)(nil)
