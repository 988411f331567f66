package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/go-redis/redis/v8"

	"github.com/selivandex/price-tracker/pkg/models"
)

// LatestPricesKey holds the serialized latest-price view
const LatestPricesKey = "prices:latest:v2"

// LatestGenerationKey is bumped on every invalidation. A view stored under an
// older generation is treated as a miss, so a fill racing an update never wins.
const LatestGenerationKey = "prices:latest:gen"

// cacheStore is the subset of Client used by the view cache
type cacheStore interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
}

// cachedView is the stored form of the latest-price list
type cachedView struct {
	Generation int64                `json:"generation"`
	Prices     []models.LatestPrice `json:"prices"`
}

// ViewCache keeps the latest-price list in Redis until the next update
type ViewCache struct {
	store cacheStore
	ttl   time.Duration
}

// NewViewCache creates new latest-price view cache
func NewViewCache(store cacheStore, ttl time.Duration) *ViewCache {
	return &ViewCache{store: store, ttl: ttl}
}

// Generation returns the current cache generation; 0 before the first invalidation
func (c *ViewCache) Generation(ctx context.Context) (int64, error) {
	gen, err := c.store.Get(ctx, LatestGenerationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read latest prices generation: %w", err)
	}
	return gen, nil
}

// GetLatest returns cached view; ok is false on a miss or a stale generation
func (c *ViewCache) GetLatest(ctx context.Context) ([]models.LatestPrice, bool, error) {
	raw, err := c.store.Get(ctx, LatestPricesKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read latest prices cache: %w", err)
	}

	var view cachedView
	if err := json.Unmarshal(raw, &view); err != nil {
		return nil, false, fmt.Errorf("failed to decode latest prices cache: %w", err)
	}

	gen, err := c.Generation(ctx)
	if err != nil {
		return nil, false, err
	}
	if view.Generation != gen {
		return nil, false, nil
	}

	return view.Prices, true, nil
}

// SetLatest stores the view computed under generation with TTL
func (c *ViewCache) SetLatest(ctx context.Context, generation int64, prices []models.LatestPrice) error {
	raw, err := json.Marshal(cachedView{Generation: generation, Prices: prices})
	if err != nil {
		return fmt.Errorf("failed to encode latest prices: %w", err)
	}

	if err := c.store.Set(ctx, LatestPricesKey, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write latest prices cache: %w", err)
	}
	return nil
}

// Invalidate bumps the generation and drops the cached view
func (c *ViewCache) Invalidate(ctx context.Context) error {
	if err := c.store.Incr(ctx, LatestGenerationKey).Err(); err != nil {
		return fmt.Errorf("failed to bump latest prices generation: %w", err)
	}
	if err := c.store.Del(ctx, LatestPricesKey).Err(); err != nil {
		return fmt.Errorf("failed to invalidate latest prices cache: %w", err)
	}
	return nil
}
