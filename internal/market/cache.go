package market

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"kginvest/internal/logging"
)

const quoteKeyPrefix = "kginvest:quote:"

// CachedSource wraps a PriceSource with a short-TTL Redis cache so
// overlapping worker cycles do not hammer the upstream provider. A nil
// Redis client makes it a passthrough.
type CachedSource struct {
	inner  PriceSource
	rdb    *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

// NewCachedSource creates a caching wrapper around source. rdb may be nil.
func NewCachedSource(source PriceSource, rdb *redis.Client, ttl time.Duration) *CachedSource {
	return &CachedSource{
		inner:  source,
		rdb:    rdb,
		ttl:    ttl,
		logger: logging.WithComponent("quote-cache"),
	}
}

// LastCloseMany serves cached closes where fresh and fetches the rest
// from the wrapped source. Cache failures degrade to a direct fetch.
func (c *CachedSource) LastCloseMany(ctx context.Context, symbols []string) (map[string]float64, error) {
	if c.rdb == nil {
		return c.inner.LastCloseMany(ctx, symbols)
	}

	out := make(map[string]float64, len(symbols))
	missing := make([]string, 0, len(symbols))

	keys := make([]string, len(symbols))
	for i, sym := range symbols {
		keys[i] = quoteKeyPrefix + sym
	}
	values, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		c.logger.Warn("quote cache read failed", "error", err)
		return c.inner.LastCloseMany(ctx, symbols)
	}
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			missing = append(missing, symbols[i])
			continue
		}
		price, perr := strconv.ParseFloat(s, 64)
		if perr != nil || price <= 0 {
			missing = append(missing, symbols[i])
			continue
		}
		out[symbols[i]] = price
	}

	if len(missing) == 0 {
		return out, nil
	}

	fetched, err := c.inner.LastCloseMany(ctx, missing)
	if err != nil {
		// Partial cache hits are still usable.
		if len(out) > 0 {
			c.logger.Warn("upstream fetch failed, serving cached subset", "cached", len(out), "error", err)
			return out, nil
		}
		return nil, err
	}

	pipe := c.rdb.Pipeline()
	for sym, price := range fetched {
		out[sym] = price
		pipe.Set(ctx, quoteKeyPrefix+sym, strconv.FormatFloat(price, 'f', -1, 64), c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("quote cache write failed", "error", err)
	}
	return out, nil
}
