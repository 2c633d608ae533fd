package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"treasury-valuation/internal/domain"
)

// QuoteResolver is what CachedResolver wraps; satisfied by *Resolver.
type QuoteResolver interface {
	Resolve(ctx context.Context, date time.Time) (domain.PriceQuote, error)
}

// CachedResolver is a Redis read-through cache over a QuoteResolver.
// Historical quotes are stable, so cache hits skip the price API
// entirely; misses resolve and populate the cache with a TTL.
type CachedResolver struct {
	inner QuoteResolver
	rdb   *redis.Client
	ttl   time.Duration
}

// NewCachedResolver creates a cached wrapper around a resolver.
func NewCachedResolver(inner QuoteResolver, rdb *redis.Client, ttl time.Duration) *CachedResolver {
	return &CachedResolver{inner: inner, rdb: rdb, ttl: ttl}
}

type cachedQuote struct {
	Date      string `json:"date"`
	USDPerADA string `json:"usd_per_ada"`
	Source    string `json:"source"`
}

func quoteKey(date time.Time) string {
	return "price:ada:usd:" + date.UTC().Format("2006-01-02")
}

// Resolve checks Redis first, then falls back to the inner resolver.
// Cache failures are treated as misses, and quotes produced by the
// constant fallback are not cached so a later run can retry the API.
func (c *CachedResolver) Resolve(ctx context.Context, date time.Time) (domain.PriceQuote, error) {
	key := quoteKey(date)

	if data, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var cq cachedQuote
		if err := json.Unmarshal(data, &cq); err == nil {
			if rate, err := decimal.NewFromString(cq.USDPerADA); err == nil {
				return domain.PriceQuote{Date: date, USDPerADA: rate, Source: cq.Source + " (cached)"}, nil
			}
		}
	}

	quote, err := c.inner.Resolve(ctx, date)
	if err != nil {
		return domain.PriceQuote{}, err
	}

	if quote.Source != "constant" {
		c.cache(ctx, key, quote)
	}
	return quote, nil
}

func (c *CachedResolver) cache(ctx context.Context, key string, quote domain.PriceQuote) {
	data, err := json.Marshal(cachedQuote{
		Date:      quote.Date.UTC().Format("2006-01-02"),
		USDPerADA: quote.USDPerADA.String(),
		Source:    quote.Source,
	})
	if err != nil {
		return
	}
	// Best effort: a failed SET only costs a future cache miss.
	c.rdb.Set(ctx, key, data, c.ttl)
}

var _ QuoteResolver = (*CachedResolver)(nil)

// Ping verifies Redis connectivity at startup.
func Ping(ctx context.Context, rdb *redis.Client) error {
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}
