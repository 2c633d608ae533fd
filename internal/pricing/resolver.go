package pricing

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"treasury-valuation/internal/domain"
	"treasury-valuation/internal/observability"
)

// Resolver tries an ordered list of sources until one produces a rate.
type Resolver struct {
	sources []Source
	logger  *log.Logger
}

// NewResolver creates a resolver over an explicit source order.
func NewResolver(logger *log.Logger, sources ...Source) *Resolver {
	if logger == nil {
		logger = log.Default()
	}
	return &Resolver{sources: sources, logger: logger}
}

// NewDefaultResolver builds the standard three-tier chain:
// historical-by-date, then current spot, then a fixed constant.
func NewDefaultResolver(baseURL, coinID string, fallbackRate decimal.Decimal, client *http.Client, logger *log.Logger) *Resolver {
	if baseURL == "" {
		baseURL = DefaultPriceBaseURL
	}
	if coinID == "" {
		coinID = DefaultCoinID
	}
	if fallbackRate.Sign() <= 0 {
		fallbackRate = DefaultFallbackRate
	}
	return NewResolver(logger,
		NewHistoricalSource(baseURL, coinID, client),
		NewSpotSource(baseURL, coinID, client),
		NewConstantSource(fallbackRate),
	)
}

// Resolve returns a quote from the first source that succeeds. Failures
// of earlier sources are logged and absorbed; an error is returned only
// when every source fails, which the default chain cannot do.
func (r *Resolver) Resolve(ctx context.Context, date time.Time) (domain.PriceQuote, error) {
	var lastErr error
	for _, src := range r.sources {
		rate, err := src.Resolve(ctx, date)
		if err != nil {
			r.logger.Printf("price source %s failed for %s: %v", src.Name(), date.Format("2006-01-02"), err)
			lastErr = err
			continue
		}
		observability.RecordPriceResolved(src.Name())
		return domain.PriceQuote{
			Date:      date,
			USDPerADA: rate,
			Source:    src.Name(),
		}, nil
	}
	return domain.PriceQuote{}, fmt.Errorf("all price sources failed: %w", lastErr)
}

// Sources exposes the configured source order, mostly for logging.
func (r *Resolver) Sources() []string {
	names := make([]string, len(r.sources))
	for i, s := range r.sources {
		names[i] = s.Name()
	}
	return names
}
