// Package pricing resolves the USD-per-ADA rate for a calendar date.
// Resolution is an ordered list of sources tried in sequence; the last
// source in the default chain is a constant, so a run never fails solely
// because price data is unavailable.
package pricing

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultFallbackRate is the rate of last resort.
var DefaultFallbackRate = decimal.NewFromFloat(0.25)

// ErrUnavailable is returned by a source that cannot produce a rate.
var ErrUnavailable = errors.New("price unavailable")

// Source produces a USD-per-ADA rate for a date. A source either returns
// a positive rate or an error; zero is never a valid rate.
type Source interface {
	Name() string
	Resolve(ctx context.Context, date time.Time) (decimal.Decimal, error)
}

// ConstantSource always returns a fixed rate.
type ConstantSource struct {
	Rate decimal.Decimal
}

// NewConstantSource creates a constant source.
func NewConstantSource(rate decimal.Decimal) *ConstantSource {
	return &ConstantSource{Rate: rate}
}

func (s *ConstantSource) Name() string { return "constant" }

func (s *ConstantSource) Resolve(_ context.Context, _ time.Time) (decimal.Decimal, error) {
	return s.Rate, nil
}

var _ Source = (*ConstantSource)(nil)
