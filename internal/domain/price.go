package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceQuote is a USD-per-ADA rate for a calendar date. One quote is
// resolved per run and shared by every record computed in that run.
type PriceQuote struct {
	Date      time.Time
	USDPerADA decimal.Decimal
	Source    string // which price source produced the rate
}
