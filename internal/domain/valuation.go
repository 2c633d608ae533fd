package domain

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Transaction direction relative to the queried stake key.
const (
	TxTypeIn  = "in"  // the queried stake key did not fund the transaction
	TxTypeOut = "out" // the queried stake key appears among the inputs
)

// ValuationRecord is one normalized output row per transaction. Derived,
// never mutated after creation.
type ValuationRecord struct {
	Bucket         string
	Label          string
	Controller     string
	StakeAddress   string
	PaymentAddress string // set only when the stake address maps to exactly one payment address
	TxHash         string
	TxTime         string // formatted block time
	BlockHeight    int64
	AmountADA      decimal.Decimal // total transaction output in ADA
	FeeADA         decimal.Decimal
	TxType         string          // TxTypeIn or TxTypeOut
	OutputADA      decimal.Decimal // value that changed hands, change excluded
	AmountUSD      decimal.Decimal
	ADAUSDRate     decimal.Decimal
	TotalOutputADA decimal.Decimal // OutputADA + FeeADA for outbound, OutputADA otherwise
	Metadata       json.RawMessage
}
