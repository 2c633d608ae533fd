package domain

import "encoding/json"

// TxSummary is the detail record for a single on-chain transaction.
// Amounts are lovelace (1 ADA = 1,000,000 lovelace).
type TxSummary struct {
	TxHash              string // unique per chain
	BlockHeight         int64
	TimestampUnix       int64 // block time, Unix seconds
	TotalOutputLovelace int64
	FeeLovelace         int64
}

// TxInput is one consumed UTXO of a transaction. StakeAddr is empty for
// enterprise/script addresses that carry no staking part.
type TxInput struct {
	StakeAddr   string
	PaymentAddr string
}

// TxOutput is one produced UTXO of a transaction.
type TxOutput struct {
	StakeAddr     string
	PaymentAddr   string
	ValueLovelace int64
}

// UtxoSet holds the inputs and outputs of a transaction, joined to its
// TxSummary by TxHash.
type UtxoSet struct {
	TxHash  string
	Inputs  []TxInput
	Outputs []TxOutput
}

// InputStakeSet returns the set of distinct non-empty stake addresses
// appearing among the inputs.
func (u *UtxoSet) InputStakeSet() map[string]struct{} {
	set := make(map[string]struct{}, len(u.Inputs))
	for _, in := range u.Inputs {
		if in.StakeAddr != "" {
			set[in.StakeAddr] = struct{}{}
		}
	}
	return set
}

// TxMetadata is the opaque on-chain metadata attached to a transaction,
// kept as raw JSON and passed through to the output unparsed.
type TxMetadata struct {
	TxHash   string
	Metadata json.RawMessage
}
