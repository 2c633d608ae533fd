package chainindex

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// AddressTx is one entry of an address_txs response.
type AddressTx struct {
	TxHash      string
	BlockHeight int64
	BlockTime   int64
}

// TxInfoRecord is one entry of a tx_info response with lovelace amounts
// already parsed.
type TxInfoRecord struct {
	TxHash              string
	BlockHeight         int64
	TxTimestamp         int64
	TotalOutputLovelace int64
	FeeLovelace         int64
}

// UtxoEntry is one input or output of a transaction.
type UtxoEntry struct {
	StakeAddr     string // empty when the address has no staking part
	PaymentAddr   string
	ValueLovelace int64 // zero for inputs
}

// UtxoRecord is one entry of a tx_utxos response.
type UtxoRecord struct {
	TxHash  string
	Inputs  []UtxoEntry
	Outputs []UtxoEntry
}

// MetadataRecord is one entry of a tx_metadata response.
type MetadataRecord struct {
	TxHash   string
	Metadata json.RawMessage
}

// parseLovelace parses a lovelace amount that the indexer serializes as
// either a JSON string or a bare number.
func parseLovelace(raw json.RawMessage) (int64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}
	s := strings.Trim(string(raw), `"`)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse lovelace %q: %w", s, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("negative lovelace amount %d", v)
	}
	return v, nil
}

// Batches splits hashes into chunks of at most size.
func Batches(hashes []string, size int) [][]string {
	if size <= 0 {
		size = DefaultBatchSize
	}
	var out [][]string
	for start := 0; start < len(hashes); start += size {
		end := start + size
		if end > len(hashes) {
			end = len(hashes)
		}
		out = append(out, hashes[start:end])
	}
	return out
}
