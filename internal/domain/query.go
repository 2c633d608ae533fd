package domain

import "time"

// StakeQuery identifies one stake address to value. Immutable input:
// the pipeline never mutates a query after construction.
type StakeQuery struct {
	StakeAddress string    // bech32 stake address (stake1...)
	CutoffDate   time.Time // calendar date; transactions before its start of day are skipped
	Label        string    // optional human-readable owner label
	Controller   string    // optional controlling entity
	Bucket       string    // optional reporting bucket name
}
