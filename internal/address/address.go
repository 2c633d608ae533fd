// Package address validates chain identifiers and run parameters before
// any network call is made.
package address

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/mr-tron/base58"
)

var (
	stakeAddressRe = regexp.MustCompile(`^stake1[0-9a-z]+$`)
	dateRe         = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// ValidateStakeAddress checks the bech32 stake address shape.
func ValidateStakeAddress(addr string) error {
	if addr == "" {
		return fmt.Errorf("stake address is required")
	}
	if !stakeAddressRe.MatchString(addr) {
		return fmt.Errorf("invalid stake address %q: expected stake1[0-9a-z]+", addr)
	}
	return nil
}

// ParseDate parses a strict YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	if !dateRe.MatchString(s) {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// CutoffUnix returns the start-of-day Unix timestamp (UTC) for a date.
// Transactions with a block time strictly below it are out of range.
func CutoffUnix(date time.Time) int64 {
	y, m, d := date.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix()
}

// IsShelleyPayment reports whether addr looks like a bech32 Shelley
// payment address.
func IsShelleyPayment(addr string) bool {
	return strings.HasPrefix(addr, "addr1")
}

// IsLegacyByron reports whether addr is a base58-encoded Byron-era
// address. Byron addresses have no staking part, so they can show up in
// account_addresses responses for old wallets but never classify a
// transaction.
func IsLegacyByron(addr string) bool {
	if !strings.HasPrefix(addr, "DdzFF") && !strings.HasPrefix(addr, "Ae2") {
		return false
	}
	_, err := base58.Decode(addr)
	return err == nil
}

// ValidatePaymentAddress accepts Shelley bech32 and legacy Byron base58
// payment addresses returned by the chain indexer.
func ValidatePaymentAddress(addr string) error {
	if IsShelleyPayment(addr) || IsLegacyByron(addr) {
		return nil
	}
	return fmt.Errorf("unrecognized payment address %q", addr)
}
