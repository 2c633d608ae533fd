// Package bucket loads the treasury bucket file: a CSV mapping stake
// addresses to reporting buckets, labels, and controllers.
package bucket

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"treasury-valuation/internal/address"
	"treasury-valuation/internal/domain"
)

// Header is the required first line of a bucket file.
var Header = []string{"bucket", "label", "controller", "stake_address"}

// Entry is one row of a bucket file.
type Entry struct {
	Bucket       string
	Label        string
	Controller   string
	StakeAddress string
}

// Load reads and validates a bucket file. Every row must carry a bucket
// name and a well-formed stake address; label and controller may be
// empty. Duplicate stake addresses are rejected.
func Load(r io.Reader) ([]Entry, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("bucket file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if err := checkHeader(header); err != nil {
		return nil, err
	}

	var entries []Entry
	seen := make(map[string]int)
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		entry := Entry{
			Bucket:       strings.TrimSpace(row[0]),
			Label:        strings.TrimSpace(row[1]),
			Controller:   strings.TrimSpace(row[2]),
			StakeAddress: strings.TrimSpace(row[3]),
		}
		if entry.Bucket == "" {
			return nil, fmt.Errorf("line %d: bucket is required", line)
		}
		if err := address.ValidateStakeAddress(entry.StakeAddress); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if prev, ok := seen[entry.StakeAddress]; ok {
			return nil, fmt.Errorf("line %d: stake address already listed on line %d", line, prev)
		}
		seen[entry.StakeAddress] = line
		entries = append(entries, entry)
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("bucket file has no entries")
	}
	return entries, nil
}

// LoadFile loads a bucket file from disk.
func LoadFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bucket file: %w", err)
	}
	defer f.Close()

	entries, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return entries, nil
}

// Queries turns bucket entries into stake queries sharing one cutoff.
func Queries(entries []Entry, cutoff time.Time) []domain.StakeQuery {
	queries := make([]domain.StakeQuery, len(entries))
	for i, e := range entries {
		queries[i] = domain.StakeQuery{
			StakeAddress: e.StakeAddress,
			CutoffDate:   cutoff,
			Bucket:       e.Bucket,
			Label:        e.Label,
			Controller:   e.Controller,
		}
	}
	return queries
}

func checkHeader(header []string) error {
	if len(header) != len(Header) {
		return fmt.Errorf("expected header %s, got %s", strings.Join(Header, ","), strings.Join(header, ","))
	}
	for i, want := range Header {
		if strings.TrimSpace(strings.ToLower(header[i])) != want {
			return fmt.Errorf("expected header column %d to be %q, got %q", i+1, want, header[i])
		}
	}
	return nil
}
