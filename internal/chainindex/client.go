// Package chainindex is an HTTP client for a Koios-style chain-indexer
// API. All calls are POST with a JSON body naming the batch; responses
// are JSON arrays.
package chainindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"treasury-valuation/internal/observability"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0

	// DefaultBatchSize is the policy cap on hashes per batch request.
	DefaultBatchSize = 50
)

// Client is the consumed chain-indexer interface. The pipeline depends on
// this, not on the HTTP implementation.
type Client interface {
	AddressesForStake(ctx context.Context, stakeAddrs []string) (map[string][]string, error)
	TxHashesForAddresses(ctx context.Context, addrs []string, afterBlockHeight int64) ([]AddressTx, error)
	TxInfo(ctx context.Context, txHashes []string) ([]TxInfoRecord, error)
	TxUTXOs(ctx context.Context, txHashes []string) ([]UtxoRecord, error)
	TxMetadata(ctx context.Context, txHashes []string) ([]MetadataRecord, error)
}

// HTTPClient implements Client against a Koios-compatible base URL.
type HTTPClient struct {
	baseURL     string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// NewHTTPClient creates a chain-indexer client for the given base URL
// (e.g. https://api.koios.rest/api/v1).
func NewHTTPClient(baseURL string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		baseURL:     baseURL,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ Client = (*HTTPClient)(nil)

// post performs a JSON POST with bounded retries and exponential backoff.
// Transient failures (network errors, 429, 5xx) are retried; anything
// else fails immediately.
func (c *HTTPClient) post(ctx context.Context, endpoint string, reqBody, result interface{}) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	url := c.baseURL + endpoint
	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		reqStart := time.Now()
		resp, err := c.client.Do(req)
		observability.RecordChainIndexLatency(endpoint, time.Since(reqStart).Seconds())
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("server error %d: %s", resp.StatusCode, string(respBody))
			continue
		case resp.StatusCode != http.StatusOK:
			return fmt.Errorf("%s: unexpected status %d: %s", endpoint, resp.StatusCode, string(respBody))
		}

		if result != nil {
			if err := json.Unmarshal(respBody, result); err != nil {
				return fmt.Errorf("unmarshal %s response: %w", endpoint, err)
			}
		}
		return nil
	}

	return fmt.Errorf("%s: max retries exceeded: %w", endpoint, lastErr)
}

// AddressesForStake resolves the payment addresses of each stake address.
// The result maps stake address to its payment addresses; stake addresses
// unknown to the indexer are absent from the map.
func (c *HTTPClient) AddressesForStake(ctx context.Context, stakeAddrs []string) (map[string][]string, error) {
	req := struct {
		StakeAddresses []string `json:"_stake_addresses"`
	}{StakeAddresses: stakeAddrs}

	var result []accountAddressesResult
	if err := c.post(ctx, "/account_addresses", req, &result); err != nil {
		return nil, err
	}

	out := make(map[string][]string, len(result))
	for _, r := range result {
		out[r.StakeAddress] = r.Addresses
	}
	return out, nil
}

type accountAddressesResult struct {
	StakeAddress string   `json:"stake_address"`
	Addresses    []string `json:"addresses"`
}

// TxHashesForAddresses lists transactions touching any of the payment
// addresses. afterBlockHeight > 0 bounds the lookup to blocks above it.
func (c *HTTPClient) TxHashesForAddresses(ctx context.Context, addrs []string, afterBlockHeight int64) ([]AddressTx, error) {
	req := map[string]interface{}{
		"_addresses": addrs,
	}
	if afterBlockHeight > 0 {
		req["_after_block_height"] = afterBlockHeight
	}

	var result []addressTxResult
	if err := c.post(ctx, "/address_txs", req, &result); err != nil {
		return nil, err
	}

	txs := make([]AddressTx, len(result))
	for i, r := range result {
		txs[i] = AddressTx{
			TxHash:      r.TxHash,
			BlockHeight: r.BlockHeight,
			BlockTime:   r.BlockTime,
		}
	}
	return txs, nil
}

type addressTxResult struct {
	TxHash      string `json:"tx_hash"`
	BlockHeight int64  `json:"block_height"`
	BlockTime   int64  `json:"block_time"`
}

// TxInfo fetches detail records for a batch of hashes.
func (c *HTTPClient) TxInfo(ctx context.Context, txHashes []string) ([]TxInfoRecord, error) {
	req := txHashBatch{TxHashes: txHashes}

	var result []txInfoResult
	if err := c.post(ctx, "/tx_info", req, &result); err != nil {
		return nil, err
	}

	infos := make([]TxInfoRecord, 0, len(result))
	for _, r := range result {
		totalOutput, err := parseLovelace(r.TotalOutput)
		if err != nil {
			return nil, fmt.Errorf("tx %s: total_output: %w", r.TxHash, err)
		}
		fee, err := parseLovelace(r.Fee)
		if err != nil {
			return nil, fmt.Errorf("tx %s: fee: %w", r.TxHash, err)
		}
		infos = append(infos, TxInfoRecord{
			TxHash:              r.TxHash,
			BlockHeight:         r.BlockHeight,
			TxTimestamp:         r.TxTimestamp,
			TotalOutputLovelace: totalOutput,
			FeeLovelace:         fee,
		})
	}
	return infos, nil
}

type txHashBatch struct {
	TxHashes []string `json:"_tx_hashes"`
}

type txInfoResult struct {
	TxHash      string          `json:"tx_hash"`
	BlockHeight int64           `json:"block_height"`
	TxTimestamp int64           `json:"tx_timestamp"`
	TotalOutput json.RawMessage `json:"total_output"`
	Fee         json.RawMessage `json:"fee"`
}

// TxUTXOs fetches input/output sets for a batch of hashes.
func (c *HTTPClient) TxUTXOs(ctx context.Context, txHashes []string) ([]UtxoRecord, error) {
	req := txHashBatch{TxHashes: txHashes}

	var result []txUtxosResult
	if err := c.post(ctx, "/tx_utxos", req, &result); err != nil {
		return nil, err
	}

	records := make([]UtxoRecord, 0, len(result))
	for _, r := range result {
		rec := UtxoRecord{TxHash: r.TxHash}
		for _, in := range r.Inputs {
			rec.Inputs = append(rec.Inputs, UtxoEntry{
				StakeAddr:   deref(in.StakeAddr),
				PaymentAddr: in.PaymentAddr.Bech32,
			})
		}
		for _, out := range r.Outputs {
			value, err := parseLovelace(out.Value)
			if err != nil {
				return nil, fmt.Errorf("tx %s: output value: %w", r.TxHash, err)
			}
			rec.Outputs = append(rec.Outputs, UtxoEntry{
				StakeAddr:     deref(out.StakeAddr),
				PaymentAddr:   out.PaymentAddr.Bech32,
				ValueLovelace: value,
			})
		}
		records = append(records, rec)
	}
	return records, nil
}

type txUtxosResult struct {
	TxHash  string           `json:"tx_hash"`
	Inputs  []utxoEntryWire  `json:"inputs"`
	Outputs []utxoEntryWire  `json:"outputs"`
}

type utxoEntryWire struct {
	PaymentAddr paymentAddrWire `json:"payment_addr"`
	StakeAddr   *string         `json:"stake_addr"`
	Value       json.RawMessage `json:"value"`
}

type paymentAddrWire struct {
	Bech32 string `json:"bech32"`
}

// TxMetadata fetches arbitrary transaction metadata for a batch of
// hashes. Transactions without metadata are absent from the result.
func (c *HTTPClient) TxMetadata(ctx context.Context, txHashes []string) ([]MetadataRecord, error) {
	req := txHashBatch{TxHashes: txHashes}

	var result []metadataResult
	if err := c.post(ctx, "/tx_metadata", req, &result); err != nil {
		return nil, err
	}

	records := make([]MetadataRecord, 0, len(result))
	for _, r := range result {
		records = append(records, MetadataRecord{
			TxHash:   r.TxHash,
			Metadata: r.Metadata,
		})
	}
	return records, nil
}

type metadataResult struct {
	TxHash   string          `json:"tx_hash"`
	Metadata json.RawMessage `json:"metadata"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
