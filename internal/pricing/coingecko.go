package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// Default CoinGecko-compatible settings.
const (
	DefaultPriceBaseURL = "https://api.coingecko.com/api/v3"
	DefaultCoinID       = "cardano"
	DefaultHTTPTimeout  = 15 * time.Second
)

// HistoricalSource looks up the price for the exact calendar date via the
// /coins/{id}/history endpoint.
type HistoricalSource struct {
	baseURL string
	coinID  string
	client  *http.Client
}

// NewHistoricalSource creates a historical-price source.
func NewHistoricalSource(baseURL, coinID string, client *http.Client) *HistoricalSource {
	if client == nil {
		client = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &HistoricalSource{baseURL: baseURL, coinID: coinID, client: client}
}

func (s *HistoricalSource) Name() string { return "historical" }

func (s *HistoricalSource) Resolve(ctx context.Context, date time.Time) (decimal.Decimal, error) {
	// The history endpoint takes DD-MM-YYYY.
	url := fmt.Sprintf("%s/coins/%s/history?date=%s", s.baseURL, s.coinID, date.UTC().Format("02-01-2006"))

	var resp struct {
		MarketData struct {
			CurrentPrice map[string]json.Number `json:"current_price"`
		} `json:"market_data"`
	}
	if err := getJSON(ctx, s.client, url, &resp); err != nil {
		return decimal.Zero, err
	}

	return rateFromNumber(resp.MarketData.CurrentPrice["usd"])
}

var _ Source = (*HistoricalSource)(nil)

// SpotSource looks up the current price via /simple/price.
type SpotSource struct {
	baseURL string
	coinID  string
	client  *http.Client
}

// NewSpotSource creates a current-spot-price source.
func NewSpotSource(baseURL, coinID string, client *http.Client) *SpotSource {
	if client == nil {
		client = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &SpotSource{baseURL: baseURL, coinID: coinID, client: client}
}

func (s *SpotSource) Name() string { return "spot" }

func (s *SpotSource) Resolve(ctx context.Context, _ time.Time) (decimal.Decimal, error) {
	url := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd", s.baseURL, s.coinID)

	var resp map[string]map[string]json.Number
	if err := getJSON(ctx, s.client, url, &resp); err != nil {
		return decimal.Zero, err
	}

	return rateFromNumber(resp[s.coinID]["usd"])
}

var _ Source = (*SpotSource)(nil)

// getJSON performs a GET and decodes the JSON body. Any non-200 status is
// a failure.
func getJSON(ctx context.Context, client *http.Client, url string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// rateFromNumber converts a decoded JSON number into a positive rate.
// An absent field is a failure, not zero.
func rateFromNumber(n json.Number) (decimal.Decimal, error) {
	if n == "" {
		return decimal.Zero, fmt.Errorf("%w: usd field missing", ErrUnavailable)
	}
	rate, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: non-numeric rate %q", ErrUnavailable, n.String())
	}
	if rate.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: non-positive rate %s", ErrUnavailable, rate)
	}
	return rate, nil
}
