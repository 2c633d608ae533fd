package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

// TickerConfig configures the WebSocket spot-price feed.
type TickerConfig struct {
	// ProductID is the exchange product to subscribe to, e.g. "ADA-USD".
	ProductID string
	// MaxAge bounds how stale the last tick may be before the source
	// reports itself unavailable.
	MaxAge time.Duration
	// ReconnectDelay is the initial delay before a reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay caps the reconnect backoff.
	MaxReconnectDelay time.Duration
	// ReadTimeout is the per-message read deadline.
	ReadTimeout time.Duration
	// WriteTimeout is the deadline for writing the subscribe frame.
	WriteTimeout time.Duration
}

// DefaultTickerConfig returns default ticker settings.
func DefaultTickerConfig() TickerConfig {
	return TickerConfig{
		ProductID:         "ADA-USD",
		MaxAge:            5 * time.Minute,
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// TickerSource maintains the last traded price from an exchange ticker
// WebSocket channel. Used as a spot source in long-running server mode,
// ahead of the HTTP spot lookup in the resolver chain.
type TickerSource struct {
	endpoint string
	config   TickerConfig
	logger   *log.Logger

	mu        sync.RWMutex
	lastPrice decimal.Decimal
	lastSeen  time.Time

	// connMu guards conn so Close can interrupt a blocked ReadMessage.
	connMu sync.Mutex
	conn   *websocket.Conn

	closed atomic.Bool
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewTickerSource connects to the feed and starts the read loop. The
// loop reconnects with backoff until Close is called or ctx is canceled.
func NewTickerSource(ctx context.Context, endpoint string, config *TickerConfig, logger *log.Logger) (*TickerSource, error) {
	cfg := DefaultTickerConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = log.Default()
	}

	t := &TickerSource{
		endpoint: endpoint,
		config:   cfg,
		logger:   logger,
		done:     make(chan struct{}),
	}

	conn, err := t.connect(ctx)
	if err != nil {
		return nil, err
	}
	t.setConn(conn)

	t.wg.Add(1)
	go t.readLoop(ctx, conn)

	return t, nil
}

func (t *TickerSource) setConn(conn *websocket.Conn) {
	t.connMu.Lock()
	t.conn = conn
	t.connMu.Unlock()
}

func (t *TickerSource) connect(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	conn, _, err := dialer.DialContext(ctx, t.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	sub := map[string]interface{}{
		"type": "subscribe",
		"channels": []map[string]interface{}{
			{"name": "ticker", "product_ids": []string{t.config.ProductID}},
		},
	}
	conn.SetWriteDeadline(time.Now().Add(t.config.WriteTimeout))
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return nil, fmt.Errorf("write subscribe: %w", err)
	}

	return conn, nil
}

// tickerMessage is the subset of the feed message we read.
type tickerMessage struct {
	Type  string `json:"type"`
	Price string `json:"price"`
}

func (t *TickerSource) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer t.wg.Done()
	defer func() {
		if conn != nil {
			conn.Close()
		}
	}()

	delay := t.config.ReconnectDelay

	for {
		if t.closed.Load() {
			return
		}

		if conn == nil {
			// Reconnect with backoff.
			select {
			case <-t.done:
				return
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > t.config.MaxReconnectDelay {
				delay = t.config.MaxReconnectDelay
			}

			next, connErr := t.connect(ctx)
			if connErr != nil {
				t.logger.Printf("ticker reconnect failed: %v", connErr)
				continue
			}
			t.logger.Printf("ticker reconnected to %s", t.endpoint)
			conn = next
			t.setConn(next)
			delay = t.config.ReconnectDelay
			continue
		}

		conn.SetReadDeadline(time.Now().Add(t.config.ReadTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			conn = nil
			t.setConn(nil)
			continue
		}

		var msg tickerMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type != "ticker" {
			continue
		}
		price, err := decimal.NewFromString(msg.Price)
		if err != nil || price.Sign() <= 0 {
			continue
		}

		t.mu.Lock()
		t.lastPrice = price
		t.lastSeen = time.Now()
		t.mu.Unlock()
	}
}

func (t *TickerSource) Name() string { return "ws-ticker" }

// Resolve returns the last traded price when it is fresh enough, so the
// resolver falls through to the HTTP sources otherwise.
func (t *TickerSource) Resolve(_ context.Context, _ time.Time) (decimal.Decimal, error) {
	t.mu.RLock()
	price, seen := t.lastPrice, t.lastSeen
	t.mu.RUnlock()

	if seen.IsZero() {
		return decimal.Zero, fmt.Errorf("%w: no tick received yet", ErrUnavailable)
	}
	if age := time.Since(seen); age > t.config.MaxAge {
		return decimal.Zero, fmt.Errorf("%w: last tick is %s old", ErrUnavailable, age.Round(time.Second))
	}
	return price, nil
}

// Close stops the read loop and waits for it to exit. The active
// connection is closed here so a blocked ReadMessage returns instead of
// waiting out its read deadline.
func (t *TickerSource) Close() {
	if t.closed.Swap(true) {
		return
	}
	close(t.done)
	t.connMu.Lock()
	if t.conn != nil {
		t.conn.Close()
	}
	t.connMu.Unlock()
	t.wg.Wait()
}

var _ Source = (*TickerSource)(nil)
