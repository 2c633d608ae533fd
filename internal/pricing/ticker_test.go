package pricing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

// newTickerServer runs a WebSocket server that expects a subscribe frame
// and then sends the given messages.
func newTickerServer(t *testing.T, messages []string) *httptest.Server {
	t.Helper()

	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		var sub map[string]interface{}
		if err := conn.ReadJSON(&sub); err != nil {
			t.Errorf("read subscribe: %v", err)
			return
		}
		if sub["type"] != "subscribe" {
			t.Errorf("expected subscribe frame, got %v", sub)
		}

		for _, msg := range messages {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		}

		// Keep the connection open until the client goes away.
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		conn.ReadMessage()
	}))
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func TestTickerSource_TracksLastPrice(t *testing.T) {
	server := newTickerServer(t, []string{
		`{"type":"subscriptions","channels":[]}`,
		`{"type":"ticker","product_id":"ADA-USD","price":"0.4821"}`,
		`{"type":"ticker","product_id":"ADA-USD","price":"0.4835"}`,
	})
	defer server.Close()

	src, err := NewTickerSource(context.Background(), wsURL(server), nil, testLogger())
	if err != nil {
		t.Fatalf("NewTickerSource: %v", err)
	}
	defer src.Close()

	// Wait for the ticks to arrive.
	deadline := time.Now().Add(2 * time.Second)
	var rate decimal.Decimal
	for time.Now().Before(deadline) {
		rate, err = src.Resolve(context.Background(), time.Now())
		if err == nil && rate.Equal(decimal.NewFromFloat(0.4835)) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("last price never reached 0.4835: rate=%s err=%v", rate, err)
}

func TestTickerSource_UnavailableBeforeFirstTick(t *testing.T) {
	server := newTickerServer(t, nil)
	defer server.Close()

	src, err := NewTickerSource(context.Background(), wsURL(server), nil, testLogger())
	if err != nil {
		t.Fatalf("NewTickerSource: %v", err)
	}
	defer src.Close()

	if _, err := src.Resolve(context.Background(), time.Now()); err == nil {
		t.Fatal("expected unavailable before the first tick")
	}
}

func TestTickerSource_CloseUnblocksIdleRead(t *testing.T) {
	server := newTickerServer(t, nil)
	defer server.Close()

	src, err := NewTickerSource(context.Background(), wsURL(server), nil, testLogger())
	if err != nil {
		t.Fatalf("NewTickerSource: %v", err)
	}

	// Let the read loop block in ReadMessage on the silent feed.
	time.Sleep(200 * time.Millisecond)

	closed := make(chan struct{})
	go func() {
		src.Close()
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return while the read loop was blocked")
	}
}

func TestTickerSource_IgnoresMalformedMessages(t *testing.T) {
	server := newTickerServer(t, []string{
		`not json`,
		`{"type":"ticker","price":"not-a-number"}`,
		`{"type":"heartbeat"}`,
		`{"type":"ticker","price":"0.50"}`,
	})
	defer server.Close()

	src, err := NewTickerSource(context.Background(), wsURL(server), nil, testLogger())
	if err != nil {
		t.Fatalf("NewTickerSource: %v", err)
	}
	defer src.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if rate, err := src.Resolve(context.Background(), time.Now()); err == nil {
			if !rate.Equal(decimal.NewFromFloat(0.50)) {
				t.Fatalf("expected 0.50, got %s", rate)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("valid tick never observed")
}
