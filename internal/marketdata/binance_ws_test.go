package marketdata

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func TestBinanceSource_Connect(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		// Keep connection open
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	source, err := NewBinanceSource(context.Background(), wsURL, NewRESTClient(server.URL), nil)
	if err != nil {
		t.Fatalf("NewBinanceSource: %v", err)
	}
	defer source.Close()

	if source.closed.Load() {
		t.Error("source should not be closed")
	}
}

func TestBinanceSource_SubscribeAndReceiveTick(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer c.Close()

		// Read subscribe request
		_, msg, err := c.ReadMessage()
		if err != nil {
			return
		}

		var req wsStreamRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			t.Errorf("unmarshal request: %v", err)
			return
		}
		if req.Method != "SUBSCRIBE" {
			t.Errorf("expected SUBSCRIBE, got %s", req.Method)
		}
		if len(req.Params) != 1 || req.Params[0] != "btcusdt@miniTicker" {
			t.Errorf("params = %v", req.Params)
		}

		// Send a miniTicker event on the combined stream
		event := map[string]interface{}{
			"stream": "btcusdt@miniTicker",
			"data": map[string]interface{}{
				"e": "24hrMiniTicker",
				"E": 1700000000123,
				"s": "BTCUSDT",
				"c": "42000.50",
				"o": "41000.00",
				"h": "42500.00",
				"l": "40900.00",
			},
		}
		if err := c.WriteJSON(event); err != nil {
			t.Errorf("write event: %v", err)
			return
		}

		// Keep connection open
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	source, err := NewBinanceSource(context.Background(), wsURL, NewRESTClient(server.URL), nil)
	if err != nil {
		t.Fatalf("NewBinanceSource: %v", err)
	}
	defer source.Close()

	if err := source.Subscribe("BTCUSDT"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	select {
	case tick := <-source.Ticks():
		if tick.Symbol != "BTCUSDT" {
			t.Errorf("symbol = %s", tick.Symbol)
		}
		if tick.Price != 42000.50 {
			t.Errorf("price = %f", tick.Price)
		}
		if tick.Timestamp.UnixMilli() != 1700000000123 {
			t.Errorf("timestamp = %v", tick.Timestamp)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no tick received")
	}
}

func TestBinanceSource_SubscribeIdempotent(t *testing.T) {
	received := make(chan string, 16)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer c.Close()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				return
			}
			var req wsStreamRequest
			if err := json.Unmarshal(msg, &req); err != nil {
				continue
			}
			received <- req.Method
		}
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	source, err := NewBinanceSource(context.Background(), wsURL, NewRESTClient(server.URL), nil)
	if err != nil {
		t.Fatalf("NewBinanceSource: %v", err)
	}
	defer source.Close()

	if err := source.Subscribe("BTCUSDT"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := source.Subscribe("BTCUSDT"); err != nil {
		t.Fatalf("re-subscribe: %v", err)
	}

	select {
	case method := <-received:
		if method != "SUBSCRIBE" {
			t.Fatalf("method = %s", method)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no subscribe message received")
	}

	// The duplicate subscribe must not produce a second wire message.
	select {
	case method := <-received:
		t.Fatalf("unexpected second message: %s", method)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestBinanceSource_CloseStopsStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	source, err := NewBinanceSource(context.Background(), wsURL, NewRESTClient(server.URL), nil)
	if err != nil {
		t.Fatalf("NewBinanceSource: %v", err)
	}

	if err := source.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	select {
	case _, ok := <-source.Ticks():
		if ok {
			t.Fatal("unexpected tick after close")
		}
	case <-time.After(time.Second):
		t.Fatal("tick channel not closed")
	}

	if err := source.Subscribe("BTCUSDT"); err == nil {
		t.Fatal("subscribe after close must fail")
	}
}
