package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"papertrade/internal/domain"
	"papertrade/internal/observability"
)

// DefaultWSEndpoint is the combined-stream websocket endpoint.
const DefaultWSEndpoint = "wss://stream.binance.com:9443/stream"

// tickQueueSize bounds the raw tick channel between the reader and the hub.
const tickQueueSize = 1000

// WSConfig configures websocket feed behavior.
type WSConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultWSConfig returns default websocket configuration.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// BinanceSource is the live market data source: a combined miniTicker
// websocket stream for subscribed symbols plus REST lookups for current and
// historical prices. The reader reconnects with exponential backoff and
// resubscribes every active stream after reconnect.
type BinanceSource struct {
	endpoint string
	config   WSConfig
	rest     *RESTClient

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	// streams holds the active stream names for resubscription.
	streams   map[string]struct{}
	streamsMu sync.Mutex

	ticks chan domain.PriceTick

	done chan struct{}
	wg   sync.WaitGroup

	reconnecting atomic.Bool
}

var _ Source = (*BinanceSource)(nil)

// NewBinanceSource connects to the combined stream endpoint and starts the
// reader and ping goroutines. An empty endpoint selects the public
// production stream.
func NewBinanceSource(ctx context.Context, endpoint string, rest *RESTClient, config *WSConfig) (*BinanceSource, error) {
	if endpoint == "" {
		endpoint = DefaultWSEndpoint
	}
	if rest == nil {
		rest = NewRESTClient("")
	}

	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}

	s := &BinanceSource{
		endpoint: endpoint,
		config:   cfg,
		rest:     rest,
		streams:  make(map[string]struct{}),
		ticks:    make(chan domain.PriceTick, tickQueueSize),
		done:     make(chan struct{}),
	}

	if err := s.connect(ctx); err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go s.readLoop()

	s.wg.Add(1)
	go s.pingLoop()

	return s, nil
}

// connect establishes the websocket connection.
func (s *BinanceSource) connect(ctx context.Context) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, s.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	s.conn = conn
	return nil
}

// streamName returns the miniTicker stream name for a symbol.
func streamName(symbol string) string {
	return strings.ToLower(symbol) + "@miniTicker"
}

// Subscribe starts the miniTicker stream for a symbol.
func (s *BinanceSource) Subscribe(symbol string) error {
	if s.closed.Load() {
		return fmt.Errorf("source closed")
	}

	stream := streamName(symbol)

	s.streamsMu.Lock()
	if _, exists := s.streams[stream]; exists {
		s.streamsMu.Unlock()
		return nil
	}
	s.streams[stream] = struct{}{}
	s.streamsMu.Unlock()

	if err := s.sendStreamRequest("SUBSCRIBE", stream); err != nil {
		s.streamsMu.Lock()
		delete(s.streams, stream)
		s.streamsMu.Unlock()
		return err
	}
	return nil
}

// Unsubscribe stops the miniTicker stream for a symbol.
func (s *BinanceSource) Unsubscribe(symbol string) error {
	if s.closed.Load() {
		return fmt.Errorf("source closed")
	}

	stream := streamName(symbol)

	s.streamsMu.Lock()
	if _, exists := s.streams[stream]; !exists {
		s.streamsMu.Unlock()
		return nil
	}
	delete(s.streams, stream)
	s.streamsMu.Unlock()

	return s.sendStreamRequest("UNSUBSCRIBE", stream)
}

// sendStreamRequest writes a stream management message.
func (s *BinanceSource) sendStreamRequest(method string, streams ...string) error {
	req := wsStreamRequest{
		Method: method,
		Params: streams,
		ID:     s.requestID.Add(1),
	}

	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn == nil {
		return fmt.Errorf("not connected")
	}

	s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	if err := s.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("write %s: %w", strings.ToLower(method), err)
	}
	return nil
}

// GetCurrentPrice returns the latest trade price via REST.
func (s *BinanceSource) GetCurrentPrice(ctx context.Context, symbol string) (float64, time.Time, error) {
	return s.rest.GetPrice(ctx, symbol)
}

// GetHistoricalPrices returns up to count closed candles via REST.
func (s *BinanceSource) GetHistoricalPrices(ctx context.Context, symbol, interval string, count int) ([]*domain.PricePoint, error) {
	return s.rest.GetKlines(ctx, symbol, interval, count)
}

// Ticks returns the raw tick stream.
func (s *BinanceSource) Ticks() <-chan domain.PriceTick {
	return s.ticks
}

// Close shuts down the feed.
func (s *BinanceSource) Close() error {
	if s.closed.Swap(true) {
		return nil // Already closed
	}

	close(s.done)

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.conn.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()
	close(s.ticks)
	return nil
}

// readLoop reads stream messages and converts miniTicker payloads to ticks.
func (s *BinanceSource) readLoop() {
	defer s.wg.Done()

	reconnectDelay := s.config.ReconnectDelay

	for !s.closed.Load() {
		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()

		if conn == nil {
			select {
			case <-s.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if s.closed.Load() {
				return
			}

			if !s.reconnecting.Swap(true) {
				go s.reconnect(reconnectDelay)
			}

			reconnectDelay = reconnectDelay * 2
			if reconnectDelay > s.config.MaxReconnectDelay {
				reconnectDelay = s.config.MaxReconnectDelay
			}

			select {
			case <-s.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		// Reset delay on successful read
		reconnectDelay = s.config.ReconnectDelay

		s.handleMessage(message)
	}
}

// reconnect attempts to reconnect and resubscribe all active streams.
func (s *BinanceSource) reconnect(delay time.Duration) {
	defer s.reconnecting.Store(false)

	if s.closed.Load() {
		return
	}

	select {
	case <-s.done:
		return
	case <-time.After(delay):
	}

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.connect(ctx); err != nil {
		// Reconnect failed, will retry on next read error
		return
	}

	observability.DefaultMetrics.FeedReconnects.Inc()
	s.resubscribeAll()
}

// resubscribeAll restores every active stream after reconnect.
func (s *BinanceSource) resubscribeAll() {
	s.streamsMu.Lock()
	streams := make([]string, 0, len(s.streams))
	for stream := range s.streams {
		streams = append(streams, stream)
	}
	s.streamsMu.Unlock()

	if len(streams) == 0 {
		return
	}

	if err := s.sendStreamRequest("SUBSCRIBE", streams...); err != nil {
		// Resubscribe failed, reader will trigger another reconnect
		return
	}
}

// handleMessage converts one combined-stream message to a tick.
func (s *BinanceSource) handleMessage(message []byte) {
	var envelope wsStreamMessage
	if err := json.Unmarshal(message, &envelope); err != nil {
		return
	}
	// Control responses carry no stream name
	if envelope.Stream == "" || envelope.Data == nil {
		return
	}

	var payload miniTickerPayload
	if err := json.Unmarshal(envelope.Data, &payload); err != nil {
		return
	}
	if payload.Symbol == "" {
		return
	}

	price, err := strconv.ParseFloat(payload.Close, 64)
	if err != nil {
		return
	}

	tick := domain.PriceTick{
		Symbol:    payload.Symbol,
		Price:     price,
		Timestamp: time.UnixMilli(payload.EventTime).UTC(),
	}

	select {
	case s.ticks <- tick:
	case <-s.done:
	default:
		// Raw queue full: shed the tick, consumers refresh on the next one.
		observability.DefaultMetrics.TicksDropped.Inc()
	}
}

// pingLoop sends periodic ping frames to keep the connection alive.
func (s *BinanceSource) pingLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.connMu.Lock()
			if s.conn != nil {
				s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
				if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					// Connection might be dead, reader will handle reconnect
				}
			}
			s.connMu.Unlock()
		}
	}
}

// Websocket message types

type wsStreamRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     uint64   `json:"id"`
}

type wsStreamMessage struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// miniTickerPayload is the 24hrMiniTicker event body.
type miniTickerPayload struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Close     string `json:"c"`
	Open      string `json:"o"`
	High      string `json:"h"`
	Low       string `json:"l"`
}
