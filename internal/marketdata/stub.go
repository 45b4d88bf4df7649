package marketdata

import (
	"context"
	"fmt"
	"sync"
	"time"

	"papertrade/internal/domain"
)

// StubSource implements Source for offline runs and tests. Prices and
// candles are set by the caller; Emit pushes ticks into the stream.
type StubSource struct {
	mu         sync.Mutex
	prices     map[string]float64
	candles    map[string][]*domain.PricePoint
	subscribed map[string]struct{}

	ticks  chan domain.PriceTick
	closed bool
}

var _ Source = (*StubSource)(nil)

// NewStubSource creates an empty stub source.
func NewStubSource() *StubSource {
	return &StubSource{
		prices:     make(map[string]float64),
		candles:    make(map[string][]*domain.PricePoint),
		subscribed: make(map[string]struct{}),
		ticks:      make(chan domain.PriceTick, tickQueueSize),
	}
}

// SetPrice sets the current price for a symbol.
func (s *StubSource) SetPrice(symbol string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[symbol] = price
}

// SetCandles sets the historical candles for a symbol, oldest first.
func (s *StubSource) SetCandles(symbol string, points []*domain.PricePoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candles[symbol] = points
}

// Emit pushes a tick into the stream and records it as the current price.
func (s *StubSource) Emit(tick domain.PriceTick) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.prices[tick.Symbol] = tick.Price
	s.mu.Unlock()

	select {
	case s.ticks <- tick:
	default:
	}
}

// Subscribe records interest in a symbol.
func (s *StubSource) Subscribe(symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribed[symbol] = struct{}{}
	return nil
}

// Unsubscribe releases interest in a symbol.
func (s *StubSource) Unsubscribe(symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscribed, symbol)
	return nil
}

// Subscribed reports whether a symbol is currently subscribed.
func (s *StubSource) Subscribed(symbol string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.subscribed[symbol]
	return ok
}

// GetCurrentPrice returns the configured price for a symbol.
func (s *StubSource) GetCurrentPrice(_ context.Context, symbol string) (float64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	price, ok := s.prices[symbol]
	if !ok {
		return 0, time.Time{}, fmt.Errorf("no price for %s", symbol)
	}
	return price, time.Now().UTC(), nil
}

// GetHistoricalPrices returns up to count configured candles, oldest first.
func (s *StubSource) GetHistoricalPrices(_ context.Context, symbol, _ string, count int) ([]*domain.PricePoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	points := s.candles[symbol]
	if count > 0 && len(points) > count {
		points = points[len(points)-count:]
	}
	out := make([]*domain.PricePoint, len(points))
	copy(out, points)
	return out, nil
}

// Ticks returns the tick stream.
func (s *StubSource) Ticks() <-chan domain.PriceTick {
	return s.ticks
}

// Close stops the stream.
func (s *StubSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ticks)
	}
	return nil
}
