// Package marketdata provides price feeds: a live Binance websocket stream
// with REST lookups, and a replay source for offline runs and tests.
package marketdata

import (
	"context"
	"time"

	"papertrade/internal/domain"
)

// Source supplies current and historical prices and a live tick stream.
// Subscribe and Unsubscribe manage the set of symbols flowing into Ticks.
type Source interface {
	Subscribe(symbol string) error
	Unsubscribe(symbol string) error

	// GetCurrentPrice returns the latest known price for a symbol.
	GetCurrentPrice(ctx context.Context, symbol string) (float64, time.Time, error)

	// GetHistoricalPrices returns up to count close prices at the given
	// interval, ordered oldest first.
	GetHistoricalPrices(ctx context.Context, symbol, interval string, count int) ([]*domain.PricePoint, error)

	// Ticks is the raw stream of price updates for subscribed symbols.
	Ticks() <-chan domain.PriceTick
}
