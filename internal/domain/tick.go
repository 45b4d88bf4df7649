package domain

import "time"

// PriceTick is a single market price update. Ticks are ephemeral: the engine
// consumes them for signal evaluation and archives closes separately.
type PriceTick struct {
	Symbol    string
	Price     float64
	Timestamp time.Time
}

// PricePoint is one archived close for a symbol, the unit the indicator
// window is built from.
type PricePoint struct {
	Symbol      string
	TimestampMs int64
	Price       float64
}
