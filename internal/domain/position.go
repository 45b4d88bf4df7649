package domain

import "time"

// OrderSide is the direction of a fill.
type OrderSide string

// Order side constants
const (
	OrderSideBuy  = OrderSide("BUY")
	OrderSideSell = OrderSide("SELL")
)

// Valid reports whether s is a known order side.
func (s OrderSide) Valid() bool {
	return s == OrderSideBuy || s == OrderSideSell
}

// Position is an open holding for one (owner, symbol) pair.
// Quantity is always a positive magnitude; Side records direction.
// EntryPrice is the volume-weighted average cost, recomputed on every buy.
// A position whose quantity reaches zero is deleted, never kept at zero.
type Position struct {
	PositionID    string
	OwnerID       string
	Symbol        string
	Side          OrderSide
	Quantity      float64
	EntryPrice    float64
	CurrentPrice  float64
	UnrealizedPnL float64 // (current - entry) * quantity, refreshed on read
	RealizedPnL   float64 // accumulated across partial closes
	OpenedAt      time.Time
	UpdatedAt     time.Time
}
