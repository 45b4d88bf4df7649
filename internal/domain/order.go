package domain

import "time"

// OrderType is the execution style of an order. Only market orders exist in
// this simulation.
type OrderType string

// Order type constants
const (
	OrderTypeMarket = OrderType("MARKET")
)

// OrderStatus is the lifecycle state of an order. Market orders fill
// instantly, so every stored order is FILLED.
type OrderStatus string

// Order status constants
const (
	OrderStatusFilled = OrderStatus("FILLED")
)

// Order is the immutable record of a single simulated fill.
// Orders are append-only history and are never mutated after creation.
type Order struct {
	OrderID    string
	OwnerID    string
	Symbol     string
	Type       OrderType
	Side       OrderSide
	Quantity   float64
	FillPrice  float64
	Status     OrderStatus
	PositionID string // position affected by the fill; may reference a since-deleted position
	CreatedAt  time.Time
	FilledAt   time.Time
}
