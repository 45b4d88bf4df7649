package domain

import "time"

// Account is a simulated cash account for one owner. InitialBalance is kept
// so performance can be reported against the original funding.
type Account struct {
	OwnerID        string
	CashBalance    float64
	InitialBalance float64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// BalanceSummary is the point-in-time value of an account including open
// positions marked at current prices.
type BalanceSummary struct {
	CashBalance           float64
	PositionValue         float64
	UnrealizedPnL         float64
	TotalAccountValue     float64
	InitialBalance        float64
	PerformancePercentage float64
}

// TradingStats summarizes realized account performance.
type TradingStats struct {
	TotalTrades    int
	TotalPnL       float64
	PnLPercentage  float64
	CurrentBalance float64
}
