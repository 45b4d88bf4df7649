package domain

import "time"

// StrategyType identifies the indicator family a strategy evaluates.
type StrategyType string

// Strategy type constants
const (
	StrategyTypeMACrossover = StrategyType("MA_CROSSOVER")
	StrategyTypeRSI         = StrategyType("RSI")
	StrategyTypeMACD        = StrategyType("MACD")
)

// Valid reports whether t is a known strategy type.
func (t StrategyType) Valid() bool {
	switch t {
	case StrategyTypeMACrossover, StrategyTypeRSI, StrategyTypeMACD:
		return true
	}
	return false
}

// StrategyStatus is the activation state of a strategy.
// Only Active strategies hold live market-data subscriptions.
type StrategyStatus string

// Strategy status constants
const (
	StrategyStatusActive  = StrategyStatus("ACTIVE")
	StrategyStatusPaused  = StrategyStatus("PAUSED")
	StrategyStatusStopped = StrategyStatus("STOPPED")
)

// Valid reports whether s is a known strategy status.
func (s StrategyStatus) Valid() bool {
	switch s {
	case StrategyStatusActive, StrategyStatusPaused, StrategyStatusStopped:
		return true
	}
	return false
}

// RiskParameters bound how much a strategy may commit per signal.
// StopLoss/TakeProfit/TrailingStop are advisory: the engine reports the
// implied exit prices alongside an order but never places conditional orders.
type RiskParameters struct {
	MaxPositionSize        float64 // quote-currency notional per order
	MaxTotalPositions      int     // maximum concurrently open positions
	StopLossPercentage     float64 // advisory stop loss, percent
	TakeProfitPercentage   float64 // advisory take profit, percent
	MaxDailyLoss           float64 // advisory daily loss limit, quote currency
	TrailingStopEnabled    bool
	TrailingStopPercentage float64
}

// Strategy is a user-owned trading strategy definition.
// Parameters is the free-form wire shape; the engine parses it into a typed
// per-type parameter struct before evaluation.
type Strategy struct {
	StrategyID     string
	OwnerID        string
	Name           string
	Description    string
	Type           StrategyType
	Status         StrategyStatus
	Symbols        []string // ordered, duplicates ignored on activation
	Parameters     map[string]float64
	RiskParameters RiskParameters

	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastExecutedAt *time.Time
}

// Clone returns a deep copy safe to hand across goroutine boundaries.
func (s *Strategy) Clone() *Strategy {
	if s == nil {
		return nil
	}
	out := *s
	out.Symbols = append([]string(nil), s.Symbols...)
	if s.Parameters != nil {
		out.Parameters = make(map[string]float64, len(s.Parameters))
		for k, v := range s.Parameters {
			out.Parameters[k] = v
		}
	}
	if s.LastExecutedAt != nil {
		t := *s.LastExecutedAt
		out.LastExecutedAt = &t
	}
	return &out
}
