// Package engine evaluates active strategies against market prices and
// turns signal transitions into simulated orders.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"papertrade/internal/domain"
	"papertrade/internal/indicator"
	"papertrade/internal/observability"
	"papertrade/internal/strategy"
)

// historyWindow is the number of recent closes fetched per evaluation.
const historyWindow = 100

// Signal is the outcome of comparing the two most recent indicator values.
type Signal string

const (
	SignalNone Signal = "NONE"
	SignalBuy  Signal = "BUY"
	SignalSell Signal = "SELL"
)

// ExecutionResult reports one (strategy, symbol) evaluation. StopLossPrice
// and TakeProfitPrice are advisory: they describe the exit intents implied
// by the strategy's risk parameters, but no conditional orders are placed
// for them.
type ExecutionResult struct {
	StrategyID string
	Symbol     string
	Signal     Signal
	Order      *domain.Order

	StopLossPrice   float64
	TakeProfitPrice float64
}

// HistoryProvider supplies recent close prices, oldest first.
type HistoryProvider interface {
	RecentCloses(ctx context.Context, symbol string, count int) ([]float64, error)
}

// PriceLookup resolves the current price used for order sizing.
type PriceLookup interface {
	GetCurrentPrice(ctx context.Context, symbol string) (float64, time.Time, error)
}

// OrderPlacer commits a signal as a simulated market order.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, ownerID, symbol string, side domain.OrderSide, quantity float64) (*domain.Order, error)
}

// Evaluator runs the per-(strategy, symbol) signal pipeline: fetch history,
// compute the strategy's indicator, detect a transition, size and place the
// order.
type Evaluator struct {
	history HistoryProvider
	prices  PriceLookup
	orders  OrderPlacer
	logger  *log.Logger
}

// NewEvaluator creates an evaluator.
func NewEvaluator(history HistoryProvider, prices PriceLookup, orders OrderPlacer, logger *log.Logger) *Evaluator {
	if logger == nil {
		logger = log.Default()
	}
	return &Evaluator{
		history: history,
		prices:  prices,
		orders:  orders,
		logger:  logger,
	}
}

// Evaluate runs one strategy against one symbol. A result with SignalNone
// and no order is the common case; too little history is not an error.
func (e *Evaluator) Evaluate(ctx context.Context, st *domain.Strategy, symbol string) (*ExecutionResult, error) {
	start := time.Now()
	defer func() {
		observability.DefaultMetrics.EvaluationLatency.Observe(time.Since(start).Seconds())
	}()

	result := &ExecutionResult{
		StrategyID: st.StrategyID,
		Symbol:     symbol,
		Signal:     SignalNone,
	}

	params, err := strategy.ParseParams(st.Type, st.Parameters)
	if err != nil {
		return nil, err
	}

	closes, err := e.history.RecentCloses(ctx, symbol, historyWindow)
	if err != nil {
		return nil, fmt.Errorf("%w: history for %s: %v", domain.ErrUpstream, symbol, err)
	}

	signal := detectSignal(params, closes)
	if signal == SignalNone {
		return result, nil
	}

	price, _, err := e.prices.GetCurrentPrice(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: current price for %s: %v", domain.ErrUpstream, symbol, err)
	}
	if price <= 0 {
		return nil, fmt.Errorf("%w: no price for %s", domain.ErrUpstream, symbol)
	}

	quantity := st.RiskParameters.MaxPositionSize / price
	side := domain.OrderSideBuy
	if signal == SignalSell {
		side = domain.OrderSideSell
	}

	order, err := e.orders.PlaceOrder(ctx, st.OwnerID, symbol, side, quantity)
	if err != nil {
		// A rejected order is still a decided signal; business-rule
		// rejections are reported on the result, upstream faults propagate.
		if isRejection(err) {
			observability.RecordOrderRejected(rejectionReason(err))
			e.logger.Printf("Order rejected for strategy %s on %s: %v", st.StrategyID, symbol, err)
			result.Signal = signal
			return result, nil
		}
		return nil, err
	}

	result.Signal = signal
	result.Order = order
	observability.RecordSignal(string(st.Type), string(side))
	observability.RecordOrderPlaced(string(side))

	// Advisory exit intents only; no conditional orders exist in this
	// simulation, so callers must treat these as hints.
	if side == domain.OrderSideBuy {
		if pct := st.RiskParameters.StopLossPercentage; pct > 0 {
			result.StopLossPrice = price * (1 - pct/100)
		}
		if pct := st.RiskParameters.TakeProfitPercentage; pct > 0 {
			result.TakeProfitPrice = price * (1 + pct/100)
		}
		if result.StopLossPrice > 0 || result.TakeProfitPrice > 0 {
			e.logger.Printf("Advisory exits for strategy %s on %s: stop=%.4f target=%.4f",
				st.StrategyID, symbol, result.StopLossPrice, result.TakeProfitPrice)
		}
	}

	e.logger.Printf("Signal %s executed for strategy %s on %s: qty=%.6f price=%.4f",
		signal, st.StrategyID, symbol, order.Quantity, order.FillPrice)

	return result, nil
}

// detectSignal applies the per-type signal rule over the two most recent
// indicator values. Fewer than two computed values never signals.
func detectSignal(params strategy.Params, closes []float64) Signal {
	switch params.Type {
	case domain.StrategyTypeMACrossover:
		fast := indicator.SMA(closes, params.MA.FastPeriod)
		slow := indicator.SMA(closes, params.MA.SlowPeriod)
		if len(fast) < 2 || len(slow) < 2 {
			return SignalNone
		}
		return crossover(
			fast[len(fast)-2], fast[len(fast)-1],
			slow[len(slow)-2], slow[len(slow)-1],
		)

	case domain.StrategyTypeRSI:
		values := indicator.RSI(closes, params.RSI.Period)
		if len(values) < 2 {
			return SignalNone
		}
		prev, current := values[len(values)-2], values[len(values)-1]
		if prev < params.RSI.Oversold && current >= params.RSI.Oversold {
			return SignalBuy
		}
		if prev > params.RSI.Overbought && current <= params.RSI.Overbought {
			return SignalSell
		}
		return SignalNone

	case domain.StrategyTypeMACD:
		macd := indicator.MACD(closes, params.MACD.FastPeriod, params.MACD.SlowPeriod, params.MACD.SignalPeriod)
		if len(macd.Line) < 2 || len(macd.Signal) < 2 {
			return SignalNone
		}
		return crossover(
			macd.Line[len(macd.Line)-2], macd.Line[len(macd.Line)-1],
			macd.Signal[len(macd.Signal)-2], macd.Signal[len(macd.Signal)-1],
		)
	}
	return SignalNone
}

// crossover detects the transition of one series across another between two
// consecutive samples.
func crossover(prevA, curA, prevB, curB float64) Signal {
	if prevA <= prevB && curA > curB {
		return SignalBuy
	}
	if prevA >= prevB && curA < curB {
		return SignalSell
	}
	return SignalNone
}

// isRejection reports whether the order failed a business rule rather than
// an upstream dependency.
func isRejection(err error) bool {
	return errors.Is(err, domain.ErrInsufficientBalance) ||
		errors.Is(err, domain.ErrInsufficientQuantity) ||
		errors.Is(err, domain.ErrNoPosition) ||
		errors.Is(err, domain.ErrNotFound)
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, domain.ErrInsufficientQuantity):
		return "insufficient_quantity"
	case errors.Is(err, domain.ErrNoPosition):
		return "no_position"
	default:
		return "not_found"
	}
}
