package main

import (
	"time"

	"papertrade/internal/domain"
	"papertrade/internal/engine"
)

// JSON shapes for API responses. Domain types carry no serialization tags,
// so the wire format is pinned here.

type strategyJSON struct {
	StrategyID     string             `json:"strategy_id"`
	OwnerID        string             `json:"owner_id"`
	Name           string             `json:"name"`
	Description    string             `json:"description,omitempty"`
	Type           string             `json:"type"`
	Status         string             `json:"status"`
	Symbols        []string           `json:"symbols"`
	Parameters     map[string]float64 `json:"parameters,omitempty"`
	RiskParameters riskParametersJSON `json:"risk_parameters"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
	LastExecutedAt *time.Time         `json:"last_executed_at,omitempty"`
}

func toStrategyJSON(st *domain.Strategy) strategyJSON {
	return strategyJSON{
		StrategyID:  st.StrategyID,
		OwnerID:     st.OwnerID,
		Name:        st.Name,
		Description: st.Description,
		Type:        string(st.Type),
		Status:      string(st.Status),
		Symbols:     st.Symbols,
		Parameters:  st.Parameters,
		RiskParameters: riskParametersJSON{
			MaxPositionSize:        st.RiskParameters.MaxPositionSize,
			MaxTotalPositions:      st.RiskParameters.MaxTotalPositions,
			StopLossPercentage:     st.RiskParameters.StopLossPercentage,
			TakeProfitPercentage:   st.RiskParameters.TakeProfitPercentage,
			MaxDailyLoss:           st.RiskParameters.MaxDailyLoss,
			TrailingStopEnabled:    st.RiskParameters.TrailingStopEnabled,
			TrailingStopPercentage: st.RiskParameters.TrailingStopPercentage,
		},
		CreatedAt:      st.CreatedAt,
		UpdatedAt:      st.UpdatedAt,
		LastExecutedAt: st.LastExecutedAt,
	}
}

func toStrategyListJSON(list []*domain.Strategy) []strategyJSON {
	out := make([]strategyJSON, len(list))
	for i, st := range list {
		out[i] = toStrategyJSON(st)
	}
	return out
}

type orderJSON struct {
	OrderID    string    `json:"order_id"`
	OwnerID    string    `json:"owner_id"`
	Symbol     string    `json:"symbol"`
	Type       string    `json:"type"`
	Side       string    `json:"side"`
	Quantity   float64   `json:"quantity"`
	FillPrice  float64   `json:"fill_price"`
	Status     string    `json:"status"`
	PositionID string    `json:"position_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	FilledAt   time.Time `json:"filled_at"`
}

func toOrderJSON(o *domain.Order) orderJSON {
	return orderJSON{
		OrderID:    o.OrderID,
		OwnerID:    o.OwnerID,
		Symbol:     o.Symbol,
		Type:       string(o.Type),
		Side:       string(o.Side),
		Quantity:   o.Quantity,
		FillPrice:  o.FillPrice,
		Status:     string(o.Status),
		PositionID: o.PositionID,
		CreatedAt:  o.CreatedAt,
		FilledAt:   o.FilledAt,
	}
}

func toOrderListJSON(list []*domain.Order) []orderJSON {
	out := make([]orderJSON, len(list))
	for i, o := range list {
		out[i] = toOrderJSON(o)
	}
	return out
}

type positionJSON struct {
	PositionID    string    `json:"position_id"`
	OwnerID       string    `json:"owner_id"`
	Symbol        string    `json:"symbol"`
	Side          string    `json:"side"`
	Quantity      float64   `json:"quantity"`
	EntryPrice    float64   `json:"entry_price"`
	CurrentPrice  float64   `json:"current_price"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	RealizedPnL   float64   `json:"realized_pnl"`
	OpenedAt      time.Time `json:"opened_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func toPositionListJSON(list []*domain.Position) []positionJSON {
	out := make([]positionJSON, len(list))
	for i, p := range list {
		out[i] = positionJSON{
			PositionID:    p.PositionID,
			OwnerID:       p.OwnerID,
			Symbol:        p.Symbol,
			Side:          string(p.Side),
			Quantity:      p.Quantity,
			EntryPrice:    p.EntryPrice,
			CurrentPrice:  p.CurrentPrice,
			UnrealizedPnL: p.UnrealizedPnL,
			RealizedPnL:   p.RealizedPnL,
			OpenedAt:      p.OpenedAt,
			UpdatedAt:     p.UpdatedAt,
		}
	}
	return out
}

type accountJSON struct {
	OwnerID        string    `json:"owner_id"`
	CashBalance    float64   `json:"cash_balance"`
	InitialBalance float64   `json:"initial_balance"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func toAccountJSON(a *domain.Account) accountJSON {
	return accountJSON{
		OwnerID:        a.OwnerID,
		CashBalance:    a.CashBalance,
		InitialBalance: a.InitialBalance,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

type balanceSummaryJSON struct {
	CashBalance           float64 `json:"cash_balance"`
	PositionValue         float64 `json:"position_value"`
	UnrealizedPnL         float64 `json:"unrealized_pnl"`
	TotalAccountValue     float64 `json:"total_account_value"`
	InitialBalance        float64 `json:"initial_balance"`
	PerformancePercentage float64 `json:"performance_percentage"`
}

func toBalanceSummaryJSON(b *domain.BalanceSummary) balanceSummaryJSON {
	return balanceSummaryJSON{
		CashBalance:           b.CashBalance,
		PositionValue:         b.PositionValue,
		UnrealizedPnL:         b.UnrealizedPnL,
		TotalAccountValue:     b.TotalAccountValue,
		InitialBalance:        b.InitialBalance,
		PerformancePercentage: b.PerformancePercentage,
	}
}

type tradingStatsJSON struct {
	TotalTrades    int     `json:"total_trades"`
	TotalPnL       float64 `json:"total_pnl"`
	PnLPercentage  float64 `json:"pnl_percentage"`
	CurrentBalance float64 `json:"current_balance"`
}

func toTradingStatsJSON(t *domain.TradingStats) tradingStatsJSON {
	return tradingStatsJSON{
		TotalTrades:    t.TotalTrades,
		TotalPnL:       t.TotalPnL,
		PnLPercentage:  t.PnLPercentage,
		CurrentBalance: t.CurrentBalance,
	}
}

type executionResultJSON struct {
	StrategyID      string     `json:"strategy_id"`
	Symbol          string     `json:"symbol"`
	Signal          string     `json:"signal"`
	Order           *orderJSON `json:"order,omitempty"`
	StopLossPrice   float64    `json:"stop_loss_price,omitempty"`
	TakeProfitPrice float64    `json:"take_profit_price,omitempty"`
}

func toExecutionResultListJSON(list []*engine.ExecutionResult) []executionResultJSON {
	out := make([]executionResultJSON, len(list))
	for i, r := range list {
		item := executionResultJSON{
			StrategyID:      r.StrategyID,
			Symbol:          r.Symbol,
			Signal:          string(r.Signal),
			StopLossPrice:   r.StopLossPrice,
			TakeProfitPrice: r.TakeProfitPrice,
		}
		if r.Order != nil {
			o := toOrderJSON(r.Order)
			item.Order = &o
		}
		out[i] = item
	}
	return out
}
