// Package ledger owns simulated positions, orders and cash balances.
// Buys and sells settle instantly at the current market price with
// average-cost accounting: every buy folds into the volume-weighted entry
// price, every sell realizes PnL against it, and a position that reaches
// zero quantity is deleted rather than kept around.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"papertrade/internal/domain"
	"papertrade/internal/idhash"
	"papertrade/internal/marketdata"
	"papertrade/internal/storage"
)

// DefaultInitialBalance funds new accounts.
const DefaultInitialBalance = 10000.0

// balanceRetries bounds the optimistic retry loop on the conditional
// balance update. Contention beyond this is surfaced to the caller.
const balanceRetries = 5

// PriceLookup is the slice of the market data source the ledger needs.
type PriceLookup interface {
	GetCurrentPrice(ctx context.Context, symbol string) (float64, time.Time, error)
}

// Ledger applies order effects against accounts and positions.
// Mutations for one owner are serialized in-process by a per-owner lock;
// the conditional balance update additionally guards against writers in
// other processes sharing the same store.
type Ledger struct {
	accounts  storage.AccountStore
	positions storage.PositionStore
	orders    storage.OrderStore
	prices    PriceLookup

	mu     sync.Mutex
	owners map[string]*sync.Mutex
}

// New creates a ledger over the given stores and price source.
func New(accounts storage.AccountStore, positions storage.PositionStore, orders storage.OrderStore, prices PriceLookup) *Ledger {
	return &Ledger{
		accounts:  accounts,
		positions: positions,
		orders:    orders,
		prices:    prices,
		owners:    make(map[string]*sync.Mutex),
	}
}

// lockOwner serializes mutations for a single owner.
func (l *Ledger) lockOwner(ownerID string) func() {
	l.mu.Lock()
	m, exists := l.owners[ownerID]
	if !exists {
		m = &sync.Mutex{}
		l.owners[ownerID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

var _ PriceLookup = (marketdata.Source)(nil)

// EnableAccount creates a funded account for the owner. Calling it again
// for an existing account returns the current record unchanged.
func (l *Ledger) EnableAccount(ctx context.Context, ownerID string, initialBalance float64) (*domain.Account, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner id required", domain.ErrValidation)
	}
	if initialBalance <= 0 {
		initialBalance = DefaultInitialBalance
	}

	now := time.Now().UTC()
	account := &domain.Account{
		OwnerID:        ownerID,
		CashBalance:    initialBalance,
		InitialBalance: initialBalance,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := l.accounts.Insert(ctx, account)
	if errors.Is(err, storage.ErrDuplicateKey) {
		existing, getErr := l.accounts.GetByOwner(ctx, ownerID)
		if getErr != nil {
			return nil, fmt.Errorf("%w: get existing account: %v", domain.ErrUpstream, getErr)
		}
		return existing, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: create account: %v", domain.ErrUpstream, err)
	}
	return account, nil
}

// PlaceOrder executes a simulated market order at the current price.
// Buys debit cash and average into the open position; sells credit cash,
// realize PnL and shrink or delete the position. The returned order is the
// immutable fill record.
func (l *Ledger) PlaceOrder(ctx context.Context, ownerID, symbol string, side domain.OrderSide, quantity float64) (*domain.Order, error) {
	if ownerID == "" || symbol == "" {
		return nil, fmt.Errorf("%w: owner id and symbol required", domain.ErrValidation)
	}
	if !side.Valid() {
		return nil, fmt.Errorf("%w: invalid side %q", domain.ErrValidation, side)
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", domain.ErrValidation)
	}

	price, _, err := l.prices.GetCurrentPrice(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: current price for %s: %v", domain.ErrUpstream, symbol, err)
	}
	if price <= 0 {
		return nil, fmt.Errorf("%w: no price for %s", domain.ErrUpstream, symbol)
	}

	unlock := l.lockOwner(ownerID)
	defer unlock()

	switch side {
	case domain.OrderSideBuy:
		return l.executeBuy(ctx, ownerID, symbol, quantity, price)
	default:
		return l.executeSell(ctx, ownerID, symbol, quantity, price)
	}
}

func (l *Ledger) executeBuy(ctx context.Context, ownerID, symbol string, quantity, price float64) (*domain.Order, error) {
	cost := price * quantity

	if err := l.adjustBalance(ctx, ownerID, -cost); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	position, err := l.positions.GetByOwnerSymbol(ctx, ownerID, symbol)
	switch {
	case err == nil:
		// Fold the fill into the volume-weighted entry price
		oldQty := position.Quantity
		position.EntryPrice = (oldQty*position.EntryPrice + quantity*price) / (oldQty + quantity)
		position.Quantity = oldQty + quantity
		position.CurrentPrice = price
		position.UnrealizedPnL = (price - position.EntryPrice) * position.Quantity
		position.UpdatedAt = now
		if err := l.positions.Update(ctx, position); err != nil {
			return nil, fmt.Errorf("%w: update position: %v", domain.ErrUpstream, err)
		}
	case errors.Is(err, storage.ErrNotFound):
		position = &domain.Position{
			PositionID:   idhash.NewID(),
			OwnerID:      ownerID,
			Symbol:       symbol,
			Side:         domain.OrderSideBuy,
			Quantity:     quantity,
			EntryPrice:   price,
			CurrentPrice: price,
			OpenedAt:     now,
			UpdatedAt:    now,
		}
		if err := l.positions.Insert(ctx, position); err != nil {
			return nil, fmt.Errorf("%w: insert position: %v", domain.ErrUpstream, err)
		}
	default:
		return nil, fmt.Errorf("%w: get position: %v", domain.ErrUpstream, err)
	}

	return l.appendOrder(ctx, ownerID, symbol, domain.OrderSideBuy, quantity, price, position.PositionID)
}

func (l *Ledger) executeSell(ctx context.Context, ownerID, symbol string, quantity, price float64) (*domain.Order, error) {
	position, err := l.positions.GetByOwnerSymbol(ctx, ownerID, symbol)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrNoPosition, symbol)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get position: %v", domain.ErrUpstream, err)
	}
	if position.Quantity < quantity {
		return nil, fmt.Errorf("%w: held %v, requested %v", domain.ErrInsufficientQuantity, position.Quantity, quantity)
	}

	if err := l.adjustBalance(ctx, ownerID, price*quantity); err != nil {
		return nil, err
	}

	realized := (price - position.EntryPrice) * quantity
	remaining := position.Quantity - quantity

	if remaining == 0 {
		if err := l.positions.Delete(ctx, position.PositionID); err != nil {
			return nil, fmt.Errorf("%w: delete position: %v", domain.ErrUpstream, err)
		}
	} else {
		position.Quantity = remaining
		position.CurrentPrice = price
		position.UnrealizedPnL = (price - position.EntryPrice) * remaining
		position.RealizedPnL += realized
		position.UpdatedAt = time.Now().UTC()
		if err := l.positions.Update(ctx, position); err != nil {
			return nil, fmt.Errorf("%w: update position: %v", domain.ErrUpstream, err)
		}
	}

	return l.appendOrder(ctx, ownerID, symbol, domain.OrderSideSell, quantity, price, position.PositionID)
}

// adjustBalance applies a signed delta to the owner's cash balance through
// the conditional update primitive, retrying when a concurrent writer moved
// the balance first. A negative delta that would overdraw fails with
// ErrInsufficientBalance and leaves all state untouched.
func (l *Ledger) adjustBalance(ctx context.Context, ownerID string, delta float64) error {
	for attempt := 0; attempt < balanceRetries; attempt++ {
		account, err := l.accounts.GetByOwner(ctx, ownerID)
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: account for owner %s", domain.ErrNotFound, ownerID)
		}
		if err != nil {
			return fmt.Errorf("%w: get account: %v", domain.ErrUpstream, err)
		}

		newBalance := account.CashBalance + delta
		if newBalance < 0 {
			return fmt.Errorf("%w: cost %.2f exceeds balance %.2f", domain.ErrInsufficientBalance, -delta, account.CashBalance)
		}

		err = l.accounts.UpdateBalanceConditional(ctx, ownerID, account.CashBalance, newBalance)
		if err == nil {
			return nil
		}
		if !errors.Is(err, storage.ErrConflict) {
			return fmt.Errorf("%w: update balance: %v", domain.ErrUpstream, err)
		}
		// Lost the race; re-read and retry
	}
	return fmt.Errorf("%w: balance update contention for owner %s", domain.ErrUpstream, ownerID)
}

func (l *Ledger) appendOrder(ctx context.Context, ownerID, symbol string, side domain.OrderSide, quantity, price float64, positionID string) (*domain.Order, error) {
	now := time.Now().UTC()
	order := &domain.Order{
		OrderID:    idhash.NewID(),
		OwnerID:    ownerID,
		Symbol:     symbol,
		Type:       domain.OrderTypeMarket,
		Side:       side,
		Quantity:   quantity,
		FillPrice:  price,
		Status:     domain.OrderStatusFilled,
		PositionID: positionID,
		CreatedAt:  now,
		FilledAt:   now,
	}

	if err := l.orders.Insert(ctx, order); err != nil {
		return nil, fmt.Errorf("%w: insert order: %v", domain.ErrUpstream, err)
	}
	return order, nil
}

// GetPositions returns the owner's open positions with current_price and
// unrealized_pnl refreshed against a live price lookup. A failed lookup for
// one symbol leaves that position's last known price in place.
func (l *Ledger) GetPositions(ctx context.Context, ownerID string) ([]*domain.Position, error) {
	positions, err := l.positions.GetByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("%w: list positions: %v", domain.ErrUpstream, err)
	}

	for _, p := range positions {
		price, _, err := l.prices.GetCurrentPrice(ctx, p.Symbol)
		if err != nil || price <= 0 {
			continue
		}
		p.CurrentPrice = price
		p.UnrealizedPnL = (price - p.EntryPrice) * p.Quantity
	}

	return positions, nil
}

// GetOrders returns the owner's full order history, oldest first.
func (l *Ledger) GetOrders(ctx context.Context, ownerID string) ([]*domain.Order, error) {
	orders, err := l.orders.GetByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("%w: list orders: %v", domain.ErrUpstream, err)
	}
	return orders, nil
}

// GetBalanceSummary reports cash, open position value at current prices,
// unrealized PnL and performance against the initial funding balance.
func (l *Ledger) GetBalanceSummary(ctx context.Context, ownerID string) (*domain.BalanceSummary, error) {
	account, err := l.accounts.GetByOwner(ctx, ownerID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: account for owner %s", domain.ErrNotFound, ownerID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get account: %v", domain.ErrUpstream, err)
	}

	positions, err := l.GetPositions(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	var positionValue, unrealized float64
	for _, p := range positions {
		positionValue += p.Quantity * p.CurrentPrice
		unrealized += p.UnrealizedPnL
	}

	total := account.CashBalance + positionValue
	var performance float64
	if account.InitialBalance > 0 {
		performance = (total - account.InitialBalance) / account.InitialBalance * 100
	}

	return &domain.BalanceSummary{
		CashBalance:           account.CashBalance,
		PositionValue:         positionValue,
		UnrealizedPnL:         unrealized,
		TotalAccountValue:     total,
		InitialBalance:        account.InitialBalance,
		PerformancePercentage: performance,
	}, nil
}

// GetTradingStats reports lifetime trade count and overall PnL versus the
// initial funding balance.
func (l *Ledger) GetTradingStats(ctx context.Context, ownerID string) (*domain.TradingStats, error) {
	summary, err := l.GetBalanceSummary(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	orders, err := l.GetOrders(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	totalPnL := summary.TotalAccountValue - summary.InitialBalance
	var pnlPct float64
	if summary.InitialBalance > 0 {
		pnlPct = totalPnL / summary.InitialBalance * 100
	}

	return &domain.TradingStats{
		TotalTrades:    len(orders),
		TotalPnL:       totalPnL,
		PnLPercentage:  pnlPct,
		CurrentBalance: summary.CashBalance,
	}, nil
}
