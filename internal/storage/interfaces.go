package storage

import (
	"context"

	"papertrade/internal/domain"
)

// StrategyStore provides access to strategy storage.
type StrategyStore interface {
	// Insert adds a new strategy. Returns ErrDuplicateKey if strategy_id exists.
	Insert(ctx context.Context, s *domain.Strategy) error

	// Update replaces an existing strategy. Returns ErrNotFound if not exists.
	Update(ctx context.Context, s *domain.Strategy) error

	// GetByID retrieves a strategy by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, strategyID string) (*domain.Strategy, error)

	// GetByOwner retrieves all strategies for an owner, ordered by created_at ASC.
	GetByOwner(ctx context.Context, ownerID string) ([]*domain.Strategy, error)

	// GetActive retrieves all strategies with status ACTIVE.
	GetActive(ctx context.Context) ([]*domain.Strategy, error)

	// Delete removes a strategy. Returns ErrNotFound if not exists.
	Delete(ctx context.Context, strategyID string) error
}

// AccountStore provides access to simulated cash accounts.
type AccountStore interface {
	// Insert creates a funded account. Returns ErrDuplicateKey if the owner
	// already has one.
	Insert(ctx context.Context, a *domain.Account) error

	// GetByOwner retrieves the account for an owner. Returns ErrNotFound if
	// not exists.
	GetByOwner(ctx context.Context, ownerID string) (*domain.Account, error)

	// UpdateBalanceConditional sets cash_balance to newBalance only if the
	// stored value still equals expected. Returns ErrConflict otherwise.
	// This is the atomic update primitive the ledger serializes on.
	UpdateBalanceConditional(ctx context.Context, ownerID string, expected, newBalance float64) error
}

// PositionStore provides access to open positions. At most one open position
// exists per (owner, symbol) pair.
type PositionStore interface {
	// Insert adds a new position. Returns ErrDuplicateKey if an open position
	// for (owner, symbol) exists.
	Insert(ctx context.Context, p *domain.Position) error

	// Update replaces an existing position. Returns ErrNotFound if not exists.
	Update(ctx context.Context, p *domain.Position) error

	// Delete removes a position by ID. Returns ErrNotFound if not exists.
	Delete(ctx context.Context, positionID string) error

	// GetByOwnerSymbol retrieves the open position for (owner, symbol).
	// Returns ErrNotFound if not exists.
	GetByOwnerSymbol(ctx context.Context, ownerID, symbol string) (*domain.Position, error)

	// GetByOwner retrieves all open positions for an owner, ordered by
	// opened_at ASC.
	GetByOwner(ctx context.Context, ownerID string) ([]*domain.Position, error)
}

// OrderStore provides append-only access to order history.
type OrderStore interface {
	// Insert appends a fill record. Returns ErrDuplicateKey if order_id exists.
	Insert(ctx context.Context, o *domain.Order) error

	// GetByOwner retrieves all orders for an owner, ordered by created_at ASC.
	GetByOwner(ctx context.Context, ownerID string) ([]*domain.Order, error)
}

// PriceHistoryStore provides access to archived closes per symbol.
type PriceHistoryStore interface {
	// InsertBulk adds multiple points. Fails entire batch on duplicate
	// (symbol, timestamp_ms).
	InsertBulk(ctx context.Context, points []*domain.PricePoint) error

	// GetRecent retrieves the most recent limit points for a symbol,
	// returned oldest first.
	GetRecent(ctx context.Context, symbol string, limit int) ([]*domain.PricePoint, error)

	// GetByTimeRange retrieves points for a symbol within [start, end]
	// (inclusive, milliseconds), ordered by timestamp ASC.
	GetByTimeRange(ctx context.Context, symbol string, start, end int64) ([]*domain.PricePoint, error)
}
