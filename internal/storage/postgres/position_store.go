package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"papertrade/internal/domain"
	"papertrade/internal/storage"
)

// PositionStore implements storage.PositionStore using PostgreSQL.
// A unique index on (owner_id, symbol) enforces at most one open position
// per owner and symbol.
type PositionStore struct {
	pool *Pool
}

// NewPositionStore creates a new PositionStore.
func NewPositionStore(pool *Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PositionStore = (*PositionStore)(nil)

// Insert adds a new position. Returns ErrDuplicateKey if the position ID or
// an open (owner, symbol) position exists.
func (s *PositionStore) Insert(ctx context.Context, p *domain.Position) error {
	query := `
		INSERT INTO positions (
			position_id, owner_id, symbol, side,
			quantity, entry_price, current_price, unrealized_pnl, realized_pnl,
			opened_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8, $9,
			$10, $11
		)
	`

	_, err := s.pool.Exec(ctx, query,
		p.PositionID, p.OwnerID, p.Symbol, p.Side,
		p.Quantity, p.EntryPrice, p.CurrentPrice, p.UnrealizedPnL, p.RealizedPnL,
		p.OpenedAt, p.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert position: %w", err)
	}
	return nil
}

// Update replaces an existing position. Returns ErrNotFound if not exists.
func (s *PositionStore) Update(ctx context.Context, p *domain.Position) error {
	query := `
		UPDATE positions SET
			side = $2, quantity = $3, entry_price = $4,
			current_price = $5, unrealized_pnl = $6, realized_pnl = $7,
			updated_at = $8
		WHERE position_id = $1
	`

	tag, err := s.pool.Exec(ctx, query,
		p.PositionID,
		p.Side, p.Quantity, p.EntryPrice,
		p.CurrentPrice, p.UnrealizedPnL, p.RealizedPnL,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update position: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Delete removes a position by ID. Returns ErrNotFound if not exists.
func (s *PositionStore) Delete(ctx context.Context, positionID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM positions WHERE position_id = $1`, positionID)
	if err != nil {
		return fmt.Errorf("delete position: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetByOwnerSymbol retrieves the open position for (owner, symbol).
// Returns ErrNotFound if not exists.
func (s *PositionStore) GetByOwnerSymbol(ctx context.Context, ownerID, symbol string) (*domain.Position, error) {
	query := positionSelect + ` WHERE owner_id = $1 AND symbol = $2`

	row := s.pool.QueryRow(ctx, query, ownerID, symbol)
	p, err := scanPosition(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get position by owner/symbol: %w", err)
	}
	return p, nil
}

// GetByOwner retrieves all open positions for an owner, ordered by opened_at ASC.
func (s *PositionStore) GetByOwner(ctx context.Context, ownerID string) ([]*domain.Position, error) {
	query := positionSelect + `
		WHERE owner_id = $1
		ORDER BY opened_at ASC, position_id ASC
	`

	rows, err := s.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("get positions by owner: %w", err)
	}
	defer rows.Close()

	var positions []*domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position row: %w", err)
		}
		positions = append(positions, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate position rows: %w", err)
	}

	return positions, nil
}

const positionSelect = `
	SELECT
		position_id, owner_id, symbol, side,
		quantity, entry_price, current_price, unrealized_pnl, realized_pnl,
		opened_at, updated_at
	FROM positions
`

// scanPosition scans a single row into a Position.
func scanPosition(row pgx.Row) (*domain.Position, error) {
	var p domain.Position

	err := row.Scan(
		&p.PositionID, &p.OwnerID, &p.Symbol, &p.Side,
		&p.Quantity, &p.EntryPrice, &p.CurrentPrice, &p.UnrealizedPnL, &p.RealizedPnL,
		&p.OpenedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &p, nil
}
