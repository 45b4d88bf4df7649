package postgres

import (
	"context"
	"fmt"

	"papertrade/internal/domain"
	"papertrade/internal/storage"
)

// OrderStore implements storage.OrderStore using PostgreSQL.
// Orders are append-only fill records.
type OrderStore struct {
	pool *Pool
}

// NewOrderStore creates a new OrderStore.
func NewOrderStore(pool *Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Compile-time interface check.
var _ storage.OrderStore = (*OrderStore)(nil)

// Insert appends a fill record. Returns ErrDuplicateKey if order_id exists.
func (s *OrderStore) Insert(ctx context.Context, o *domain.Order) error {
	query := `
		INSERT INTO orders (
			order_id, owner_id, symbol, order_type, side,
			quantity, fill_price, status, position_id,
			created_at, filled_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11
		)
	`

	_, err := s.pool.Exec(ctx, query,
		o.OrderID, o.OwnerID, o.Symbol, o.Type, o.Side,
		o.Quantity, o.FillPrice, o.Status, o.PositionID,
		o.CreatedAt, o.FilledAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// GetByOwner retrieves all orders for an owner, ordered by created_at ASC.
func (s *OrderStore) GetByOwner(ctx context.Context, ownerID string) ([]*domain.Order, error) {
	query := `
		SELECT
			order_id, owner_id, symbol, order_type, side,
			quantity, fill_price, status, position_id,
			created_at, filled_at
		FROM orders
		WHERE owner_id = $1
		ORDER BY created_at ASC, order_id ASC
	`

	rows, err := s.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("get orders by owner: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		var o domain.Order

		err := rows.Scan(
			&o.OrderID, &o.OwnerID, &o.Symbol, &o.Type, &o.Side,
			&o.Quantity, &o.FillPrice, &o.Status, &o.PositionID,
			&o.CreatedAt, &o.FilledAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}

		orders = append(orders, &o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}

	return orders, nil
}
