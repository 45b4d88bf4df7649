package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"papertrade/internal/domain"
	"papertrade/internal/storage"
)

// StrategyStore implements storage.StrategyStore using PostgreSQL.
// Parameters and risk settings are stored as JSONB.
type StrategyStore struct {
	pool *Pool
}

// NewStrategyStore creates a new StrategyStore.
func NewStrategyStore(pool *Pool) *StrategyStore {
	return &StrategyStore{pool: pool}
}

// Compile-time interface check.
var _ storage.StrategyStore = (*StrategyStore)(nil)

// Insert adds a new strategy. Returns ErrDuplicateKey if strategy_id exists.
func (s *StrategyStore) Insert(ctx context.Context, st *domain.Strategy) error {
	params, risk, err := marshalStrategyJSON(st)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO strategies (
			strategy_id, owner_id, name, description, strategy_type, status,
			symbols, parameters, risk_parameters,
			created_at, updated_at, last_executed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9,
			$10, $11, $12
		)
	`

	_, err = s.pool.Exec(ctx, query,
		st.StrategyID, st.OwnerID, st.Name, st.Description, st.Type, st.Status,
		st.Symbols, params, risk,
		st.CreatedAt, st.UpdatedAt, st.LastExecutedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert strategy: %w", err)
	}
	return nil
}

// Update replaces an existing strategy. Returns ErrNotFound if not exists.
func (s *StrategyStore) Update(ctx context.Context, st *domain.Strategy) error {
	params, risk, err := marshalStrategyJSON(st)
	if err != nil {
		return err
	}

	query := `
		UPDATE strategies SET
			name = $2, description = $3, strategy_type = $4, status = $5,
			symbols = $6, parameters = $7, risk_parameters = $8,
			updated_at = $9, last_executed_at = $10
		WHERE strategy_id = $1
	`

	tag, err := s.pool.Exec(ctx, query,
		st.StrategyID,
		st.Name, st.Description, st.Type, st.Status,
		st.Symbols, params, risk,
		st.UpdatedAt, st.LastExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("update strategy: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetByID retrieves a strategy by its ID. Returns ErrNotFound if not exists.
func (s *StrategyStore) GetByID(ctx context.Context, strategyID string) (*domain.Strategy, error) {
	query := strategySelect + ` WHERE strategy_id = $1`

	row := s.pool.QueryRow(ctx, query, strategyID)
	st, err := scanStrategy(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get strategy by id: %w", err)
	}
	return st, nil
}

// GetByOwner retrieves all strategies for an owner, ordered by created_at ASC.
func (s *StrategyStore) GetByOwner(ctx context.Context, ownerID string) ([]*domain.Strategy, error) {
	query := strategySelect + `
		WHERE owner_id = $1
		ORDER BY created_at ASC, strategy_id ASC
	`

	rows, err := s.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("get strategies by owner: %w", err)
	}
	defer rows.Close()

	return scanStrategies(rows)
}

// GetActive retrieves all strategies with status ACTIVE.
func (s *StrategyStore) GetActive(ctx context.Context) ([]*domain.Strategy, error) {
	query := strategySelect + `
		WHERE status = $1
		ORDER BY created_at ASC, strategy_id ASC
	`

	rows, err := s.pool.Query(ctx, query, domain.StrategyStatusActive)
	if err != nil {
		return nil, fmt.Errorf("get active strategies: %w", err)
	}
	defer rows.Close()

	return scanStrategies(rows)
}

// Delete removes a strategy. Returns ErrNotFound if not exists.
func (s *StrategyStore) Delete(ctx context.Context, strategyID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM strategies WHERE strategy_id = $1`, strategyID)
	if err != nil {
		return fmt.Errorf("delete strategy: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

const strategySelect = `
	SELECT
		strategy_id, owner_id, name, description, strategy_type, status,
		symbols, parameters, risk_parameters,
		created_at, updated_at, last_executed_at
	FROM strategies
`

// marshalStrategyJSON encodes the JSONB columns.
func marshalStrategyJSON(st *domain.Strategy) (params, risk []byte, err error) {
	params, err = json.Marshal(st.Parameters)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal strategy parameters: %w", err)
	}
	risk, err = json.Marshal(st.RiskParameters)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal risk parameters: %w", err)
	}
	return params, risk, nil
}

// scanStrategy scans a single row into a Strategy.
func scanStrategy(row pgx.Row) (*domain.Strategy, error) {
	var st domain.Strategy
	var params, risk []byte

	err := row.Scan(
		&st.StrategyID, &st.OwnerID, &st.Name, &st.Description, &st.Type, &st.Status,
		&st.Symbols, &params, &risk,
		&st.CreatedAt, &st.UpdatedAt, &st.LastExecutedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(params, &st.Parameters); err != nil {
		return nil, fmt.Errorf("unmarshal strategy parameters: %w", err)
	}
	if err := json.Unmarshal(risk, &st.RiskParameters); err != nil {
		return nil, fmt.Errorf("unmarshal risk parameters: %w", err)
	}

	return &st, nil
}

// scanStrategies scans multiple rows into a slice of Strategy.
func scanStrategies(rows pgx.Rows) ([]*domain.Strategy, error) {
	var strategies []*domain.Strategy

	for rows.Next() {
		st, err := scanStrategy(rows)
		if err != nil {
			return nil, fmt.Errorf("scan strategy row: %w", err)
		}
		strategies = append(strategies, st)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate strategy rows: %w", err)
	}

	return strategies, nil
}
