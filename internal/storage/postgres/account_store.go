package postgres

import (
	"context"
	"fmt"
	"time"

	"papertrade/internal/domain"
	"papertrade/internal/storage"
)

// AccountStore implements storage.AccountStore using PostgreSQL.
type AccountStore struct {
	pool *Pool
}

// NewAccountStore creates a new AccountStore.
func NewAccountStore(pool *Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

// Compile-time interface check.
var _ storage.AccountStore = (*AccountStore)(nil)

// Insert creates a funded account. Returns ErrDuplicateKey if the owner
// already has one.
func (s *AccountStore) Insert(ctx context.Context, a *domain.Account) error {
	query := `
		INSERT INTO accounts (owner_id, cash_balance, initial_balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := s.pool.Exec(ctx, query,
		a.OwnerID, a.CashBalance, a.InitialBalance, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// GetByOwner retrieves the account for an owner. Returns ErrNotFound if not exists.
func (s *AccountStore) GetByOwner(ctx context.Context, ownerID string) (*domain.Account, error) {
	query := `
		SELECT owner_id, cash_balance, initial_balance, created_at, updated_at
		FROM accounts
		WHERE owner_id = $1
	`

	var a domain.Account
	err := s.pool.QueryRow(ctx, query, ownerID).Scan(
		&a.OwnerID, &a.CashBalance, &a.InitialBalance, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get account by owner: %w", err)
	}
	return &a, nil
}

// UpdateBalanceConditional sets cash_balance to newBalance only if the stored
// value still equals expected. The WHERE clause makes the check-and-set a
// single atomic statement. Returns ErrConflict if the balance moved, and
// ErrNotFound if the account does not exist.
func (s *AccountStore) UpdateBalanceConditional(ctx context.Context, ownerID string, expected, newBalance float64) error {
	query := `
		UPDATE accounts
		SET cash_balance = $3, updated_at = $4
		WHERE owner_id = $1 AND cash_balance = $2
	`

	tag, err := s.pool.Exec(ctx, query, ownerID, expected, newBalance, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update account balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing account from a stale expected balance
		var exists bool
		err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM accounts WHERE owner_id = $1)`, ownerID,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check account existence: %w", err)
		}
		if !exists {
			return storage.ErrNotFound
		}
		return storage.ErrConflict
	}
	return nil
}
