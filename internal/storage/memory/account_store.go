package memory

import (
	"context"
	"sync"
	"time"

	"papertrade/internal/domain"
	"papertrade/internal/storage"
)

// AccountStore is an in-memory implementation of storage.AccountStore.
type AccountStore struct {
	mu   sync.Mutex
	data map[string]*domain.Account // keyed by owner_id
}

// NewAccountStore creates a new in-memory account store.
func NewAccountStore() *AccountStore {
	return &AccountStore{
		data: make(map[string]*domain.Account),
	}
}

// Insert creates a funded account. Returns ErrDuplicateKey if the owner
// already has one.
func (s *AccountStore) Insert(_ context.Context, a *domain.Account) error {
	if a == nil || a.OwnerID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[a.OwnerID]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *a
	s.data[a.OwnerID] = &copy
	return nil
}

// GetByOwner retrieves the account for an owner. Returns ErrNotFound if not exists.
func (s *AccountStore) GetByOwner(_ context.Context, ownerID string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, exists := s.data[ownerID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *a
	return &copy, nil
}

// UpdateBalanceConditional sets cash_balance to newBalance only if the stored
// value still equals expected. Returns ErrConflict otherwise.
func (s *AccountStore) UpdateBalanceConditional(_ context.Context, ownerID string, expected, newBalance float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, exists := s.data[ownerID]
	if !exists {
		return storage.ErrNotFound
	}

	if a.CashBalance != expected {
		return storage.ErrConflict
	}

	a.CashBalance = newBalance
	a.UpdatedAt = time.Now().UTC()
	return nil
}

var _ storage.AccountStore = (*AccountStore)(nil)
