package memory

import (
	"context"
	"sort"
	"sync"

	"papertrade/internal/domain"
	"papertrade/internal/storage"
)

// PositionStore is an in-memory implementation of storage.PositionStore.
type PositionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Position // keyed by position_id
}

// NewPositionStore creates a new in-memory position store.
func NewPositionStore() *PositionStore {
	return &PositionStore{
		data: make(map[string]*domain.Position),
	}
}

// Insert adds a new position. Returns ErrDuplicateKey if the position ID or
// an open (owner, symbol) position exists.
func (s *PositionStore) Insert(_ context.Context, p *domain.Position) error {
	if p == nil || p.PositionID == "" || p.OwnerID == "" || p.Symbol == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[p.PositionID]; exists {
		return storage.ErrDuplicateKey
	}
	for _, existing := range s.data {
		if existing.OwnerID == p.OwnerID && existing.Symbol == p.Symbol {
			return storage.ErrDuplicateKey
		}
	}

	copy := *p
	s.data[p.PositionID] = &copy
	return nil
}

// Update replaces an existing position. Returns ErrNotFound if not exists.
func (s *PositionStore) Update(_ context.Context, p *domain.Position) error {
	if p == nil || p.PositionID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[p.PositionID]; !exists {
		return storage.ErrNotFound
	}

	copy := *p
	s.data[p.PositionID] = &copy
	return nil
}

// Delete removes a position by ID. Returns ErrNotFound if not exists.
func (s *PositionStore) Delete(_ context.Context, positionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[positionID]; !exists {
		return storage.ErrNotFound
	}

	delete(s.data, positionID)
	return nil
}

// GetByOwnerSymbol retrieves the open position for (owner, symbol).
// Returns ErrNotFound if not exists.
func (s *PositionStore) GetByOwnerSymbol(_ context.Context, ownerID, symbol string) (*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.data {
		if p.OwnerID == ownerID && p.Symbol == symbol {
			copy := *p
			return &copy, nil
		}
	}

	return nil, storage.ErrNotFound
}

// GetByOwner retrieves all open positions for an owner, ordered by opened_at ASC.
func (s *PositionStore) GetByOwner(_ context.Context, ownerID string) ([]*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Position
	for _, p := range s.data {
		if p.OwnerID == ownerID {
			copy := *p
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].OpenedAt.Equal(result[j].OpenedAt) {
			return result[i].OpenedAt.Before(result[j].OpenedAt)
		}
		return result[i].PositionID < result[j].PositionID
	})

	return result, nil
}

var _ storage.PositionStore = (*PositionStore)(nil)
