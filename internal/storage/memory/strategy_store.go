package memory

import (
	"context"
	"sort"
	"sync"

	"papertrade/internal/domain"
	"papertrade/internal/storage"
)

// StrategyStore is an in-memory implementation of storage.StrategyStore.
type StrategyStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Strategy // keyed by strategy_id
}

// NewStrategyStore creates a new in-memory strategy store.
func NewStrategyStore() *StrategyStore {
	return &StrategyStore{
		data: make(map[string]*domain.Strategy),
	}
}

// Insert adds a new strategy. Returns ErrDuplicateKey if strategy_id exists.
func (s *StrategyStore) Insert(_ context.Context, st *domain.Strategy) error {
	if st == nil || st.StrategyID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[st.StrategyID]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[st.StrategyID] = st.Clone()
	return nil
}

// Update replaces an existing strategy. Returns ErrNotFound if not exists.
func (s *StrategyStore) Update(_ context.Context, st *domain.Strategy) error {
	if st == nil || st.StrategyID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[st.StrategyID]; !exists {
		return storage.ErrNotFound
	}

	s.data[st.StrategyID] = st.Clone()
	return nil
}

// GetByID retrieves a strategy by its ID. Returns ErrNotFound if not exists.
func (s *StrategyStore) GetByID(_ context.Context, strategyID string) (*domain.Strategy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, exists := s.data[strategyID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	return st.Clone(), nil
}

// GetByOwner retrieves all strategies for an owner, ordered by created_at ASC.
func (s *StrategyStore) GetByOwner(_ context.Context, ownerID string) ([]*domain.Strategy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Strategy
	for _, st := range s.data {
		if st.OwnerID == ownerID {
			result = append(result, st.Clone())
		}
	}

	sortStrategies(result)
	return result, nil
}

// GetActive retrieves all strategies with status ACTIVE.
func (s *StrategyStore) GetActive(_ context.Context) ([]*domain.Strategy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Strategy
	for _, st := range s.data {
		if st.Status == domain.StrategyStatusActive {
			result = append(result, st.Clone())
		}
	}

	sortStrategies(result)
	return result, nil
}

// Delete removes a strategy. Returns ErrNotFound if not exists.
func (s *StrategyStore) Delete(_ context.Context, strategyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[strategyID]; !exists {
		return storage.ErrNotFound
	}

	delete(s.data, strategyID)
	return nil
}

// sortStrategies orders by (created_at, strategy_id) for deterministic reads.
func sortStrategies(strategies []*domain.Strategy) {
	sort.Slice(strategies, func(i, j int) bool {
		if !strategies[i].CreatedAt.Equal(strategies[j].CreatedAt) {
			return strategies[i].CreatedAt.Before(strategies[j].CreatedAt)
		}
		return strategies[i].StrategyID < strategies[j].StrategyID
	})
}

var _ storage.StrategyStore = (*StrategyStore)(nil)
