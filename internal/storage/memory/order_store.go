package memory

import (
	"context"
	"sort"
	"sync"

	"papertrade/internal/domain"
	"papertrade/internal/storage"
)

// OrderStore is an in-memory implementation of storage.OrderStore.
// Orders are append-only; there is no update or delete.
type OrderStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Order // keyed by order_id
}

// NewOrderStore creates a new in-memory order store.
func NewOrderStore() *OrderStore {
	return &OrderStore{
		data: make(map[string]*domain.Order),
	}
}

// Insert appends a fill record. Returns ErrDuplicateKey if order_id exists.
func (s *OrderStore) Insert(_ context.Context, o *domain.Order) error {
	if o == nil || o.OrderID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[o.OrderID]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *o
	s.data[o.OrderID] = &copy
	return nil
}

// GetByOwner retrieves all orders for an owner, ordered by created_at ASC.
func (s *OrderStore) GetByOwner(_ context.Context, ownerID string) ([]*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Order
	for _, o := range s.data {
		if o.OwnerID == ownerID {
			copy := *o
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].OrderID < result[j].OrderID
	})

	return result, nil
}

var _ storage.OrderStore = (*OrderStore)(nil)
