package memory

import (
	"context"
	"sort"
	"sync"

	"papertrade/internal/domain"
	"papertrade/internal/storage"
)

// PriceHistoryStore is an in-memory implementation of storage.PriceHistoryStore.
type PriceHistoryStore struct {
	mu   sync.RWMutex
	data map[string][]*domain.PricePoint // keyed by symbol, kept sorted by timestamp
}

// NewPriceHistoryStore creates a new in-memory price history store.
func NewPriceHistoryStore() *PriceHistoryStore {
	return &PriceHistoryStore{
		data: make(map[string][]*domain.PricePoint),
	}
}

// InsertBulk adds multiple points. Fails entire batch on duplicate
// (symbol, timestamp_ms).
func (s *PriceHistoryStore) InsertBulk(_ context.Context, points []*domain.PricePoint) error {
	if len(points) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	type key struct {
		symbol      string
		timestampMs int64
	}
	batchKeys := make(map[key]struct{}, len(points))

	// First pass: validate and check duplicates (existing + intra-batch)
	for _, p := range points {
		if p == nil || p.Symbol == "" {
			return storage.ErrInvalidInput
		}

		k := key{p.Symbol, p.TimestampMs}
		if _, exists := batchKeys[k]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[k] = struct{}{}

		for _, existing := range s.data[p.Symbol] {
			if existing.TimestampMs == p.TimestampMs {
				return storage.ErrDuplicateKey
			}
		}
	}

	// Second pass: insert and re-sort affected symbols
	touched := make(map[string]struct{})
	for _, p := range points {
		copy := *p
		s.data[p.Symbol] = append(s.data[p.Symbol], &copy)
		touched[p.Symbol] = struct{}{}
	}
	for symbol := range touched {
		points := s.data[symbol]
		sort.Slice(points, func(i, j int) bool {
			return points[i].TimestampMs < points[j].TimestampMs
		})
	}

	return nil
}

// GetRecent retrieves the most recent limit points for a symbol, oldest first.
func (s *PriceHistoryStore) GetRecent(_ context.Context, symbol string, limit int) ([]*domain.PricePoint, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	points := s.data[symbol]
	start := len(points) - limit
	if start < 0 {
		start = 0
	}

	result := make([]*domain.PricePoint, 0, len(points)-start)
	for _, p := range points[start:] {
		copy := *p
		result = append(result, &copy)
	}

	return result, nil
}

// GetByTimeRange retrieves points for a symbol within [start, end] (inclusive).
func (s *PriceHistoryStore) GetByTimeRange(_ context.Context, symbol string, start, end int64) ([]*domain.PricePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PricePoint
	for _, p := range s.data[symbol] {
		if p.TimestampMs >= start && p.TimestampMs <= end {
			copy := *p
			result = append(result, &copy)
		}
	}

	return result, nil
}

var _ storage.PriceHistoryStore = (*PriceHistoryStore)(nil)
