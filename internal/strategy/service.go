// Package strategy provides the CRUD surface for trading strategies and
// keeps the activation registry in sync with status and symbol changes.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"papertrade/internal/domain"
	"papertrade/internal/idhash"
	"papertrade/internal/storage"
)

// Activator is the registry side the service drives on status transitions.
type Activator interface {
	Activate(st *domain.Strategy) error
	Deactivate(strategyID string, symbols []string) error
	ReconcileSymbols(st *domain.Strategy, oldSymbols []string) error
}

// Service implements strategy CRUD with owner scoping.
type Service struct {
	store    storage.StrategyStore
	registry Activator
}

// NewService creates a strategy service.
func NewService(store storage.StrategyStore, registry Activator) *Service {
	return &Service{store: store, registry: registry}
}

// CreateInput carries the caller-supplied fields for a new strategy.
type CreateInput struct {
	Name           string
	Description    string
	Type           domain.StrategyType
	Symbols        []string
	Parameters     map[string]float64
	RiskParameters domain.RiskParameters
}

// UpdateInput carries a partial update; nil fields keep their current value.
type UpdateInput struct {
	Name           *string
	Description    *string
	Status         *domain.StrategyStatus
	Symbols        []string
	Parameters     map[string]float64
	RiskParameters *domain.RiskParameters
}

// Create validates and stores a new strategy. New strategies always start
// Paused; activation is an explicit update so a strategy never trades
// before its owner has reviewed it.
func (s *Service) Create(ctx context.Context, ownerID string, in CreateInput) (*domain.Strategy, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner id required", domain.ErrValidation)
	}
	if in.Name == "" {
		return nil, fmt.Errorf("%w: name required", domain.ErrValidation)
	}
	if !in.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown strategy type %q", domain.ErrValidation, in.Type)
	}

	symbols := dedupeSymbols(in.Symbols)
	if len(symbols) == 0 {
		return nil, fmt.Errorf("%w: at least one symbol required", domain.ErrValidation)
	}
	if in.RiskParameters.MaxPositionSize <= 0 {
		return nil, fmt.Errorf("%w: max position size must be positive", domain.ErrValidation)
	}

	// Parse eagerly so malformed parameters are rejected here, not on the
	// first tick.
	if _, err := ParseParams(in.Type, in.Parameters); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	st := &domain.Strategy{
		StrategyID:     idhash.NewID(),
		OwnerID:        ownerID,
		Name:           in.Name,
		Description:    in.Description,
		Type:           in.Type,
		Status:         domain.StrategyStatusPaused,
		Symbols:        symbols,
		Parameters:     in.Parameters,
		RiskParameters: in.RiskParameters,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.store.Insert(ctx, st); err != nil {
		return nil, fmt.Errorf("%w: insert strategy: %v", domain.ErrUpstream, err)
	}
	return st.Clone(), nil
}

// Update applies a partial update after an ownership check, then drives the
// registry: Paused/Stopped to Active activates, Active to Paused/Stopped
// deactivates, and a symbol change on a still-active strategy reconciles
// subscriptions.
func (s *Service) Update(ctx context.Context, ownerID, strategyID string, in UpdateInput) (*domain.Strategy, error) {
	st, err := s.getOwned(ctx, ownerID, strategyID)
	if err != nil {
		return nil, err
	}

	oldStatus := st.Status
	oldSymbols := append([]string(nil), st.Symbols...)

	if in.Name != nil {
		if *in.Name == "" {
			return nil, fmt.Errorf("%w: name required", domain.ErrValidation)
		}
		st.Name = *in.Name
	}
	if in.Description != nil {
		st.Description = *in.Description
	}
	if in.Status != nil {
		if !in.Status.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", domain.ErrValidation, *in.Status)
		}
		st.Status = *in.Status
	}
	if in.Symbols != nil {
		symbols := dedupeSymbols(in.Symbols)
		if len(symbols) == 0 {
			return nil, fmt.Errorf("%w: at least one symbol required", domain.ErrValidation)
		}
		st.Symbols = symbols
	}
	if in.Parameters != nil {
		st.Parameters = in.Parameters
	}
	if in.RiskParameters != nil {
		if in.RiskParameters.MaxPositionSize <= 0 {
			return nil, fmt.Errorf("%w: max position size must be positive", domain.ErrValidation)
		}
		st.RiskParameters = *in.RiskParameters
	}

	if _, err := ParseParams(st.Type, st.Parameters); err != nil {
		return nil, err
	}

	st.UpdatedAt = time.Now().UTC()
	if err := s.store.Update(ctx, st); err != nil {
		return nil, fmt.Errorf("%w: update strategy: %v", domain.ErrUpstream, err)
	}

	if err := s.syncRegistry(st, oldStatus, oldSymbols); err != nil {
		return nil, err
	}

	return st.Clone(), nil
}

// syncRegistry translates a status or symbol change into registry calls.
func (s *Service) syncRegistry(st *domain.Strategy, oldStatus domain.StrategyStatus, oldSymbols []string) error {
	wasActive := oldStatus == domain.StrategyStatusActive
	isActive := st.Status == domain.StrategyStatusActive

	switch {
	case !wasActive && isActive:
		return s.registry.Activate(st)
	case wasActive && !isActive:
		return s.registry.Deactivate(st.StrategyID, oldSymbols)
	case wasActive && isActive && !sameSymbols(oldSymbols, st.Symbols):
		return s.registry.ReconcileSymbols(st, oldSymbols)
	}
	return nil
}

// Get returns a strategy after an ownership check.
func (s *Service) Get(ctx context.Context, ownerID, strategyID string) (*domain.Strategy, error) {
	return s.getOwned(ctx, ownerID, strategyID)
}

// List returns all strategies for an owner, oldest first.
func (s *Service) List(ctx context.Context, ownerID string) ([]*domain.Strategy, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner id required", domain.ErrValidation)
	}
	strategies, err := s.store.GetByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("%w: list strategies: %v", domain.ErrUpstream, err)
	}
	return strategies, nil
}

// Delete removes a strategy after an ownership check, deactivating it first
// if it is live.
func (s *Service) Delete(ctx context.Context, ownerID, strategyID string) error {
	st, err := s.getOwned(ctx, ownerID, strategyID)
	if err != nil {
		return err
	}

	if st.Status == domain.StrategyStatusActive {
		if err := s.registry.Deactivate(st.StrategyID, st.Symbols); err != nil {
			return err
		}
	}

	if err := s.store.Delete(ctx, strategyID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: strategy %s", domain.ErrNotFound, strategyID)
		}
		return fmt.Errorf("%w: delete strategy: %v", domain.ErrUpstream, err)
	}
	return nil
}

func (s *Service) getOwned(ctx context.Context, ownerID, strategyID string) (*domain.Strategy, error) {
	if ownerID == "" || strategyID == "" {
		return nil, fmt.Errorf("%w: owner id and strategy id required", domain.ErrValidation)
	}

	st, err := s.store.GetByID(ctx, strategyID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: strategy %s", domain.ErrNotFound, strategyID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get strategy: %v", domain.ErrUpstream, err)
	}
	if st.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: strategy %s", domain.ErrUnauthorized, strategyID)
	}
	return st, nil
}

// dedupeSymbols drops duplicates while keeping first-seen order.
func dedupeSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func sameSymbols(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
