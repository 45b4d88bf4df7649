// Package registry indexes active strategies by symbol and drives market
// data subscriptions as strategies come and go.
package registry

import (
	"sync"

	"papertrade/internal/domain"
)

// SymbolSubscriber is the subscription side of the broadcast hub.
type SymbolSubscriber interface {
	Subscribe(symbol string) error
	Unsubscribe(symbol string) error
}

// Registry holds the symbol index and the strategy cache. Both maps are
// guarded by one lock and mutated together so they never disagree about
// which strategies are live. Hub calls happen outside the lock.
type Registry struct {
	hub SymbolSubscriber

	mu       sync.RWMutex
	bySymbol map[string]map[string]struct{} // symbol -> set of strategy ids
	cache    map[string]*domain.Strategy    // strategy id -> cached record
}

// New creates an empty registry driving hub subscriptions.
func New(hub SymbolSubscriber) *Registry {
	return &Registry{
		hub:      hub,
		bySymbol: make(map[string]map[string]struct{}),
		cache:    make(map[string]*domain.Strategy),
	}
}

// Activate indexes the strategy under each of its symbols and subscribes
// the hub to any symbol gaining its first interested strategy. Re-activating
// an already active strategy refreshes the cache.
func (r *Registry) Activate(st *domain.Strategy) error {
	r.mu.Lock()
	var newSymbols []string
	for _, symbol := range st.Symbols {
		ids, exists := r.bySymbol[symbol]
		if !exists {
			ids = make(map[string]struct{})
			r.bySymbol[symbol] = ids
			newSymbols = append(newSymbols, symbol)
		}
		ids[st.StrategyID] = struct{}{}
	}
	r.cache[st.StrategyID] = st.Clone()
	r.mu.Unlock()

	for _, symbol := range newSymbols {
		if err := r.hub.Subscribe(symbol); err != nil {
			return err
		}
	}
	return nil
}

// Deactivate removes the strategy from each symbol's set, evicts it from
// the cache and unsubscribes the hub from symbols left with no interested
// strategies.
func (r *Registry) Deactivate(strategyID string, symbols []string) error {
	r.mu.Lock()
	var released []string
	for _, symbol := range symbols {
		ids, exists := r.bySymbol[symbol]
		if !exists {
			continue
		}
		delete(ids, strategyID)
		if len(ids) == 0 {
			delete(r.bySymbol, symbol)
			released = append(released, symbol)
		}
	}
	delete(r.cache, strategyID)
	r.mu.Unlock()

	for _, symbol := range released {
		if err := r.hub.Unsubscribe(symbol); err != nil {
			return err
		}
	}
	return nil
}

// ReconcileSymbols adjusts the index after a symbol list change on a
// strategy that stays active: symbols only in newSymbols are acquired,
// symbols only in oldSymbols are released. The cached record is replaced.
func (r *Registry) ReconcileSymbols(st *domain.Strategy, oldSymbols []string) error {
	oldSet := toSet(oldSymbols)
	newSet := toSet(st.Symbols)

	r.mu.Lock()
	var acquired, released []string
	for symbol := range newSet {
		if _, kept := oldSet[symbol]; kept {
			continue
		}
		ids, exists := r.bySymbol[symbol]
		if !exists {
			ids = make(map[string]struct{})
			r.bySymbol[symbol] = ids
			acquired = append(acquired, symbol)
		}
		ids[st.StrategyID] = struct{}{}
	}
	for symbol := range oldSet {
		if _, kept := newSet[symbol]; kept {
			continue
		}
		ids, exists := r.bySymbol[symbol]
		if !exists {
			continue
		}
		delete(ids, st.StrategyID)
		if len(ids) == 0 {
			delete(r.bySymbol, symbol)
			released = append(released, symbol)
		}
	}
	r.cache[st.StrategyID] = st.Clone()
	r.mu.Unlock()

	for _, symbol := range acquired {
		if err := r.hub.Subscribe(symbol); err != nil {
			return err
		}
	}
	for _, symbol := range released {
		if err := r.hub.Unsubscribe(symbol); err != nil {
			return err
		}
	}
	return nil
}

// StrategiesFor returns the cached strategies indexed under a symbol.
func (r *Registry) StrategiesFor(symbol string) []*domain.Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids, exists := r.bySymbol[symbol]
	if !exists {
		return nil
	}

	out := make([]*domain.Strategy, 0, len(ids))
	for id := range ids {
		if st, cached := r.cache[id]; cached {
			out = append(out, st.Clone())
		}
	}
	return out
}

// Get returns the cached strategy record, or nil when not active.
func (r *Registry) Get(strategyID string) *domain.Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st, cached := r.cache[strategyID]
	if !cached {
		return nil
	}
	return st.Clone()
}

// ActiveCount returns the number of cached active strategies.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}

func toSet(symbols []string) map[string]struct{} {
	set := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		set[s] = struct{}{}
	}
	return set
}
