// Package hub fans out market price ticks to independent consumers.
// Each consumer owns a bounded queue; when a consumer falls behind, its
// oldest undelivered tick is dropped so the publisher never blocks.
package hub

import (
	"fmt"
	"sync"

	"papertrade/internal/domain"
)

// subscriberQueueSize bounds each consumer's undelivered tick backlog.
const subscriberQueueSize = 100

// SymbolSubscriber is the upstream side the hub drives. The hub keeps a
// reference count of interest per symbol and forwards the first subscribe
// and the last unsubscribe.
type SymbolSubscriber interface {
	Subscribe(symbol string) error
	Unsubscribe(symbol string) error
}

// Hub is the single publish point for price ticks. Consumers register for
// delivery; symbol interest is managed separately by the strategy registry
// through Subscribe and Unsubscribe.
type Hub struct {
	source SymbolSubscriber

	mu        sync.Mutex
	symbols   map[string]struct{}
	consumers map[*Consumer]struct{}
}

// New creates a hub that forwards symbol interest to source.
func New(source SymbolSubscriber) *Hub {
	return &Hub{
		source:    source,
		symbols:   make(map[string]struct{}),
		consumers: make(map[*Consumer]struct{}),
	}
}

// Consumer receives ticks published to the hub. Ticks arrive in publish
// order; under sustained slowness the oldest entries are dropped, so a
// consumer may observe gaps but never reordering or duplicates.
type Consumer struct {
	ch  chan domain.PriceTick
	hub *Hub
}

// Ticks returns the delivery channel.
func (c *Consumer) Ticks() <-chan domain.PriceTick {
	return c.ch
}

// Close detaches the consumer from the hub.
func (c *Consumer) Close() {
	c.hub.mu.Lock()
	defer c.hub.mu.Unlock()
	if _, ok := c.hub.consumers[c]; ok {
		delete(c.hub.consumers, c)
		close(c.ch)
	}
}

// Register attaches a new consumer to the hub.
func (h *Hub) Register() *Consumer {
	c := &Consumer{
		ch:  make(chan domain.PriceTick, subscriberQueueSize),
		hub: h,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.consumers[c] = struct{}{}
	return c
}

// Publish delivers a tick to every registered consumer. A consumer with a
// full queue loses its oldest undelivered tick.
func (h *Hub) Publish(tick domain.PriceTick) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.consumers {
		select {
		case c.ch <- tick:
		default:
			// Queue full: drop the oldest tick, then retry once.
			select {
			case <-c.ch:
			default:
			}
			select {
			case c.ch <- tick:
			default:
			}
		}
	}
}

// Subscribe registers interest in a symbol. Idempotent: the upstream source
// sees at most one subscribe per symbol until the symbol is released.
func (h *Hub) Subscribe(symbol string) error {
	h.mu.Lock()
	if _, exists := h.symbols[symbol]; exists {
		h.mu.Unlock()
		return nil
	}
	h.symbols[symbol] = struct{}{}
	h.mu.Unlock()

	if err := h.source.Subscribe(symbol); err != nil {
		h.mu.Lock()
		delete(h.symbols, symbol)
		h.mu.Unlock()
		return fmt.Errorf("subscribe %s: %w", symbol, err)
	}
	return nil
}

// Unsubscribe releases interest in a symbol. Idempotent: unknown symbols
// are a no-op and the upstream source sees at most one unsubscribe.
func (h *Hub) Unsubscribe(symbol string) error {
	h.mu.Lock()
	if _, exists := h.symbols[symbol]; !exists {
		h.mu.Unlock()
		return nil
	}
	delete(h.symbols, symbol)
	h.mu.Unlock()

	if err := h.source.Unsubscribe(symbol); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", symbol, err)
	}
	return nil
}

// Symbols returns the currently subscribed symbol set.
func (h *Hub) Symbols() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]string, 0, len(h.symbols))
	for s := range h.symbols {
		out = append(out, s)
	}
	return out
}
