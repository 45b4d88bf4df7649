package marketdata

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"papertrade/internal/domain"
	"papertrade/internal/observability"
	"papertrade/internal/storage"
)

// History serves the recent-close windows the evaluator computes indicators
// over. Closes come from the archive; when the archive holds fewer points
// than requested the gap is backfilled from the source's historical candles.
type History struct {
	store    storage.PriceHistoryStore
	source   Source
	interval string
}

// NewHistory creates a close-window provider. source may be nil, in which
// case no backfill happens and the archive is served as-is.
func NewHistory(store storage.PriceHistoryStore, source Source, interval string) *History {
	if interval == "" {
		interval = DefaultInterval
	}
	return &History{
		store:    store,
		source:   source,
		interval: interval,
	}
}

// RecentCloses returns up to count archived closes for a symbol, oldest
// first.
func (h *History) RecentCloses(ctx context.Context, symbol string, count int) ([]float64, error) {
	points, err := h.store.GetRecent(ctx, symbol, count)
	if err != nil {
		return nil, err
	}

	if len(points) < count && h.source != nil {
		backfilled, err := h.backfill(ctx, symbol, count, points)
		if err != nil {
			return nil, err
		}
		if backfilled {
			points, err = h.store.GetRecent(ctx, symbol, count)
			if err != nil {
				return nil, err
			}
		}
	}

	closes := make([]float64, len(points))
	for i, p := range points {
		closes[i] = p.Price
	}
	return closes, nil
}

// backfill archives source candles the store does not hold yet. Returns
// whether anything was inserted.
func (h *History) backfill(ctx context.Context, symbol string, count int, have []*domain.PricePoint) (bool, error) {
	candles, err := h.source.GetHistoricalPrices(ctx, symbol, h.interval, count)
	if err != nil {
		return false, fmt.Errorf("backfill %s: %w", symbol, err)
	}

	known := make(map[int64]struct{}, len(have))
	for _, p := range have {
		known[p.TimestampMs] = struct{}{}
	}

	missing := make([]*domain.PricePoint, 0, len(candles))
	for _, c := range candles {
		if _, exists := known[c.TimestampMs]; exists {
			continue
		}
		missing = append(missing, c)
	}
	if len(missing) == 0 {
		return false, nil
	}

	if err := h.store.InsertBulk(ctx, missing); err != nil {
		// A concurrent archiver may have landed some of these points first.
		if errors.Is(err, storage.ErrDuplicateKey) {
			return true, nil
		}
		return false, fmt.Errorf("archive backfill %s: %w", symbol, err)
	}
	return true, nil
}

// Archiver defaults.
const (
	defaultFlushInterval = 5 * time.Second
	defaultBatchSize     = 500
)

// Archiver drains a tick stream into the price history archive in batches.
type Archiver struct {
	store         storage.PriceHistoryStore
	flushInterval time.Duration
	batchSize     int
	logger        *log.Logger

	// pending holds at most one point per (symbol, timestamp); a later tick
	// in the same millisecond replaces the earlier one.
	pending map[pointKey]*domain.PricePoint
}

type pointKey struct {
	symbol      string
	timestampMs int64
}

// ArchiverOptions contains configuration for creating an Archiver.
type ArchiverOptions struct {
	Store         storage.PriceHistoryStore
	FlushInterval time.Duration
	BatchSize     int
	Logger        *log.Logger
}

// NewArchiver creates a tick archiver.
func NewArchiver(opts ArchiverOptions) *Archiver {
	flushInterval := opts.FlushInterval
	if flushInterval == 0 {
		flushInterval = defaultFlushInterval
	}
	batchSize := opts.BatchSize
	if batchSize == 0 {
		batchSize = defaultBatchSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Archiver{
		store:         opts.Store,
		flushInterval: flushInterval,
		batchSize:     batchSize,
		logger:        logger,
	}
}

// Run consumes ticks until the channel closes or the context is cancelled.
// Buffered points are flushed on the way out.
func (a *Archiver) Run(ctx context.Context, ticks <-chan domain.PriceTick) error {
	a.pending = make(map[pointKey]*domain.PricePoint)

	ticker := time.NewTicker(a.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.flush(context.Background())
			return ctx.Err()

		case tick, ok := <-ticks:
			if !ok {
				a.flush(ctx)
				return nil
			}
			a.add(tick)
			if len(a.pending) >= a.batchSize {
				a.flush(ctx)
			}

		case <-ticker.C:
			a.flush(ctx)
		}
	}
}

func (a *Archiver) add(tick domain.PriceTick) {
	key := pointKey{symbol: tick.Symbol, timestampMs: tick.Timestamp.UnixMilli()}
	a.pending[key] = &domain.PricePoint{
		Symbol:      tick.Symbol,
		TimestampMs: key.timestampMs,
		Price:       tick.Price,
	}
}

// flush writes the pending batch. On a duplicate-key failure the points are
// retried one at a time so one replayed tick cannot sink the whole batch.
func (a *Archiver) flush(ctx context.Context) {
	if len(a.pending) == 0 {
		return
	}

	batch := make([]*domain.PricePoint, 0, len(a.pending))
	for _, p := range a.pending {
		batch = append(batch, p)
	}
	a.pending = make(map[pointKey]*domain.PricePoint)

	err := a.store.InsertBulk(ctx, batch)
	if err == nil {
		return
	}
	if !errors.Is(err, storage.ErrDuplicateKey) {
		observability.RecordDBError("clickhouse", "insert_bulk")
		a.logger.Printf("Archive flush failed, dropping %d points: %v", len(batch), err)
		return
	}

	for _, p := range batch {
		if err := a.store.InsertBulk(ctx, []*domain.PricePoint{p}); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
			observability.RecordDBError("clickhouse", "insert_bulk")
			a.logger.Printf("Archive point %s@%d failed: %v", p.Symbol, p.TimestampMs, err)
		}
	}
}
