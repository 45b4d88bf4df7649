package engine

import (
	"context"
	"log"
	"time"

	"papertrade/internal/domain"
	"papertrade/internal/hub"
	"papertrade/internal/observability"
	"papertrade/internal/registry"
	"papertrade/internal/storage"
)

// defaultSweepInterval is the fallback scan period over active strategies.
const defaultSweepInterval = 60 * time.Second

// Runner drives the two evaluation triggers: the live tick stream from the
// broadcast hub and the periodic fallback sweep over all active strategies.
// Both paths may evaluate the same (strategy, symbol) around the same
// moment; evaluation is stateless over stored history, so a double fire
// produces the same signal decision twice rather than corrupt state.
type Runner struct {
	hub           *hub.Hub
	registry      *registry.Registry
	strategies    storage.StrategyStore
	evaluator     *Evaluator
	sweepInterval time.Duration
	logger        *log.Logger
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	Hub           *hub.Hub
	Registry      *registry.Registry
	Strategies    storage.StrategyStore
	Evaluator     *Evaluator
	SweepInterval time.Duration
	Logger        *log.Logger
}

// NewRunner creates an execution loop runner.
func NewRunner(opts RunnerOptions) *Runner {
	sweepInterval := opts.SweepInterval
	if sweepInterval == 0 {
		sweepInterval = defaultSweepInterval
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Runner{
		hub:           opts.Hub,
		registry:      opts.Registry,
		strategies:    opts.Strategies,
		evaluator:     opts.Evaluator,
		sweepInterval: sweepInterval,
		logger:        logger,
	}
}

// Run consumes ticks and runs the fallback sweep until the context is
// cancelled.
func (r *Runner) Run(ctx context.Context) error {
	consumer := r.hub.Register()
	defer consumer.Close()

	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()

	r.logger.Printf("Execution loop started, sweep interval: %v", r.sweepInterval)

	for {
		select {
		case <-ctx.Done():
			r.logger.Println("Execution loop stopping...")
			return ctx.Err()

		case tick, ok := <-consumer.Ticks():
			if !ok {
				r.logger.Println("Tick stream closed")
				return nil
			}
			r.handleTick(ctx, tick)

		case <-ticker.C:
			r.runSweep(ctx)
		}
	}
}

// handleTick evaluates every cached strategy interested in the tick's
// symbol. One strategy's failure never blocks the rest of the batch.
func (r *Runner) handleTick(ctx context.Context, tick domain.PriceTick) {
	observability.RecordTickReceived()

	strategies := r.registry.StrategiesFor(tick.Symbol)
	for _, st := range strategies {
		observability.RecordEvaluation("tick")
		if _, err := r.evaluator.Evaluate(ctx, st, tick.Symbol); err != nil {
			observability.RecordEvaluationError(string(st.Type))
			r.logger.Printf("Evaluation failed for strategy %s on %s: %v", st.StrategyID, tick.Symbol, err)
		}
	}
}

// runSweep fetches all active strategies from the store, bypassing the
// registry cache, and evaluates each against every one of its symbols.
// last_executed_at is stamped on completion whether or not a signal fired.
func (r *Runner) runSweep(ctx context.Context) {
	start := time.Now()
	defer func() {
		observability.RecordSweep(time.Since(start).Seconds())
	}()

	active, err := r.strategies.GetActive(ctx)
	if err != nil {
		r.logger.Printf("Sweep aborted, cannot list active strategies: %v", err)
		return
	}

	for _, st := range active {
		for _, symbol := range st.Symbols {
			observability.RecordEvaluation("sweep")
			if _, err := r.evaluator.Evaluate(ctx, st, symbol); err != nil {
				observability.RecordEvaluationError(string(st.Type))
				r.logger.Printf("Sweep evaluation failed for strategy %s on %s: %v", st.StrategyID, symbol, err)
			}
		}

		now := time.Now().UTC()
		st.LastExecutedAt = &now
		st.UpdatedAt = now
		if err := r.strategies.Update(ctx, st); err != nil {
			r.logger.Printf("Cannot stamp last execution for strategy %s: %v", st.StrategyID, err)
		}
	}
}

// ExecuteNow runs one fallback sweep on demand and returns the evaluation
// results. It shares the sweep's per-strategy error isolation.
func (r *Runner) ExecuteNow(ctx context.Context) ([]*ExecutionResult, error) {
	active, err := r.strategies.GetActive(ctx)
	if err != nil {
		return nil, err
	}

	var results []*ExecutionResult
	for _, st := range active {
		for _, symbol := range st.Symbols {
			observability.RecordEvaluation("manual")
			result, err := r.evaluator.Evaluate(ctx, st, symbol)
			if err != nil {
				observability.RecordEvaluationError(string(st.Type))
				r.logger.Printf("Manual evaluation failed for strategy %s on %s: %v", st.StrategyID, symbol, err)
				continue
			}
			results = append(results, result)
		}

		now := time.Now().UTC()
		st.LastExecutedAt = &now
		st.UpdatedAt = now
		if err := r.strategies.Update(ctx, st); err != nil {
			r.logger.Printf("Cannot stamp last execution for strategy %s: %v", st.StrategyID, err)
		}
	}

	return results, nil
}
