// Package main replays stored or freshly fetched candles through the signal
// evaluator with a synthetic account, reporting every signal and the final
// balance. Useful for sanity-checking strategy parameters before activating
// a strategy against the live feed.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"papertrade/internal/domain"
	"papertrade/internal/engine"
	"papertrade/internal/idhash"
	"papertrade/internal/ledger"
	"papertrade/internal/marketdata"
	chstore "papertrade/internal/storage/clickhouse"
	"papertrade/internal/storage/memory"
	"papertrade/internal/strategy"
)

// backtestOwner is the synthetic account the replay trades against.
const backtestOwner = "backtest"

func main() {
	// Parse flags
	symbol := flag.String("symbol", "", "Symbol to backtest, e.g. BTCUSDT (required)")
	strategyType := flag.String("strategy", "MA_CROSSOVER", "Strategy: MA_CROSSOVER, RSI, MACD")

	// Strategy parameters
	fastMAPeriod := flag.Int("fast-ma-period", strategy.DefaultFastMAPeriod, "Fast MA period for MA_CROSSOVER")
	slowMAPeriod := flag.Int("slow-ma-period", strategy.DefaultSlowMAPeriod, "Slow MA period for MA_CROSSOVER")
	rsiPeriod := flag.Int("rsi-period", strategy.DefaultRSIPeriod, "RSI period")
	oversold := flag.Float64("oversold", strategy.DefaultOversoldThreshold, "RSI oversold threshold")
	overbought := flag.Float64("overbought", strategy.DefaultOverboughtThreshold, "RSI overbought threshold")
	macdFast := flag.Int("macd-fast", strategy.DefaultMACDFastPeriod, "MACD fast period")
	macdSlow := flag.Int("macd-slow", strategy.DefaultMACDSlowPeriod, "MACD slow period")
	macdSignal := flag.Int("macd-signal", strategy.DefaultMACDSignalPeriod, "MACD signal period")

	// Account
	maxPositionSize := flag.Float64("max-position-size", 1000, "Notional per order, quote currency")
	initialBalance := flag.Float64("initial-balance", ledger.DefaultInitialBalance, "Synthetic account funding")

	// Data source
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "Read candles from the ClickHouse archive")
	restEndpoint := flag.String("rest-endpoint", os.Getenv("BINANCE_REST_ENDPOINT"), "Fetch candles over REST when no archive DSN is given")
	candles := flag.Int("candles", 500, "Number of candles to replay")
	candleInterval := flag.String("candle-interval", "1m", "Candle interval for REST fetch")

	// Output
	outputJSON := flag.Bool("json", false, "Output as JSON")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stderr, "[backtest] ", log.LstdFlags)

	if *symbol == "" {
		logger.Fatal("--symbol is required")
	}

	st := buildStrategy(strings.ToUpper(*strategyType), *symbol, *maxPositionSize, strategyParams{
		fastMAPeriod: *fastMAPeriod,
		slowMAPeriod: *slowMAPeriod,
		rsiPeriod:    *rsiPeriod,
		oversold:     *oversold,
		overbought:   *overbought,
		macdFast:     *macdFast,
		macdSlow:     *macdSlow,
		macdSignal:   *macdSignal,
	})
	if !st.Type.Valid() {
		logger.Fatalf("Invalid strategy: %s. Must be MA_CROSSOVER, RSI, or MACD", *strategyType)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	// Load candles
	points, err := loadCandles(ctx, *clickhouseDSN, *restEndpoint, *symbol, *candleInterval, *candles)
	if err != nil {
		logger.Fatalf("Load candles: %v", err)
	}
	if len(points) < 3 {
		logger.Fatalf("Not enough candles for %s: got %d", *symbol, len(points))
	}
	logger.Printf("Replaying %d candles for %s", len(points), *symbol)

	report, err := run(ctx, st, points, *initialBalance, logger)
	if err != nil {
		logger.Fatalf("Backtest failed: %v", err)
	}

	if *outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			logger.Fatalf("Encode report: %v", err)
		}
		return
	}
	printReport(report)
}

type strategyParams struct {
	fastMAPeriod int
	slowMAPeriod int
	rsiPeriod    int
	oversold     float64
	overbought   float64
	macdFast     int
	macdSlow     int
	macdSignal   int
}

// buildStrategy assembles the replay strategy with the per-type parameter
// keys the evaluator expects.
func buildStrategy(strategyType, symbol string, maxPositionSize float64, p strategyParams) *domain.Strategy {
	params := map[string]float64{}
	switch domain.StrategyType(strategyType) {
	case domain.StrategyTypeMACrossover:
		params["fastMAPeriod"] = float64(p.fastMAPeriod)
		params["slowMAPeriod"] = float64(p.slowMAPeriod)
	case domain.StrategyTypeRSI:
		params["rsiPeriod"] = float64(p.rsiPeriod)
		params["oversoldThreshold"] = p.oversold
		params["overboughtThreshold"] = p.overbought
	case domain.StrategyTypeMACD:
		params["fastPeriod"] = float64(p.macdFast)
		params["slowPeriod"] = float64(p.macdSlow)
		params["signalPeriod"] = float64(p.macdSignal)
	}

	now := time.Now().UTC()
	return &domain.Strategy{
		StrategyID: "backtest-" + strings.ToLower(strategyType),
		OwnerID:    backtestOwner,
		Name:       "backtest " + strategyType,
		Type:       domain.StrategyType(strategyType),
		Status:     domain.StrategyStatusActive,
		Symbols:    []string{symbol},
		Parameters: params,
		RiskParameters: domain.RiskParameters{
			MaxPositionSize: maxPositionSize,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// loadCandles reads the replay window from the ClickHouse archive when a DSN
// is given, otherwise over the exchange REST API.
func loadCandles(ctx context.Context, clickhouseDSN, restEndpoint, symbol, interval string, count int) ([]*domain.PricePoint, error) {
	if clickhouseDSN != "" {
		conn, err := chstore.NewConn(ctx, clickhouseDSN)
		if err != nil {
			return nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
		defer conn.Close()
		return chstore.NewPriceHistoryStore(conn).GetRecent(ctx, symbol, count)
	}

	rest := marketdata.NewRESTClient(restEndpoint)
	return rest.GetKlines(ctx, symbol, interval, count)
}

// replayPrices pins the ledger and evaluator to the candle being replayed.
type replayPrices struct {
	price float64
	at    time.Time
}

func (r *replayPrices) GetCurrentPrice(_ context.Context, _ string) (float64, time.Time, error) {
	return r.price, r.at, nil
}

// windowHistory serves the closes replayed so far.
type windowHistory struct {
	closes []float64
}

func (w *windowHistory) RecentCloses(_ context.Context, _ string, count int) ([]float64, error) {
	if count > 0 && len(w.closes) > count {
		return w.closes[len(w.closes)-count:], nil
	}
	return w.closes, nil
}

// TradeEntry is one replayed fill. The ID is deterministic so repeated runs
// over the same candles produce identical reports.
type TradeEntry struct {
	OrderID   string    `json:"order_id"`
	Time      time.Time `json:"time"`
	Side      string    `json:"side"`
	Quantity  float64   `json:"quantity"`
	FillPrice float64   `json:"fill_price"`
}

// Report is the backtest outcome.
type Report struct {
	Symbol         string       `json:"symbol"`
	Strategy       string       `json:"strategy"`
	Candles        int          `json:"candles"`
	Signals        int          `json:"signals"`
	Trades         []TradeEntry `json:"trades"`
	InitialBalance float64      `json:"initial_balance"`
	FinalCash      float64      `json:"final_cash"`
	FinalValue     float64      `json:"final_value"`
	TotalPnL       float64      `json:"total_pnl"`
	PnLPercentage  float64      `json:"pnl_percentage"`
}

// run replays the candles one step at a time, evaluating the strategy over
// the closes seen so far and settling signals against a synthetic ledger.
func run(ctx context.Context, st *domain.Strategy, points []*domain.PricePoint, initialBalance float64, logger *log.Logger) (*Report, error) {
	symbol := st.Symbols[0]

	history := &windowHistory{}
	prices := &replayPrices{}
	led := ledger.New(memory.NewAccountStore(), memory.NewPositionStore(), memory.NewOrderStore(), prices)
	evaluator := engine.NewEvaluator(history, prices, led, logger)

	if _, err := led.EnableAccount(ctx, backtestOwner, initialBalance); err != nil {
		return nil, fmt.Errorf("fund account: %w", err)
	}

	report := &Report{
		Symbol:         symbol,
		Strategy:       string(st.Type),
		Candles:        len(points),
		InitialBalance: initialBalance,
	}

	for i := 2; i <= len(points); i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		current := points[i-1]
		history.closes = history.closes[:0]
		for _, p := range points[:i] {
			history.closes = append(history.closes, p.Price)
		}
		prices.price = current.Price
		prices.at = time.UnixMilli(current.TimestampMs).UTC()

		result, err := evaluator.Evaluate(ctx, st, symbol)
		if err != nil {
			// Insufficient history and rejected orders are not errors; anything
			// else here means a broken replay window.
			if errors.Is(err, domain.ErrUpstream) {
				return nil, err
			}
			return nil, fmt.Errorf("evaluate step %d: %w", i, err)
		}
		if result.Signal == engine.SignalNone {
			continue
		}

		report.Signals++
		if result.Order == nil {
			continue
		}

		report.Trades = append(report.Trades, TradeEntry{
			OrderID: idhash.ComputeOrderID(backtestOwner, symbol,
				string(result.Order.Side), prices.at.UnixNano()),
			Time:      prices.at,
			Side:      string(result.Order.Side),
			Quantity:  result.Order.Quantity,
			FillPrice: result.Order.FillPrice,
		})
	}

	summary, err := led.GetBalanceSummary(ctx, backtestOwner)
	if err != nil {
		return nil, fmt.Errorf("balance summary: %w", err)
	}

	report.FinalCash = summary.CashBalance
	report.FinalValue = summary.TotalAccountValue
	report.TotalPnL = summary.TotalAccountValue - summary.InitialBalance
	report.PnLPercentage = summary.PerformancePercentage
	return report, nil
}

func printReport(r *Report) {
	fmt.Printf("Backtest %s / %s over %d candles\n", r.Symbol, r.Strategy, r.Candles)
	fmt.Printf("Signals fired: %d, trades filled: %d\n", r.Signals, len(r.Trades))
	for _, t := range r.Trades {
		fmt.Printf("  %s  %-4s qty=%.6f @ %.4f  (%s)\n",
			t.Time.Format(time.RFC3339), t.Side, t.Quantity, t.FillPrice, t.OrderID[:12])
	}
	fmt.Printf("Initial balance: %.2f\n", r.InitialBalance)
	fmt.Printf("Final cash:      %.2f\n", r.FinalCash)
	fmt.Printf("Final value:     %.2f\n", r.FinalValue)
	fmt.Printf("Total PnL:       %.2f (%.2f%%)\n", r.TotalPnL, r.PnLPercentage)
}
