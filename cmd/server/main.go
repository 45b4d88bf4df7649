// Package main provides the unified paper trading server:
// - Market data feed: Binance miniTicker websocket stream into the hub
// - Execution engine: tick-driven evaluation plus the timer fallback sweep
// - HTTP API: strategy management, orders, positions, balance, status
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"papertrade/internal/engine"
	"papertrade/internal/hub"
	"papertrade/internal/ledger"
	"papertrade/internal/marketdata"
	"papertrade/internal/observability"
	"papertrade/internal/registry"
	"papertrade/internal/storage"
	chstore "papertrade/internal/storage/clickhouse"
	"papertrade/internal/storage/memory"
	"papertrade/internal/storage/migrations"
	pgstore "papertrade/internal/storage/postgres"
	"papertrade/internal/strategy"
)

// Server holds all components of the paper trading service.
type Server struct {
	// Configuration
	wsEndpoint    string
	restEndpoint  string
	postgresDSN   string
	clickhouseDSN string
	useMemory     bool
	stubFeed      bool
	sweepInterval time.Duration

	// Stores
	stores *allStores

	// Components
	source     marketdata.Source
	hub        *hub.Hub
	registry   *registry.Registry
	ledger     *ledger.Ledger
	strategies *strategy.Service
	runner     *engine.Runner
	logger     *log.Logger

	// State
	mu         sync.Mutex
	started    time.Time
	ticksSeen  uint64
	lastTickAt time.Time
}

// allStores holds all storage implementations.
type allStores struct {
	strategyStore     storage.StrategyStore
	accountStore      storage.AccountStore
	positionStore     storage.PositionStore
	orderStore        storage.OrderStore
	priceHistoryStore storage.PriceHistoryStore
}

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	wsEndpoint := flag.String("ws-endpoint", os.Getenv("BINANCE_WS_ENDPOINT"), "Exchange websocket endpoint (default: public combined stream)")
	restEndpoint := flag.String("rest-endpoint", os.Getenv("BINANCE_REST_ENDPOINT"), "Exchange REST endpoint (default: public API)")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL/ClickHouse")
	stubFeed := flag.Bool("stub-feed", false, "Use a stub market data source instead of the live feed")
	sweepInterval := flag.Duration("sweep-interval", 60*time.Second, "Fallback sweep interval over active strategies")
	candleInterval := flag.String("candle-interval", "1m", "Candle interval for historical close backfill")
	httpAddr := flag.String("http-addr", ":8080", "API/metrics HTTP address")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	if !*useMemory && (*postgresDSN == "" || *clickhouseDSN == "") {
		logger.Fatal("--postgres-dsn and --clickhouse-dsn are required (use --use-memory for in-memory storage)")
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())

	// Create stores
	stores, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	// Create market data source
	var source marketdata.Source
	if *stubFeed {
		source = marketdata.NewStubSource()
		logger.Println("Using stub market data source")
	} else {
		rest := marketdata.NewRESTClient(*restEndpoint)
		binance, err := marketdata.NewBinanceSource(ctx, *wsEndpoint, rest, nil)
		if err != nil {
			logger.Fatalf("Failed to connect market data feed: %v", err)
		}
		defer binance.Close()
		source = binance
	}

	// Wire hub, registry, ledger, engine
	tickHub := hub.New(source)
	reg := registry.New(tickHub)
	led := ledger.New(stores.accountStore, stores.positionStore, stores.orderStore, source)
	svc := strategy.NewService(stores.strategyStore, reg)

	history := marketdata.NewHistory(stores.priceHistoryStore, source, *candleInterval)
	evaluator := engine.NewEvaluator(history, source, led,
		log.New(os.Stdout, "[engine] ", log.LstdFlags|log.Lshortfile))
	runner := engine.NewRunner(engine.RunnerOptions{
		Hub:           tickHub,
		Registry:      reg,
		Strategies:    stores.strategyStore,
		Evaluator:     evaluator,
		SweepInterval: *sweepInterval,
		Logger:        log.New(os.Stdout, "[engine] ", log.LstdFlags|log.Lshortfile),
	})

	server := &Server{
		wsEndpoint:    *wsEndpoint,
		restEndpoint:  *restEndpoint,
		postgresDSN:   *postgresDSN,
		clickhouseDSN: *clickhouseDSN,
		useMemory:     *useMemory,
		stubFeed:      *stubFeed,
		sweepInterval: *sweepInterval,
		stores:        stores,
		source:        source,
		hub:           tickHub,
		registry:      reg,
		ledger:        led,
		strategies:    svc,
		runner:        runner,
		logger:        logger,
		started:       time.Now(),
	}

	// Restore subscriptions for strategies that were active before restart
	if err := server.warmUpRegistry(ctx); err != nil {
		logger.Fatalf("Failed to restore active strategies: %v", err)
	}

	// Channel to signal completion
	done := make(chan error, 1)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	// Start HTTP server
	go server.startHTTPServer(*httpAddr)

	// Run the engine
	err = server.Run(ctx)
	done <- err
	cancel()

	if err != nil && err != context.Canceled {
		logger.Fatalf("Server error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// createStores creates all required stores and runs migrations.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (*allStores, func(), error) {
	if useMemory {
		stores := &allStores{
			strategyStore:     memory.NewStrategyStore(),
			accountStore:      memory.NewAccountStore(),
			positionStore:     memory.NewPositionStore(),
			orderStore:        memory.NewOrderStore(),
			priceHistoryStore: memory.NewPriceHistoryStore(),
		}
		return stores, func() {}, nil
	}

	// PostgreSQL
	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}

	// ClickHouse
	chConn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
	}

	stores := &allStores{
		strategyStore:     pgstore.NewStrategyStore(pool),
		accountStore:      pgstore.NewAccountStore(pool),
		positionStore:     pgstore.NewPositionStore(pool),
		orderStore:        pgstore.NewOrderStore(pool),
		priceHistoryStore: chstore.NewPriceHistoryStore(chConn),
	}

	cleanup := func() {
		chConn.Close()
		pool.Close()
	}

	return stores, cleanup, nil
}

// warmUpRegistry re-activates strategies stored as ACTIVE so their symbols
// are subscribed again after a restart.
func (s *Server) warmUpRegistry(ctx context.Context) error {
	active, err := s.stores.strategyStore.GetActive(ctx)
	if err != nil {
		return fmt.Errorf("list active strategies: %w", err)
	}

	for _, st := range active {
		if err := s.registry.Activate(st); err != nil {
			return fmt.Errorf("activate strategy %s: %w", st.StrategyID, err)
		}
	}

	observability.UpdateRegistrySizes(s.registry.ActiveCount(), len(s.hub.Symbols()))
	s.logger.Printf("Restored %d active strategies, %d symbols subscribed",
		len(active), len(s.hub.Symbols()))
	return nil
}

// Run starts the tick pump, the archiver and the execution loop.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Println("Starting paper trading server...")

	errCh := make(chan error, 2)

	// Pump raw feed ticks into the hub
	go s.runTickPump(ctx)

	// Archive ticks into price history
	go func() {
		archiver := marketdata.NewArchiver(marketdata.ArchiverOptions{
			Store:  s.stores.priceHistoryStore,
			Logger: log.New(os.Stdout, "[archiver] ", log.LstdFlags|log.Lshortfile),
		})
		consumer := s.hub.Register()
		defer consumer.Close()
		if err := archiver.Run(ctx, consumer.Ticks()); err != nil && err != context.Canceled {
			errCh <- fmt.Errorf("archiver: %w", err)
		}
	}()

	// Execution loop
	go func() {
		if err := s.runner.Run(ctx); err != nil && err != context.Canceled {
			errCh <- fmt.Errorf("engine: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// runTickPump forwards feed ticks into the hub.
func (s *Server) runTickPump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case tick, ok := <-s.source.Ticks():
			if !ok {
				return
			}
			s.hub.Publish(tick)
			observability.DefaultMetrics.TicksPublished.Inc()

			s.mu.Lock()
			s.ticksSeen++
			s.lastTickAt = tick.Timestamp
			s.mu.Unlock()
		}
	}
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
