package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"papertrade/internal/domain"
	"papertrade/internal/storage/memory"
)

// stubPrices serves fixed prices per symbol.
type stubPrices struct {
	mu     sync.Mutex
	prices map[string]float64
}

func newStubPrices() *stubPrices {
	return &stubPrices{prices: make(map[string]float64)}
}

func (s *stubPrices) set(symbol string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[symbol] = price
}

func (s *stubPrices) GetCurrentPrice(_ context.Context, symbol string) (float64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	price, ok := s.prices[symbol]
	if !ok {
		return 0, time.Time{}, errors.New("unknown symbol")
	}
	return price, time.Now().UTC(), nil
}

func newTestLedger(t *testing.T) (*Ledger, *stubPrices) {
	t.Helper()
	prices := newStubPrices()
	l := New(memory.NewAccountStore(), memory.NewPositionStore(), memory.NewOrderStore(), prices)
	return l, prices
}

func fundAccount(t *testing.T, l *Ledger, ownerID string, balance float64) {
	t.Helper()
	if _, err := l.EnableAccount(context.Background(), ownerID, balance); err != nil {
		t.Fatalf("enable account: %v", err)
	}
}

func TestEnableAccount_Idempotent(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	a, err := l.EnableAccount(ctx, "owner-1", 0)
	if err != nil {
		t.Fatalf("enable: %v", err)
	}
	if a.CashBalance != DefaultInitialBalance {
		t.Fatalf("expected default funding, got %v", a.CashBalance)
	}

	again, err := l.EnableAccount(ctx, "owner-1", 50000)
	if err != nil {
		t.Fatalf("enable twice: %v", err)
	}
	if again.InitialBalance != DefaultInitialBalance {
		t.Fatalf("second enable must not refund, got %v", again.InitialBalance)
	}
}

func TestPlaceOrder_BuyAveragesCostBasis(t *testing.T) {
	l, prices := newTestLedger(t)
	ctx := context.Background()
	fundAccount(t, l, "owner-1", 10000)

	prices.set("BTCUSDT", 100)
	if _, err := l.PlaceOrder(ctx, "owner-1", "BTCUSDT", domain.OrderSideBuy, 10); err != nil {
		t.Fatalf("first buy: %v", err)
	}

	prices.set("BTCUSDT", 200)
	if _, err := l.PlaceOrder(ctx, "owner-1", "BTCUSDT", domain.OrderSideBuy, 10); err != nil {
		t.Fatalf("second buy: %v", err)
	}

	positions, err := l.GetPositions(ctx, "owner-1")
	if err != nil {
		t.Fatalf("get positions: %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("expected 1 position, got %d", len(positions))
	}

	p := positions[0]
	// (10*100 + 10*200) / 20 = 150
	if p.EntryPrice != 150 {
		t.Fatalf("entry price = %v, want 150", p.EntryPrice)
	}
	if p.Quantity != 20 {
		t.Fatalf("quantity = %v, want 20", p.Quantity)
	}

	summary, err := l.GetBalanceSummary(ctx, "owner-1")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	// 10000 - 1000 - 2000 = 7000 cash; 20 units at 200 = 4000 position value
	if summary.CashBalance != 7000 {
		t.Fatalf("cash = %v, want 7000", summary.CashBalance)
	}
	if summary.PositionValue != 4000 {
		t.Fatalf("position value = %v, want 4000", summary.PositionValue)
	}
	if summary.TotalAccountValue != 11000 {
		t.Fatalf("total = %v, want 11000", summary.TotalAccountValue)
	}
	if summary.PerformancePercentage != 10 {
		t.Fatalf("performance = %v, want 10", summary.PerformancePercentage)
	}
}

func TestPlaceOrder_BuyInsufficientBalanceLeavesStateUnchanged(t *testing.T) {
	l, prices := newTestLedger(t)
	ctx := context.Background()
	fundAccount(t, l, "owner-1", 1000)
	prices.set("BTCUSDT", 500)

	_, err := l.PlaceOrder(ctx, "owner-1", "BTCUSDT", domain.OrderSideBuy, 3)
	if !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	summary, err := l.GetBalanceSummary(ctx, "owner-1")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.CashBalance != 1000 {
		t.Fatalf("balance changed on rejected buy: %v", summary.CashBalance)
	}

	positions, err := l.GetPositions(ctx, "owner-1")
	if err != nil {
		t.Fatalf("get positions: %v", err)
	}
	if len(positions) != 0 {
		t.Fatal("position created on rejected buy")
	}

	orders, err := l.GetOrders(ctx, "owner-1")
	if err != nil {
		t.Fatalf("get orders: %v", err)
	}
	if len(orders) != 0 {
		t.Fatal("order recorded for rejected buy")
	}
}

func TestPlaceOrder_SellPartialRealizesPnL(t *testing.T) {
	l, prices := newTestLedger(t)
	ctx := context.Background()
	fundAccount(t, l, "owner-1", 10000)

	prices.set("ETHUSDT", 100)
	if _, err := l.PlaceOrder(ctx, "owner-1", "ETHUSDT", domain.OrderSideBuy, 10); err != nil {
		t.Fatalf("buy: %v", err)
	}

	prices.set("ETHUSDT", 120)
	if _, err := l.PlaceOrder(ctx, "owner-1", "ETHUSDT", domain.OrderSideSell, 4); err != nil {
		t.Fatalf("sell: %v", err)
	}

	positions, err := l.GetPositions(ctx, "owner-1")
	if err != nil {
		t.Fatalf("get positions: %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("expected 1 position, got %d", len(positions))
	}

	p := positions[0]
	if p.Quantity != 6 {
		t.Fatalf("quantity = %v, want 6", p.Quantity)
	}
	// (120 - 100) * 4 = 80
	if p.RealizedPnL != 80 {
		t.Fatalf("realized pnl = %v, want 80", p.RealizedPnL)
	}
	if p.EntryPrice != 100 {
		t.Fatalf("entry price must not change on sell, got %v", p.EntryPrice)
	}

	summary, err := l.GetBalanceSummary(ctx, "owner-1")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	// 10000 - 1000 + 480 = 9480
	if summary.CashBalance != 9480 {
		t.Fatalf("cash = %v, want 9480", summary.CashBalance)
	}
}

func TestPlaceOrder_SellExactQuantityDeletesPosition(t *testing.T) {
	l, prices := newTestLedger(t)
	ctx := context.Background()
	fundAccount(t, l, "owner-1", 10000)

	prices.set("ETHUSDT", 100)
	if _, err := l.PlaceOrder(ctx, "owner-1", "ETHUSDT", domain.OrderSideBuy, 5); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if _, err := l.PlaceOrder(ctx, "owner-1", "ETHUSDT", domain.OrderSideSell, 5); err != nil {
		t.Fatalf("sell: %v", err)
	}

	positions, err := l.GetPositions(ctx, "owner-1")
	if err != nil {
		t.Fatalf("get positions: %v", err)
	}
	if len(positions) != 0 {
		t.Fatal("position must be deleted at zero quantity")
	}

	orders, err := l.GetOrders(ctx, "owner-1")
	if err != nil {
		t.Fatalf("get orders: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("expected 2 fills, got %d", len(orders))
	}
	for _, o := range orders {
		if o.Status != domain.OrderStatusFilled || o.Type != domain.OrderTypeMarket {
			t.Fatalf("unexpected order %+v", o)
		}
		if o.PositionID == "" {
			t.Fatal("fill must link the affected position")
		}
	}
}

func TestPlaceOrder_SellRejections(t *testing.T) {
	l, prices := newTestLedger(t)
	ctx := context.Background()
	fundAccount(t, l, "owner-1", 10000)
	prices.set("ETHUSDT", 100)

	_, err := l.PlaceOrder(ctx, "owner-1", "ETHUSDT", domain.OrderSideSell, 1)
	if !errors.Is(err, domain.ErrNoPosition) {
		t.Fatalf("expected ErrNoPosition, got %v", err)
	}

	if _, err := l.PlaceOrder(ctx, "owner-1", "ETHUSDT", domain.OrderSideBuy, 2); err != nil {
		t.Fatalf("buy: %v", err)
	}

	_, err = l.PlaceOrder(ctx, "owner-1", "ETHUSDT", domain.OrderSideSell, 3)
	if !errors.Is(err, domain.ErrInsufficientQuantity) {
		t.Fatalf("expected ErrInsufficientQuantity, got %v", err)
	}

	// Rejected sell leaves the position untouched
	positions, err := l.GetPositions(ctx, "owner-1")
	if err != nil {
		t.Fatalf("get positions: %v", err)
	}
	if len(positions) != 1 || positions[0].Quantity != 2 {
		t.Fatal("rejected sell mutated the position")
	}
}

func TestPlaceOrder_Validation(t *testing.T) {
	l, prices := newTestLedger(t)
	ctx := context.Background()
	prices.set("BTCUSDT", 100)

	cases := []struct {
		name     string
		owner    string
		symbol   string
		side     domain.OrderSide
		quantity float64
	}{
		{"empty owner", "", "BTCUSDT", domain.OrderSideBuy, 1},
		{"empty symbol", "owner-1", "", domain.OrderSideBuy, 1},
		{"bad side", "owner-1", "BTCUSDT", domain.OrderSide("HOLD"), 1},
		{"zero quantity", "owner-1", "BTCUSDT", domain.OrderSideBuy, 0},
		{"negative quantity", "owner-1", "BTCUSDT", domain.OrderSideBuy, -1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := l.PlaceOrder(ctx, tc.owner, tc.symbol, tc.side, tc.quantity)
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestPlaceOrder_ConcurrentBuysNoLostUpdate(t *testing.T) {
	l, prices := newTestLedger(t)
	ctx := context.Background()
	fundAccount(t, l, "owner-1", 10000)
	prices.set("BTCUSDT", 100)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.PlaceOrder(ctx, "owner-1", "BTCUSDT", domain.OrderSideBuy, 1)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent buy failed: %v", err)
		}
	}

	summary, err := l.GetBalanceSummary(ctx, "owner-1")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	want := 10000 - float64(workers)*100
	if summary.CashBalance != want {
		t.Fatalf("cash = %v, want %v: lost update under contention", summary.CashBalance, want)
	}

	positions, err := l.GetPositions(ctx, "owner-1")
	if err != nil {
		t.Fatalf("get positions: %v", err)
	}
	if len(positions) != 1 || positions[0].Quantity != workers {
		t.Fatalf("expected one position of quantity %d, got %+v", workers, positions)
	}
}

func TestGetTradingStats(t *testing.T) {
	l, prices := newTestLedger(t)
	ctx := context.Background()
	fundAccount(t, l, "owner-1", 10000)

	prices.set("BTCUSDT", 100)
	if _, err := l.PlaceOrder(ctx, "owner-1", "BTCUSDT", domain.OrderSideBuy, 10); err != nil {
		t.Fatalf("buy: %v", err)
	}
	prices.set("BTCUSDT", 150)
	if _, err := l.PlaceOrder(ctx, "owner-1", "BTCUSDT", domain.OrderSideSell, 10); err != nil {
		t.Fatalf("sell: %v", err)
	}

	stats, err := l.GetTradingStats(ctx, "owner-1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalTrades != 2 {
		t.Fatalf("trades = %d, want 2", stats.TotalTrades)
	}
	// Bought 1000, sold 1500: +500 on a 10000 account
	if stats.TotalPnL != 500 {
		t.Fatalf("pnl = %v, want 500", stats.TotalPnL)
	}
	if stats.PnLPercentage != 5 {
		t.Fatalf("pnl %% = %v, want 5", stats.PnLPercentage)
	}
	if stats.CurrentBalance != 10500 {
		t.Fatalf("balance = %v, want 10500", stats.CurrentBalance)
	}
}
