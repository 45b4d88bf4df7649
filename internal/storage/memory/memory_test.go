package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"papertrade/internal/domain"
	"papertrade/internal/storage"
)

func TestStrategyStore_CRUD(t *testing.T) {
	ctx := context.Background()
	store := NewStrategyStore()

	st := &domain.Strategy{
		StrategyID: "strat-1",
		OwnerID:    "owner-1",
		Name:       "ma crossover",
		Type:       domain.StrategyTypeMACrossover,
		Status:     domain.StrategyStatusPaused,
		Symbols:    []string{"BTCUSDT"},
		Parameters: map[string]float64{"fast_period": 9, "slow_period": 21},
		CreatedAt:  time.Now().UTC(),
	}

	if err := store.Insert(ctx, st); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := store.Insert(ctx, st); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}

	got, err := store.GetByID(ctx, "strat-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "ma crossover" {
		t.Fatalf("unexpected name %q", got.Name)
	}

	// Mutating the returned copy must not affect the stored value
	got.Name = "mutated"
	got.Symbols[0] = "ETHUSDT"
	got.Parameters["fast_period"] = 99
	again, err := store.GetByID(ctx, "strat-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if again.Name != "ma crossover" || again.Symbols[0] != "BTCUSDT" || again.Parameters["fast_period"] != 9 {
		t.Fatal("stored strategy was mutated through a returned copy")
	}

	st.Status = domain.StrategyStatusActive
	if err := store.Update(ctx, st); err != nil {
		t.Fatalf("update: %v", err)
	}

	active, err := store.GetActive(ctx)
	if err != nil {
		t.Fatalf("get active: %v", err)
	}
	if len(active) != 1 || active[0].StrategyID != "strat-1" {
		t.Fatalf("expected 1 active strategy, got %d", len(active))
	}

	if err := store.Delete(ctx, "strat-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(ctx, "strat-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.GetByID(ctx, "strat-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStrategyStore_GetByOwnerOrdering(t *testing.T) {
	ctx := context.Background()
	store := NewStrategyStore()

	base := time.Now().UTC()
	for i, id := range []string{"c", "a", "b"} {
		st := &domain.Strategy{
			StrategyID: id,
			OwnerID:    "owner-1",
			Type:       domain.StrategyTypeRSI,
			Status:     domain.StrategyStatusPaused,
			CreatedAt:  base.Add(time.Duration(2-i) * time.Minute),
		}
		if err := store.Insert(ctx, st); err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
	}

	got, err := store.GetByOwner(ctx, "owner-1")
	if err != nil {
		t.Fatalf("get by owner: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 strategies, got %d", len(got))
	}
	if got[0].StrategyID != "b" || got[1].StrategyID != "a" || got[2].StrategyID != "c" {
		t.Fatalf("wrong order: %s %s %s", got[0].StrategyID, got[1].StrategyID, got[2].StrategyID)
	}
}

func TestAccountStore_ConditionalBalanceUpdate(t *testing.T) {
	ctx := context.Background()
	store := NewAccountStore()

	a := &domain.Account{
		OwnerID:        "owner-1",
		CashBalance:    10000,
		InitialBalance: 10000,
		CreatedAt:      time.Now().UTC(),
	}
	if err := store.Insert(ctx, a); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := store.Insert(ctx, a); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}

	if err := store.UpdateBalanceConditional(ctx, "owner-1", 10000, 9500); err != nil {
		t.Fatalf("conditional update: %v", err)
	}

	// Stale expected value must be rejected
	if err := store.UpdateBalanceConditional(ctx, "owner-1", 10000, 9000); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	if err := store.UpdateBalanceConditional(ctx, "missing", 1, 2); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	got, err := store.GetByOwner(ctx, "owner-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.CashBalance != 9500 {
		t.Fatalf("expected balance 9500, got %v", got.CashBalance)
	}
	if got.InitialBalance != 10000 {
		t.Fatalf("initial balance must not change, got %v", got.InitialBalance)
	}
}

func TestPositionStore_OnePerOwnerSymbol(t *testing.T) {
	ctx := context.Background()
	store := NewPositionStore()

	p := &domain.Position{
		PositionID: "pos-1",
		OwnerID:    "owner-1",
		Symbol:     "BTCUSDT",
		Side:       domain.OrderSideBuy,
		Quantity:   0.5,
		EntryPrice: 40000,
		OpenedAt:   time.Now().UTC(),
	}
	if err := store.Insert(ctx, p); err != nil {
		t.Fatalf("insert: %v", err)
	}

	dup := &domain.Position{
		PositionID: "pos-2",
		OwnerID:    "owner-1",
		Symbol:     "BTCUSDT",
		Side:       domain.OrderSideBuy,
		Quantity:   1,
		EntryPrice: 41000,
		OpenedAt:   time.Now().UTC(),
	}
	if err := store.Insert(ctx, dup); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey for second open position, got %v", err)
	}

	got, err := store.GetByOwnerSymbol(ctx, "owner-1", "BTCUSDT")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.PositionID != "pos-1" {
		t.Fatalf("unexpected position %s", got.PositionID)
	}

	got.Quantity = 1.5
	got.EntryPrice = 40500
	if err := store.Update(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}

	updated, err := store.GetByOwnerSymbol(ctx, "owner-1", "BTCUSDT")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if updated.Quantity != 1.5 || updated.EntryPrice != 40500 {
		t.Fatalf("update not applied: qty=%v entry=%v", updated.Quantity, updated.EntryPrice)
	}

	if err := store.Delete(ctx, "pos-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.GetByOwnerSymbol(ctx, "owner-1", "BTCUSDT"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestOrderStore_AppendOnly(t *testing.T) {
	ctx := context.Background()
	store := NewOrderStore()

	base := time.Now().UTC()
	for i := 0; i < 3; i++ {
		o := &domain.Order{
			OrderID:   string(rune('a' + i)),
			OwnerID:   "owner-1",
			Symbol:    "ETHUSDT",
			Type:      domain.OrderTypeMarket,
			Side:      domain.OrderSideBuy,
			Quantity:  1,
			FillPrice: 2000,
			Status:    domain.OrderStatusFilled,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := store.Insert(ctx, o); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	got, err := store.GetByOwner(ctx, "owner-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 orders, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].CreatedAt.Before(got[i-1].CreatedAt) {
			t.Fatal("orders not sorted by created_at")
		}
	}
}

func TestPriceHistoryStore_RecentAndRange(t *testing.T) {
	ctx := context.Background()
	store := NewPriceHistoryStore()

	var points []*domain.PricePoint
	for i := 0; i < 10; i++ {
		points = append(points, &domain.PricePoint{
			Symbol:      "BTCUSDT",
			TimestampMs: int64(1000 * (i + 1)),
			Price:       float64(100 + i),
		})
	}
	if err := store.InsertBulk(ctx, points); err != nil {
		t.Fatalf("insert bulk: %v", err)
	}

	// Duplicate timestamp fails the whole batch
	err := store.InsertBulk(ctx, []*domain.PricePoint{
		{Symbol: "BTCUSDT", TimestampMs: 20000, Price: 200},
		{Symbol: "BTCUSDT", TimestampMs: 1000, Price: 1},
	})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
	if got, _ := store.GetByTimeRange(ctx, "BTCUSDT", 20000, 20000); len(got) != 0 {
		t.Fatal("failed batch must not be partially applied")
	}

	recent, err := store.GetRecent(ctx, "BTCUSDT", 3)
	if err != nil {
		t.Fatalf("get recent: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("expected 3 points, got %d", len(recent))
	}
	if recent[0].TimestampMs != 8000 || recent[2].TimestampMs != 10000 {
		t.Fatalf("expected oldest-first window [8000..10000], got [%d..%d]",
			recent[0].TimestampMs, recent[2].TimestampMs)
	}

	ranged, err := store.GetByTimeRange(ctx, "BTCUSDT", 3000, 5000)
	if err != nil {
		t.Fatalf("get range: %v", err)
	}
	if len(ranged) != 3 {
		t.Fatalf("expected 3 points in range, got %d", len(ranged))
	}

	// Asking for more than stored returns everything
	all, err := store.GetRecent(ctx, "BTCUSDT", 100)
	if err != nil {
		t.Fatalf("get recent: %v", err)
	}
	if len(all) != 10 {
		t.Fatalf("expected 10 points, got %d", len(all))
	}
}
