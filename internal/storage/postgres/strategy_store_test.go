package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"papertrade/internal/domain"
	"papertrade/internal/storage"
	"papertrade/internal/storage/postgres"
)

func TestStrategyStore_InsertAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := postgres.NewStrategyStore(pool)

	now := time.Now().UTC().Truncate(time.Microsecond)
	st := &domain.Strategy{
		StrategyID:  "strat-1",
		OwnerID:     "owner-1",
		Name:        "btc momentum",
		Description: "macd on btc",
		Type:        domain.StrategyTypeMACD,
		Status:      domain.StrategyStatusPaused,
		Symbols:     []string{"BTCUSDT", "ETHUSDT"},
		Parameters: map[string]float64{
			"fast_period":   12,
			"slow_period":   26,
			"signal_period": 9,
		},
		RiskParameters: domain.RiskParameters{
			MaxPositionSize:    1000,
			MaxTotalPositions:  5,
			StopLossPercentage: 5,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	require.NoError(t, store.Insert(ctx, st))

	err := store.Insert(ctx, st)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	got, err := store.GetByID(ctx, "strat-1")
	require.NoError(t, err)
	assert.Equal(t, st.Name, got.Name)
	assert.Equal(t, st.Type, got.Type)
	assert.Equal(t, st.Status, got.Status)
	assert.Equal(t, st.Symbols, got.Symbols)
	assert.Equal(t, st.Parameters, got.Parameters)
	assert.Equal(t, st.RiskParameters, got.RiskParameters)
	assert.Nil(t, got.LastExecutedAt)

	_, err = store.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStrategyStore_UpdateAndActive(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := postgres.NewStrategyStore(pool)

	now := time.Now().UTC().Truncate(time.Microsecond)
	st := &domain.Strategy{
		StrategyID: "strat-1",
		OwnerID:    "owner-1",
		Name:       "rsi dip buyer",
		Type:       domain.StrategyTypeRSI,
		Status:     domain.StrategyStatusPaused,
		Symbols:    []string{"SOLUSDT"},
		Parameters: map[string]float64{"period": 14},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, store.Insert(ctx, st))

	active, err := store.GetActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	st.Status = domain.StrategyStatusActive
	st.LastExecutedAt = ptr(now.Add(time.Minute))
	st.UpdatedAt = now.Add(time.Minute)
	require.NoError(t, store.Update(ctx, st))

	active, err = store.GetActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "strat-1", active[0].StrategyID)
	require.NotNil(t, active[0].LastExecutedAt)
	assert.WithinDuration(t, *st.LastExecutedAt, *active[0].LastExecutedAt, time.Millisecond)

	missing := &domain.Strategy{StrategyID: "missing", UpdatedAt: now}
	err = store.Update(ctx, missing)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStrategyStore_OwnerScopingAndDelete(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := postgres.NewStrategyStore(pool)

	now := time.Now().UTC().Truncate(time.Microsecond)
	for i, owner := range []string{"owner-1", "owner-1", "owner-2"} {
		st := &domain.Strategy{
			StrategyID: "strat-" + string(rune('a'+i)),
			OwnerID:    owner,
			Name:       "s",
			Type:       domain.StrategyTypeMACrossover,
			Status:     domain.StrategyStatusPaused,
			CreatedAt:  now.Add(time.Duration(i) * time.Second),
			UpdatedAt:  now,
		}
		require.NoError(t, store.Insert(ctx, st))
	}

	got, err := store.GetByOwner(ctx, "owner-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "strat-a", got[0].StrategyID)
	assert.Equal(t, "strat-b", got[1].StrategyID)

	require.NoError(t, store.Delete(ctx, "strat-a"))
	err = store.Delete(ctx, "strat-a")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	got, err = store.GetByOwner(ctx, "owner-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
}
