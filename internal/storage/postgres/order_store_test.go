package postgres_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"papertrade/internal/domain"
	"papertrade/internal/storage"
	"papertrade/internal/storage/postgres"
)

func TestOrderStore_InsertAndGetByOwner(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := postgres.NewOrderStore(pool)

	now := time.Now().UTC().Truncate(time.Microsecond)
	for i := 0; i < 3; i++ {
		o := &domain.Order{
			OrderID:    fmt.Sprintf("order-%d", i),
			OwnerID:    "owner-1",
			Symbol:     "BTCUSDT",
			Type:       domain.OrderTypeMarket,
			Side:       domain.OrderSideBuy,
			Quantity:   0.1,
			FillPrice:  40000 + float64(i*100),
			Status:     domain.OrderStatusFilled,
			PositionID: "pos-1",
			CreatedAt:  now.Add(time.Duration(i) * time.Second),
			FilledAt:   now.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, store.Insert(ctx, o))
	}

	dup := &domain.Order{
		OrderID:   "order-0",
		OwnerID:   "owner-1",
		Symbol:    "BTCUSDT",
		Type:      domain.OrderTypeMarket,
		Side:      domain.OrderSideBuy,
		Status:    domain.OrderStatusFilled,
		CreatedAt: now,
		FilledAt:  now,
	}
	err := store.Insert(ctx, dup)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	got, err := store.GetByOwner(ctx, "owner-1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "order-0", got[0].OrderID)
	assert.Equal(t, "order-2", got[2].OrderID)
	assert.Equal(t, domain.OrderStatusFilled, got[0].Status)
	assert.Equal(t, 40000.0, got[0].FillPrice)

	got, err = store.GetByOwner(ctx, "owner-2")
	require.NoError(t, err)
	assert.Empty(t, got)
}
