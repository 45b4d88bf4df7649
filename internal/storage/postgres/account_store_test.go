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

func TestAccountStore_InsertAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := postgres.NewAccountStore(pool)

	now := time.Now().UTC().Truncate(time.Microsecond)
	a := &domain.Account{
		OwnerID:        "owner-1",
		CashBalance:    10000,
		InitialBalance: 10000,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	require.NoError(t, store.Insert(ctx, a))

	err := store.Insert(ctx, a)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	got, err := store.GetByOwner(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, 10000.0, got.CashBalance)
	assert.Equal(t, 10000.0, got.InitialBalance)

	_, err = store.GetByOwner(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAccountStore_ConditionalBalanceUpdate(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := postgres.NewAccountStore(pool)

	now := time.Now().UTC().Truncate(time.Microsecond)
	a := &domain.Account{
		OwnerID:        "owner-1",
		CashBalance:    10000,
		InitialBalance: 10000,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, store.Insert(ctx, a))

	require.NoError(t, store.UpdateBalanceConditional(ctx, "owner-1", 10000, 9000))

	// Second writer with a stale snapshot must lose
	err := store.UpdateBalanceConditional(ctx, "owner-1", 10000, 8000)
	assert.ErrorIs(t, err, storage.ErrConflict)

	err = store.UpdateBalanceConditional(ctx, "missing", 10000, 9000)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	got, err := store.GetByOwner(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, 9000.0, got.CashBalance)
	assert.Equal(t, 10000.0, got.InitialBalance)
}
