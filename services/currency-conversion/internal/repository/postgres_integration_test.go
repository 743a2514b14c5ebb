// services/currency-conversion/internal/repository/postgres_integration_test.go
//go:build integration

package repository

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"globalpay/services/currency-conversion/internal/apperrors"
	"globalpay/services/currency-conversion/internal/models"
	"globalpay/shared/pkg/database"
)

// Run with: TEST_DATABASE_URL=postgres://... go test -tags integration ./...
func newIntegrationRepo(t *testing.T) *BalanceRepository {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := database.NewPostgresDB(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.ApplySchema(ctx, models.BalanceSchema, models.ExchangeRateSchema))

	return NewBalanceRepository(db.DB)
}

func TestPostgresConcurrentTransfers(t *testing.T) {
	repo := newIntegrationRepo(t)
	ctx := context.Background()
	userID := uuid.NewString()

	require.NoError(t, repo.EnsureAccount(ctx, userID))
	require.NoError(t, repo.Atomically(ctx, userID, func(tx BalanceTx) error {
		return tx.Credit(ctx, models.EUR, decimal.NewFromInt(100))
	}))

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = repo.Atomically(ctx, userID, func(tx BalanceTx) error {
				if err := tx.Debit(ctx, models.EUR, decimal.NewFromInt(100)); err != nil {
					return err
				}
				return tx.Credit(ctx, models.USD, decimal.NewFromInt(110))
			})
		}(i)
	}
	wg.Wait()

	var failures int
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, apperrors.ErrInsufficientFunds)
			failures++
		}
	}
	assert.Equal(t, 1, failures)

	balances, err := repo.GetBalances(ctx, userID)
	require.NoError(t, err)
	assert.True(t, balances.Get(models.EUR).IsZero())
	assert.Equal(t, "110", balances.Get(models.USD).String())
}
