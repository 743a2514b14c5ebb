// services/currency-conversion/internal/repository/rate_repository_test.go
package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"globalpay/services/currency-conversion/internal/apperrors"
	"globalpay/services/currency-conversion/internal/models"
)

func TestRateRepositorySaveQuote(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewRateRepository(db)

	issued := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	rates := models.RateTable{}
	rates.Set(models.CurrencyPair{Base: models.EUR, Quote: models.USD}, 1.1)
	rates.Set(models.CurrencyPair{Base: models.USD, Quote: models.EUR}, 0.9)
	quote := &models.Quote{ID: "q1", Rates: rates, IssuedAt: issued, ExpiresAt: issued.Add(30 * time.Second)}

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO exchange_rates (quote_id, source, timestamp, from_currency, to_currency, rate)`)).
		WithArgs("q1", "exchangerate-api", issued, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, repo.SaveQuote(context.Background(), quote, "exchangerate-api"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRateRepositorySaveEmptyQuoteIsNoop(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	err = NewRateRepository(db).SaveQuote(context.Background(), &models.Quote{ID: "q1", Rates: models.RateTable{}}, "fake")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRateRepositoryGetRateHistory(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewRateRepository(db)

	since := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	ts := since.Add(time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT quote_id, from_currency, to_currency, rate, source, timestamp FROM exchange_rates`)).
		WithArgs("EUR", "USD", since).
		WillReturnRows(sqlmock.NewRows([]string{"quote_id", "from_currency", "to_currency", "rate", "source", "timestamp"}).
			AddRow("q1", "EUR", "USD", 1.1, "exchangerate-api", ts).
			AddRow("q2", "EUR", "USD", 1.2, "exchangerate-api", ts.Add(time.Minute)))

	rates, err := repo.GetRateHistory(context.Background(), models.EUR, models.USD, since)
	require.NoError(t, err)
	require.Len(t, rates, 2)
	assert.Equal(t, "q1", rates[0].QuoteID)
	assert.Equal(t, models.EUR, rates[0].FromCurrency)
	assert.Equal(t, 1.2, rates[1].Rate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRateRepositoryGetRateHistoryDatabaseDown(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT quote_id`)).
		WillReturnError(errors.New("connection refused"))

	_, err = NewRateRepository(db).GetRateHistory(context.Background(), models.EUR, models.USD, time.Now())
	assert.ErrorIs(t, err, apperrors.ErrLedgerUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRateRepositoryGetRateHistoryScanFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT quote_id`)).
		WillReturnRows(sqlmock.NewRows([]string{"quote_id", "from_currency", "to_currency", "rate", "source", "timestamp"}).
			AddRow("q1", "EUR", "USD", "not-a-number", "exchangerate-api", time.Now()))

	_, err = NewRateRepository(db).GetRateHistory(context.Background(), models.EUR, models.USD, time.Now())
	assert.ErrorIs(t, err, apperrors.ErrLedgerUnavailable)
}
