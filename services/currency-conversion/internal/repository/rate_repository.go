// services/currency-conversion/internal/repository/rate_repository.go
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"globalpay/services/currency-conversion/internal/apperrors"
	"globalpay/services/currency-conversion/internal/models"
)

type RateRepository struct {
	db *sql.DB
}

func NewRateRepository(db *sql.DB) *RateRepository {
	return &RateRepository{db: db}
}

// SaveQuote records every rate of an issued quote in a single statement.
func (r *RateRepository) SaveQuote(ctx context.Context, quote *models.Quote, source string) error {
	var from, to []string
	var rates []float64
	for base, quotes := range quote.Rates {
		for target, rate := range quotes {
			from = append(from, base.String())
			to = append(to, target.String())
			rates = append(rates, rate)
		}
	}
	if len(rates) == 0 {
		return nil
	}

	query := `
		INSERT INTO exchange_rates (quote_id, source, timestamp, from_currency, to_currency, rate)
		SELECT $1, $2, $3, f, t, r
		FROM unnest($4::text[], $5::text[], $6::float8[]) AS x(f, t, r)
	`
	_, err := r.db.ExecContext(ctx, query,
		quote.ID,
		source,
		quote.IssuedAt,
		pq.Array(from),
		pq.Array(to),
		pq.Array(rates),
	)
	if err != nil {
		return fmt.Errorf("save quote %s: %w", quote.ID, err)
	}
	return nil
}

func (r *RateRepository) GetRateHistory(ctx context.Context, from, to models.Currency, since time.Time) ([]*models.ExchangeRate, error) {
	query := `
		SELECT quote_id, from_currency, to_currency, rate, source, timestamp
		FROM exchange_rates
		WHERE from_currency = $1 AND to_currency = $2 AND timestamp >= $3
		ORDER BY timestamp ASC
	`

	rows, err := r.db.QueryContext(ctx, query, from.String(), to.String(), since)
	if err != nil {
		return nil, historyError(err)
	}
	defer rows.Close()

	rates := []*models.ExchangeRate{}
	for rows.Next() {
		rate := &models.ExchangeRate{}
		if err := rows.Scan(&rate.QuoteID, &rate.FromCurrency, &rate.ToCurrency, &rate.Rate, &rate.Source, &rate.Timestamp); err != nil {
			return nil, historyError(err)
		}
		rates = append(rates, rate)
	}
	if err := rows.Err(); err != nil {
		return nil, historyError(err)
	}

	return rates, nil
}

func historyError(err error) error {
	return fmt.Errorf("%w: rate history: %v", apperrors.ErrLedgerUnavailable, err)
}
