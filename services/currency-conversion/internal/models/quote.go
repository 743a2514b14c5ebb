// services/currency-conversion/internal/models/quote.go
package models

import (
	"math"
	"time"
)

// RateTable maps base currency to quote currency to rate.
type RateTable map[Currency]map[Currency]float64

// Rate looks up the rate for converting one unit of from into to.
func (t RateTable) Rate(from, to Currency) (float64, bool) {
	rate, ok := t[from][to]
	return rate, ok
}

// Set records a rate, allocating the inner map on first use.
func (t RateTable) Set(pair CurrencyPair, rate float64) {
	if t[pair.Base] == nil {
		t[pair.Base] = make(map[Currency]float64)
	}
	t[pair.Base][pair.Quote] = rate
}

// Clone returns a deep copy.
func (t RateTable) Clone() RateTable {
	out := make(RateTable, len(t))
	for base, quotes := range t {
		inner := make(map[Currency]float64, len(quotes))
		for quote, rate := range quotes {
			inner[quote] = rate
		}
		out[base] = inner
	}
	return out
}

// Quote is an immutable, time-bounded snapshot of exchange rates.
// Quotes handed out by the cache are shared and must not be modified.
type Quote struct {
	ID        string    `json:"id"`
	Rates     RateTable `json:"rates"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Live reports whether the quote is still valid at now.
func (q *Quote) Live(now time.Time) bool {
	return now.Before(q.ExpiresAt)
}

// ExpiresIn is the remaining validity in whole seconds, rounded up.
func (q *Quote) ExpiresIn(now time.Time) int {
	remaining := q.ExpiresAt.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining.Seconds()))
}

type QuoteResponse struct {
	QuoteID   string    `json:"quoteID"`
	Rates     RateTable `json:"rates"`
	ExpiresIn int       `json:"expiresIn"`
}

func NewQuoteResponse(q *Quote, now time.Time) *QuoteResponse {
	return &QuoteResponse{
		QuoteID:   q.ID,
		Rates:     q.Rates,
		ExpiresIn: q.ExpiresIn(now),
	}
}

// ExchangeRate is one persisted rate observation, recorded per issued quote.
type ExchangeRate struct {
	QuoteID      string    `json:"quote_id" db:"quote_id"`
	FromCurrency Currency  `json:"from_currency" db:"from_currency"`
	ToCurrency   Currency  `json:"to_currency" db:"to_currency"`
	Rate         float64   `json:"rate" db:"rate"`
	Timestamp    time.Time `json:"timestamp" db:"timestamp"`
	Source       string    `json:"source" db:"source"`
}

const ExchangeRateSchema = `
CREATE TABLE IF NOT EXISTS exchange_rates (
    id BIGSERIAL PRIMARY KEY,
    quote_id VARCHAR(36) NOT NULL,
    from_currency VARCHAR(3) NOT NULL,
    to_currency VARCHAR(3) NOT NULL,
    rate DOUBLE PRECISION NOT NULL CHECK (rate > 0),
    source VARCHAR(50) NOT NULL,
    timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_exchange_rates_pair_ts ON exchange_rates (from_currency, to_currency, timestamp);
`
