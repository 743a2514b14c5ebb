// services/currency-conversion/internal/models/balance.go
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Balances holds one amount per supported currency for a single user.
type Balances map[Currency]decimal.Decimal

// NewBalances returns a record with every supported currency at zero.
func NewBalances() Balances {
	b := make(Balances, len(SupportedCurrencies))
	for _, c := range SupportedCurrencies {
		b[c] = decimal.Zero
	}
	return b
}

// Get returns the balance for c, zero when absent.
func (b Balances) Get(c Currency) decimal.Decimal {
	if v, ok := b[c]; ok {
		return v
	}
	return decimal.Zero
}

func (b Balances) Clone() Balances {
	out := make(Balances, len(b))
	for c, v := range b {
		out[c] = v
	}
	return out
}

type BalancesResponse struct {
	Balances map[Currency]float64 `json:"balances"`
}

func NewBalancesResponse(b Balances) *BalancesResponse {
	resp := &BalancesResponse{Balances: make(map[Currency]float64, len(SupportedCurrencies))}
	for _, c := range SupportedCurrencies {
		resp.Balances[c] = b.Get(c).InexactFloat64()
	}
	return resp
}

type TopUpRequest struct {
	Currency string  `json:"currency" binding:"required"`
	Amount   float64 `json:"amount" binding:"required,gt=0"`
}

type ConversionRequest struct {
	QuoteID      string  `json:"quoteID"`
	FromCurrency string  `json:"from_currency" binding:"required"`
	ToCurrency   string  `json:"to_currency" binding:"required"`
	Amount       float64 `json:"amount" binding:"required,gt=0"`
	RequestID    string  `json:"-"`
}

// Fingerprint identifies the request body, ignoring currency case.
func (r *ConversionRequest) Fingerprint() string {
	canonical := strings.Join([]string{
		r.QuoteID,
		strings.ToUpper(strings.TrimSpace(r.FromCurrency)),
		strings.ToUpper(strings.TrimSpace(r.ToCurrency)),
		strconv.FormatFloat(r.Amount, 'g', -1, 64),
	}, "|")
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// ConversionResult reports the quote actually applied, which may differ from the requested one.
type ConversionResult struct {
	QuoteID         string   `json:"quoteID"`
	Rate            float64  `json:"rate"`
	ConvertedAmount float64  `json:"convertedAmount"`
	Currency        Currency `json:"currency"`
}

// PendingCredit describes a conversion whose debit was issued but whose credit is unconfirmed.
type PendingCredit struct {
	UserID     string          `json:"user_id"`
	QuoteID    string          `json:"quote_id"`
	From       Currency        `json:"from"`
	To         Currency        `json:"to"`
	Debited    decimal.Decimal `json:"debited"`
	ToCredit   decimal.Decimal `json:"to_credit"`
	RequestID  string          `json:"request_id,omitempty"`
	DetectedAt int64           `json:"detected_at"`
}

const BalanceSchema = `
CREATE TABLE IF NOT EXISTS fx_balances (
    user_id VARCHAR(64) PRIMARY KEY,
    usd_balance NUMERIC(24, 8) NOT NULL DEFAULT 0 CHECK (usd_balance >= 0),
    eur_balance NUMERIC(24, 8) NOT NULL DEFAULT 0 CHECK (eur_balance >= 0),
    gbp_balance NUMERIC(24, 8) NOT NULL DEFAULT 0 CHECK (gbp_balance >= 0),
    aud_balance NUMERIC(24, 8) NOT NULL DEFAULT 0 CHECK (aud_balance >= 0),
    cad_balance NUMERIC(24, 8) NOT NULL DEFAULT 0 CHECK (cad_balance >= 0),
    cny_balance NUMERIC(24, 8) NOT NULL DEFAULT 0 CHECK (cny_balance >= 0),
    hkd_balance NUMERIC(24, 8) NOT NULL DEFAULT 0 CHECK (hkd_balance >= 0),
    krw_balance NUMERIC(24, 8) NOT NULL DEFAULT 0 CHECK (krw_balance >= 0),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
