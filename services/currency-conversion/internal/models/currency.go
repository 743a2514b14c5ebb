// services/currency-conversion/internal/models/currency.go
package models

import (
	"fmt"
	"strings"

	"globalpay/services/currency-conversion/internal/apperrors"
)

type Currency string

const (
	USD Currency = "USD"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
	AUD Currency = "AUD"
	CAD Currency = "CAD"
	CNY Currency = "CNY"
	HKD Currency = "HKD"
	KRW Currency = "KRW"
)

// SupportedCurrencies is the closed set of currencies a balance record holds.
var SupportedCurrencies = []Currency{USD, EUR, GBP, AUD, CAD, CNY, HKD, KRW}

// ParseCurrency accepts a currency code in any case and rejects codes outside the set.
func ParseCurrency(code string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(code)))
	if _, ok := c.Column(); !ok {
		return "", fmt.Errorf("%w: %q", apperrors.ErrInvalidCurrency, code)
	}
	return c, nil
}

// Column maps a currency to its balance column.
func (c Currency) Column() (string, bool) {
	switch c {
	case USD:
		return "usd_balance", true
	case EUR:
		return "eur_balance", true
	case GBP:
		return "gbp_balance", true
	case AUD:
		return "aud_balance", true
	case CAD:
		return "cad_balance", true
	case CNY:
		return "cny_balance", true
	case HKD:
		return "hkd_balance", true
	case KRW:
		return "krw_balance", true
	}
	return "", false
}

func (c Currency) String() string {
	return string(c)
}

// CurrencyPair is a base/quote pair; a rate is quote units per one base unit.
type CurrencyPair struct {
	Base  Currency `json:"base"`
	Quote Currency `json:"quote"`
}

// ParsePair parses "EUR:USD" (or "EUR/USD").
func ParsePair(s string) (CurrencyPair, error) {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ':' || r == '/' })
	if len(parts) != 2 {
		return CurrencyPair{}, fmt.Errorf("%w: malformed pair %q", apperrors.ErrInvalidCurrency, s)
	}
	base, err := ParseCurrency(parts[0])
	if err != nil {
		return CurrencyPair{}, err
	}
	quote, err := ParseCurrency(parts[1])
	if err != nil {
		return CurrencyPair{}, err
	}
	if base == quote {
		return CurrencyPair{}, fmt.Errorf("%w: %s", apperrors.ErrUnsupportedPair, s)
	}
	return CurrencyPair{Base: base, Quote: quote}, nil
}

func (p CurrencyPair) String() string {
	return string(p.Base) + ":" + string(p.Quote)
}
