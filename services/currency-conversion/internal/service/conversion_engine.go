// services/currency-conversion/internal/service/conversion_engine.go
package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"globalpay/services/currency-conversion/internal/apperrors"
	"globalpay/services/currency-conversion/internal/models"
)

// QuoteProvider resolves a quote id hint to a live quote.
type QuoteProvider interface {
	GetOrRefreshQuote(ctx context.Context, id string) (*models.Quote, error)
}

// ConversionEngine converts between a user's currency balances at quoted rates.
type ConversionEngine struct {
	quotes  QuoteProvider
	ledger  *Ledger
	alerter Alerter
	logger  *zap.Logger
	now     func() time.Time
}

func NewConversionEngine(quotes QuoteProvider, ledger *Ledger, alerter Alerter, logger *zap.Logger) *ConversionEngine {
	return &ConversionEngine{
		quotes:  quotes,
		ledger:  ledger,
		alerter: alerter,
		logger:  logger,
		now:     time.Now,
	}
}

// Convert debits req.Amount of the source currency and credits the converted
// amount of the target currency. The returned result names the quote that was
// actually applied, which differs from req.QuoteID when that quote had expired.
func (e *ConversionEngine) Convert(ctx context.Context, userID string, req *models.ConversionRequest) (*models.ConversionResult, error) {
	result, err := e.convert(ctx, userID, req)
	conversionsTotal.WithLabelValues(currencyLabel(req.FromCurrency), currencyLabel(req.ToCurrency), outcome(err)).Inc()
	return result, err
}

func (e *ConversionEngine) convert(ctx context.Context, userID string, req *models.ConversionRequest) (*models.ConversionResult, error) {
	if math.IsNaN(req.Amount) || math.IsInf(req.Amount, 0) {
		return nil, apperrors.ErrInvalidAmount
	}
	amount := decimal.NewFromFloat(req.Amount)
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	from, err := models.ParseCurrency(req.FromCurrency)
	if err != nil {
		return nil, err
	}
	to, err := models.ParseCurrency(req.ToCurrency)
	if err != nil {
		return nil, err
	}
	if from == to {
		return nil, fmt.Errorf("%w: %s:%s", apperrors.ErrUnsupportedPair, from, to)
	}

	quote, err := e.quotes.GetOrRefreshQuote(ctx, req.QuoteID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrRateUnavailable) {
			err = fmt.Errorf("%w: %w", apperrors.ErrRateUnavailable, err)
		}
		return nil, err
	}

	rate, ok := quote.Rates.Rate(from, to)
	if !ok {
		return nil, fmt.Errorf("%w: %s:%s", apperrors.ErrUnsupportedPair, from, to)
	}

	balance, err := e.ledger.GetBalance(ctx, userID, from)
	if err != nil {
		return nil, err
	}
	if amount.GreaterThan(balance) {
		return nil, apperrors.ErrInsufficientFunds
	}

	converted := decimal.NewFromFloat(rate).Mul(amount).Round(amountPlaces)

	if err := e.ledger.Transfer(ctx, userID, from, amount, to, converted); err != nil {
		if errors.Is(err, apperrors.ErrCreditPending) && e.alerter != nil {
			e.alerter.CreditPending(ctx, models.PendingCredit{
				UserID:     userID,
				QuoteID:    quote.ID,
				From:       from,
				To:         to,
				Debited:    amount,
				ToCredit:   converted,
				RequestID:  req.RequestID,
				DetectedAt: e.now().Unix(),
			})
		}
		return nil, err
	}

	e.logger.Info("conversion completed",
		zap.String("user_id", userID),
		zap.String("quote_id", quote.ID),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.String("amount", amount.String()),
		zap.String("converted", converted.String()))

	return &models.ConversionResult{
		QuoteID:         quote.ID,
		Rate:            rate,
		ConvertedAmount: converted.InexactFloat64(),
		Currency:        to,
	}, nil
}

func currencyLabel(code string) string {
	c, err := models.ParseCurrency(code)
	if err != nil {
		return "invalid"
	}
	return c.String()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, apperrors.ErrCreditPending):
		return "credit_pending"
	case errors.Is(err, apperrors.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, apperrors.ErrRateUnavailable):
		return "rate_unavailable"
	case errors.Is(err, apperrors.ErrLedgerUnavailable):
		return "ledger_unavailable"
	default:
		return "rejected"
	}
}
