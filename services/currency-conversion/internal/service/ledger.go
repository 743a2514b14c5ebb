// services/currency-conversion/internal/service/ledger.go
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"globalpay/services/currency-conversion/internal/apperrors"
	"globalpay/services/currency-conversion/internal/models"
	"globalpay/services/currency-conversion/internal/repository"
)

// amountPlaces matches the scale of the balance columns.
const amountPlaces = 8

// validateAmount rejects amounts the balance columns cannot hold exactly.
func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: must be positive", apperrors.ErrInvalidAmount)
	}
	if !amount.Equal(amount.Round(amountPlaces)) {
		return fmt.Errorf("%w: at most %d decimal places", apperrors.ErrInvalidAmount, amountPlaces)
	}
	return nil
}

// Ledger owns per-user, per-currency balances.
type Ledger struct {
	store  repository.BalanceStore
	logger *zap.Logger
}

func NewLedger(store repository.BalanceStore, logger *zap.Logger) *Ledger {
	return &Ledger{store: store, logger: logger}
}

func (l *Ledger) GetBalances(ctx context.Context, userID string) (models.Balances, error) {
	return l.store.GetBalances(ctx, userID)
}

func (l *Ledger) GetBalance(ctx context.Context, userID string, currency models.Currency) (decimal.Decimal, error) {
	balances, err := l.store.GetBalances(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return balances.Get(currency), nil
}

// Transfer debits fromAmount of from and credits toAmount of to as one unit.
// The debit fails with ErrInsufficientFunds when the balance no longer covers
// it, in which case nothing is credited. When the unit's commit cannot be
// confirmed the returned error matches ErrCreditPending.
func (l *Ledger) Transfer(ctx context.Context, userID string, from models.Currency, fromAmount decimal.Decimal, to models.Currency, toAmount decimal.Decimal) error {
	err := l.store.Atomically(ctx, userID, func(tx repository.BalanceTx) error {
		if err := tx.Debit(ctx, from, fromAmount); err != nil {
			return err
		}
		if err := tx.Credit(ctx, to, toAmount); err != nil {
			return fmt.Errorf("credit %s: %w", to, err)
		}
		return nil
	})
	if errors.Is(err, repository.ErrCommitUnknown) {
		return fmt.Errorf("%w: %w", apperrors.ErrCreditPending, err)
	}
	return err
}

// Deposit credits amount to the user's balance, creating the record on first use.
func (l *Ledger) Deposit(ctx context.Context, userID string, currency models.Currency, amount decimal.Decimal) (models.Balances, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	if err := l.store.EnsureAccount(ctx, userID); err != nil {
		return nil, err
	}

	err := l.store.Atomically(ctx, userID, func(tx repository.BalanceTx) error {
		return tx.Credit(ctx, currency, amount)
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("balance topped up",
		zap.String("user_id", userID),
		zap.String("currency", currency.String()),
		zap.String("amount", amount.String()))

	return l.store.GetBalances(ctx, userID)
}
