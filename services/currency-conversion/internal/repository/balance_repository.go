// services/currency-conversion/internal/repository/balance_repository.go
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"globalpay/services/currency-conversion/internal/apperrors"
	"globalpay/services/currency-conversion/internal/models"
)

// ErrCommitUnknown marks a commit whose outcome could not be confirmed.
var ErrCommitUnknown = errors.New("commit outcome unknown")

// BalanceTx is a set of balance mutations on one user that commits or rolls back as a unit.
type BalanceTx interface {
	Balance(ctx context.Context, currency models.Currency) (decimal.Decimal, error)
	Debit(ctx context.Context, currency models.Currency, amount decimal.Decimal) error
	Credit(ctx context.Context, currency models.Currency, amount decimal.Decimal) error
}

// BalanceStore is the persistence contract behind the balance ledger.
// Atomically serializes all units of work for the same user and applies fn's
// mutations only if fn returns nil.
type BalanceStore interface {
	GetBalances(ctx context.Context, userID string) (models.Balances, error)
	EnsureAccount(ctx context.Context, userID string) error
	Atomically(ctx context.Context, userID string, fn func(tx BalanceTx) error) error
}

const checkViolation = "23514"

type BalanceRepository struct {
	db *sql.DB
}

func NewBalanceRepository(db *sql.DB) *BalanceRepository {
	return &BalanceRepository{db: db}
}

func (r *BalanceRepository) GetBalances(ctx context.Context, userID string) (models.Balances, error) {
	columns := make([]string, len(models.SupportedCurrencies))
	for i, c := range models.SupportedCurrencies {
		columns[i], _ = c.Column()
	}
	query := fmt.Sprintf(`SELECT %s FROM fx_balances WHERE user_id = $1`, strings.Join(columns, ", "))

	values := make([]decimal.Decimal, len(models.SupportedCurrencies))
	dest := make([]interface{}, len(values))
	for i := range values {
		dest[i] = &values[i]
	}

	err := r.db.QueryRowContext(ctx, query, userID).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrUserNotFound
	}
	if err != nil {
		return nil, ledgerError(err)
	}

	balances := make(models.Balances, len(values))
	for i, c := range models.SupportedCurrencies {
		balances[c] = values[i]
	}
	return balances, nil
}

func (r *BalanceRepository) EnsureAccount(ctx context.Context, userID string) error {
	query := `
		INSERT INTO fx_balances (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return ledgerError(err)
	}
	return nil
}

// Atomically locks the user's row for the lifetime of one database transaction.
func (r *BalanceRepository) Atomically(ctx context.Context, userID string, fn func(tx BalanceTx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return ledgerError(err)
	}
	defer tx.Rollback()

	var locked string
	err = tx.QueryRowContext(ctx, `SELECT user_id FROM fx_balances WHERE user_id = $1 FOR UPDATE`, userID).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.ErrUserNotFound
	}
	if err != nil {
		return ledgerError(err)
	}

	if err := fn(&pgBalanceTx{tx: tx, userID: userID}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %w: %v", apperrors.ErrLedgerUnavailable, ErrCommitUnknown, err)
	}
	return nil
}

type pgBalanceTx struct {
	tx     *sql.Tx
	userID string
}

func (t *pgBalanceTx) Balance(ctx context.Context, currency models.Currency) (decimal.Decimal, error) {
	column, err := balanceColumn(currency)
	if err != nil {
		return decimal.Zero, err
	}

	var balance decimal.Decimal
	query := fmt.Sprintf(`SELECT %s FROM fx_balances WHERE user_id = $1`, column)
	if err := t.tx.QueryRowContext(ctx, query, t.userID).Scan(&balance); err != nil {
		return decimal.Zero, ledgerError(err)
	}
	return balance, nil
}

// Debit decrements only when the balance covers the amount.
func (t *pgBalanceTx) Debit(ctx context.Context, currency models.Currency, amount decimal.Decimal) error {
	column, err := balanceColumn(currency)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		UPDATE fx_balances
		SET %[1]s = %[1]s - $1, updated_at = NOW()
		WHERE user_id = $2 AND %[1]s >= $1
	`, column)
	res, err := t.tx.ExecContext(ctx, query, amount, t.userID)
	if err != nil {
		return ledgerError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return ledgerError(err)
	}
	if n == 0 {
		return apperrors.ErrInsufficientFunds
	}
	return nil
}

func (t *pgBalanceTx) Credit(ctx context.Context, currency models.Currency, amount decimal.Decimal) error {
	column, err := balanceColumn(currency)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		UPDATE fx_balances
		SET %[1]s = %[1]s + $1, updated_at = NOW()
		WHERE user_id = $2
	`, column)
	res, err := t.tx.ExecContext(ctx, query, amount, t.userID)
	if err != nil {
		return ledgerError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return ledgerError(err)
	}
	if n == 0 {
		return apperrors.ErrUserNotFound
	}
	return nil
}

func balanceColumn(currency models.Currency) (string, error) {
	column, ok := currency.Column()
	if !ok {
		return "", fmt.Errorf("%w: %q", apperrors.ErrInvalidCurrency, currency)
	}
	return column, nil
}

// ledgerError classifies driver errors. A violated non-negative check means the
// balance moved underneath us; everything else is retryable.
func ledgerError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == checkViolation {
		return apperrors.ErrInsufficientFunds
	}
	return fmt.Errorf("%w: %v", apperrors.ErrLedgerUnavailable, err)
}
