// services/currency-conversion/internal/repository/memory_balance_repository.go
package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"globalpay/services/currency-conversion/internal/apperrors"
	"globalpay/services/currency-conversion/internal/models"
)

// MemoryBalanceRepository keeps balances in process. Each unit of work runs
// against a staged copy that replaces the stored record only on success.
type MemoryBalanceRepository struct {
	mu       sync.Mutex
	accounts map[string]models.Balances
	locks    map[string]*userLock
}

// userLock serializes units of work for one user. refs counts holders and
// waiters so the entry can be dropped once nobody needs it.
type userLock struct {
	sync.Mutex
	refs int
}

func NewMemoryBalanceRepository() *MemoryBalanceRepository {
	return &MemoryBalanceRepository{
		accounts: make(map[string]models.Balances),
		locks:    make(map[string]*userLock),
	}
}

func (r *MemoryBalanceRepository) GetBalances(ctx context.Context, userID string) (models.Balances, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	balances, ok := r.accounts[userID]
	if !ok {
		return nil, apperrors.ErrUserNotFound
	}
	return balances.Clone(), nil
}

func (r *MemoryBalanceRepository) EnsureAccount(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.accounts[userID]; !ok {
		r.accounts[userID] = models.NewBalances()
	}
	return nil
}

func (r *MemoryBalanceRepository) Atomically(ctx context.Context, userID string, fn func(tx BalanceTx) error) error {
	lock := r.acquire(userID)
	defer r.release(userID, lock)

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrLedgerUnavailable, err)
	}

	r.mu.Lock()
	current, ok := r.accounts[userID]
	r.mu.Unlock()
	if !ok {
		return apperrors.ErrUserNotFound
	}

	staged := &memoryBalanceTx{balances: current.Clone()}
	if err := fn(staged); err != nil {
		return err
	}

	r.mu.Lock()
	r.accounts[userID] = staged.balances
	r.mu.Unlock()
	return nil
}

func (r *MemoryBalanceRepository) acquire(userID string) *userLock {
	r.mu.Lock()
	l, ok := r.locks[userID]
	if !ok {
		l = &userLock{}
		r.locks[userID] = l
	}
	l.refs++
	r.mu.Unlock()

	l.Lock()
	return l
}

func (r *MemoryBalanceRepository) release(userID string, l *userLock) {
	l.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(r.locks, userID)
	}
}

type memoryBalanceTx struct {
	balances models.Balances
}

func (t *memoryBalanceTx) Balance(ctx context.Context, currency models.Currency) (decimal.Decimal, error) {
	if _, err := balanceColumn(currency); err != nil {
		return decimal.Zero, err
	}
	return t.balances.Get(currency), nil
}

func (t *memoryBalanceTx) Debit(ctx context.Context, currency models.Currency, amount decimal.Decimal) error {
	if _, err := balanceColumn(currency); err != nil {
		return err
	}
	current := t.balances.Get(currency)
	if current.LessThan(amount) {
		return apperrors.ErrInsufficientFunds
	}
	t.balances[currency] = current.Sub(amount)
	return nil
}

func (t *memoryBalanceTx) Credit(ctx context.Context, currency models.Currency, amount decimal.Decimal) error {
	if _, err := balanceColumn(currency); err != nil {
		return err
	}
	t.balances[currency] = t.balances.Get(currency).Add(amount)
	return nil
}
