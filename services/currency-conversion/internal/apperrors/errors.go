// services/currency-conversion/internal/apperrors/errors.go
package apperrors

import "errors"

// Validation failures, detected before any quote or ledger access.
var (
	ErrInvalidCurrency = errors.New("invalid currency")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrUnsupportedPair = errors.New("no rate for currency pair")
)

// ErrRateFetch is returned by a rate source for any failed provider call.
var ErrRateFetch = errors.New("rate fetch failed")

// ErrRateUnavailable means no fresh quote could be issued.
var ErrRateUnavailable = errors.New("exchange rate unavailable")

// ErrInsufficientFunds means the source balance is below the requested amount.
var ErrInsufficientFunds = errors.New("insufficient funds")

// ErrUserNotFound means the ledger holds no balance record for the user.
var ErrUserNotFound = errors.New("user not found")

// ErrLedgerUnavailable is a retryable failure of the balance store.
var ErrLedgerUnavailable = errors.New("ledger unavailable")

// ErrCreditPending means the debit was issued but the outcome of the paired credit
// is unknown. Errors carrying it also match ErrLedgerUnavailable.
var ErrCreditPending = errors.New("debit applied, credit pending")

// ErrHistoryUnavailable means rate snapshots are not persisted by this deployment.
var ErrHistoryUnavailable = errors.New("rate history unavailable")

// Idempotency-Key failures.
var (
	ErrRequestInProgress = errors.New("a request with this idempotency key is still in progress")
	ErrIdempotencyReused = errors.New("idempotency key was used with a different request")

	// ErrIdempotencyUnavailable means the key could not be reserved, so the
	// request is refused rather than risk running twice.
	ErrIdempotencyUnavailable = errors.New("idempotency store unavailable")
)
