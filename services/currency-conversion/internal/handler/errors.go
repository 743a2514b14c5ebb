// services/currency-conversion/internal/handler/errors.go
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"globalpay/services/currency-conversion/internal/apperrors"
	"globalpay/shared/pkg/middleware"
)

const retryAfterSeconds = "5"

// respondError maps domain errors to HTTP responses.
func respondError(c *gin.Context, log *zap.Logger, err error) {
	fields := []zap.Field{
		zap.Error(err),
		zap.String("request_id", middleware.GetRequestID(c)),
	}

	switch {
	case errors.Is(err, apperrors.ErrCreditPending):
		log.Error("conversion incomplete", fields...)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "conversion_incomplete",
			"message": "The conversion could not be confirmed and has been flagged for reconciliation",
		})
	case errors.Is(err, apperrors.ErrInvalidCurrency), errors.Is(err, apperrors.ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrInsufficientFunds):
		c.JSON(http.StatusForbidden, gin.H{"error": "Balance low"})
	case errors.Is(err, apperrors.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
	case errors.Is(err, apperrors.ErrUnsupportedPair):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrIdempotencyReused):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrRequestInProgress):
		c.Header("Retry-After", retryAfterSeconds)
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrIdempotencyUnavailable):
		log.Warn("idempotency store unavailable", fields...)
		c.Header("Retry-After", retryAfterSeconds)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Idempotency keys temporarily unavailable"})
	case errors.Is(err, apperrors.ErrRateUnavailable):
		log.Warn("exchange rate unavailable", fields...)
		c.Header("Retry-After", retryAfterSeconds)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Exchange rate unavailable"})
	case errors.Is(err, apperrors.ErrLedgerUnavailable):
		log.Error("ledger unavailable", fields...)
		c.Header("Retry-After", retryAfterSeconds)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Balances temporarily unavailable"})
	case errors.Is(err, apperrors.ErrHistoryUnavailable):
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Rate history is not recorded"})
	default:
		log.Error("unhandled error", fields...)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
