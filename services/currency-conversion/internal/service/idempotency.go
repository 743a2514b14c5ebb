// services/currency-conversion/internal/service/idempotency.go
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"globalpay/services/currency-conversion/internal/apperrors"
	"globalpay/services/currency-conversion/internal/models"
	"globalpay/shared/pkg/redis"
)

// idempotencyInFlightTTL bounds how long a reservation survives a crashed request.
const idempotencyInFlightTTL = time.Minute

// IdempotencyCache remembers conversion results per user and Idempotency-Key
// so retried requests replay instead of converting twice. A key is reserved
// before the conversion runs; concurrent duplicates see the reservation.
type IdempotencyCache struct {
	store  KeyValueStore
	ttl    time.Duration
	logger *zap.Logger
}

// idempotencyRecord is a reservation while Result is nil and a completed
// conversion afterwards.
type idempotencyRecord struct {
	Fingerprint string                   `json:"fingerprint"`
	Result      *models.ConversionResult `json:"result,omitempty"`
}

func NewIdempotencyCache(store KeyValueStore, ttl time.Duration, logger *zap.Logger) *IdempotencyCache {
	return &IdempotencyCache{store: store, ttl: ttl, logger: logger}
}

// Begin reserves key for the request identified by fingerprint.
//
// A nil result with a nil error means the caller now owns the key and must
// Complete or Release it. A non-nil result is the stored outcome of an earlier
// request with the same fingerprint. ErrRequestInProgress is returned while
// another request holds the key and ErrIdempotencyReused when the key belongs
// to a different request.
func (c *IdempotencyCache) Begin(ctx context.Context, userID, key, fingerprint string) (*models.ConversionResult, error) {
	storeKey := idempotencyKey(userID, key)

	reservation, err := json.Marshal(idempotencyRecord{Fingerprint: fingerprint})
	if err != nil {
		return nil, err
	}

	reserved, err := c.store.SetNX(ctx, storeKey, reservation, idempotencyInFlightTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: reserve: %v", apperrors.ErrIdempotencyUnavailable, err)
	}
	if reserved {
		return nil, nil
	}

	data, err := c.store.Get(ctx, storeKey)
	if errors.Is(err, redis.ErrKeyNotFound) {
		// released by a failed request between SetNX and Get
		return nil, apperrors.ErrRequestInProgress
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read: %v", apperrors.ErrIdempotencyUnavailable, err)
	}

	var record idempotencyRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		c.logger.Warn("malformed idempotency record",
			zap.Error(err),
			zap.String("user_id", userID))
		return nil, fmt.Errorf("%w: %v", apperrors.ErrIdempotencyUnavailable, err)
	}

	switch {
	case record.Fingerprint != fingerprint:
		return nil, apperrors.ErrIdempotencyReused
	case record.Result == nil:
		return nil, apperrors.ErrRequestInProgress
	}
	return record.Result, nil
}

// Complete replaces the reservation with the conversion result.
func (c *IdempotencyCache) Complete(ctx context.Context, userID, key, fingerprint string, result *models.ConversionResult) {
	data, err := json.Marshal(idempotencyRecord{Fingerprint: fingerprint, Result: result})
	if err != nil {
		return
	}
	if err := c.store.Set(ctx, idempotencyKey(userID, key), data, c.ttl); err != nil {
		c.logger.Warn("failed to cache idempotent result",
			zap.Error(err),
			zap.String("user_id", userID))
	}
}

// Release drops the reservation so the key can be retried.
func (c *IdempotencyCache) Release(ctx context.Context, userID, key string) {
	if err := c.store.Delete(ctx, idempotencyKey(userID, key)); err != nil {
		c.logger.Warn("failed to release idempotency key",
			zap.Error(err),
			zap.String("user_id", userID))
	}
}

func idempotencyKey(userID, key string) string {
	return fmt.Sprintf("idempotency:%s:%s", userID, key)
}
