// services/currency-conversion/internal/service/alerts.go
package service

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"globalpay/services/currency-conversion/internal/models"
)

const (
	creditPendingQueue    = "alerts:credit_pending"
	creditPendingQueueCap = 10000
	alertPublishTimeout   = 2 * time.Second
)

// Alerter raises conversions that need manual reconciliation.
type Alerter interface {
	CreditPending(ctx context.Context, pending models.PendingCredit)
}

// CreditPendingAlerter logs the incident, counts it and queues it for
// reconciliation when a shared store is configured.
type CreditPendingAlerter struct {
	store  KeyValueStore
	logger *zap.Logger
}

// NewCreditPendingAlerter creates an alerter. store may be nil.
func NewCreditPendingAlerter(store KeyValueStore, logger *zap.Logger) *CreditPendingAlerter {
	return &CreditPendingAlerter{store: store, logger: logger}
}

func (a *CreditPendingAlerter) CreditPending(ctx context.Context, pending models.PendingCredit) {
	creditPendingTotal.Inc()

	a.logger.Error("conversion debit applied but credit unconfirmed",
		zap.String("user_id", pending.UserID),
		zap.String("quote_id", pending.QuoteID),
		zap.String("from", pending.From.String()),
		zap.String("to", pending.To.String()),
		zap.String("debited", pending.Debited.String()),
		zap.String("to_credit", pending.ToCredit.String()),
		zap.String("request_id", pending.RequestID))

	if a.store == nil {
		return
	}

	data, err := json.Marshal(pending)
	if err != nil {
		return
	}

	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), alertPublishTimeout)
	defer cancel()
	if err := a.store.Push(pushCtx, creditPendingQueue, data, creditPendingQueueCap); err != nil {
		a.logger.Error("failed to queue credit pending alert", zap.Error(err), zap.String("user_id", pending.UserID))
	}
}
