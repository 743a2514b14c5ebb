// services/currency-conversion/internal/service/quote_manager.go
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"globalpay/services/currency-conversion/internal/apperrors"
	"globalpay/services/currency-conversion/internal/models"
)

const issueFlightKey = "issue"

// RateRecorder persists the rates of issued quotes.
type RateRecorder interface {
	SaveQuote(ctx context.Context, quote *models.Quote, source string) error
	GetRateHistory(ctx context.Context, from, to models.Currency, since time.Time) ([]*models.ExchangeRate, error)
}

// QuoteManager hands out live quotes, issuing a new one from the rate source
// when none is available.
type QuoteManager struct {
	source       RateSource
	cache        *QuoteCache
	recorder     RateRecorder
	pairs        []models.CurrencyPair
	ttl          time.Duration
	fetchTimeout time.Duration
	logger       *zap.Logger

	group singleflight.Group
	now   func() time.Time
	newID func() string
}

// NewQuoteManager creates a quote manager. recorder may be nil.
func NewQuoteManager(
	source RateSource,
	cache *QuoteCache,
	recorder RateRecorder,
	pairs []models.CurrencyPair,
	ttl time.Duration,
	fetchTimeout time.Duration,
	logger *zap.Logger,
) *QuoteManager {
	return &QuoteManager{
		source:       source,
		cache:        cache,
		recorder:     recorder,
		pairs:        pairs,
		ttl:          ttl,
		fetchTimeout: fetchTimeout,
		logger:       logger,
		now:          time.Now,
		newID:        uuid.NewString,
	}
}

// GetOrRefreshQuote returns the quote named by id while it is live. A missing,
// unknown or expired id resolves to the current live quote, or to a newly
// issued one when there is none.
func (m *QuoteManager) GetOrRefreshQuote(ctx context.Context, id string) (*models.Quote, error) {
	if id != "" {
		if q, ok := m.cache.Get(ctx, id); ok {
			return q, nil
		}
		m.logger.Debug("requested quote not live, substituting", zap.String("quote_id", id))
	}

	if q, ok := m.cache.GetCurrent(ctx); ok {
		return q, nil
	}

	ch := m.group.DoChan(issueFlightKey, func() (interface{}, error) {
		flightCtx := context.WithoutCancel(ctx)
		if q, ok := m.cache.GetCurrent(flightCtx); ok {
			return q, nil
		}
		return m.issue(flightCtx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*models.Quote), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", apperrors.ErrRateUnavailable, ctx.Err())
	}
}

// issue fetches every configured pair and publishes the quote only if all succeed.
func (m *QuoteManager) issue(ctx context.Context) (*models.Quote, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, m.fetchTimeout)
	defer cancel()

	rates := make([]float64, len(m.pairs))
	g, gctx := errgroup.WithContext(fetchCtx)
	for i, pair := range m.pairs {
		i, pair := i, pair
		g.Go(func() error {
			rate, err := m.source.FetchRate(gctx, pair.Base, pair.Quote)
			if err != nil {
				return fmt.Errorf("%s: %w", pair, err)
			}
			rates[i] = rate
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		quoteIssueFailures.Inc()
		m.logger.Error("failed to issue quote", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", apperrors.ErrRateUnavailable, err)
	}

	table := make(models.RateTable)
	for i, pair := range m.pairs {
		table.Set(pair, rates[i])
	}

	now := m.now()
	q := &models.Quote{
		ID:        m.newID(),
		Rates:     table,
		IssuedAt:  now,
		ExpiresAt: now.Add(m.ttl),
	}

	m.cache.Put(ctx, q)
	quotesIssued.Inc()

	m.logger.Info("quote issued",
		zap.String("quote_id", q.ID),
		zap.Int("pairs", len(m.pairs)),
		zap.Time("expires_at", q.ExpiresAt))

	if m.recorder != nil {
		saveCtx, cancel := context.WithTimeout(ctx, m.fetchTimeout)
		defer cancel()
		if err := m.recorder.SaveQuote(saveCtx, q, m.source.Name()); err != nil {
			m.logger.Error("failed to save rate snapshot", zap.Error(err), zap.String("quote_id", q.ID))
		}
	}

	return q, nil
}

// GetHistoricalRates returns recorded rates for a pair over the last days.
func (m *QuoteManager) GetHistoricalRates(ctx context.Context, from, to models.Currency, days int) ([]*models.ExchangeRate, error) {
	if m.recorder == nil {
		return nil, apperrors.ErrHistoryUnavailable
	}
	since := m.now().AddDate(0, 0, -days)
	return m.recorder.GetRateHistory(ctx, from, to, since)
}

// Pairs returns the configured currency pairs.
func (m *QuoteManager) Pairs() []models.CurrencyPair {
	return m.pairs
}
