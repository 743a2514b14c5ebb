// services/currency-conversion/internal/service/quote_manager_test.go
package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"globalpay/services/currency-conversion/internal/apperrors"
	"globalpay/services/currency-conversion/internal/models"
)

type fakeRecorder struct {
	mu      sync.Mutex
	saved   []*models.Quote
	source  string
	saveErr error
	history []*models.ExchangeRate
	since   time.Time
}

func (r *fakeRecorder) SaveQuote(ctx context.Context, q *models.Quote, source string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, q)
	r.source = source
	return r.saveErr
}

func (r *fakeRecorder) GetRateHistory(ctx context.Context, from, to models.Currency, since time.Time) ([]*models.ExchangeRate, error) {
	r.since = since
	return r.history, nil
}

func TestGetOrRefreshQuoteIssuesAndReuses(t *testing.T) {
	clock := newFakeClock()
	source := newFakeSource()
	manager := newTestManager(t, source, newTestCache(t, nil, clock), clock, nil)
	ctx := context.Background()

	q1, err := manager.GetOrRefreshQuote(ctx, "")
	require.NoError(t, err)
	assert.NotEmpty(t, q1.ID)
	assert.Equal(t, int32(2), source.calls.Load(), "one fetch per configured pair")
	assert.Equal(t, 30, q1.ExpiresIn(clock.Now()))

	rate, ok := q1.Rates.Rate(models.EUR, models.USD)
	require.True(t, ok)
	assert.Equal(t, 1.1, rate)

	clock.Advance(10 * time.Second)
	again, err := manager.GetOrRefreshQuote(ctx, q1.ID)
	require.NoError(t, err)
	assert.Equal(t, q1.ID, again.ID)
	assert.Equal(t, int32(2), source.calls.Load(), "live quote is served from cache")

	clock.Advance(21 * time.Second)
	q2, err := manager.GetOrRefreshQuote(ctx, q1.ID)
	require.NoError(t, err)
	assert.NotEqual(t, q1.ID, q2.ID, "expired id is replaced by a fresh quote")
	assert.Equal(t, int32(4), source.calls.Load())
}

func TestGetOrRefreshQuoteSubstitutesUnknownID(t *testing.T) {
	clock := newFakeClock()
	source := newFakeSource()
	manager := newTestManager(t, source, newTestCache(t, nil, clock), clock, nil)
	ctx := context.Background()

	current, err := manager.GetOrRefreshQuote(ctx, "")
	require.NoError(t, err)

	got, err := manager.GetOrRefreshQuote(ctx, "does-not-exist")
	require.NoError(t, err)
	assert.Equal(t, current.ID, got.ID)
	assert.Equal(t, int32(2), source.calls.Load())
}

func TestGetOrRefreshQuoteNeverPublishesPartialQuote(t *testing.T) {
	clock := newFakeClock()
	source := newFakeSource()
	delete(source.rates, usdEUR)
	cache := newTestCache(t, nil, clock)
	manager := newTestManager(t, source, cache, clock, nil)
	ctx := context.Background()

	_, err := manager.GetOrRefreshQuote(ctx, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrRateUnavailable)

	_, ok := cache.GetCurrent(ctx)
	assert.False(t, ok, "failed issuance must not be cached")

	source.setRate(usdEUR, 0.9)
	q, err := manager.GetOrRefreshQuote(ctx, "")
	require.NoError(t, err)
	_, ok = q.Rates.Rate(models.USD, models.EUR)
	assert.True(t, ok)
}

func TestGetOrRefreshQuoteCollapsesConcurrentIssuance(t *testing.T) {
	clock := newFakeClock()
	source := newFakeSource()
	source.delay = 50 * time.Millisecond
	manager := newTestManager(t, source, newTestCache(t, nil, clock), clock, nil)

	const callers = 20
	ids := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q, err := manager.GetOrRefreshQuote(context.Background(), "")
			if assert.NoError(t, err) {
				ids[i] = q.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Equal(t, int32(2), source.calls.Load())
}

func TestGetOrRefreshQuoteHonorsCallerCancellation(t *testing.T) {
	clock := newFakeClock()
	source := newFakeSource()
	source.delay = 500 * time.Millisecond
	manager := newTestManager(t, source, newTestCache(t, nil, clock), clock, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := manager.GetOrRefreshQuote(ctx, "")
	assert.ErrorIs(t, err, apperrors.ErrRateUnavailable)
}

func TestGetOrRefreshQuoteFetchTimeout(t *testing.T) {
	clock := newFakeClock()
	source := newFakeSource()
	source.delay = 2 * time.Second
	manager := newTestManager(t, source, newTestCache(t, nil, clock), clock, nil)
	manager.fetchTimeout = 30 * time.Millisecond

	_, err := manager.GetOrRefreshQuote(context.Background(), "")
	assert.ErrorIs(t, err, apperrors.ErrRateUnavailable)
	assert.ErrorIs(t, err, apperrors.ErrRateFetch)
}

func TestQuoteIssuanceRecordsSnapshot(t *testing.T) {
	clock := newFakeClock()
	recorder := &fakeRecorder{saveErr: errors.New("db down")}
	manager := newTestManager(t, newFakeSource(), newTestCache(t, nil, clock), clock, recorder)

	q, err := manager.GetOrRefreshQuote(context.Background(), "")
	require.NoError(t, err, "snapshot failures do not fail issuance")

	require.Len(t, recorder.saved, 1)
	assert.Equal(t, q.ID, recorder.saved[0].ID)
	assert.Equal(t, "fake", recorder.source)
}

func TestGetHistoricalRates(t *testing.T) {
	clock := newFakeClock()

	withoutRecorder := newTestManager(t, newFakeSource(), newTestCache(t, nil, clock), clock, nil)
	_, err := withoutRecorder.GetHistoricalRates(context.Background(), models.EUR, models.USD, 7)
	assert.ErrorIs(t, err, apperrors.ErrHistoryUnavailable)

	recorder := &fakeRecorder{history: []*models.ExchangeRate{{QuoteID: "q1", Rate: 1.1}}}
	manager := newTestManager(t, newFakeSource(), newTestCache(t, nil, clock), clock, recorder)
	rates, err := manager.GetHistoricalRates(context.Background(), models.EUR, models.USD, 7)
	require.NoError(t, err)
	assert.Len(t, rates, 1)
	assert.Equal(t, clock.Now().AddDate(0, 0, -7), recorder.since)
}
