// services/currency-conversion/internal/service/helpers_test.go
package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"globalpay/services/currency-conversion/internal/apperrors"
	"globalpay/services/currency-conversion/internal/models"
	"globalpay/shared/pkg/redis"
)

var (
	eurUSD = models.CurrencyPair{Base: models.EUR, Quote: models.USD}
	usdEUR = models.CurrencyPair{Base: models.USD, Quote: models.EUR}
)

type fakeSource struct {
	mu    sync.Mutex
	rates map[models.CurrencyPair]float64
	err   error
	delay time.Duration
	calls atomic.Int32
}

func newFakeSource() *fakeSource {
	return &fakeSource{rates: map[models.CurrencyPair]float64{
		eurUSD: 1.1,
		usdEUR: 0.9,
	}}
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) FetchRate(ctx context.Context, base, quote models.Currency) (float64, error) {
	f.calls.Add(1)

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return 0, fmt.Errorf("%w: %v", apperrors.ErrRateFetch, ctx.Err())
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return 0, f.err
	}
	rate, ok := f.rates[models.CurrencyPair{Base: base, Quote: quote}]
	if !ok {
		return 0, fmt.Errorf("%w: no rate for %s:%s", apperrors.ErrRateFetch, base, quote)
	}
	return rate, nil
}

func (f *fakeSource) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeSource) setRate(pair models.CurrencyPair, rate float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rates[pair] = rate
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeKV is an in-memory KeyValueStore. Expiry is not modeled.
type fakeKV struct {
	mu     sync.Mutex
	data   map[string]string
	lists  map[string][]string
	getErr error
	setErr error
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: map[string]string{}, lists: map[string][]string{}}
}

func (kv *fakeKV) Get(ctx context.Context, key string) (string, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	if kv.getErr != nil {
		return "", kv.getErr
	}
	v, ok := kv.data[key]
	if !ok {
		return "", redis.ErrKeyNotFound
	}
	return v, nil
}

func (kv *fakeKV) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return kv.SetAll(ctx, map[string]interface{}{key: value}, expiration)
}

func (kv *fakeKV) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	if kv.setErr != nil {
		return false, kv.setErr
	}
	if _, exists := kv.data[key]; exists {
		return false, nil
	}
	kv.data[key] = stringify(value)
	return true, nil
}

func (kv *fakeKV) Delete(ctx context.Context, key string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	delete(kv.data, key)
	return nil
}

func (kv *fakeKV) SetAll(ctx context.Context, values map[string]interface{}, expiration time.Duration) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	if kv.setErr != nil {
		return kv.setErr
	}
	for k, v := range values {
		kv.data[k] = stringify(v)
	}
	return nil
}

func (kv *fakeKV) Push(ctx context.Context, key string, value interface{}, maxLen int64) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	if kv.setErr != nil {
		return kv.setErr
	}
	kv.lists[key] = append([]string{stringify(value)}, kv.lists[key]...)
	if int64(len(kv.lists[key])) > maxLen {
		kv.lists[key] = kv.lists[key][:maxLen]
	}
	return nil
}

func stringify(v interface{}) string {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}

func newTestCache(t *testing.T, store KeyValueStore, clock *fakeClock) *QuoteCache {
	t.Helper()
	cache := NewQuoteCache(store, zap.NewNop())
	cache.now = clock.Now
	t.Cleanup(cache.Close)
	return cache
}

func newTestManager(t *testing.T, source RateSource, cache *QuoteCache, clock *fakeClock, recorder RateRecorder) *QuoteManager {
	t.Helper()
	m := NewQuoteManager(source, cache, recorder, []models.CurrencyPair{eurUSD, usdEUR}, 30*time.Second, time.Second, zap.NewNop())
	m.now = clock.Now
	return m
}
