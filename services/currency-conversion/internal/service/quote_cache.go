// services/currency-conversion/internal/service/quote_cache.go
package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"globalpay/services/currency-conversion/internal/models"
	"globalpay/shared/pkg/redis"
)

const (
	quoteKeyPrefix  = "quote:"
	currentQuoteKey = "quote:current"
)

// KeyValueStore is the subset of the shared Redis client used by this service.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
	SetAll(ctx context.Context, values map[string]interface{}, expiration time.Duration) error
	Push(ctx context.Context, key string, value interface{}, maxLen int64) error
}

// QuoteCache holds issued quotes until they expire. Lookups go to process
// memory first, then to the shared store when one is configured, so replicas
// can honor quotes issued elsewhere.
type QuoteCache struct {
	store    KeyValueStore
	logger   *zap.Logger
	memCache *MemoryCache
	current  atomic.Pointer[models.Quote]
	now      func() time.Time
}

// NewQuoteCache creates a quote cache. store may be nil.
func NewQuoteCache(store KeyValueStore, logger *zap.Logger) *QuoteCache {
	return &QuoteCache{
		store:    store,
		logger:   logger,
		memCache: NewMemoryCache(time.Minute),
		now:      time.Now,
	}
}

// Put stores q under its id and makes it the current quote.
func (qc *QuoteCache) Put(ctx context.Context, q *models.Quote) {
	stored := &models.Quote{
		ID:        q.ID,
		Rates:     q.Rates.Clone(),
		IssuedAt:  q.IssuedAt,
		ExpiresAt: q.ExpiresAt,
	}

	qc.memCache.Set(stored)
	qc.current.Store(stored)

	if qc.store == nil {
		return
	}

	ttl := stored.ExpiresAt.Sub(qc.now())
	if ttl <= 0 {
		return
	}

	data, err := json.Marshal(stored)
	if err != nil {
		qc.logger.Error("failed to marshal quote", zap.Error(err), zap.String("quote_id", stored.ID))
		return
	}

	values := map[string]interface{}{
		quoteKeyPrefix + stored.ID: data,
		currentQuoteKey:            stored.ID,
	}
	if err := qc.store.SetAll(ctx, values, ttl); err != nil {
		qc.logger.Warn("failed to share quote in redis",
			zap.Error(err),
			zap.String("quote_id", stored.ID))
	}
}

// Get returns the quote with the given id while it is live.
func (qc *QuoteCache) Get(ctx context.Context, id string) (*models.Quote, bool) {
	now := qc.now()

	if q := qc.memCache.Get(id, now); q != nil {
		return q, true
	}
	if qc.store == nil {
		return nil, false
	}

	q, ok := qc.fetchShared(ctx, quoteKeyPrefix+id)
	if !ok || !q.Live(now) {
		return nil, false
	}

	qc.memCache.Set(q)
	return q, true
}

// GetCurrent returns the most recently issued quote while it is live.
func (qc *QuoteCache) GetCurrent(ctx context.Context) (*models.Quote, bool) {
	now := qc.now()

	current := qc.current.Load()
	if current != nil && current.Live(now) {
		return current, true
	}
	if qc.store == nil {
		return nil, false
	}

	id, err := qc.store.Get(ctx, currentQuoteKey)
	if err != nil {
		if !errors.Is(err, redis.ErrKeyNotFound) {
			qc.logger.Warn("failed to read current quote from redis", zap.Error(err))
		}
		return nil, false
	}

	q, ok := qc.Get(ctx, id)
	if !ok {
		return nil, false
	}
	if current == nil || current.IssuedAt.Before(q.IssuedAt) {
		qc.current.CompareAndSwap(current, q)
	}
	return q, true
}

// Close stops the background sweeper.
func (qc *QuoteCache) Close() {
	qc.memCache.Close()
}

func (qc *QuoteCache) fetchShared(ctx context.Context, key string) (*models.Quote, bool) {
	data, err := qc.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, redis.ErrKeyNotFound) {
			qc.logger.Warn("failed to read quote from redis", zap.Error(err), zap.String("key", key))
		}
		return nil, false
	}

	var q models.Quote
	if err := json.Unmarshal([]byte(data), &q); err != nil {
		qc.logger.Warn("discarding malformed cached quote", zap.Error(err), zap.String("key", key))
		return nil, false
	}
	return &q, true
}

// MemoryCache keeps quotes in process until their expiry.
type MemoryCache struct {
	mu       sync.RWMutex
	data     map[string]*models.Quote
	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemoryCache creates a cache whose sweeper runs every interval.
func NewMemoryCache(interval time.Duration) *MemoryCache {
	cache := &MemoryCache{
		data: make(map[string]*models.Quote),
		stop: make(chan struct{}),
	}

	go cache.cleanup(interval)

	return cache
}

// Get returns the quote for id if it is live at now.
func (mc *MemoryCache) Get(id string, now time.Time) *models.Quote {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	q, exists := mc.data[id]
	if !exists || !q.Live(now) {
		return nil
	}
	return q
}

func (mc *MemoryCache) Set(q *models.Quote) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.data[q.ID] = q
}

func (mc *MemoryCache) Len() int {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	return len(mc.data)
}

func (mc *MemoryCache) Close() {
	mc.stopOnce.Do(func() { close(mc.stop) })
}

// evict drops every entry that is no longer live at now.
func (mc *MemoryCache) evict(now time.Time) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	for id, q := range mc.data {
		if !q.Live(now) {
			delete(mc.data, id)
		}
	}
}

func (mc *MemoryCache) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			mc.evict(time.Now())
			quotesCached.Set(float64(mc.Len()))
		case <-mc.stop:
			return
		}
	}
}
