package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bawsi99/StockAnalyzer-Pro-sub001/internal/models"
)

// MemoryCache is an in-memory Cache for tests and local development.
// TTLs are ignored.
type MemoryCache struct {
	mu         sync.RWMutex
	candles    map[string]*models.Candle
	indicators map[string]map[string]float64
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		candles:    make(map[string]*models.Candle),
		indicators: make(map[string]map[string]float64),
	}
}

func memCandleKey(instrumentID string, interval time.Duration) string {
	return fmt.Sprintf("%s:%s", instrumentID, interval)
}

func (m *MemoryCache) SetLastCandle(ctx context.Context, c *models.Candle, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.candles[memCandleKey(c.InstrumentID, c.Interval)] = &cp
	return nil
}

func (m *MemoryCache) GetLastCandle(ctx context.Context, instrumentID string, interval time.Duration) (*models.Candle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.candles[memCandleKey(instrumentID, interval)]
	if !ok {
		return nil, ErrCacheMiss
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryCache) SetIndicators(ctx context.Context, instrumentID string, values map[string]float64, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make(map[string]float64, len(values))
	for k, v := range values {
		cp[k] = v
	}
	m.indicators[instrumentID] = cp
	return nil
}

func (m *MemoryCache) GetIndicators(ctx context.Context, instrumentID string) (map[string]float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	values, ok := m.indicators[instrumentID]
	if !ok {
		return nil, ErrCacheMiss
	}
	cp := make(map[string]float64, len(values))
	for k, v := range values {
		cp[k] = v
	}
	return cp, nil
}

func (m *MemoryCache) Close() error {
	return nil
}
