package history

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/bawsi99/StockAnalyzer-Pro-sub001/internal/models"
)

// MockProvider is an in-memory implementation of Provider for testing and
// local development. Candles can be preloaded per instrument; FetchLatest
// drifts a synthetic price around the last close.
type MockProvider struct {
	mu      sync.RWMutex
	candles map[string][]*models.Candle
	prices  map[string]float64
	failing bool
	rng     *rand.Rand
}

// NewMockProvider creates a new mock provider
func NewMockProvider() *MockProvider {
	return &MockProvider{
		candles: make(map[string][]*models.Candle),
		prices:  make(map[string]float64),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Load preloads finalized candles for an instrument, oldest first.
func (m *MockProvider) Load(instrumentID string, candles []*models.Candle) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.candles[instrumentID] = candles
	if len(candles) > 0 {
		m.prices[instrumentID] = candles[len(candles)-1].Close
	}
}

// SetFailing makes all calls return an error until cleared.
func (m *MockProvider) SetFailing(failing bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failing = failing
}

// RecentCandles returns up to count preloaded candles, oldest first.
func (m *MockProvider) RecentCandles(ctx context.Context, instrumentID string, interval time.Duration, count int) ([]*models.Candle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.failing {
		return nil, models.ErrSeedingFailed
	}

	candles := m.candles[instrumentID]
	if len(candles) > count {
		candles = candles[len(candles)-count:]
	}

	out := make([]*models.Candle, len(candles))
	copy(out, candles)
	return out, nil
}

// FetchLatest returns a synthetic quote drifting around the last known price.
func (m *MockProvider) FetchLatest(ctx context.Context, instrumentID string) (*models.Tick, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failing {
		return nil, models.ErrNotConnected
	}

	price, ok := m.prices[instrumentID]
	if !ok || price <= 0 {
		price = 100.0
	}
	price *= 1 + (m.rng.Float64()-0.5)*0.002
	m.prices[instrumentID] = price

	return &models.Tick{
		InstrumentID: instrumentID,
		Price:        price,
		Volume:       int64(m.rng.Intn(900) + 100),
		ExchangeTS:   time.Now(),
		ReceiptTS:    time.Now(),
	}, nil
}
