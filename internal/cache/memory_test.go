package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bawsi99/StockAnalyzer-Pro-sub001/internal/models"
)

func TestMemoryCache_CandleRoundTrip(t *testing.T) {
	m := NewMemoryCache()
	ctx := context.Background()

	_, err := m.GetLastCandle(ctx, "AAPL", time.Minute)
	assert.ErrorIs(t, err, ErrCacheMiss)

	candle := &models.Candle{
		InstrumentID: "AAPL",
		Interval:     time.Minute,
		Open:         100, High: 101, Low: 99, Close: 100.5,
		Volume:    1200,
		StartTime: time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC),
		EndTime:   time.Date(2025, 3, 10, 14, 31, 0, 0, time.UTC),
		IsFinal:   true,
	}
	require.NoError(t, m.SetLastCandle(ctx, candle, time.Hour))

	got, err := m.GetLastCandle(ctx, "AAPL", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, candle, got)

	// The cached copy is detached from the caller's value.
	candle.Close = 999
	got2, err := m.GetLastCandle(ctx, "AAPL", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 100.5, got2.Close)

	// Different interval is a separate key.
	_, err = m.GetLastCandle(ctx, "AAPL", 5*time.Minute)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCache_IndicatorRoundTrip(t *testing.T) {
	m := NewMemoryCache()
	ctx := context.Background()

	_, err := m.GetIndicators(ctx, "AAPL")
	assert.ErrorIs(t, err, ErrCacheMiss)

	values := map[string]float64{"ema_20": 101.3, "rsi_14": 55.2}
	require.NoError(t, m.SetIndicators(ctx, "AAPL", values, time.Hour))

	got, err := m.GetIndicators(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, values, got)

	// Mutating the returned map must not touch the cached copy.
	got["ema_20"] = -1
	again, err := m.GetIndicators(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 101.3, again["ema_20"])
}
