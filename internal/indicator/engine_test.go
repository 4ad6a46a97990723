package indicator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bawsi99/StockAnalyzer-Pro-sub001/internal/history"
	"github.com/bawsi99/StockAnalyzer-Pro-sub001/internal/models"
)

var base = time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)

func finalCandle(i int, close float64) models.Candle {
	start := base.Add(time.Duration(i) * time.Minute)
	return models.Candle{
		InstrumentID: "AAPL",
		Interval:     time.Minute,
		Open:         close,
		High:         close,
		Low:          close,
		Close:        close,
		Volume:       100,
		VWAP:         close,
		StartTime:    start,
		EndTime:      start.Add(time.Minute),
		IsFinal:      true,
	}
}

func candlePtrs(n int, price func(i int) float64) []*models.Candle {
	out := make([]*models.Candle, n)
	for i := range out {
		c := finalCandle(i, price(i))
		out[i] = &c
	}
	return out
}

func TestSet_FinalAdvancesOnce(t *testing.T) {
	set := NewSet("AAPL", []string{"ema_5"})

	upd := finalCandle(0, 100)
	out := set.Apply(models.CandleUpdate{Candle: upd})
	require.Len(t, out, 1)
	assert.True(t, out[0].Final)
	assert.Equal(t, "ema_5", out[0].Kind)

	// Replaying the same finalized candle must not move the EMA.
	before := set.Values()["ema_5"]
	out = set.Apply(models.CandleUpdate{Candle: upd})
	assert.Empty(t, out)
	assert.Equal(t, before, set.Values()["ema_5"])
}

func TestSet_ProvisionalDoesNotAdvance(t *testing.T) {
	set := NewSet("AAPL", []string{"ema_5"})

	for i := 0; i < 10; i++ {
		set.Apply(models.CandleUpdate{Candle: finalCandle(i, 100)})
	}
	settled := set.Values()["ema_5"]

	open := finalCandle(10, 150)
	open.IsFinal = false
	out := set.Apply(models.CandleUpdate{Candle: open, IsNew: true})
	require.Len(t, out, 1)
	assert.False(t, out[0].Final)
	assert.Greater(t, out[0].Value, settled)

	// State unchanged by the provisional pass.
	assert.Equal(t, settled, set.Values()["ema_5"])
}

// Values must be readable while another goroutine applies finals, and must
// only ever expose values as of a finalized candle.
func TestSet_ValuesConcurrentWithApply(t *testing.T) {
	set := NewSet("AAPL", []string{"ema_5"})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			set.Apply(models.CandleUpdate{Candle: finalCandle(i, 100+float64(i%3))})
			open := finalCandle(i+1, 200)
			open.IsFinal = false
			set.Apply(models.CandleUpdate{Candle: open})
		}
	}()

	for i := 0; i < 500; i++ {
		if v, ok := set.Values()["ema_5"]; ok {
			// Previews never land in the snapshot.
			assert.Less(t, v, 150.0)
		}
	}
	<-done

	final := set.Values()["ema_5"]
	assert.Greater(t, final, 99.0)
	assert.Less(t, final, 103.0)
}

func TestSet_UnknownKindSkipped(t *testing.T) {
	set := NewSet("AAPL", []string{"ema_5", "fibonacci_9"})
	assert.Len(t, set.Kinds(), 1)
}

func TestSet_MultiLineOnFinal(t *testing.T) {
	set := NewSet("AAPL", []string{"macd_3_6_2"})

	var last []models.IndicatorUpdate
	for i := 0; i < 20; i++ {
		last = set.Apply(models.CandleUpdate{Candle: finalCandle(i, 100+float64(i%4))})
	}
	require.Len(t, last, 1)
	assert.Contains(t, last[0].Lines, "signal")
	assert.Contains(t, last[0].Lines, "histogram")
}

func TestEngine_SeedReplaysHistory(t *testing.T) {
	mock := history.NewMockProvider()
	mock.Load("AAPL", candlePtrs(50, func(i int) float64 { return 100 + float64(i%5) }))

	eng := NewEngine(Config{SeedBars: 50, SeedRetry: time.Millisecond}, mock)
	set := eng.Register("AAPL", []string{"ema_10", "rsi_5"})

	require.NoError(t, eng.Seed(context.Background(), "AAPL", time.Minute))
	assert.True(t, set.Seeded())

	values, err := eng.Values("AAPL")
	require.NoError(t, err)
	assert.Contains(t, values, "ema_10")
	assert.Contains(t, values, "rsi_5")

	// Seeding must match a straight replay of the same candles.
	straight := NewSet("AAPL", []string{"ema_10"})
	for _, c := range candlePtrs(50, func(i int) float64 { return 100 + float64(i%5) }) {
		straight.Apply(models.CandleUpdate{Candle: *c})
	}
	assert.InDelta(t, straight.Values()["ema_10"], values["ema_10"], 1e-9)
}

func TestEngine_SeedFailureReturnsSentinel(t *testing.T) {
	mock := history.NewMockProvider()
	mock.SetFailing(true)

	eng := NewEngine(Config{SeedBars: 10, SeedRetry: time.Millisecond}, mock)
	set := eng.Register("AAPL", nil)

	err := eng.Seed(context.Background(), "AAPL", time.Minute)
	assert.ErrorIs(t, err, models.ErrSeedingFailed)
	assert.False(t, set.Seeded())
}

func TestEngine_SeedWithRetryRecovers(t *testing.T) {
	mock := history.NewMockProvider()
	mock.Load("AAPL", candlePtrs(20, func(i int) float64 { return 100 }))
	mock.SetFailing(true)

	eng := NewEngine(Config{SeedBars: 20, SeedRetry: 5 * time.Millisecond}, mock)
	eng.Register("AAPL", []string{"ema_5"})

	go func() {
		time.Sleep(20 * time.Millisecond)
		mock.SetFailing(false)
	}()

	attempts, err := eng.SeedWithRetry(context.Background(), "AAPL", time.Minute)
	require.NoError(t, err)
	assert.Greater(t, attempts, 1)
}

func TestEngine_EmptyHistoryStartsCold(t *testing.T) {
	mock := history.NewMockProvider()

	eng := NewEngine(Config{SeedBars: 10, SeedRetry: time.Millisecond}, mock)
	set := eng.Register("AAPL", []string{"ema_5"})

	require.NoError(t, eng.Seed(context.Background(), "AAPL", time.Minute))
	assert.True(t, set.Seeded())
	assert.Empty(t, set.Values())
}

func TestEngine_UnregisteredInstrument(t *testing.T) {
	eng := NewEngine(DefaultConfig(), history.NewMockProvider())

	assert.Error(t, eng.Seed(context.Background(), "GOOG", time.Minute))
	_, err := eng.Values("GOOG")
	assert.Error(t, err)
}
