package candle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bawsi99/StockAnalyzer-Pro-sub001/internal/models"
)

var base = time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)

func tick(offset time.Duration, price float64, volume int64) *models.Tick {
	return &models.Tick{
		InstrumentID: "AAPL",
		Price:        price,
		Volume:       volume,
		ExchangeTS:   base.Add(offset),
		ReceiptTS:    base.Add(offset),
	}
}

func TestAggregator_SingleBucket(t *testing.T) {
	a := NewAggregator("AAPL", DefaultConfig())

	// Ticks at t=0s, t=1s and t=59s all land in one minute bucket.
	upd, err := a.Apply(tick(0, 100, 10))
	require.NoError(t, err)
	require.Len(t, upd, 1)
	assert.True(t, upd[0].IsNew)
	assert.False(t, upd[0].Candle.IsFinal)

	upd, err = a.Apply(tick(1*time.Second, 105, 20))
	require.NoError(t, err)
	require.Len(t, upd, 1)
	assert.False(t, upd[0].IsNew)

	upd, err = a.Apply(tick(59*time.Second, 95, 30))
	require.NoError(t, err)
	require.Len(t, upd, 1)

	c := upd[0].Candle
	assert.Equal(t, 100.0, c.Open)
	assert.Equal(t, 105.0, c.High)
	assert.Equal(t, 95.0, c.Low)
	assert.Equal(t, 95.0, c.Close)
	assert.Equal(t, int64(60), c.Volume)
	assert.Equal(t, base, c.StartTime)
	assert.Equal(t, base.Add(time.Minute), c.EndTime)
}

func TestAggregator_RollFinalizesPreviousBucket(t *testing.T) {
	a := NewAggregator("AAPL", DefaultConfig())

	_, err := a.Apply(tick(0, 100, 10))
	require.NoError(t, err)

	// First tick of the next minute finalizes the open candle exactly once.
	upd, err := a.Apply(tick(60*time.Second, 101, 5))
	require.NoError(t, err)
	require.Len(t, upd, 2)

	assert.True(t, upd[0].Candle.IsFinal)
	assert.Equal(t, base, upd[0].Candle.StartTime)
	assert.Equal(t, 100.0, upd[0].Candle.Close)

	assert.True(t, upd[1].IsNew)
	assert.False(t, upd[1].Candle.IsFinal)
	assert.Equal(t, base.Add(time.Minute), upd[1].Candle.StartTime)
	assert.Equal(t, 101.0, upd[1].Candle.Open)

	require.NotNil(t, a.LastFinal())
	assert.Equal(t, base, a.LastFinal().StartTime)
}

func TestAggregator_GapCandlesKeepContiguity(t *testing.T) {
	a := NewAggregator("AAPL", DefaultConfig())

	_, err := a.Apply(tick(0, 100, 10))
	require.NoError(t, err)

	// Next tick three minutes later: two tickless buckets between.
	upd, err := a.Apply(tick(3*time.Minute, 102, 5))
	require.NoError(t, err)
	require.Len(t, upd, 4)

	// Finalized real candle, two flat gap candles, then the new bucket.
	assert.True(t, upd[0].Candle.IsFinal)

	for i, u := range upd[1:3] {
		gap := u.Candle
		assert.True(t, gap.IsFinal, "gap %d", i)
		assert.Equal(t, 100.0, gap.Open)
		assert.Equal(t, 100.0, gap.Close)
		assert.Equal(t, 100.0, gap.High)
		assert.Equal(t, 100.0, gap.Low)
		assert.Equal(t, int64(0), gap.Volume)
	}

	// No holes in the time base.
	history := a.History()
	require.Len(t, history, 3)
	for i := 1; i < len(history); i++ {
		assert.Equal(t, history[i-1].EndTime, history[i].StartTime)
	}
	assert.Equal(t, history[2].EndTime, upd[3].Candle.StartTime)
}

func TestAggregator_GapFillCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxGapFill = 3
	a := NewAggregator("AAPL", cfg)

	_, err := a.Apply(tick(0, 100, 10))
	require.NoError(t, err)

	// An hour-long silence would need 59 gap candles; the cap holds it to 3.
	upd, err := a.Apply(tick(time.Hour, 101, 5))
	require.NoError(t, err)
	require.Len(t, upd, 5) // final + 3 gaps + new open
	assert.True(t, upd[4].IsNew)
	assert.Equal(t, base.Add(time.Hour), upd[4].Candle.StartTime)
}

func TestAggregator_LateTickDropped(t *testing.T) {
	a := NewAggregator("AAPL", DefaultConfig())

	_, err := a.Apply(tick(60*time.Second, 100, 10))
	require.NoError(t, err)

	// A tick for the already-passed bucket is dropped and counted.
	upd, err := a.Apply(tick(30*time.Second, 99, 5))
	assert.ErrorIs(t, err, models.ErrLateTick)
	assert.Nil(t, upd)
	assert.Equal(t, int64(1), a.LateDrops())

	// The open candle is untouched.
	open := a.Open()
	require.NotNil(t, open)
	assert.Equal(t, 100.0, open.Close)
	assert.Equal(t, int64(10), open.Volume)
}

func TestAggregator_HistoryWindowBounded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HistoryWindow = 5
	a := NewAggregator("AAPL", cfg)

	for i := 0; i <= 20; i++ {
		_, err := a.Apply(tick(time.Duration(i)*time.Minute, 100+float64(i), 1))
		require.NoError(t, err)
	}

	history := a.History()
	assert.Len(t, history, 5)
	// Oldest retained candle is the 16th minute.
	assert.Equal(t, base.Add(15*time.Minute), history[0].StartTime)
}

func TestAggregator_VWAPTracksVolume(t *testing.T) {
	a := NewAggregator("AAPL", DefaultConfig())

	_, err := a.Apply(tick(0, 100, 100))
	require.NoError(t, err)
	upd, err := a.Apply(tick(10*time.Second, 110, 300))
	require.NoError(t, err)

	// (100*100 + 110*300) / 400
	assert.InDelta(t, 107.5, upd[0].Candle.VWAP, 1e-9)
}
