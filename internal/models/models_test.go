package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var modelBase = time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)

func modelTick(price float64, volume int64, ts time.Time) *Tick {
	return &Tick{
		InstrumentID: "AAPL",
		Price:        price,
		Volume:       volume,
		ExchangeTS:   ts,
		ReceiptTS:    ts,
	}
}

func TestTick_Validate(t *testing.T) {
	tests := []struct {
		name string
		tick Tick
		want error
	}{
		{"valid", Tick{InstrumentID: "AAPL", Price: 100, Volume: 10, ExchangeTS: modelBase}, nil},
		{"zero volume ok", Tick{InstrumentID: "AAPL", Price: 100, ExchangeTS: modelBase}, nil},
		{"missing instrument", Tick{Price: 100, Volume: 10, ExchangeTS: modelBase}, ErrInvalidInstrument},
		{"zero price", Tick{InstrumentID: "AAPL", Volume: 10, ExchangeTS: modelBase}, ErrInvalidPrice},
		{"negative price", Tick{InstrumentID: "AAPL", Price: -1, ExchangeTS: modelBase}, ErrInvalidPrice},
		{"negative volume", Tick{InstrumentID: "AAPL", Price: 100, Volume: -1, ExchangeTS: modelBase}, ErrInvalidVolume},
		{"zero timestamp", Tick{InstrumentID: "AAPL", Price: 100, Volume: 10}, ErrInvalidTimestamp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tick.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestNewCandle_TruncatesToBucket(t *testing.T) {
	tick := modelTick(100.5, 50, modelBase.Add(42*time.Second))
	c := NewCandle(tick, time.Minute)

	assert.Equal(t, modelBase, c.StartTime)
	assert.Equal(t, modelBase.Add(time.Minute), c.EndTime)
	assert.Equal(t, 100.5, c.Open)
	assert.Equal(t, 100.5, c.High)
	assert.Equal(t, 100.5, c.Low)
	assert.Equal(t, 100.5, c.Close)
	assert.Equal(t, int64(50), c.Volume)
	assert.False(t, c.IsFinal)
}

func TestCandle_Update(t *testing.T) {
	c := NewCandle(modelTick(100, 100, modelBase), time.Minute)
	c.Update(modelTick(105, 200, modelBase.Add(10*time.Second)))
	c.Update(modelTick(95, 100, modelBase.Add(20*time.Second)))

	assert.Equal(t, 100.0, c.Open)
	assert.Equal(t, 105.0, c.High)
	assert.Equal(t, 95.0, c.Low)
	assert.Equal(t, 95.0, c.Close)
	assert.Equal(t, int64(400), c.Volume)

	// VWAP = (100*100 + 105*200 + 95*100) / 400
	assert.InDelta(t, 101.25, c.VWAP, 1e-9)
}

func TestCandle_VWAPWithZeroVolume(t *testing.T) {
	c := NewCandle(modelTick(100, 0, modelBase), time.Minute)
	assert.Equal(t, 100.0, c.VWAP, "zero-volume candle falls back to close")

	c.Update(modelTick(102, 50, modelBase.Add(5*time.Second)))
	assert.Equal(t, 102.0, c.VWAP)
}

func TestCandle_Finalize(t *testing.T) {
	c := NewCandle(modelTick(100, 10, modelBase), time.Minute)
	got := c.Finalize()
	assert.True(t, got.IsFinal)
	assert.Same(t, c, got)
}

func TestNewGapCandle(t *testing.T) {
	c := NewGapCandle("AAPL", time.Minute, modelBase, 99.5)

	assert.True(t, c.IsFinal)
	assert.Equal(t, 99.5, c.Open)
	assert.Equal(t, 99.5, c.Close)
	assert.Equal(t, 99.5, c.VWAP)
	assert.Equal(t, int64(0), c.Volume)
	assert.Equal(t, modelBase.Add(time.Minute), c.EndTime)
	require.NoError(t, c.Validate())
}

func TestCandle_Contains(t *testing.T) {
	c := NewCandle(modelTick(100, 10, modelBase), time.Minute)

	assert.True(t, c.Contains(modelBase))
	assert.True(t, c.Contains(modelBase.Add(59*time.Second)))
	assert.False(t, c.Contains(modelBase.Add(time.Minute)), "end is exclusive")
	assert.False(t, c.Contains(modelBase.Add(-time.Second)))
}

func TestCandle_Validate(t *testing.T) {
	valid := NewCandle(modelTick(100, 10, modelBase), time.Minute)
	require.NoError(t, valid.Validate())

	bad := *valid
	bad.High, bad.Low = 90, 100
	assert.ErrorIs(t, bad.Validate(), ErrInvalidCandle)

	bad = *valid
	bad.EndTime = bad.StartTime
	assert.ErrorIs(t, bad.Validate(), ErrInvalidTimestamp)

	bad = *valid
	bad.InstrumentID = ""
	assert.ErrorIs(t, bad.Validate(), ErrInvalidInstrument)
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "open", SessionOpen.String())
	assert.Equal(t, "holiday", SessionHoliday.String())
	assert.Equal(t, "closed", SessionClosed.String())
	assert.Equal(t, "connected", ConnConnected.String())
	assert.Equal(t, "backing_off", ConnBackingOff.String())
	assert.Equal(t, "disconnected", ConnDisconnected.String())
}
