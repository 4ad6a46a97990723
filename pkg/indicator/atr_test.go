package indicator

import (
	"math"
	"testing"
	"time"

	"github.com/bawsi99/StockAnalyzer-Pro-sub001/internal/models"
)

// rangeCandle builds a finalized candle with an explicit high/low range.
func rangeCandle(i int, open, high, low, close float64) *models.Candle {
	start := testBase.Add(time.Duration(i) * time.Minute)
	return &models.Candle{
		InstrumentID: "AAPL",
		Interval:     time.Minute,
		Open:         open,
		High:         high,
		Low:          low,
		Close:        close,
		Volume:       100,
		VWAP:         close,
		StartTime:    start,
		EndTime:      start.Add(time.Minute),
		IsFinal:      true,
	}
}

func TestATR_NewATR(t *testing.T) {
	atr, err := NewATR(14)
	if err != nil {
		t.Fatalf("Failed to create ATR: %v", err)
	}
	if atr.Name() != "atr_14" {
		t.Errorf("Expected name 'atr_14', got '%s'", atr.Name())
	}
	if atr.WindowSize() != 15 {
		t.Errorf("Expected window size 15, got %d", atr.WindowSize())
	}

	if _, err = NewATR(0); err == nil {
		t.Error("Expected error for period < 1")
	}
}

func TestATR_ConstantRange(t *testing.T) {
	atr, _ := NewATR(5)

	// Identical candles: true range is always high-low = 2.
	for i := 0; i < 10; i++ {
		_, _ = atr.Update(rangeCandle(i, 100, 101, 99, 100))
	}

	val, err := atr.Value()
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}
	if math.Abs(val-2.0) > 1e-9 {
		t.Errorf("Expected ATR 2.0 for constant range, got %f", val)
	}
}

func TestATR_GapUsesPrevClose(t *testing.T) {
	atr, _ := NewATR(2)

	_, _ = atr.Update(rangeCandle(0, 100, 101, 99, 100))
	// Gap up: |high - prevClose| = 10 dominates high-low = 1.
	_, _ = atr.Update(rangeCandle(1, 110, 110, 109, 110))
	_, _ = atr.Update(rangeCandle(2, 110, 111, 109, 110))

	val, err := atr.Value()
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}
	// Warm-up average of TR(1)=10 and TR(2)=2.
	if math.Abs(val-6.0) > 1e-9 {
		t.Errorf("Expected ATR 6.0, got %f", val)
	}
}

func TestATR_NotReadyEarly(t *testing.T) {
	atr, _ := NewATR(5)

	for i := 0; i < 5; i++ {
		_, _ = atr.Update(rangeCandle(i, 100, 101, 99, 100))
		if atr.IsReady() {
			t.Fatalf("ATR ready too early at candle %d", i)
		}
	}
	_, _ = atr.Update(rangeCandle(5, 100, 101, 99, 100))
	if !atr.IsReady() {
		t.Error("ATR should be ready after period+1 candles")
	}
}
