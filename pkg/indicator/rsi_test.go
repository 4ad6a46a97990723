package indicator

import (
	"testing"
)

func TestRSI_NewRSI(t *testing.T) {
	rsi, err := NewRSI(14)
	if err != nil {
		t.Fatalf("Failed to create RSI: %v", err)
	}
	if rsi.Name() != "rsi_14" {
		t.Errorf("Expected name 'rsi_14', got '%s'", rsi.Name())
	}
	if rsi.WindowSize() != 15 {
		t.Errorf("Expected window size 15, got %d", rsi.WindowSize())
	}

	if _, err = NewRSI(1); err == nil {
		t.Error("Expected error for period < 2")
	}
}

func TestRSI_ReadyAfterWindow(t *testing.T) {
	rsi, _ := NewRSI(14)

	for i := 0; i < 14; i++ {
		_, _ = rsi.Update(testCandle(i, 100.0+float64(i)))
		if rsi.IsReady() {
			t.Fatalf("RSI ready too early at candle %d", i)
		}
	}

	// The 15th candle completes the first 14 changes.
	_, _ = rsi.Update(testCandle(14, 115.0))
	if !rsi.IsReady() {
		t.Error("RSI should be ready after period+1 candles")
	}
}

func TestRSI_AllGains(t *testing.T) {
	rsi, _ := NewRSI(14)

	for i := 0; i < 20; i++ {
		_, _ = rsi.Update(testCandle(i, 100.0+float64(i)))
	}

	val, err := rsi.Value()
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}
	if val != 100.0 {
		t.Errorf("Expected RSI 100 for monotone gains, got %f", val)
	}
}

func TestRSI_AllLosses(t *testing.T) {
	rsi, _ := NewRSI(14)

	for i := 0; i < 20; i++ {
		_, _ = rsi.Update(testCandle(i, 200.0-float64(i)))
	}

	val, err := rsi.Value()
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}
	if val != 0.0 {
		t.Errorf("Expected RSI 0 for monotone losses, got %f", val)
	}
}

func TestRSI_Bounds(t *testing.T) {
	rsi, _ := NewRSI(5)

	prices := []float64{100, 103, 99, 104, 98, 105, 97, 106, 96, 107, 95}
	for i, p := range prices {
		val, _ := rsi.Update(testCandle(i, p))
		if rsi.IsReady() && (val < 0 || val > 100) {
			t.Errorf("RSI out of bounds at candle %d: %f", i, val)
		}
	}
}

func TestRSI_PreviewReflectsDirection(t *testing.T) {
	rsi, _ := NewRSI(5)

	for i := 0; i < 10; i++ {
		_, _ = rsi.Update(testCandle(i, 100.0+float64(i%3)))
	}

	up, err := rsi.Preview(testCandle(10, 120.0))
	if err != nil {
		t.Fatalf("Preview failed: %v", err)
	}
	down, err := rsi.Preview(testCandle(10, 80.0))
	if err != nil {
		t.Fatalf("Preview failed: %v", err)
	}
	if up <= down {
		t.Errorf("Preview with higher close should give higher RSI: up %f, down %f", up, down)
	}
}
