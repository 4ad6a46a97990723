package indicator

import (
	"math"
	"testing"
)

func TestMACD_NewMACD(t *testing.T) {
	macd, err := NewMACD(12, 26, 9)
	if err != nil {
		t.Fatalf("Failed to create MACD: %v", err)
	}
	if macd.Name() != "macd_12_26_9" {
		t.Errorf("Expected name 'macd_12_26_9', got '%s'", macd.Name())
	}
	if macd.WindowSize() != 35 {
		t.Errorf("Expected window size 35, got %d", macd.WindowSize())
	}

	if _, err = NewMACD(26, 12, 9); err == nil {
		t.Error("Expected error for fast >= slow")
	}
	if _, err = NewMACD(0, 26, 9); err == nil {
		t.Error("Expected error for zero period")
	}
}

func TestMACD_ConstantPrice(t *testing.T) {
	macd, _ := NewMACD(3, 6, 2)

	for i := 0; i < 20; i++ {
		_, _ = macd.Update(testCandle(i, 100.0))
	}

	val, err := macd.Value()
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}
	if math.Abs(val) > 1e-9 {
		t.Errorf("Expected MACD 0 for constant price, got %f", val)
	}
}

func TestMACD_RisingPricePositive(t *testing.T) {
	macd, _ := NewMACD(3, 6, 2)

	for i := 0; i < 30; i++ {
		_, _ = macd.Update(testCandle(i, 100.0+2*float64(i)))
	}

	val, err := macd.Value()
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}
	// Fast EMA tracks a rising price more closely, so the line is positive.
	if val <= 0 {
		t.Errorf("Expected positive MACD in an uptrend, got %f", val)
	}
}

func TestMACD_Lines(t *testing.T) {
	macd, _ := NewMACD(3, 6, 2)

	for i := 0; i < 30; i++ {
		_, _ = macd.Update(testCandle(i, 100.0+float64(i%5)))
	}

	lines := macd.Lines()
	for _, key := range []string{"macd", "signal", "histogram"} {
		if _, ok := lines[key]; !ok {
			t.Errorf("Missing line %q", key)
		}
	}
	if math.Abs(lines["histogram"]-(lines["macd"]-lines["signal"])) > 1e-12 {
		t.Error("Histogram should equal macd - signal")
	}
}

func TestMACD_NotReadyEarly(t *testing.T) {
	macd, _ := NewMACD(3, 6, 2)

	for i := 0; i < 7; i++ {
		_, _ = macd.Update(testCandle(i, 100.0))
		if macd.IsReady() {
			t.Fatalf("MACD ready too early at candle %d", i)
		}
	}
	_, _ = macd.Update(testCandle(7, 100.0))
	if !macd.IsReady() {
		t.Error("MACD should be ready after slow+signal candles")
	}
}
