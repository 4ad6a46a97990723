package indicator

import (
	"math"
	"testing"
)

func TestBollinger_NewBollinger(t *testing.T) {
	bb, err := NewBollinger(20, 2.0)
	if err != nil {
		t.Fatalf("Failed to create Bollinger: %v", err)
	}
	if bb.Name() != "bb_20" {
		t.Errorf("Expected name 'bb_20', got '%s'", bb.Name())
	}

	if _, err = NewBollinger(1, 2.0); err == nil {
		t.Error("Expected error for period < 2")
	}
	if _, err = NewBollinger(20, 0); err == nil {
		t.Error("Expected error for non-positive multiplier")
	}
}

func TestBollinger_ConstantPriceCollapses(t *testing.T) {
	bb, _ := NewBollinger(5, 2.0)

	for i := 0; i < 10; i++ {
		_, _ = bb.Update(testCandle(i, 100.0))
	}

	lines := bb.Lines()
	if lines == nil {
		t.Fatal("Expected lines once ready")
	}
	if lines["upper"] != 100.0 || lines["middle"] != 100.0 || lines["lower"] != 100.0 {
		t.Errorf("Bands should collapse on constant price: %v", lines)
	}
	if lines["width"] != 0 {
		t.Errorf("Expected zero width, got %f", lines["width"])
	}
}

func TestBollinger_KnownValues(t *testing.T) {
	bb, _ := NewBollinger(4, 2.0)

	for i, p := range []float64{10, 20, 30, 40} {
		_, _ = bb.Update(testCandle(i, p))
	}

	lines := bb.Lines()
	if math.Abs(lines["middle"]-25.0) > 1e-9 {
		t.Errorf("Expected middle 25.0, got %f", lines["middle"])
	}
	// Population stddev of {10,20,30,40} is sqrt(125).
	wantDev := 2.0 * math.Sqrt(125.0)
	if math.Abs(lines["upper"]-(25.0+wantDev)) > 1e-9 {
		t.Errorf("Expected upper %f, got %f", 25.0+wantDev, lines["upper"])
	}
	if math.Abs(lines["lower"]-(25.0-wantDev)) > 1e-9 {
		t.Errorf("Expected lower %f, got %f", 25.0-wantDev, lines["lower"])
	}
}

func TestBollinger_BandOrdering(t *testing.T) {
	bb, _ := NewBollinger(5, 2.0)

	prices := []float64{100, 105, 95, 110, 90, 108, 92, 111}
	for i, p := range prices {
		_, _ = bb.Update(testCandle(i, p))
	}

	lines := bb.Lines()
	if !(lines["lower"] <= lines["middle"] && lines["middle"] <= lines["upper"]) {
		t.Errorf("Band ordering violated: %v", lines)
	}
}
