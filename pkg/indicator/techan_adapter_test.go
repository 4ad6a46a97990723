package indicator

import (
	"testing"
)

func TestStochastic_BoundsAndExtremes(t *testing.T) {
	calc, err := NewStochastic(5)
	if err != nil {
		t.Fatalf("NewStochastic failed: %v", err)
	}
	if calc.Name() != "stoch_5" {
		t.Errorf("expected name stoch_5, got %s", calc.Name())
	}

	// Rising closes: each close is the highest of its lookback, %K pins at 100.
	for i := 0; i < 10; i++ {
		if _, err := calc.Update(testCandle(i, 100+float64(i))); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
	}

	value, err := calc.Value()
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}
	if value < 99.999 || value > 100.001 {
		t.Errorf("expected %%K near 100 on a rising series, got %f", value)
	}
}

func TestStochastic_PreviewDoesNotMutate(t *testing.T) {
	calc, err := NewStochastic(5)
	if err != nil {
		t.Fatalf("NewStochastic failed: %v", err)
	}
	for i := 0; i < 10; i++ {
		if _, err := calc.Update(testCandle(i, 100+float64(i))); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
	}
	before, err := calc.Value()
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}

	// A crashing provisional candle would drag %K down if it mutated state.
	if _, err := calc.Preview(testCandle(10, 50)); err != nil {
		t.Fatalf("Preview failed: %v", err)
	}

	after, err := calc.Value()
	if err != nil {
		t.Fatalf("Value failed after preview: %v", err)
	}
	if before != after {
		t.Errorf("Preview mutated state: %f != %f", before, after)
	}
}

func TestStochastic_Reset(t *testing.T) {
	calc, err := NewStochastic(5)
	if err != nil {
		t.Fatalf("NewStochastic failed: %v", err)
	}
	for i := 0; i < 10; i++ {
		if _, err := calc.Update(testCandle(i, 100+float64(i))); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
	}

	calc.Reset()
	if calc.IsReady() {
		t.Error("calculator should not be ready after reset")
	}
	if _, err := calc.Value(); err == nil {
		t.Error("expected error reading value after reset")
	}
}

func TestTechanEMA_MatchesNativeOnConstantSeries(t *testing.T) {
	adapted := NewTechanCalculator("ema_cross_check", ClosePriceEMAFactory(10), 10)
	native, err := NewEMA(10)
	if err != nil {
		t.Fatalf("NewEMA failed: %v", err)
	}

	for i := 0; i < 40; i++ {
		if _, err := adapted.Update(testCandle(i, 250.0)); err != nil {
			t.Fatalf("adapted Update failed: %v", err)
		}
		if _, err := native.Update(testCandle(i, 250.0)); err != nil {
			t.Fatalf("native Update failed: %v", err)
		}
	}

	av, err := adapted.Value()
	if err != nil {
		t.Fatalf("adapted Value failed: %v", err)
	}
	nv, err := native.Value()
	if err != nil {
		t.Fatalf("native Value failed: %v", err)
	}
	if diff := av - nv; diff > 1e-6 || diff < -1e-6 {
		t.Errorf("adapted and native EMA diverge on a constant series: %f vs %f", av, nv)
	}
}

func TestNew_StochasticKinds(t *testing.T) {
	calc, err := New("stoch_14")
	if err != nil {
		t.Fatalf("New(stoch_14) failed: %v", err)
	}
	if calc.Name() != "stoch_14" {
		t.Errorf("expected name stoch_14, got %s", calc.Name())
	}

	calc, err = New("stochd_14_3")
	if err != nil {
		t.Fatalf("New(stochd_14_3) failed: %v", err)
	}
	if calc.Name() != "stochd_14_3" {
		t.Errorf("expected name stochd_14_3, got %s", calc.Name())
	}
	if calc.WindowSize() != 16 {
		t.Errorf("expected window 16, got %d", calc.WindowSize())
	}
}
