package indicator

import (
	"fmt"
	"math"

	"github.com/bawsi99/StockAnalyzer-Pro-sub001/internal/models"
)

// Bollinger calculates Bollinger Bands
// Middle = SMA(period), Upper/Lower = Middle +/- mult * stddev(period)
type Bollinger struct {
	period int
	mult   float64
	name   string
	closes []float64
	ready  bool
}

// NewBollinger creates a new Bollinger band calculator (conventionally 20, 2.0)
func NewBollinger(period int, mult float64) (*Bollinger, error) {
	if period < 2 {
		return nil, fmt.Errorf("Bollinger period must be at least 2, got %d", period)
	}
	if mult <= 0 {
		return nil, fmt.Errorf("Bollinger multiplier must be positive, got %f", mult)
	}

	return &Bollinger{
		period: period,
		mult:   mult,
		name:   fmt.Sprintf("bb_%d", period),
		closes: make([]float64, 0, period),
	}, nil
}

// Name returns the indicator name
func (b *Bollinger) Name() string {
	return b.name
}

// Update processes a finalized candle and updates the band calculation
func (b *Bollinger) Update(c *models.Candle) (float64, error) {
	if c == nil {
		return 0, fmt.Errorf("candle cannot be nil")
	}

	b.closes = append(b.closes, c.Close)
	if len(b.closes) > b.period {
		copy(b.closes, b.closes[1:])
		b.closes = b.closes[:len(b.closes)-1]
	}

	if len(b.closes) >= b.period {
		b.ready = true
		mid, _ := bands(b.closes, b.mult)
		return mid, nil
	}
	return 0, nil
}

// Preview computes the middle band as if c closed now, without mutating state
func (b *Bollinger) Preview(c *models.Candle) (float64, error) {
	if c == nil {
		return 0, fmt.Errorf("candle cannot be nil")
	}
	if len(b.closes)+1 < b.period {
		return 0, fmt.Errorf("Bollinger not ready: need at least %d candles", b.period)
	}

	window := make([]float64, 0, b.period)
	start := 0
	if len(b.closes) >= b.period {
		start = len(b.closes) - b.period + 1
	}
	window = append(window, b.closes[start:]...)
	window = append(window, c.Close)

	mid, _ := bands(window, b.mult)
	return mid, nil
}

// Value returns the current middle band
func (b *Bollinger) Value() (float64, error) {
	if !b.ready {
		return 0, fmt.Errorf("Bollinger not ready: need at least %d candles", b.period)
	}
	mid, _ := bands(b.closes, b.mult)
	return mid, nil
}

// Lines returns the upper, middle and lower bands plus the band width
func (b *Bollinger) Lines() map[string]float64 {
	if !b.ready {
		return nil
	}
	mid, dev := bands(b.closes, b.mult)
	return map[string]float64{
		"upper":  mid + dev,
		"middle": mid,
		"lower":  mid - dev,
		"width":  2 * dev,
	}
}

// Reset clears the band state
func (b *Bollinger) Reset() {
	b.closes = b.closes[:0]
	b.ready = false
}

// IsReady returns true if the bands have enough data
func (b *Bollinger) IsReady() bool {
	return b.ready
}

// WindowSize returns the period (number of candles required)
func (b *Bollinger) WindowSize() int {
	return b.period
}

// bands returns the mean of the window and mult * its population stddev.
func bands(window []float64, mult float64) (mid, dev float64) {
	n := float64(len(window))
	if n == 0 {
		return 0, 0
	}

	var sum float64
	for _, v := range window {
		sum += v
	}
	mid = sum / n

	var variance float64
	for _, v := range window {
		d := v - mid
		variance += d * d
	}
	variance /= n

	return mid, mult * math.Sqrt(variance)
}
