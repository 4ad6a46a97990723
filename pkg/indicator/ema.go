package indicator

import (
	"fmt"
	"math"

	"github.com/bawsi99/StockAnalyzer-Pro-sub001/internal/models"
)

// EMA calculates the Exponential Moving Average
// EMA = (Close - Previous EMA) * Multiplier + Previous EMA
// Multiplier = 2 / (Period + 1)
type EMA struct {
	period     int
	name       string
	multiplier float64
	value      float64
	ready      bool
	processed  int
}

// NewEMA creates a new EMA calculator with the specified period
func NewEMA(period int) (*EMA, error) {
	if period < 1 {
		return nil, fmt.Errorf("EMA period must be at least 1, got %d", period)
	}

	return &EMA{
		period:     period,
		name:       fmt.Sprintf("ema_%d", period),
		multiplier: 2.0 / float64(period+1),
	}, nil
}

// Name returns the indicator name
func (e *EMA) Name() string {
	return e.name
}

// Update processes a finalized candle and updates the EMA calculation
func (e *EMA) Update(c *models.Candle) (float64, error) {
	if c == nil {
		return 0, fmt.Errorf("candle cannot be nil")
	}

	// Seed convention: the first close becomes the EMA. The backfill path
	// uses the same seed, so live continuation matches a batch recompute.
	if !e.ready {
		e.value = c.Close
		e.ready = true
		e.processed++
		return e.value, nil
	}

	e.value = (c.Close-e.value)*e.multiplier + e.value
	e.processed++

	if math.IsNaN(e.value) || math.IsInf(e.value, 0) {
		e.value = c.Close
	}
	return e.value, nil
}

// Preview computes the EMA as if c closed now, without mutating state
func (e *EMA) Preview(c *models.Candle) (float64, error) {
	if c == nil {
		return 0, fmt.Errorf("candle cannot be nil")
	}
	if !e.ready {
		return c.Close, nil
	}
	return (c.Close-e.value)*e.multiplier + e.value, nil
}

// Value returns the current EMA value
func (e *EMA) Value() (float64, error) {
	if !e.ready {
		return 0, fmt.Errorf("EMA not ready: need at least 1 candle")
	}
	return e.value, nil
}

// Reset clears the EMA state
func (e *EMA) Reset() {
	e.value = 0
	e.ready = false
	e.processed = 0
}

// IsReady returns true if the EMA has enough data
func (e *EMA) IsReady() bool {
	return e.ready
}

// WindowSize returns 1 (EMA can start immediately)
func (e *EMA) WindowSize() int {
	return 1
}
