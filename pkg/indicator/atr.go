package indicator

import (
	"fmt"
	"math"

	"github.com/bawsi99/StockAnalyzer-Pro-sub001/internal/models"
)

// ATR calculates the Average True Range with Wilder smoothing
// TR = max(high-low, |high-prevClose|, |low-prevClose|)
type ATR struct {
	period    int
	name      string
	prevClose float64
	havePrev  bool
	trs       int     // true ranges observed so far
	sumTR     float64 // warm-up accumulator
	atr       float64
	ready     bool
}

// NewATR creates a new ATR calculator with the specified period (typically 14)
func NewATR(period int) (*ATR, error) {
	if period < 1 {
		return nil, fmt.Errorf("ATR period must be at least 1, got %d", period)
	}

	return &ATR{
		period: period,
		name:   fmt.Sprintf("atr_%d", period),
	}, nil
}

// Name returns the indicator name
func (a *ATR) Name() string {
	return a.name
}

// Update processes a finalized candle and updates the ATR calculation
func (a *ATR) Update(c *models.Candle) (float64, error) {
	if c == nil {
		return 0, fmt.Errorf("candle cannot be nil")
	}

	if !a.havePrev {
		a.prevClose = c.Close
		a.havePrev = true
		return 0, nil
	}

	tr := trueRange(c, a.prevClose)
	a.prevClose = c.Close
	a.trs++

	if a.trs <= a.period {
		a.sumTR += tr
		if a.trs == a.period {
			a.atr = a.sumTR / float64(a.period)
			a.ready = true
		} else {
			return 0, nil
		}
	} else {
		// Wilder's smoothing, same as the RSI averages.
		a.atr = (a.atr*float64(a.period-1) + tr) / float64(a.period)
	}

	return a.atr, nil
}

// Preview computes the ATR as if c closed now, without mutating state
func (a *ATR) Preview(c *models.Candle) (float64, error) {
	if c == nil {
		return 0, fmt.Errorf("candle cannot be nil")
	}
	if !a.ready {
		return 0, fmt.Errorf("ATR not ready: need at least %d candles", a.WindowSize())
	}

	tr := trueRange(c, a.prevClose)
	return (a.atr*float64(a.period-1) + tr) / float64(a.period), nil
}

// Value returns the current ATR value
func (a *ATR) Value() (float64, error) {
	if !a.ready {
		return 0, fmt.Errorf("ATR not ready: need at least %d candles", a.WindowSize())
	}
	return a.atr, nil
}

// Reset clears the ATR state
func (a *ATR) Reset() {
	a.prevClose = 0
	a.havePrev = false
	a.trs = 0
	a.sumTR = 0
	a.atr = 0
	a.ready = false
}

// IsReady returns true if the ATR has enough data
func (a *ATR) IsReady() bool {
	return a.ready
}

// WindowSize returns the number of candles required (period + 1 for the first range)
func (a *ATR) WindowSize() int {
	return a.period + 1
}

func trueRange(c *models.Candle, prevClose float64) float64 {
	tr := c.High - c.Low
	if d := math.Abs(c.High - prevClose); d > tr {
		tr = d
	}
	if d := math.Abs(c.Low - prevClose); d > tr {
		tr = d
	}
	return tr
}
