package indicator

import (
	"fmt"
	"math"

	"github.com/bawsi99/StockAnalyzer-Pro-sub001/internal/models"
)

// RSI calculates the Relative Strength Index
// RSI = 100 - (100 / (1 + RS))
// where RS = Average Gain / Average Loss over the period
type RSI struct {
	period    int
	name      string
	prevClose float64
	havePrev  bool
	changes   int     // price changes observed so far
	sumGain   float64 // warm-up accumulators for the initial simple averages
	sumLoss   float64
	avgGain   float64 // Wilder-smoothed average gain
	avgLoss   float64 // Wilder-smoothed average loss
	ready     bool
}

// NewRSI creates a new RSI calculator with the specified period (typically 14)
func NewRSI(period int) (*RSI, error) {
	if period < 2 {
		return nil, fmt.Errorf("RSI period must be at least 2, got %d", period)
	}

	return &RSI{
		period: period,
		name:   fmt.Sprintf("rsi_%d", period),
	}, nil
}

// Name returns the indicator name
func (r *RSI) Name() string {
	return r.name
}

// Update processes a finalized candle and updates the RSI calculation
func (r *RSI) Update(c *models.Candle) (float64, error) {
	if c == nil {
		return 0, fmt.Errorf("candle cannot be nil")
	}

	if !r.havePrev {
		r.prevClose = c.Close
		r.havePrev = true
		return 0, nil
	}

	gain, loss := gainLoss(c.Close - r.prevClose)
	r.prevClose = c.Close
	r.changes++

	if r.changes <= r.period {
		// Warm-up: simple averages over the first period changes.
		r.sumGain += gain
		r.sumLoss += loss
		if r.changes == r.period {
			r.avgGain = r.sumGain / float64(r.period)
			r.avgLoss = r.sumLoss / float64(r.period)
			r.ready = true
		} else {
			return 0, nil
		}
	} else {
		// Wilder's smoothing: New Avg = ((Old Avg * (Period - 1)) + New Value) / Period
		r.avgGain = (r.avgGain*float64(r.period-1) + gain) / float64(r.period)
		r.avgLoss = (r.avgLoss*float64(r.period-1) + loss) / float64(r.period)
	}

	return rsiFrom(r.avgGain, r.avgLoss), nil
}

// Preview computes the RSI as if c closed now, without mutating state
func (r *RSI) Preview(c *models.Candle) (float64, error) {
	if c == nil {
		return 0, fmt.Errorf("candle cannot be nil")
	}
	if !r.ready || !r.havePrev {
		return 0, fmt.Errorf("RSI not ready: need at least %d candles", r.WindowSize())
	}

	gain, loss := gainLoss(c.Close - r.prevClose)
	avgGain := (r.avgGain*float64(r.period-1) + gain) / float64(r.period)
	avgLoss := (r.avgLoss*float64(r.period-1) + loss) / float64(r.period)
	return rsiFrom(avgGain, avgLoss), nil
}

// Value returns the current RSI value
func (r *RSI) Value() (float64, error) {
	if !r.ready {
		return 0, fmt.Errorf("RSI not ready: need at least %d candles", r.WindowSize())
	}
	return rsiFrom(r.avgGain, r.avgLoss), nil
}

// Reset clears the RSI state
func (r *RSI) Reset() {
	r.prevClose = 0
	r.havePrev = false
	r.changes = 0
	r.sumGain = 0
	r.sumLoss = 0
	r.avgGain = 0
	r.avgLoss = 0
	r.ready = false
}

// IsReady returns true if the RSI has enough data
func (r *RSI) IsReady() bool {
	return r.ready
}

// WindowSize returns the number of candles required (period + 1 for the first change)
func (r *RSI) WindowSize() int {
	return r.period + 1
}

func gainLoss(change float64) (float64, float64) {
	if change > 0 {
		return change, 0
	}
	return 0, -change
}

func rsiFrom(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0 // All gains, no losses
	}

	rs := avgGain / avgLoss
	rsi := 100.0 - (100.0 / (1.0 + rs))

	if math.IsNaN(rsi) || math.IsInf(rsi, 0) {
		return 50.0 // Default to neutral
	}
	return math.Max(0.0, math.Min(100.0, rsi))
}
