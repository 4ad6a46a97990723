package indicator

import (
	"fmt"

	"github.com/bawsi99/StockAnalyzer-Pro-sub001/internal/models"
)

// VWAP calculates the cumulative Volume Weighted Average Price
// VWAP = sum(price * volume) / sum(volume) since the last reset.
// Reset is expected at session boundaries.
type VWAP struct {
	pv  float64 // cumulative price * volume
	vol int64   // cumulative volume
}

// NewVWAP creates a new VWAP calculator
func NewVWAP() *VWAP {
	return &VWAP{}
}

// Name returns the indicator name
func (v *VWAP) Name() string {
	return "vwap"
}

// Update processes a finalized candle and updates the running VWAP
func (v *VWAP) Update(c *models.Candle) (float64, error) {
	if c == nil {
		return 0, fmt.Errorf("candle cannot be nil")
	}

	v.pv += c.VWAP * float64(c.Volume)
	v.vol += c.Volume

	return v.Value()
}

// Preview computes the VWAP as if c closed now, without mutating state
func (v *VWAP) Preview(c *models.Candle) (float64, error) {
	if c == nil {
		return 0, fmt.Errorf("candle cannot be nil")
	}

	pv := v.pv + c.VWAP*float64(c.Volume)
	vol := v.vol + c.Volume
	if vol == 0 {
		return 0, fmt.Errorf("VWAP not ready: no volume observed")
	}
	return pv / float64(vol), nil
}

// Value returns the current VWAP value
func (v *VWAP) Value() (float64, error) {
	if v.vol == 0 {
		return 0, fmt.Errorf("VWAP not ready: no volume observed")
	}
	return v.pv / float64(v.vol), nil
}

// Reset clears the accumulators, typically at a session boundary
func (v *VWAP) Reset() {
	v.pv = 0
	v.vol = 0
}

// IsReady returns true once any volume has been observed
func (v *VWAP) IsReady() bool {
	return v.vol > 0
}

// WindowSize returns the number of candles required
func (v *VWAP) WindowSize() int {
	return 1
}
