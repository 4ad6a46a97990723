package indicator

import (
	"fmt"

	"github.com/bawsi99/StockAnalyzer-Pro-sub001/internal/models"
	"github.com/sdcoffey/big"
	"github.com/sdcoffey/techan"
)

// IndicatorFactory builds a techan indicator bound to the given series.
// Example: func(s *techan.TimeSeries) techan.Indicator {
//     return techan.NewEMAIndicator(techan.NewClosePriceIndicator(s), 12)
// }
type IndicatorFactory func(series *techan.TimeSeries) techan.Indicator

// TechanCalculator wraps a techan indicator behind the Calculator interface.
// Used as a batch cross-check against the incremental calculators.
type TechanCalculator struct {
	name      string
	series    *techan.TimeSeries
	factory   IndicatorFactory
	indicator techan.Indicator
	ready     bool
	period    int
}

// NewTechanCalculator creates a new techan-backed calculator
func NewTechanCalculator(name string, factory IndicatorFactory, period int) *TechanCalculator {
	series := techan.NewTimeSeries()

	return &TechanCalculator{
		name:      name,
		series:    series,
		factory:   factory,
		indicator: factory(series),
		period:    period,
	}
}

func (t *TechanCalculator) Name() string {
	return t.name
}

func (t *TechanCalculator) Update(c *models.Candle) (float64, error) {
	if c == nil {
		return 0, fmt.Errorf("candle cannot be nil")
	}

	t.series.AddCandle(toTechanCandle(c))

	lastIndex := t.series.LastIndex()
	if lastIndex < 0 {
		return 0, nil
	}

	// Techan indicators return values even with fewer candles than the
	// period (EMA works with one, RSI needs period+1).
	value := t.indicator.Calculate(lastIndex).Float()
	if !isNaN(value) {
		t.ready = true
		return value, nil
	}

	return 0, nil
}

// Preview recalculates on a throwaway series extended with c, leaving state untouched
func (t *TechanCalculator) Preview(c *models.Candle) (float64, error) {
	if c == nil {
		return 0, fmt.Errorf("candle cannot be nil")
	}

	scratch := techan.NewTimeSeries()
	for _, tc := range t.series.Candles {
		scratch.AddCandle(tc)
	}
	scratch.AddCandle(toTechanCandle(c))

	ind := t.factory(scratch)
	value := ind.Calculate(scratch.LastIndex()).Float()
	if isNaN(value) {
		return 0, fmt.Errorf("indicator %s produced NaN", t.name)
	}
	return value, nil
}

func (t *TechanCalculator) Value() (float64, error) {
	if !t.ready {
		return 0, fmt.Errorf("indicator not ready: need at least %d candles", t.period)
	}
	return t.indicator.Calculate(t.series.LastIndex()).Float(), nil
}

func (t *TechanCalculator) Reset() {
	t.series = techan.NewTimeSeries()
	t.indicator = t.factory(t.series)
	t.ready = false
}

func (t *TechanCalculator) IsReady() bool {
	return t.ready
}

// WindowSize returns the number of candles required for this indicator
func (t *TechanCalculator) WindowSize() int {
	return t.period
}

// CandlesProcessed returns the number of candles processed so far
func (t *TechanCalculator) CandlesProcessed() int {
	return t.series.LastIndex() + 1
}

func toTechanCandle(c *models.Candle) *techan.Candle {
	period := techan.NewTimePeriod(c.StartTime, c.EndTime.Sub(c.StartTime))
	tc := techan.NewCandle(period)
	tc.OpenPrice = big.NewDecimal(c.Open)
	tc.MaxPrice = big.NewDecimal(c.High)
	tc.MinPrice = big.NewDecimal(c.Low)
	tc.ClosePrice = big.NewDecimal(c.Close)
	tc.Volume = big.NewDecimal(float64(c.Volume))
	return tc
}

// isNaN checks if a float64 is NaN
func isNaN(f float64) bool {
	return f != f
}
