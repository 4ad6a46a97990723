package indicator

import (
	"fmt"

	"github.com/sdcoffey/techan"
)

// StochasticFactory builds a fast stochastic %K over the given lookback.
func StochasticFactory(period int) IndicatorFactory {
	return func(series *techan.TimeSeries) techan.Indicator {
		return techan.NewFastStochasticIndicator(series, period)
	}
}

// StochasticDFactory builds the slow stochastic %D: an SMA of fast %K.
func StochasticDFactory(kPeriod, dPeriod int) IndicatorFactory {
	return func(series *techan.TimeSeries) techan.Indicator {
		k := techan.NewFastStochasticIndicator(series, kPeriod)
		return techan.NewSlowStochasticIndicator(k, dPeriod)
	}
}

// ClosePriceEMAFactory builds a techan EMA over close prices. The native EMA
// calculator is the primary implementation; this exists for cross-checking.
func ClosePriceEMAFactory(period int) IndicatorFactory {
	return func(series *techan.TimeSeries) techan.Indicator {
		return techan.NewEMAIndicator(techan.NewClosePriceIndicator(series), period)
	}
}

// NewStochastic creates a fast stochastic %K calculator backed by techan.
func NewStochastic(period int) (Calculator, error) {
	if period < 1 {
		return nil, fmt.Errorf("stochastic period must be at least 1, got %d", period)
	}
	return NewTechanCalculator(
		fmt.Sprintf("stoch_%d", period),
		StochasticFactory(period),
		period,
	), nil
}

// NewStochasticD creates a slow stochastic %D calculator backed by techan.
func NewStochasticD(kPeriod, dPeriod int) (Calculator, error) {
	if kPeriod < 1 || dPeriod < 1 {
		return nil, fmt.Errorf("stochastic periods must be at least 1, got %d/%d", kPeriod, dPeriod)
	}
	return NewTechanCalculator(
		fmt.Sprintf("stochd_%d_%d", kPeriod, dPeriod),
		StochasticDFactory(kPeriod, dPeriod),
		kPeriod+dPeriod-1,
	), nil
}
