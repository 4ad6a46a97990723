package indicator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bawsi99/StockAnalyzer-Pro-sub001/internal/models"
)

// Calculator is the interface for incremental technical indicators.
// Update consumes finalized candles only and mutates rolling state; the
// math must be equivalent to recomputing over the full window, so that
// replaying history and then going live produces identical values.
type Calculator interface {
	// Name returns the unique name of this indicator (e.g., "rsi_14", "ema_20")
	Name() string

	// Update processes a finalized candle and updates the indicator state.
	// Returns the new indicator value (0 if not enough data yet).
	Update(c *models.Candle) (float64, error)

	// Preview computes the value as if the given still-open candle closed
	// now. Never mutates state; provisional values are revisable.
	Preview(c *models.Candle) (float64, error)

	// Value returns the current indicator value.
	// Returns 0 and an error if not enough data has been processed.
	Value() (float64, error)

	// Reset clears the indicator state
	Reset()

	// IsReady returns true if the indicator has enough data to produce a valid value
	IsReady() bool

	// WindowSize returns the number of candles required for a valid value
	WindowSize() int
}

// MultiLine is implemented by indicators that produce more than one output
// line (MACD, Bollinger bands). Value() stays the primary line.
type MultiLine interface {
	Lines() map[string]float64
}

// New creates a calculator from its kind string, e.g. "sma_20", "ema_12",
// "rsi_14", "macd_12_26_9", "bb_20_2", "atr_14", "stoch_14", "vwap".
func New(kind string) (Calculator, error) {
	parts := strings.Split(strings.ToLower(kind), "_")

	switch parts[0] {
	case "sma":
		period, err := onePeriod(parts, 20)
		if err != nil {
			return nil, fmt.Errorf("invalid kind %q: %w", kind, err)
		}
		return NewSMA(period)
	case "ema":
		period, err := onePeriod(parts, 20)
		if err != nil {
			return nil, fmt.Errorf("invalid kind %q: %w", kind, err)
		}
		return NewEMA(period)
	case "rsi":
		period, err := onePeriod(parts, 14)
		if err != nil {
			return nil, fmt.Errorf("invalid kind %q: %w", kind, err)
		}
		return NewRSI(period)
	case "atr":
		period, err := onePeriod(parts, 14)
		if err != nil {
			return nil, fmt.Errorf("invalid kind %q: %w", kind, err)
		}
		return NewATR(period)
	case "macd":
		fast, slow, signal := 12, 26, 9
		if len(parts) == 4 {
			var err error
			if fast, err = strconv.Atoi(parts[1]); err != nil {
				return nil, fmt.Errorf("invalid kind %q: %w", kind, err)
			}
			if slow, err = strconv.Atoi(parts[2]); err != nil {
				return nil, fmt.Errorf("invalid kind %q: %w", kind, err)
			}
			if signal, err = strconv.Atoi(parts[3]); err != nil {
				return nil, fmt.Errorf("invalid kind %q: %w", kind, err)
			}
		} else if len(parts) != 1 {
			return nil, fmt.Errorf("invalid kind %q: want macd or macd_fast_slow_signal", kind)
		}
		return NewMACD(fast, slow, signal)
	case "bb", "boll":
		period := 20
		mult := 2.0
		if len(parts) >= 2 {
			var err error
			if period, err = strconv.Atoi(parts[1]); err != nil {
				return nil, fmt.Errorf("invalid kind %q: %w", kind, err)
			}
		}
		if len(parts) >= 3 {
			var err error
			if mult, err = strconv.ParseFloat(parts[2], 64); err != nil {
				return nil, fmt.Errorf("invalid kind %q: %w", kind, err)
			}
		}
		return NewBollinger(period, mult)
	case "stoch":
		period, err := onePeriod(parts, 14)
		if err != nil {
			return nil, fmt.Errorf("invalid kind %q: %w", kind, err)
		}
		return NewStochastic(period)
	case "stochd":
		kPeriod, dPeriod := 14, 3
		if len(parts) == 3 {
			var err error
			if kPeriod, err = strconv.Atoi(parts[1]); err != nil {
				return nil, fmt.Errorf("invalid kind %q: %w", kind, err)
			}
			if dPeriod, err = strconv.Atoi(parts[2]); err != nil {
				return nil, fmt.Errorf("invalid kind %q: %w", kind, err)
			}
		} else if len(parts) != 1 {
			return nil, fmt.Errorf("invalid kind %q: want stochd or stochd_k_d", kind)
		}
		return NewStochasticD(kPeriod, dPeriod)
	case "vwap":
		return NewVWAP(), nil
	default:
		return nil, fmt.Errorf("unknown indicator kind %q", kind)
	}
}

func onePeriod(parts []string, def int) (int, error) {
	if len(parts) == 1 {
		return def, nil
	}
	if len(parts) != 2 {
		return 0, fmt.Errorf("want a single period suffix")
	}
	return strconv.Atoi(parts[1])
}
