package indicator

import (
	"fmt"

	"github.com/bawsi99/StockAnalyzer-Pro-sub001/internal/models"
)

// MACD calculates Moving Average Convergence Divergence
// MACD Line = EMA(fast) - EMA(slow)
// Signal Line = EMA(signal) of the MACD line
// Histogram = MACD Line - Signal Line
type MACD struct {
	name string

	fastPeriod   int
	slowPeriod   int
	signalPeriod int

	fastMult   float64
	slowMult   float64
	signalMult float64

	fast      float64
	slow      float64
	signal    float64
	macd      float64
	processed int
}

// NewMACD creates a new MACD calculator (conventionally 12/26/9)
func NewMACD(fast, slow, signal int) (*MACD, error) {
	if fast < 1 || slow < 1 || signal < 1 {
		return nil, fmt.Errorf("MACD periods must be at least 1, got %d/%d/%d", fast, slow, signal)
	}
	if fast >= slow {
		return nil, fmt.Errorf("MACD fast period must be shorter than slow, got %d/%d", fast, slow)
	}

	return &MACD{
		name:         fmt.Sprintf("macd_%d_%d_%d", fast, slow, signal),
		fastPeriod:   fast,
		slowPeriod:   slow,
		signalPeriod: signal,
		fastMult:     2.0 / float64(fast+1),
		slowMult:     2.0 / float64(slow+1),
		signalMult:   2.0 / float64(signal+1),
	}, nil
}

// Name returns the indicator name
func (m *MACD) Name() string {
	return m.name
}

// Update processes a finalized candle and updates all three lines
func (m *MACD) Update(c *models.Candle) (float64, error) {
	if c == nil {
		return 0, fmt.Errorf("candle cannot be nil")
	}

	if m.processed == 0 {
		m.fast = c.Close
		m.slow = c.Close
		m.macd = 0
		m.signal = 0
	} else {
		m.fast = (c.Close-m.fast)*m.fastMult + m.fast
		m.slow = (c.Close-m.slow)*m.slowMult + m.slow
		m.macd = m.fast - m.slow
		m.signal = (m.macd-m.signal)*m.signalMult + m.signal
	}
	m.processed++

	if !m.IsReady() {
		return 0, nil
	}
	return m.macd, nil
}

// Preview computes the MACD line as if c closed now, without mutating state
func (m *MACD) Preview(c *models.Candle) (float64, error) {
	if c == nil {
		return 0, fmt.Errorf("candle cannot be nil")
	}
	if !m.IsReady() {
		return 0, fmt.Errorf("MACD not ready: need at least %d candles", m.WindowSize())
	}

	fast := (c.Close-m.fast)*m.fastMult + m.fast
	slow := (c.Close-m.slow)*m.slowMult + m.slow
	return fast - slow, nil
}

// Value returns the current MACD line value
func (m *MACD) Value() (float64, error) {
	if !m.IsReady() {
		return 0, fmt.Errorf("MACD not ready: need at least %d candles", m.WindowSize())
	}
	return m.macd, nil
}

// Lines returns all three MACD outputs
func (m *MACD) Lines() map[string]float64 {
	return map[string]float64{
		"macd":      m.macd,
		"signal":    m.signal,
		"histogram": m.macd - m.signal,
	}
}

// Reset clears the MACD state
func (m *MACD) Reset() {
	m.fast = 0
	m.slow = 0
	m.signal = 0
	m.macd = 0
	m.processed = 0
}

// IsReady returns true once the slow EMA and the signal line have data
func (m *MACD) IsReady() bool {
	return m.processed >= m.WindowSize()
}

// WindowSize returns the number of candles required
func (m *MACD) WindowSize() int {
	return m.slowPeriod + m.signalPeriod
}
