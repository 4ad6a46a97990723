package indicator

import (
	"fmt"

	"github.com/bawsi99/StockAnalyzer-Pro-sub001/internal/models"
)

// SMA calculates the Simple Moving Average
// SMA = Sum of closes over period / period
type SMA struct {
	period    int
	name      string
	closes    []float64 // Rolling window of closes
	sum       float64
	ready     bool
	processed int
}

// NewSMA creates a new SMA calculator with the specified period
func NewSMA(period int) (*SMA, error) {
	if period < 1 {
		return nil, fmt.Errorf("SMA period must be at least 1, got %d", period)
	}

	return &SMA{
		period: period,
		name:   fmt.Sprintf("sma_%d", period),
		closes: make([]float64, 0, period),
	}, nil
}

// Name returns the indicator name
func (s *SMA) Name() string {
	return s.name
}

// Update processes a finalized candle and updates the SMA calculation
func (s *SMA) Update(c *models.Candle) (float64, error) {
	if c == nil {
		return 0, fmt.Errorf("candle cannot be nil")
	}

	s.closes = append(s.closes, c.Close)
	s.sum += c.Close
	s.processed++

	if len(s.closes) > s.period {
		s.sum -= s.closes[0]
		copy(s.closes, s.closes[1:])
		s.closes = s.closes[:len(s.closes)-1]
	}

	if len(s.closes) >= s.period {
		s.ready = true
		return s.sum / float64(s.period), nil
	}
	return 0, nil
}

// Preview computes the SMA as if c closed now, without mutating state
func (s *SMA) Preview(c *models.Candle) (float64, error) {
	if c == nil {
		return 0, fmt.Errorf("candle cannot be nil")
	}
	if len(s.closes)+1 < s.period {
		return 0, fmt.Errorf("SMA not ready: need at least %d candles", s.period)
	}

	sum := s.sum + c.Close
	if len(s.closes) >= s.period {
		sum -= s.closes[0]
	}
	return sum / float64(s.period), nil
}

// Value returns the current SMA value
func (s *SMA) Value() (float64, error) {
	if !s.ready {
		return 0, fmt.Errorf("SMA not ready: need at least %d candles", s.period)
	}
	return s.sum / float64(s.period), nil
}

// Reset clears the SMA state
func (s *SMA) Reset() {
	s.closes = s.closes[:0]
	s.sum = 0
	s.ready = false
	s.processed = 0
}

// IsReady returns true if the SMA has enough data
func (s *SMA) IsReady() bool {
	return s.ready
}

// WindowSize returns the period (number of candles required)
func (s *SMA) WindowSize() int {
	return s.period
}
