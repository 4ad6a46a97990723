package models

import (
	"time"
)

// SessionState describes where the trading day currently stands.
type SessionState int

const (
	SessionClosed SessionState = iota
	SessionPreOpen
	SessionOpen
	SessionPostClose
	SessionHoliday
)

func (s SessionState) String() string {
	switch s {
	case SessionPreOpen:
		return "pre_open"
	case SessionOpen:
		return "open"
	case SessionPostClose:
		return "post_close"
	case SessionHoliday:
		return "holiday"
	default:
		return "closed"
	}
}

// ConnectionState describes the push-feed connection lifecycle.
type ConnectionState int

const (
	ConnDisconnected ConnectionState = iota
	ConnConnecting
	ConnConnected
	ConnDegraded
	ConnBackingOff
)

func (s ConnectionState) String() string {
	switch s {
	case ConnConnecting:
		return "connecting"
	case ConnConnected:
		return "connected"
	case ConnDegraded:
		return "degraded"
	case ConnBackingOff:
		return "backing_off"
	default:
		return "disconnected"
	}
}

// Tick is a single trade event for an instrument. Immutable once created.
// ExchangeTS is the ordering key; ReceiptTS is diagnostic only.
type Tick struct {
	InstrumentID string    `json:"instrument_id"`
	Price        float64   `json:"price"`
	Volume       int64     `json:"volume"`
	ExchangeTS   time.Time `json:"exchange_ts"`
	ReceiptTS    time.Time `json:"receipt_ts"`
}

// Validate validates a Tick
func (t *Tick) Validate() error {
	if t.InstrumentID == "" {
		return ErrInvalidInstrument
	}
	if t.Price <= 0 {
		return ErrInvalidPrice
	}
	if t.Volume < 0 {
		return ErrInvalidVolume
	}
	if t.ExchangeTS.IsZero() {
		return ErrInvalidTimestamp
	}
	return nil
}

// Candle is an OHLCV aggregate over a fixed time bucket.
// Mutable while IsFinal is false (the open bucket), immutable afterwards.
type Candle struct {
	InstrumentID string        `json:"instrument_id"`
	Interval     time.Duration `json:"interval"`
	Open         float64       `json:"open"`
	High         float64       `json:"high"`
	Low          float64       `json:"low"`
	Close        float64       `json:"close"`
	Volume       int64         `json:"volume"`
	VWAP         float64       `json:"vwap"`
	StartTime    time.Time     `json:"start_time"`
	EndTime      time.Time     `json:"end_time"`
	IsFinal      bool          `json:"is_final"`

	// VWAP accumulators, only meaningful while the candle is open.
	vwapNum   float64
	vwapDenom float64
}

// NewCandle opens a candle at the bucket containing first.ExchangeTS.
func NewCandle(first *Tick, interval time.Duration) *Candle {
	start := first.ExchangeTS.Truncate(interval)
	c := &Candle{
		InstrumentID: first.InstrumentID,
		Interval:     interval,
		Open:         first.Price,
		High:         first.Price,
		Low:          first.Price,
		Close:        first.Price,
		StartTime:    start,
		EndTime:      start.Add(interval),
	}
	c.applyVolume(first)
	return c
}

// NewGapCandle creates an already-final flat candle carrying prevClose,
// used to keep the candle time base contiguous over tickless buckets.
func NewGapCandle(instrumentID string, interval time.Duration, start time.Time, prevClose float64) *Candle {
	return &Candle{
		InstrumentID: instrumentID,
		Interval:     interval,
		Open:         prevClose,
		High:         prevClose,
		Low:          prevClose,
		Close:        prevClose,
		VWAP:         prevClose,
		StartTime:    start,
		EndTime:      start.Add(interval),
		IsFinal:      true,
	}
}

// Update folds a tick belonging to this candle's bucket into the OHLCV.
func (c *Candle) Update(tick *Tick) {
	if tick.Price > c.High {
		c.High = tick.Price
	}
	if tick.Price < c.Low {
		c.Low = tick.Price
	}
	c.Close = tick.Price
	c.applyVolume(tick)
}

func (c *Candle) applyVolume(tick *Tick) {
	c.Volume += tick.Volume
	c.vwapNum += tick.Price * float64(tick.Volume)
	c.vwapDenom += float64(tick.Volume)
	if c.vwapDenom > 0 {
		c.VWAP = c.vwapNum / c.vwapDenom
	} else {
		c.VWAP = c.Close
	}
}

// Finalize marks the candle immutable and returns it.
func (c *Candle) Finalize() *Candle {
	c.IsFinal = true
	return c
}

// Contains reports whether ts falls inside this candle's bucket.
func (c *Candle) Contains(ts time.Time) bool {
	return !ts.Before(c.StartTime) && ts.Before(c.EndTime)
}

// Validate validates a Candle
func (c *Candle) Validate() error {
	if c.InstrumentID == "" {
		return ErrInvalidInstrument
	}
	if c.StartTime.IsZero() || !c.EndTime.After(c.StartTime) {
		return ErrInvalidTimestamp
	}
	if c.High < c.Low {
		return ErrInvalidCandle
	}
	if c.Volume < 0 {
		return ErrInvalidVolume
	}
	return nil
}

// CandleUpdate is emitted by the aggregator for every candle mutation.
// IsNew is true when the update opened a new bucket.
type CandleUpdate struct {
	IsNew  bool   `json:"is_new"`
	Candle Candle `json:"candle"`
}

// IndicatorUpdate is a single indicator recomputation result.
// Final is false for provisional values computed against a still-open
// candle; downstream consumers must treat those as revisable.
type IndicatorUpdate struct {
	InstrumentID string             `json:"instrument_id"`
	Kind         string             `json:"kind"`
	Value        float64            `json:"value"`
	Lines        map[string]float64 `json:"lines,omitempty"`
	Time         time.Time          `json:"time"`
	Final        bool               `json:"final"`
}

// StatusUpdate reports a change in an instrument pipeline's readiness, such
// as indicator seeding being retried. Consumers can surface it as a
// "data unavailable" marker instead of showing stale numbers.
type StatusUpdate struct {
	InstrumentID string    `json:"instrument_id"`
	State        string    `json:"state"` // "seeding", "ready"
	Detail       string    `json:"detail,omitempty"`
	Time         time.Time `json:"time"`
}

// ConnectionHealth is the snapshot returned by the control surface.
type ConnectionHealth struct {
	State          ConnectionState `json:"state"`
	LastMessageAge time.Duration   `json:"last_message_age"`
	ReconnectCount int             `json:"reconnect_count"`
}
