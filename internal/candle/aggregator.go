package candle

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bawsi99/StockAnalyzer-Pro-sub001/internal/models"
	"github.com/bawsi99/StockAnalyzer-Pro-sub001/pkg/logger"
)

var (
	candlesFinalized = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "candles_finalized_total",
			Help: "Total number of finalized candles",
		},
		[]string{"instrument"},
	)
	gapCandles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "candles_gap_filled_total",
			Help: "Total number of flat gap candles emitted for tickless buckets",
		},
		[]string{"instrument"},
	)
	lateTicks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "candles_late_ticks_total",
			Help: "Total number of ticks dropped for preceding the committed candle boundary",
		},
		[]string{"instrument"},
	)
)

// Config holds aggregation parameters.
type Config struct {
	Interval      time.Duration
	HistoryWindow int // finalized candles retained
	MaxGapFill    int // cap on flat candles emitted for a single gap
}

// DefaultConfig returns the default aggregation parameters.
func DefaultConfig() Config {
	return Config{
		Interval:      time.Minute,
		HistoryWindow: 500,
		MaxGapFill:    500,
	}
}

// Aggregator buckets ticks into fixed-interval OHLCV candles for one
// instrument. Exactly one candle is open at any time; ticks must arrive in
// non-decreasing exchange-timestamp order (the normalizer guarantees this).
// Ticks for buckets before the open candle are dropped and counted, never
// retroactively applied.
//
// Owned by one pipeline goroutine; not safe for concurrent use.
type Aggregator struct {
	instrumentID string
	cfg          Config

	open      *models.Candle
	history   []*models.Candle
	lateDrops int64
}

// NewAggregator creates an aggregator for one instrument.
func NewAggregator(instrumentID string, cfg Config) *Aggregator {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	return &Aggregator{
		instrumentID: instrumentID,
		cfg:          cfg,
		history:      make([]*models.Candle, 0, cfg.HistoryWindow),
	}
}

// Interval returns the aggregation interval.
func (a *Aggregator) Interval() time.Duration {
	return a.cfg.Interval
}

// Apply folds a tick into the candle series and returns the resulting
// updates: an in-place mutation of the open candle, or a finalization
// (plus any flat gap candles) followed by a new open candle.
func (a *Aggregator) Apply(tick *models.Tick) ([]models.CandleUpdate, error) {
	if tick == nil {
		return nil, models.ErrMalformedMessage
	}

	bucket := tick.ExchangeTS.Truncate(a.cfg.Interval)

	if a.open == nil {
		a.open = models.NewCandle(tick, a.cfg.Interval)
		return []models.CandleUpdate{{IsNew: true, Candle: *a.open}}, nil
	}

	if a.open.Contains(tick.ExchangeTS) {
		a.open.Update(tick)
		return []models.CandleUpdate{{Candle: *a.open}}, nil
	}

	if bucket.Before(a.open.StartTime) {
		a.lateDrops++
		lateTicks.WithLabelValues(a.instrumentID).Inc()
		return nil, models.ErrLateTick
	}

	return a.rollForward(tick, bucket), nil
}

// rollForward finalizes the open candle, fills tickless buckets with flat
// candles carrying the previous close, and opens the tick's bucket. The
// flat fill keeps the indicator engine's time base contiguous.
func (a *Aggregator) rollForward(tick *models.Tick, bucket time.Time) []models.CandleUpdate {
	updates := make([]models.CandleUpdate, 0, 2)

	closed := a.open.Finalize()
	a.retain(closed)
	candlesFinalized.WithLabelValues(a.instrumentID).Inc()
	updates = append(updates, models.CandleUpdate{Candle: *closed})

	prevClose := closed.Close
	gaps := 0
	for start := closed.EndTime; start.Before(bucket); start = start.Add(a.cfg.Interval) {
		if a.cfg.MaxGapFill > 0 && gaps >= a.cfg.MaxGapFill {
			logger.Warn("gap fill cap reached, resetting candle time base",
				logger.String("instrument", a.instrumentID),
				logger.Time("from", closed.EndTime),
				logger.Time("to", bucket),
			)
			break
		}
		gap := models.NewGapCandle(a.instrumentID, a.cfg.Interval, start, prevClose)
		a.retain(gap)
		gaps++
		gapCandles.WithLabelValues(a.instrumentID).Inc()
		candlesFinalized.WithLabelValues(a.instrumentID).Inc()
		updates = append(updates, models.CandleUpdate{Candle: *gap})
	}

	a.open = models.NewCandle(tick, a.cfg.Interval)
	updates = append(updates, models.CandleUpdate{IsNew: true, Candle: *a.open})
	return updates
}

func (a *Aggregator) retain(c *models.Candle) {
	a.history = append(a.history, c)
	if a.cfg.HistoryWindow > 0 && len(a.history) > a.cfg.HistoryWindow {
		copy(a.history, a.history[1:])
		a.history = a.history[:len(a.history)-1]
	}
}

// Open returns a copy of the currently open candle, or nil if none.
func (a *Aggregator) Open() *models.Candle {
	if a.open == nil {
		return nil
	}
	c := *a.open
	return &c
}

// History returns a copy of the retained finalized candles, oldest first.
func (a *Aggregator) History() []*models.Candle {
	out := make([]*models.Candle, len(a.history))
	copy(out, a.history)
	return out
}

// LastFinal returns the most recently finalized candle, or nil.
func (a *Aggregator) LastFinal() *models.Candle {
	if len(a.history) == 0 {
		return nil
	}
	c := *a.history[len(a.history)-1]
	return &c
}

// LateDrops returns the number of ticks dropped as late.
func (a *Aggregator) LateDrops() int64 {
	return a.lateDrops
}
