// Package snapshot persists the latest finalized candles and indicator
// values to the cache in the background, so restarts and after-hours
// consumers have a recent picture without replaying the feed.
package snapshot

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bawsi99/StockAnalyzer-Pro-sub001/internal/cache"
	"github.com/bawsi99/StockAnalyzer-Pro-sub001/internal/dispatch"
	"github.com/bawsi99/StockAnalyzer-Pro-sub001/internal/models"
	"github.com/bawsi99/StockAnalyzer-Pro-sub001/pkg/logger"
)

var (
	snapshotsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snapshot_writes_total",
		Help: "Number of snapshot writes to the cache",
	})
	snapshotErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snapshot_write_errors_total",
		Help: "Number of failed snapshot writes",
	})
)

// Config holds configuration for the snapshotter
type Config struct {
	Interval time.Duration // flush cadence
	TTL      time.Duration // cache entry lifetime
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		Interval: 30 * time.Second,
		TTL:      72 * time.Hour,
	}
}

// Snapshotter subscribes to the dispatcher and periodically writes the
// latest final candle and indicator values per instrument to the cache.
// Writes are batched on the flush interval rather than per event.
type Snapshotter struct {
	cfg   Config
	cache cache.Cache
	sub   *dispatch.Subscription

	mu              sync.Mutex
	dirtyCandles    map[string]*models.Candle
	dirtyIndicators map[string]map[string]float64
}

// NewSnapshotter creates a snapshotter reading from the given subscription.
func NewSnapshotter(cfg Config, c cache.Cache, sub *dispatch.Subscription) *Snapshotter {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig().TTL
	}
	return &Snapshotter{
		cfg:             cfg,
		cache:           c,
		sub:             sub,
		dirtyCandles:    make(map[string]*models.Candle),
		dirtyIndicators: make(map[string]map[string]float64),
	}
}

// Run consumes events and flushes until ctx is cancelled or the
// subscription closes. A final flush runs on the way out.
func (s *Snapshotter) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	defer s.flush(context.Background())

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-s.sub.C():
			if !ok {
				return
			}
			s.absorb(ev)
		case <-ticker.C:
			s.flush(ctx)
		}
	}
}

func (s *Snapshotter) absorb(ev dispatch.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Kind {
	case dispatch.EventCandle:
		if ev.Candle == nil || !ev.Candle.Candle.IsFinal {
			return
		}
		c := ev.Candle.Candle
		s.dirtyCandles[c.InstrumentID] = &c
	case dispatch.EventIndicator:
		if ev.Indicator == nil || !ev.Indicator.Final {
			return
		}
		upd := ev.Indicator
		values := s.dirtyIndicators[upd.InstrumentID]
		if values == nil {
			values = make(map[string]float64)
			s.dirtyIndicators[upd.InstrumentID] = values
		}
		values[upd.Kind] = upd.Value
		for line, v := range upd.Lines {
			values[upd.Kind+"."+line] = v
		}
	}
}

func (s *Snapshotter) flush(ctx context.Context) {
	s.mu.Lock()
	candles := s.dirtyCandles
	indicators := s.dirtyIndicators
	s.dirtyCandles = make(map[string]*models.Candle)
	s.dirtyIndicators = make(map[string]map[string]float64)
	s.mu.Unlock()

	for id, c := range candles {
		if err := s.cache.SetLastCandle(ctx, c, s.cfg.TTL); err != nil {
			snapshotErrors.Inc()
			logger.Warn("Failed to snapshot candle",
				logger.String("instrument", id),
				logger.ErrorField(err),
			)
			continue
		}
		snapshotsWritten.Inc()
	}

	for id, values := range indicators {
		if err := s.cache.SetIndicators(ctx, id, values, s.cfg.TTL); err != nil {
			snapshotErrors.Inc()
			logger.Warn("Failed to snapshot indicators",
				logger.String("instrument", id),
				logger.ErrorField(err),
			)
			continue
		}
		snapshotsWritten.Inc()
	}
}
