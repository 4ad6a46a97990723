package indicator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bawsi99/StockAnalyzer-Pro-sub001/internal/models"
	"github.com/bawsi99/StockAnalyzer-Pro-sub001/pkg/logger"
)

var (
	seedsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "indicator_seeds_completed_total",
		Help: "Number of instruments seeded from history",
	})
	seedFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "indicator_seed_failures_total",
		Help: "Number of failed seeding attempts",
	})
)

// HistorySource provides recent finalized candles for seeding.
type HistorySource interface {
	RecentCandles(ctx context.Context, instrumentID string, interval time.Duration, count int) ([]*models.Candle, error)
}

// Config holds configuration for the indicator engine
type Config struct {
	SeedBars     int           // historical candles fetched per instrument
	SeedRetry    time.Duration // delay between seeding attempts
	DefaultKinds []string      // indicator kinds used when a subscription names none
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		SeedBars:     200,
		SeedRetry:    15 * time.Second,
		DefaultKinds: []string{"ema_20", "rsi_14", "vwap"},
	}
}

// Engine manages per-instrument indicator sets and their seeding from
// history. Sets are handed to pipeline goroutines which own all hot-path
// calls; the engine itself only guards registration.
type Engine struct {
	cfg     Config
	history HistorySource

	mu   sync.RWMutex
	sets map[string]*Set
}

// NewEngine creates a new indicator engine
func NewEngine(cfg Config, history HistorySource) *Engine {
	if cfg.SeedBars <= 0 {
		cfg.SeedBars = DefaultConfig().SeedBars
	}
	if cfg.SeedRetry <= 0 {
		cfg.SeedRetry = DefaultConfig().SeedRetry
	}

	return &Engine{
		cfg:     cfg,
		history: history,
		sets:    make(map[string]*Set),
	}
}

// Register creates (or returns the existing) indicator set for an instrument.
// Empty kinds fall back to the configured defaults.
func (e *Engine) Register(instrumentID string, kinds []string) *Set {
	e.mu.Lock()
	defer e.mu.Unlock()

	if set, ok := e.sets[instrumentID]; ok {
		return set
	}

	if len(kinds) == 0 {
		kinds = e.cfg.DefaultKinds
	}
	set := NewSet(instrumentID, kinds)
	e.sets[instrumentID] = set
	return set
}

// Remove drops the indicator set for an instrument.
func (e *Engine) Remove(instrumentID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.sets, instrumentID)
}

// Seed fetches recent history and replays it into the instrument's set.
// A failed fetch leaves the set unseeded and returns ErrSeedingFailed so
// the caller can retry; an empty (but successful) fetch marks the set
// seeded cold.
func (e *Engine) Seed(ctx context.Context, instrumentID string, interval time.Duration) error {
	e.mu.RLock()
	set, ok := e.sets[instrumentID]
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("instrument %s not registered", instrumentID)
	}

	count := e.cfg.SeedBars
	if w := set.MaxWindow(); w > count {
		count = w
	}

	candles, err := e.history.RecentCandles(ctx, instrumentID, interval, count)
	if err != nil {
		seedFailures.Inc()
		logger.Warn("History fetch for seeding failed",
			logger.String("instrument", instrumentID),
			logger.ErrorField(err),
		)
		return fmt.Errorf("%w: %v", models.ErrSeedingFailed, err)
	}

	if len(candles) == 0 {
		set.MarkSeeded()
		seedsCompleted.Inc()
		logger.Info("No history available, starting cold",
			logger.String("instrument", instrumentID),
		)
		return nil
	}

	set.Seed(candles)
	seedsCompleted.Inc()
	logger.Info("Instrument seeded from history",
		logger.String("instrument", instrumentID),
		logger.Int("candles", len(candles)),
	)
	return nil
}

// SeedWithRetry keeps attempting Seed until it succeeds or ctx is cancelled.
// Returns the number of attempts made.
func (e *Engine) SeedWithRetry(ctx context.Context, instrumentID string, interval time.Duration) (int, error) {
	attempts := 0
	for {
		attempts++
		err := e.Seed(ctx, instrumentID, interval)
		if err == nil {
			return attempts, nil
		}

		select {
		case <-ctx.Done():
			return attempts, ctx.Err()
		case <-time.After(e.cfg.SeedRetry):
		}
	}
}

// Values returns the current indicator values for an instrument.
func (e *Engine) Values(instrumentID string) (map[string]float64, error) {
	e.mu.RLock()
	set, ok := e.sets[instrumentID]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("instrument %s not registered", instrumentID)
	}
	return set.Values(), nil
}

// Instruments returns all registered instrument IDs.
func (e *Engine) Instruments() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ids := make([]string, 0, len(e.sets))
	for id := range e.sets {
		ids = append(ids, id)
	}
	return ids
}
