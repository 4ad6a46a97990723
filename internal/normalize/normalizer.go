package normalize

import (
	"fmt"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bawsi99/StockAnalyzer-Pro-sub001/internal/models"
)

var (
	ticksAccepted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "normalizer_ticks_accepted_total",
			Help: "Total number of ticks accepted into the reorder buffer",
		},
		[]string{"instrument"},
	)
	ticksDuplicate = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "normalizer_ticks_duplicate_total",
			Help: "Total number of duplicate ticks discarded",
		},
		[]string{"instrument"},
	)
	ticksLate = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "normalizer_ticks_late_total",
			Help: "Total number of ticks discarded for arriving after their flush deadline",
		},
		[]string{"instrument"},
	)
)

// Config holds normalization parameters.
type Config struct {
	ReorderWindow  time.Duration // how long ticks are buffered to let reordering settle
	DedupeLookback time.Duration // how far back applied signatures are remembered
}

// DefaultConfig returns the default normalization parameters.
func DefaultConfig() Config {
	return Config{
		ReorderWindow:  250 * time.Millisecond,
		DedupeLookback: 5 * time.Second,
	}
}

// Stats are the normalizer's aggregate health counters.
type Stats struct {
	Accepted   int64
	Duplicates int64
	LateDrops  int64
}

// signature identifies an applied tick for duplicate detection.
type signature struct {
	exchangeTS time.Time
	price      float64
	volume     int64
	appliedAt  time.Time
}

// Normalizer deduplicates and orders ticks for a single instrument.
// Incoming ticks sit in a short reorder buffer; Flush drains everything
// whose settle deadline has passed, in exchange-timestamp order. A tick
// arriving after its bucket has been flushed is a late drop, never
// retroactively applied.
//
// Owned by one pipeline goroutine; not safe for concurrent use.
type Normalizer struct {
	instrumentID string
	cfg          Config

	pending   []*models.Tick
	applied   []signature
	watermark time.Time // flush deadline of the most recent flush
	hasWM     bool
	stats     Stats
}

// NewNormalizer creates a normalizer for one instrument.
func NewNormalizer(instrumentID string, cfg Config) *Normalizer {
	return &Normalizer{
		instrumentID: instrumentID,
		cfg:          cfg,
	}
}

// Push validates a tick and admits it to the reorder buffer. Duplicates
// and late arrivals are counted and reported via sentinel errors. The
// duplicate check runs before the watermark check: a reconnect replay of
// an already-applied tick is a duplicate, not a late drop, even though
// its timestamp is behind the watermark.
func (n *Normalizer) Push(tick *models.Tick) error {
	if tick == nil {
		return fmt.Errorf("%w: nil tick", models.ErrMalformedMessage)
	}
	if err := tick.Validate(); err != nil {
		return fmt.Errorf("%w: %v", models.ErrMalformedMessage, err)
	}

	if n.isDuplicate(tick) {
		n.stats.Duplicates++
		ticksDuplicate.WithLabelValues(n.instrumentID).Inc()
		return models.ErrDuplicateTick
	}

	if n.hasWM && tick.ExchangeTS.Before(n.watermark) {
		n.stats.LateDrops++
		ticksLate.WithLabelValues(n.instrumentID).Inc()
		return models.ErrLateTick
	}

	n.pending = append(n.pending, tick)
	n.stats.Accepted++
	ticksAccepted.WithLabelValues(n.instrumentID).Inc()
	return nil
}

// isDuplicate reports whether an equal-or-later tick with identical price
// and volume was already seen within the lookback window. Reconnect
// replay re-delivers recent ticks, so both the applied history and the
// still-pending buffer count.
func (n *Normalizer) isDuplicate(tick *models.Tick) bool {
	for _, sig := range n.applied {
		if sig.price == tick.Price && sig.volume == tick.Volume && !sig.exchangeTS.Before(tick.ExchangeTS) {
			return true
		}
	}
	for _, p := range n.pending {
		if p.Price == tick.Price && p.Volume == tick.Volume && p.ExchangeTS.Equal(tick.ExchangeTS) {
			return true
		}
	}
	return false
}

// Flush drains every buffered tick whose exchange timestamp is at or
// before now minus the reorder window, sorted by exchange timestamp.
// The flush deadline becomes the new watermark.
func (n *Normalizer) Flush(now time.Time) []*models.Tick {
	deadline := now.Add(-n.cfg.ReorderWindow)
	return n.flushBefore(deadline, now)
}

// FlushAll drains the entire buffer regardless of settle deadlines, used
// on pipeline shutdown.
func (n *Normalizer) FlushAll(now time.Time) []*models.Tick {
	if len(n.pending) == 0 {
		return nil
	}
	latest := n.pending[0].ExchangeTS
	for _, t := range n.pending[1:] {
		if t.ExchangeTS.After(latest) {
			latest = t.ExchangeTS
		}
	}
	return n.flushBefore(latest.Add(time.Nanosecond), now)
}

func (n *Normalizer) flushBefore(deadline, now time.Time) []*models.Tick {
	if !n.hasWM || deadline.After(n.watermark) {
		n.watermark = deadline
		n.hasWM = true
	}

	if len(n.pending) == 0 {
		n.pruneApplied(now)
		return nil
	}

	var out, keep []*models.Tick
	for _, t := range n.pending {
		if t.ExchangeTS.Before(deadline) {
			out = append(out, t)
		} else {
			keep = append(keep, t)
		}
	}
	n.pending = keep

	sort.Slice(out, func(i, j int) bool {
		return out[i].ExchangeTS.Before(out[j].ExchangeTS)
	})

	for _, t := range out {
		n.applied = append(n.applied, signature{
			exchangeTS: t.ExchangeTS,
			price:      t.Price,
			volume:     t.Volume,
			appliedAt:  now,
		})
	}
	n.pruneApplied(now)
	return out
}

func (n *Normalizer) pruneApplied(now time.Time) {
	cutoff := now.Add(-n.cfg.DedupeLookback)
	kept := n.applied[:0]
	for _, sig := range n.applied {
		if sig.appliedAt.After(cutoff) {
			kept = append(kept, sig)
		}
	}
	n.applied = kept
}

// Stats returns the aggregate counters.
func (n *Normalizer) Stats() Stats {
	return n.stats
}

// PendingCount returns the number of buffered ticks awaiting flush.
func (n *Normalizer) PendingCount() int {
	return len(n.pending)
}
