package indicator

import (
	"sync/atomic"
	"time"

	"github.com/bawsi99/StockAnalyzer-Pro-sub001/internal/models"
	indicatorpkg "github.com/bawsi99/StockAnalyzer-Pro-sub001/pkg/indicator"
	"github.com/bawsi99/StockAnalyzer-Pro-sub001/pkg/logger"
)

// Set manages indicator state for a single instrument. Apply and Seed are
// owned by that instrument's pipeline goroutine and are not safe for
// concurrent use; Values reads a snapshot published after every finalized
// candle, so the snapshotter can read it from any goroutine.
//
// Finalized candles feed Update exactly once each; still-open candles feed
// Preview, which never mutates state, so provisional values can be emitted
// on every tick without corrupting the rolling math.
type Set struct {
	instrumentID   string
	calculators    map[string]indicatorpkg.Calculator
	lastFinalStart time.Time
	seeded         bool

	published atomic.Value // map[string]float64, latest final values
}

// NewSet creates an indicator set for the given kinds (e.g. "ema_20", "rsi_14").
// Unknown kinds are skipped with a warning rather than failing the instrument.
func NewSet(instrumentID string, kinds []string) *Set {
	s := &Set{
		instrumentID: instrumentID,
		calculators:  make(map[string]indicatorpkg.Calculator, len(kinds)),
	}

	for _, kind := range kinds {
		calc, err := indicatorpkg.New(kind)
		if err != nil {
			logger.Warn("Skipping unknown indicator kind",
				logger.String("instrument", instrumentID),
				logger.String("kind", kind),
				logger.ErrorField(err),
			)
			continue
		}
		s.calculators[calc.Name()] = calc
	}

	s.published.Store(map[string]float64{})
	return s
}

// Apply consumes a candle update and returns the resulting indicator updates.
// A finalized candle advances every calculator and emits final values; an
// open candle emits provisional values computed without state changes.
func (s *Set) Apply(upd models.CandleUpdate) []models.IndicatorUpdate {
	if upd.Candle.IsFinal {
		return s.applyFinal(&upd.Candle)
	}
	return s.preview(&upd.Candle)
}

func (s *Set) applyFinal(c *models.Candle) []models.IndicatorUpdate {
	// Replayed or duplicated finals must not advance state twice.
	if !c.StartTime.After(s.lastFinalStart) && !s.lastFinalStart.IsZero() {
		return nil
	}
	s.lastFinalStart = c.StartTime

	out := make([]models.IndicatorUpdate, 0, len(s.calculators))
	for name, calc := range s.calculators {
		value, err := calc.Update(c)
		if err != nil {
			logger.Warn("Indicator update failed",
				logger.String("instrument", s.instrumentID),
				logger.String("indicator", name),
				logger.ErrorField(err),
			)
			continue
		}
		if !calc.IsReady() {
			continue
		}
		out = append(out, s.buildUpdate(name, calc, value, c.EndTime, true))
	}
	s.publish()
	return out
}

func (s *Set) preview(c *models.Candle) []models.IndicatorUpdate {
	out := make([]models.IndicatorUpdate, 0, len(s.calculators))
	for name, calc := range s.calculators {
		if !calc.IsReady() {
			continue
		}
		value, err := calc.Preview(c)
		if err != nil {
			continue
		}
		out = append(out, s.buildUpdate(name, calc, value, c.StartTime, false))
	}
	return out
}

func (s *Set) buildUpdate(name string, calc indicatorpkg.Calculator, value float64, ts time.Time, final bool) models.IndicatorUpdate {
	upd := models.IndicatorUpdate{
		InstrumentID: s.instrumentID,
		Kind:         name,
		Value:        value,
		Time:         ts,
		Final:        final,
	}
	if ml, ok := calc.(indicatorpkg.MultiLine); ok && final {
		upd.Lines = ml.Lines()
	}
	return upd
}

// Seed replays historical finalized candles through the calculators without
// emitting updates. Subscribers only ever see values computed over the full
// available history.
func (s *Set) Seed(candles []*models.Candle) {
	for _, calc := range s.calculators {
		calc.Reset()
	}
	s.lastFinalStart = time.Time{}

	for _, c := range candles {
		if c == nil || c.InstrumentID != s.instrumentID {
			continue
		}
		if !c.StartTime.After(s.lastFinalStart) && !s.lastFinalStart.IsZero() {
			continue
		}
		s.lastFinalStart = c.StartTime
		for _, calc := range s.calculators {
			_, _ = calc.Update(c)
		}
	}

	s.seeded = true
	s.publish()
}

// Seeded reports whether Seed has completed for this set.
func (s *Set) Seeded() bool {
	return s.seeded
}

// MarkSeeded records that the set starts cold, with no history available.
func (s *Set) MarkSeeded() {
	s.seeded = true
}

// publish refreshes the snapshot read by Values. Called by the owning
// goroutine after every state change.
func (s *Set) publish() {
	values := make(map[string]float64, len(s.calculators))
	for name, calc := range s.calculators {
		if !calc.IsReady() {
			continue
		}
		if v, err := calc.Value(); err == nil {
			values[name] = v
		}
	}
	s.published.Store(values)
}

// Values returns the final value of every ready calculator as of the last
// finalized candle. Safe to call from any goroutine.
func (s *Set) Values() map[string]float64 {
	snap := s.published.Load().(map[string]float64)
	values := make(map[string]float64, len(snap))
	for name, v := range snap {
		values[name] = v
	}
	return values
}

// Kinds returns the names of the configured calculators.
func (s *Set) Kinds() []string {
	kinds := make([]string, 0, len(s.calculators))
	for name := range s.calculators {
		kinds = append(kinds, name)
	}
	return kinds
}

// MaxWindow returns the largest window required among the calculators,
// which bounds how many historical candles seeding should fetch.
func (s *Set) MaxWindow() int {
	max := 0
	for _, calc := range s.calculators {
		if w := calc.WindowSize(); w > max {
			max = w
		}
	}
	return max
}
