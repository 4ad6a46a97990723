package engine

import (
	"context"
	"errors"
	"time"

	"github.com/bawsi99/StockAnalyzer-Pro-sub001/internal/candle"
	"github.com/bawsi99/StockAnalyzer-Pro-sub001/internal/indicator"
	"github.com/bawsi99/StockAnalyzer-Pro-sub001/internal/models"
	"github.com/bawsi99/StockAnalyzer-Pro-sub001/internal/normalize"
	"github.com/bawsi99/StockAnalyzer-Pro-sub001/pkg/logger"
)

// pipeline owns the full tick path for one instrument: normalizer,
// aggregator and indicator set all live on its goroutine, so none of them
// need locks. Ticks arrive on a bounded channel; the reorder buffer is
// drained on a flush ticker.
type pipeline struct {
	instrumentID  string
	interval      time.Duration
	ticks         chan *models.Tick
	flushInterval time.Duration

	norm *normalize.Normalizer
	agg  *candle.Aggregator
	set  *indicator.Set

	eng    *Engine
	cancel context.CancelFunc
	done   chan struct{}
}

func newPipeline(eng *Engine, instrumentID string, interval time.Duration, set *indicator.Set) *pipeline {
	normCfg := normalize.Config{
		ReorderWindow:  eng.cfg.Normalizer.ReorderWindow,
		DedupeLookback: eng.cfg.Normalizer.DedupeLookback,
	}
	aggCfg := candle.Config{
		Interval:      interval,
		HistoryWindow: eng.cfg.Candles.HistoryWindow,
		MaxGapFill:    eng.cfg.Candles.MaxGapFill,
	}

	return &pipeline{
		instrumentID:  instrumentID,
		interval:      interval,
		ticks:         make(chan *models.Tick, tickQueueSize),
		flushInterval: eng.cfg.Normalizer.FlushInterval,
		norm:          normalize.NewNormalizer(instrumentID, normCfg),
		agg:           candle.NewAggregator(instrumentID, aggCfg),
		set:           set,
		eng:           eng,
		done:          make(chan struct{}),
	}
}

// offer hands a tick to the pipeline without blocking the caller.
func (p *pipeline) offer(tick *models.Tick) {
	select {
	case p.ticks <- tick:
	default:
		pipelineQueueDrops.WithLabelValues(p.instrumentID).Inc()
	}
}

func (p *pipeline) run(ctx context.Context) {
	defer close(p.done)

	p.seed(ctx)
	if ctx.Err() != nil {
		return
	}

	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Drain whatever made it past the reorder window so the
			// last candle's state is as complete as possible.
			for _, tick := range p.norm.FlushAll(time.Now()) {
				p.applyTick(tick)
			}
			return
		case tick := <-p.ticks:
			p.push(tick)
		case <-ticker.C:
			for _, tick := range p.norm.Flush(time.Now()) {
				p.applyTick(tick)
			}
		}
	}
}

// seed replays history into the indicator set before any live values are
// emitted. Live ticks arriving meanwhile are absorbed into the reorder
// buffer so nothing is lost; a persistently failing history API keeps the
// pipeline in a retry loop rather than emitting unseeded values.
func (p *pipeline) seed(ctx context.Context) {
	for {
		err := p.eng.indicators.Seed(ctx, p.instrumentID, p.interval)
		if err == nil {
			p.eng.dispatcher.PublishStatus(models.StatusUpdate{
				InstrumentID: p.instrumentID,
				State:        "ready",
				Time:         time.Now(),
			})
			return
		}
		if !errors.Is(err, models.ErrSeedingFailed) {
			logger.Error("Seeding aborted",
				logger.String("instrument", p.instrumentID),
				logger.ErrorField(err),
			)
			p.set.MarkSeeded()
			return
		}

		// Subscribers see the pipeline as unavailable rather than
		// silently receiving no indicator values.
		p.eng.dispatcher.PublishStatus(models.StatusUpdate{
			InstrumentID: p.instrumentID,
			State:        "seeding",
			Detail:       err.Error(),
			Time:         time.Now(),
		})
		logger.Warn("Indicator seeding failed, retrying",
			logger.String("instrument", p.instrumentID),
			logger.Duration("retry_in", p.eng.cfg.Indicators.SeedRetry),
			logger.ErrorField(err),
		)

		timer := time.NewTimer(p.eng.cfg.Indicators.SeedRetry)
	absorb:
		for {
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case tick := <-p.ticks:
				p.push(tick)
			case <-timer.C:
				break absorb
			}
		}
	}
}

func (p *pipeline) push(tick *models.Tick) {
	if err := p.norm.Push(tick); err != nil {
		// Late and duplicate drops are already counted by the
		// normalizer; anything else is worth a log line.
		if !errors.Is(err, models.ErrLateTick) && !errors.Is(err, models.ErrDuplicateTick) {
			logger.Warn("Rejected tick",
				logger.String("instrument", p.instrumentID),
				logger.ErrorField(err),
			)
		}
	}
}

func (p *pipeline) applyTick(tick *models.Tick) {
	updates, err := p.agg.Apply(tick)
	if err != nil {
		if !errors.Is(err, models.ErrLateTick) {
			logger.Warn("Aggregation failed",
				logger.String("instrument", p.instrumentID),
				logger.ErrorField(err),
			)
		}
		return
	}

	for i := range updates {
		upd := updates[i]
		p.eng.dispatcher.PublishCandle(upd)
		for _, iu := range p.set.Apply(upd) {
			p.eng.dispatcher.PublishIndicator(iu)
		}
	}
}

func (p *pipeline) stop() {
	p.cancel()
	<-p.done
}
