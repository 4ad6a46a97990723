// Package engine wires the session clock, feed selector, connection
// manager and per-instrument pipelines into one control surface.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bawsi99/StockAnalyzer-Pro-sub001/internal/cache"
	"github.com/bawsi99/StockAnalyzer-Pro-sub001/internal/config"
	"github.com/bawsi99/StockAnalyzer-Pro-sub001/internal/dispatch"
	"github.com/bawsi99/StockAnalyzer-Pro-sub001/internal/feed"
	"github.com/bawsi99/StockAnalyzer-Pro-sub001/internal/history"
	"github.com/bawsi99/StockAnalyzer-Pro-sub001/internal/indicator"
	"github.com/bawsi99/StockAnalyzer-Pro-sub001/internal/models"
	"github.com/bawsi99/StockAnalyzer-Pro-sub001/internal/normalize"
	"github.com/bawsi99/StockAnalyzer-Pro-sub001/internal/session"
	"github.com/bawsi99/StockAnalyzer-Pro-sub001/internal/stream"
	"github.com/bawsi99/StockAnalyzer-Pro-sub001/pkg/logger"
)

const tickQueueSize = 1024

var (
	pipelineQueueDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_pipeline_queue_drops_total",
		Help: "Ticks dropped because an instrument pipeline queue was full",
	}, []string{"instrument"})
	frameParseErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "engine_frame_parse_errors_total",
		Help: "Stream frames that could not be parsed into ticks",
	})
	activePipelines = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "engine_active_pipelines",
		Help: "Number of instrument pipelines currently running",
	})
)

// sessionRelay splits the clock's change stream: the engine consumes the
// clock directly and forwards changes here for the feed selector, so both
// see every transition.
type sessionRelay struct {
	clock *session.Clock
	ch    chan models.SessionState
}

func (r *sessionRelay) State() models.SessionState          { return r.clock.State() }
func (r *sessionRelay) Changes() <-chan models.SessionState { return r.ch }

// forward never blocks the clock watcher: when the selector lags, the
// oldest queued state is discarded so the channel always ends on the
// latest transition. The selector re-reads the clock on wakeup, so only
// the final state matters.
func (r *sessionRelay) forward(state models.SessionState) {
	for {
		select {
		case r.ch <- state:
			return
		default:
		}
		select {
		case <-r.ch:
		default:
		}
	}
}

// Engine is the public control surface: subscribe instruments, receive a
// unified event stream, query connection health.
type Engine struct {
	cfg *config.Config

	clock      *session.Clock
	relay      *sessionRelay
	selector   *feed.Selector
	manager    *stream.Manager
	poller     *feed.Poller
	indicators *indicator.Engine
	dispatcher *dispatch.Dispatcher
	cache      cache.Cache
	history    history.Provider

	mu        sync.RWMutex
	pipelines map[string]*pipeline

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// New builds an engine from configuration and injected infrastructure.
// The calendar and cache are passed in so tests can substitute fakes.
func New(cfg *config.Config, cal session.Calendar, hist history.Provider, c cache.Cache) *Engine {
	e := &Engine{
		cfg:       cfg,
		cache:     c,
		history:   hist,
		pipelines: make(map[string]*pipeline),
	}

	e.clock = session.NewClock(cal, session.Config{
		PreOpenLead:     cfg.Session.PreOpenLead,
		PostCloseTail:   cfg.Session.PostCloseTail,
		RefreshInterval: cfg.Session.RefreshInterval,
	})
	e.relay = &sessionRelay{clock: e.clock, ch: make(chan models.SessionState, 4)}

	e.dispatcher = dispatch.NewDispatcher(dispatch.Config{QueueSize: cfg.Dispatch.QueueSize})

	e.indicators = indicator.NewEngine(indicator.Config{
		SeedBars:     cfg.Indicators.SeedBars,
		SeedRetry:    cfg.Indicators.SeedRetry,
		DefaultKinds: cfg.Indicators.DefaultKinds,
	}, hist)

	e.manager = stream.NewManager(stream.Config{
		URL:               cfg.Stream.URL,
		HandshakeTimeout:  cfg.Stream.HandshakeTimeout,
		HeartbeatTimeout:  cfg.Stream.HeartbeatTimeout,
		WriteTimeout:      cfg.Stream.WriteTimeout,
		ReconnectDelay:    cfg.Stream.ReconnectDelay,
		MaxReconnectDelay: cfg.Stream.MaxReconnectDelay,
		BackoffJitter:     cfg.Stream.BackoffJitter,
		SuccessResetAfter: cfg.Stream.SuccessResetAfter,
	}, e.onFrame, e.onConnState, e.onPushFailures)

	e.poller = feed.NewPoller(hist, e.instrumentIDs, e.routeTick)

	e.selector = feed.NewSelector(e.relay, feed.Policy{
		ShortPollInterval:  cfg.Feed.ShortPollInterval,
		MediumPollInterval: cfg.Feed.MediumPollInterval,
		CacheTTL:           cfg.Feed.CacheTTL,
		FailureThreshold:   cfg.Feed.FailureThreshold,
	}, e)

	return e
}

// Start launches the clock, the feed selector and the snapshotter. The
// connection manager and poller start on demand, driven by the selector.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return fmt.Errorf("engine already started")
	}
	e.started = true
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.mu.Unlock()

	e.clock.Refresh(time.Now())

	e.wg.Add(3)
	go func() {
		defer e.wg.Done()
		e.clock.Run(e.ctx)
	}()
	go func() {
		defer e.wg.Done()
		e.watchSession(e.ctx)
	}()
	go func() {
		defer e.wg.Done()
		e.selector.Run(e.ctx)
	}()

	logger.Info("Engine started",
		logger.String("session", e.clock.State().String()),
	)
	return nil
}

// watchSession fans clock changes out to subscribers and the selector.
func (e *Engine) watchSession(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case state := <-e.clock.Changes():
			e.dispatcher.PublishSession(state)
			e.relay.forward(state)
		}
	}
}

// Subscribe starts a pipeline for an instrument. Empty kinds use the
// configured default indicator set; zero interval uses the default candle
// interval.
func (e *Engine) Subscribe(instrumentID string, interval time.Duration, kinds []string) error {
	if instrumentID == "" {
		return models.ErrInvalidInstrument
	}
	if interval <= 0 {
		interval = e.cfg.Candles.DefaultInterval
	}

	e.mu.Lock()
	if _, exists := e.pipelines[instrumentID]; exists {
		e.mu.Unlock()
		return models.ErrAlreadySubscribed
	}
	if e.ctx == nil {
		e.mu.Unlock()
		return fmt.Errorf("engine not started")
	}

	set := e.indicators.Register(instrumentID, kinds)
	p := newPipeline(e, instrumentID, interval, set)
	pctx, cancel := context.WithCancel(e.ctx)
	p.cancel = cancel
	e.pipelines[instrumentID] = p
	ids := e.instrumentIDsLocked()
	e.mu.Unlock()

	activePipelines.Set(float64(len(ids)))
	e.manager.UpdateInstruments(ids)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		p.run(pctx)
	}()

	logger.Info("Subscribed instrument",
		logger.String("instrument", instrumentID),
		logger.Duration("interval", interval),
	)
	return nil
}

// Unsubscribe stops an instrument's pipeline and drops its state.
func (e *Engine) Unsubscribe(instrumentID string) error {
	e.mu.Lock()
	p, ok := e.pipelines[instrumentID]
	if ok {
		delete(e.pipelines, instrumentID)
	}
	ids := e.instrumentIDsLocked()
	e.mu.Unlock()

	if !ok {
		return models.ErrNotSubscribed
	}

	p.stop()
	e.indicators.Remove(instrumentID)
	activePipelines.Set(float64(len(ids)))
	e.manager.UpdateInstruments(ids)

	logger.Info("Unsubscribed instrument",
		logger.String("instrument", instrumentID),
	)
	return nil
}

// Events registers a consumer for the unified event stream. Passing no
// instruments subscribes to everything.
func (e *Engine) Events(subscriberID string, instruments ...string) *dispatch.Subscription {
	return e.dispatcher.Subscribe(subscriberID, instruments...)
}

// StopEvents removes an event consumer.
func (e *Engine) StopEvents(subscriberID string) {
	e.dispatcher.Unsubscribe(subscriberID)
}

// Dispatcher exposes the event dispatcher for auxiliary consumers such as
// the snapshotter.
func (e *Engine) Dispatcher() *dispatch.Dispatcher {
	return e.dispatcher
}

// ConnectionHealth reports the push feed's current state.
func (e *Engine) ConnectionHealth() models.ConnectionHealth {
	return e.manager.Health()
}

// SessionState reports the current trading session phase.
func (e *Engine) SessionState() models.SessionState {
	return e.clock.State()
}

// FeedStrategy reports the sourcing strategy currently in effect.
func (e *Engine) FeedStrategy() feed.Strategy {
	return e.selector.Current()
}

// Stop shuts everything down and waits for the pipelines to drain.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.cancel == nil {
		e.mu.Unlock()
		return
	}
	cancel := e.cancel
	e.cancel = nil
	e.mu.Unlock()

	cancel()
	e.manager.Stop()
	e.poller.Stop()
	e.wg.Wait()
	e.dispatcher.Close()

	logger.Info("Engine stopped")
}

// instrumentIDs returns the currently subscribed instruments.
func (e *Engine) instrumentIDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.instrumentIDsLocked()
}

func (e *Engine) instrumentIDsLocked() []string {
	ids := make([]string, 0, len(e.pipelines))
	for id := range e.pipelines {
		ids = append(ids, id)
	}
	return ids
}

// routeTick hands a tick to its instrument's pipeline. Ticks for unknown
// instruments are dropped silently; the push feed may deliver briefly
// after an unsubscribe.
func (e *Engine) routeTick(tick *models.Tick) {
	if tick == nil {
		return
	}
	e.mu.RLock()
	p := e.pipelines[tick.InstrumentID]
	e.mu.RUnlock()
	if p != nil {
		p.offer(tick)
	}
}

// onFrame parses a raw push frame and routes the resulting tick.
func (e *Engine) onFrame(raw []byte, receipt time.Time) {
	tick, err := normalize.Parse(raw, receipt)
	if err != nil {
		frameParseErrors.Inc()
		logger.Debug("Dropping malformed frame",
			logger.ErrorField(err),
		)
		return
	}
	e.routeTick(tick)
}

// onConnState publishes connection transitions to subscribers.
func (e *Engine) onConnState(state models.ConnectionState) {
	e.dispatcher.PublishConnection(e.manager.Health())
}

// onPushFailures feeds the selector's failover decision.
func (e *Engine) onPushFailures(n int) {
	e.selector.ReportPushFailures(n)
}

// StartPush implements feed.Actuator.
func (e *Engine) StartPush() {
	e.mu.RLock()
	ctx := e.ctx
	e.mu.RUnlock()
	if ctx == nil {
		return
	}
	// The manager may still be running when the selector re-selects push
	// after a background recovery.
	if err := e.manager.Start(ctx); err != nil && err != models.ErrAlreadyConnected {
		logger.Warn("Push feed start failed",
			logger.ErrorField(err),
		)
	}
}

// StopPush implements feed.Actuator.
func (e *Engine) StopPush() {
	e.manager.Stop()
}

// StartPoll implements feed.Actuator.
func (e *Engine) StartPoll(interval time.Duration) {
	e.mu.RLock()
	ctx := e.ctx
	e.mu.RUnlock()
	if ctx == nil {
		return
	}
	e.poller.Start(ctx, interval)
}

// StopPoll implements feed.Actuator.
func (e *Engine) StopPoll() {
	e.poller.Stop()
}

// ServeCached implements feed.Actuator: outside trading hours the last
// finalized candle and indicator values are replayed from the cache so
// late-joining subscribers still get a picture.
func (e *Engine) ServeCached(ttl time.Duration) {
	e.mu.RLock()
	ctx := e.ctx
	pipelines := make([]*pipeline, 0, len(e.pipelines))
	for _, p := range e.pipelines {
		pipelines = append(pipelines, p)
	}
	e.mu.RUnlock()
	if ctx == nil {
		return
	}

	for _, p := range pipelines {
		cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		c, err := e.cache.GetLastCandle(cctx, p.instrumentID, p.interval)
		if err == nil {
			e.dispatcher.PublishCandle(models.CandleUpdate{Candle: *c})
		} else if err != cache.ErrCacheMiss {
			logger.Warn("Cached candle lookup failed",
				logger.String("instrument", p.instrumentID),
				logger.ErrorField(err),
			)
		}

		values, err := e.cache.GetIndicators(cctx, p.instrumentID)
		if err == nil {
			for kind, v := range values {
				e.dispatcher.PublishIndicator(models.IndicatorUpdate{
					InstrumentID: p.instrumentID,
					Kind:         kind,
					Value:        v,
					Time:         time.Now(),
					Final:        true,
				})
			}
		}
		cancel()
	}
}
