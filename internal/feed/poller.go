package feed

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bawsi99/StockAnalyzer-Pro-sub001/internal/models"
	"github.com/bawsi99/StockAnalyzer-Pro-sub001/pkg/logger"
)

var (
	pollFetches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_poll_fetches_total",
		Help: "Total number of pull-path quote fetches",
	})
	pollErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_poll_errors_total",
		Help: "Total number of pull-path fetch errors",
	})
)

// QuoteSource is the pull-path collaborator: a latest-quote fetch against
// the market data API. Must be idempotent and safe to call repeatedly.
type QuoteSource interface {
	FetchLatest(ctx context.Context, instrumentID string) (*models.Tick, error)
}

// Poller drives the pull path: on a timer it fetches the latest quote for
// every subscribed instrument and hands the resulting ticks to the sink.
type Poller struct {
	source      QuoteSource
	instruments func() []string
	sink        func(*models.Tick)

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPoller creates a poller. instruments supplies the currently
// subscribed set; sink receives fetched ticks.
func NewPoller(source QuoteSource, instruments func() []string, sink func(*models.Tick)) *Poller {
	return &Poller{
		source:      source,
		instruments: instruments,
		sink:        sink,
	}
}

// Start begins polling at the given interval. Restarting with a new
// interval stops the previous loop first.
func (p *Poller) Start(ctx context.Context, interval time.Duration) {
	p.Stop()

	p.mu.Lock()
	defer p.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(1)
	go p.loop(ctx, interval)
}

// Stop halts polling. Safe to call when not running.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		p.wg.Wait()
	}
}

func (p *Poller) loop(ctx context.Context, interval time.Duration) {
	defer p.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Fetch once immediately so a freshly selected poll strategy does not
	// wait a full interval for its first data.
	p.fetchAll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.fetchAll(ctx)
		}
	}
}

func (p *Poller) fetchAll(ctx context.Context) {
	for _, id := range p.instruments() {
		tick, err := p.source.FetchLatest(ctx, id)
		pollFetches.Inc()
		if err != nil {
			pollErrors.Inc()
			logger.Warn("poll fetch failed",
				logger.String("instrument", id),
				logger.ErrorField(err),
			)
			continue
		}
		if tick != nil {
			p.sink(tick)
		}
	}
}
