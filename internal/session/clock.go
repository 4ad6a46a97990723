package session

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bawsi99/StockAnalyzer-Pro-sub001/internal/models"
	"github.com/bawsi99/StockAnalyzer-Pro-sub001/pkg/logger"
)

var sessionStateGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "session_state",
	Help: "Current market session state (0=closed 1=pre_open 2=open 3=post_close 4=holiday)",
})

// Config holds session clock timing parameters.
type Config struct {
	PreOpenLead     time.Duration // pre-open window starts this long before the open
	PostCloseTail   time.Duration // post-close window lasts this long after the close
	RefreshInterval time.Duration
}

// DefaultConfig returns the default clock timing.
func DefaultConfig() Config {
	return Config{
		PreOpenLead:     90 * time.Minute,
		PostCloseTail:   4 * time.Hour,
		RefreshInterval: 30 * time.Second,
	}
}

// Clock derives the market session state from wall time and the session
// calendar. Only the Run goroutine writes the published state; everyone
// else reads a snapshot via State().
type Clock struct {
	cal     Calendar
	cfg     Config
	state   atomic.Int32
	changes chan models.SessionState
}

// NewClock creates a session clock. The published state starts as Closed
// until the first Refresh.
func NewClock(cal Calendar, cfg Config) *Clock {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultConfig().RefreshInterval
	}
	return &Clock{
		cal:     cal,
		cfg:     cfg,
		changes: make(chan models.SessionState, 4),
	}
}

// StateAt computes the session state for the given instant. Pure: no side
// effects, no published-state mutation. A calendar failure yields Closed,
// biasing toward the cheaper data path.
func (c *Clock) StateAt(now time.Time) models.SessionState {
	trading, err := c.cal.IsTradingDay(now)
	if err != nil {
		logger.Warn("session calendar unavailable, assuming closed",
			logger.ErrorField(err),
		)
		return models.SessionClosed
	}
	if !trading {
		wd := now.Weekday()
		if wd == time.Saturday || wd == time.Sunday {
			return models.SessionClosed
		}
		return models.SessionHoliday
	}

	open, close, err := c.cal.SessionWindow(now)
	if err != nil {
		logger.Warn("session window unavailable, assuming closed",
			logger.ErrorField(err),
		)
		return models.SessionClosed
	}

	switch {
	case now.Before(open.Add(-c.cfg.PreOpenLead)):
		return models.SessionClosed
	case now.Before(open):
		return models.SessionPreOpen
	case now.Before(close):
		return models.SessionOpen
	case now.Before(close.Add(c.cfg.PostCloseTail)):
		return models.SessionPostClose
	default:
		return models.SessionClosed
	}
}

// State returns the most recently published session state.
func (c *Clock) State() models.SessionState {
	return models.SessionState(c.state.Load())
}

// Changes returns the channel on which state transitions are announced.
// Single consumer; announcements are dropped if the consumer lags, the
// consumer re-reads State() anyway.
func (c *Clock) Changes() <-chan models.SessionState {
	return c.changes
}

// Refresh recomputes and publishes the session state, announcing a change
// if the state moved. Returns the published state.
func (c *Clock) Refresh(now time.Time) models.SessionState {
	next := c.StateAt(now)
	prev := models.SessionState(c.state.Swap(int32(next)))
	sessionStateGauge.Set(float64(next))

	if next != prev {
		logger.Info("session state changed",
			logger.String("from", prev.String()),
			logger.String("to", next.String()),
		)
		select {
		case c.changes <- next:
		default:
		}
	}
	return next
}

// Run re-evaluates the session state on a fixed interval until ctx is done.
func (c *Clock) Run(ctx context.Context) {
	c.Refresh(time.Now())

	ticker := time.NewTicker(c.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			c.Refresh(now)
		}
	}
}
