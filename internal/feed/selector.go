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

var strategyChanges = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "feed_strategy_changes_total",
		Help: "Total number of feed strategy transitions",
	},
	[]string{"mode"},
)

// Mode is the data-sourcing mode chosen by the selector.
type Mode int

const (
	ModePush Mode = iota
	ModePoll
	ModeCached
)

func (m Mode) String() string {
	switch m {
	case ModePush:
		return "push"
	case ModePoll:
		return "poll"
	default:
		return "cached"
	}
}

// Strategy is the selector's decision: where tick data comes from and how
// often it is refreshed. PushBackground keeps the push connection's retry
// loop running even though polling serves the data, so a recovered
// connection can restore push without a session change.
type Strategy struct {
	Mode           Mode
	PollInterval   time.Duration
	CacheTTL       time.Duration
	PushBackground bool
}

// Policy holds the cost/latency knobs behind the decision table.
type Policy struct {
	ShortPollInterval  time.Duration
	MediumPollInterval time.Duration
	CacheTTL           time.Duration
	FailureThreshold   int
}

// DefaultPolicy returns a conservative default policy.
func DefaultPolicy() Policy {
	return Policy{
		ShortPollInterval:  5 * time.Second,
		MediumPollInterval: 30 * time.Second,
		CacheTTL:           15 * time.Minute,
		FailureThreshold:   5,
	}
}

// Select maps a session state and the push connection's consecutive-failure
// count to a sourcing strategy:
//
//	OPEN                 -> push, or short polling once the push feed has
//	                        exceeded the failure threshold; the push feed
//	                        keeps retrying in the background so a successful
//	                        reconnect switches back to push
//	PRE_OPEN/POST_CLOSE  -> medium polling, no push connection
//	CLOSED/HOLIDAY       -> cached last-known-final data
func Select(state models.SessionState, pushFailures int, p Policy) Strategy {
	switch state {
	case models.SessionOpen:
		if pushFailures >= p.FailureThreshold {
			return Strategy{Mode: ModePoll, PollInterval: p.ShortPollInterval, PushBackground: true}
		}
		return Strategy{Mode: ModePush}
	case models.SessionPreOpen, models.SessionPostClose:
		return Strategy{Mode: ModePoll, PollInterval: p.MediumPollInterval}
	default:
		return Strategy{Mode: ModeCached, CacheTTL: p.CacheTTL}
	}
}

// SessionSource is the slice of the session clock the selector needs.
type SessionSource interface {
	State() models.SessionState
	Changes() <-chan models.SessionState
}

// Actuator receives the selector's side effects. The engine implements it
// by starting/stopping the connection manager and the poll scheduler.
type Actuator interface {
	StartPush()
	StopPush()
	StartPoll(interval time.Duration)
	StopPoll()
	ServeCached(ttl time.Duration)
}

// Selector re-evaluates the sourcing strategy whenever the session state
// changes or the push connection degrades past the failure threshold.
type Selector struct {
	clock  SessionSource
	policy Policy
	act    Actuator

	connEvents chan int // consecutive push failure counts
	failures   int
	started    bool

	mu      sync.Mutex
	current Strategy
}

// NewSelector creates a feed selector.
func NewSelector(clock SessionSource, policy Policy, act Actuator) *Selector {
	return &Selector{
		clock:      clock,
		policy:     policy,
		act:        act,
		connEvents: make(chan int, 8),
	}
}

// ReportPushFailures tells the selector the push feed's current
// consecutive-failure count. Zero means the connection recovered.
// Never blocks the caller.
func (s *Selector) ReportPushFailures(n int) {
	select {
	case s.connEvents <- n:
	default:
	}
}

// Current returns the strategy most recently applied.
func (s *Selector) Current() Strategy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Run applies the initial strategy and then reacts to session changes and
// connection failure reports until ctx is done.
func (s *Selector) Run(ctx context.Context) {
	s.evaluate()

	for {
		select {
		case <-ctx.Done():
			if s.started {
				s.act.StopPush()
				s.act.StopPoll()
			}
			return
		case <-s.clock.Changes():
			s.evaluate()
		case n := <-s.connEvents:
			s.failures = n
			s.evaluate()
		}
	}
}

// evaluate recomputes the strategy and applies it if it changed.
func (s *Selector) evaluate() {
	next := Select(s.clock.State(), s.failures, s.policy)
	if s.started && next == s.Current() {
		return
	}
	s.apply(next)
}

func (s *Selector) apply(next Strategy) {
	logger.Info("feed strategy selected",
		logger.String("mode", next.Mode.String()),
		logger.Duration("poll_interval", next.PollInterval),
		logger.Duration("cache_ttl", next.CacheTTL),
	)
	strategyChanges.WithLabelValues(next.Mode.String()).Inc()

	if next.Mode != ModePush && !next.PushBackground {
		s.act.StopPush()
	}
	if next.Mode != ModePoll {
		s.act.StopPoll()
	}

	switch next.Mode {
	case ModePush:
		s.act.StartPush()
	case ModePoll:
		s.act.StartPoll(next.PollInterval)
	case ModeCached:
		s.act.ServeCached(next.CacheTTL)
	}

	s.mu.Lock()
	s.current = next
	s.mu.Unlock()
	s.started = true
}
