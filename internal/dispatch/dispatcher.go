package dispatch

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bawsi99/StockAnalyzer-Pro-sub001/internal/models"
)

var (
	eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_events_published_total",
		Help: "Number of events published, by kind",
	}, []string{"kind"})
	eventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_events_dropped_total",
		Help: "Number of events dropped because a subscriber queue was full",
	}, []string{"subscriber"})
)

// EventKind identifies the payload carried by an Event.
type EventKind int

const (
	EventCandle EventKind = iota
	EventIndicator
	EventConnection
	EventSession
	EventStatus
)

func (k EventKind) String() string {
	switch k {
	case EventCandle:
		return "candle"
	case EventIndicator:
		return "indicator"
	case EventConnection:
		return "connection"
	case EventSession:
		return "session"
	case EventStatus:
		return "status"
	default:
		return "unknown"
	}
}

// Event is the single envelope delivered to subscribers. Exactly one of the
// payload fields is set, according to Kind.
type Event struct {
	Kind       EventKind
	Candle     *models.CandleUpdate
	Indicator  *models.IndicatorUpdate
	Connection *models.ConnectionHealth
	Session    models.SessionState
	Status     *models.StatusUpdate
}

// InstrumentID returns the instrument the event pertains to, or "" for
// engine-wide events (connection, session).
func (e Event) InstrumentID() string {
	switch e.Kind {
	case EventCandle:
		if e.Candle != nil {
			return e.Candle.Candle.InstrumentID
		}
	case EventIndicator:
		if e.Indicator != nil {
			return e.Indicator.InstrumentID
		}
	case EventStatus:
		if e.Status != nil {
			return e.Status.InstrumentID
		}
	}
	return ""
}

// Subscription is one consumer's bounded queue. When the queue is full the
// oldest event is discarded so consumers always converge on fresh values.
type Subscription struct {
	id          string
	ch          chan Event
	instruments map[string]bool // nil = all instruments
	drops       atomic.Uint64
	closed      atomic.Bool
}

// C returns the receive channel for this subscription.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// ID returns the subscriber identifier.
func (s *Subscription) ID() string {
	return s.id
}

// Drops returns how many events were discarded for this subscriber.
func (s *Subscription) Drops() uint64 {
	return s.drops.Load()
}

func (s *Subscription) wants(ev Event) bool {
	if s.instruments == nil {
		return true
	}
	id := ev.InstrumentID()
	if id == "" {
		// Engine-wide events go to everyone.
		return true
	}
	return s.instruments[id]
}

// deliver enqueues without blocking. A full queue sheds its oldest entry,
// so a stalled consumer falls behind instead of stalling the pipeline.
func (s *Subscription) deliver(ev Event) {
	for {
		select {
		case s.ch <- ev:
			return
		default:
		}
		select {
		case <-s.ch:
			s.drops.Add(1)
			eventsDropped.WithLabelValues(s.id).Inc()
		default:
		}
	}
}

// Dispatcher fans events out to subscribers. Publish never blocks; delivery
// order is preserved per instrument because each instrument's events are
// published from a single pipeline goroutine.
type Dispatcher struct {
	mu        sync.RWMutex
	subs      map[string]*Subscription
	queueSize int
	closed    bool
}

// Config holds configuration for the dispatcher
type Config struct {
	QueueSize int // per-subscriber queue capacity
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{QueueSize: 256}
}

// NewDispatcher creates a new dispatcher
func NewDispatcher(cfg Config) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	return &Dispatcher{
		subs:      make(map[string]*Subscription),
		queueSize: cfg.QueueSize,
	}
}

// Subscribe registers a consumer. Passing no instruments subscribes to all;
// otherwise only events for the named instruments (plus engine-wide events)
// are delivered. Subscribing twice with the same id replaces the old
// subscription.
func (d *Dispatcher) Subscribe(id string, instruments ...string) *Subscription {
	sub := &Subscription{
		id: id,
		ch: make(chan Event, d.queueSize),
	}
	if len(instruments) > 0 {
		sub.instruments = make(map[string]bool, len(instruments))
		for _, in := range instruments {
			sub.instruments[in] = true
		}
	}

	d.mu.Lock()
	if old, ok := d.subs[id]; ok {
		old.closeOnce()
	}
	d.subs[id] = sub
	d.mu.Unlock()

	return sub
}

// Unsubscribe removes a consumer and closes its channel.
func (d *Dispatcher) Unsubscribe(id string) {
	d.mu.Lock()
	sub, ok := d.subs[id]
	if ok {
		delete(d.subs, id)
	}
	d.mu.Unlock()

	if ok {
		sub.closeOnce()
	}
}

func (s *Subscription) closeOnce() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.ch)
	}
}

// Publish fans an event out to every interested subscriber without blocking.
func (d *Dispatcher) Publish(ev Event) {
	eventsPublished.WithLabelValues(ev.Kind.String()).Inc()

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	for _, sub := range d.subs {
		if sub.wants(ev) {
			sub.deliver(ev)
		}
	}
}

// PublishCandle publishes a candle update event.
func (d *Dispatcher) PublishCandle(upd models.CandleUpdate) {
	d.Publish(Event{Kind: EventCandle, Candle: &upd})
}

// PublishIndicator publishes an indicator update event.
func (d *Dispatcher) PublishIndicator(upd models.IndicatorUpdate) {
	d.Publish(Event{Kind: EventIndicator, Indicator: &upd})
}

// PublishConnection publishes a connection health event.
func (d *Dispatcher) PublishConnection(h models.ConnectionHealth) {
	d.Publish(Event{Kind: EventConnection, Connection: &h})
}

// PublishStatus publishes a pipeline status event.
func (d *Dispatcher) PublishStatus(upd models.StatusUpdate) {
	d.Publish(Event{Kind: EventStatus, Status: &upd})
}

// PublishSession publishes a session state change event.
func (d *Dispatcher) PublishSession(state models.SessionState) {
	d.Publish(Event{Kind: EventSession, Session: state})
}

// SubscriberCount returns the number of active subscriptions.
func (d *Dispatcher) SubscriberCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subs)
}

// Close shuts down all subscriptions.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	for id, sub := range d.subs {
		sub.closeOnce()
		delete(d.subs, id)
	}
}
