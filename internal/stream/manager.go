package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bawsi99/StockAnalyzer-Pro-sub001/internal/models"
	"github.com/bawsi99/StockAnalyzer-Pro-sub001/pkg/logger"
)

var (
	reconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stream_reconnects_total",
		Help: "Total number of push-feed reconnect attempts",
	})
	connStateGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stream_connection_state",
		Help: "Push-feed connection state (0=disconnected 1=connecting 2=connected 3=degraded 4=backing_off)",
	})
	framesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stream_frames_received_total",
		Help: "Total number of raw frames received from the push feed",
	})
)

// Config holds push-feed connection configuration.
type Config struct {
	URL               string
	HandshakeTimeout  time.Duration
	HeartbeatTimeout  time.Duration // no frame within this window => degraded
	WriteTimeout      time.Duration
	ReconnectDelay    time.Duration // backoff base
	MaxReconnectDelay time.Duration // backoff cap
	BackoffJitter     float64       // fraction of the delay added as random jitter
	SuccessResetAfter time.Duration // connected this long => failure count resets
}

// DefaultConfig returns a default connection configuration.
func DefaultConfig(url string) Config {
	return Config{
		URL:               url,
		HandshakeTimeout:  10 * time.Second,
		HeartbeatTimeout:  30 * time.Second,
		WriteTimeout:      10 * time.Second,
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 60 * time.Second,
		BackoffJitter:     0.2,
		SuccessResetAfter: 30 * time.Second,
	}
}

// FrameHandler receives every raw frame together with its receipt time.
type FrameHandler func(raw []byte, receipt time.Time)

// subscribeMessage is the wire format of the feed subscription request.
type subscribeMessage struct {
	Action      string   `json:"action"`
	Instruments []string `json:"instruments"`
}

// Manager owns the push-feed connection lifecycle as an explicit state
// machine:
//
//	DISCONNECTED -> CONNECTING -> CONNECTED
//	CONNECTED -> DEGRADED -> CONNECTING (one fast reconnect)
//	DEGRADED -> BACKING_OFF -> CONNECTING (repeated failures)
//
// A single goroutine drives all transitions; the rest of the process only
// reads published snapshots via Health().
type Manager struct {
	cfg Config

	onFrame    FrameHandler
	onState    func(models.ConnectionState)
	onFailures func(consecutive int)

	mu          sync.RWMutex
	state       models.ConnectionState
	instruments []string
	lastMessage time.Time
	reconnects  int
	failures    int

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	rng     *rand.Rand
}

// NewManager creates a connection manager. onFrame receives every raw
// message; onState is invoked on every transition; onFailures reports the
// consecutive reconnect-failure count (zero on recovery).
func NewManager(cfg Config, onFrame FrameHandler, onState func(models.ConnectionState), onFailures func(int)) *Manager {
	return &Manager{
		cfg:        cfg,
		onFrame:    onFrame,
		onState:    onState,
		onFailures: onFailures,
		state:      models.ConnDisconnected,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// UpdateInstruments replaces the subscribed instrument set. If currently
// connected the new subscription is sent immediately; otherwise it takes
// effect on the next connect.
func (m *Manager) UpdateInstruments(ids []string) {
	m.mu.Lock()
	m.instruments = append([]string(nil), ids...)
	m.mu.Unlock()
}

// Start launches the connection state machine. Returns an error if the
// manager is already running.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return models.ErrAlreadyConnected
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run(ctx)
	return nil
}

// Stop tears the connection down and cancels any in-flight backoff timer.
// Safe to call when not running.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	running := m.running
	m.mu.Unlock()

	if !running || cancel == nil {
		return
	}
	cancel()
	m.wg.Wait()

	m.mu.Lock()
	m.running = false
	m.mu.Unlock()
}

// State returns the current connection state.
func (m *Manager) State() models.ConnectionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Health returns the connection health snapshot for the control surface.
func (m *Manager) Health() models.ConnectionHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	age := time.Duration(0)
	if !m.lastMessage.IsZero() {
		age = time.Since(m.lastMessage)
	}
	return models.ConnectionHealth{
		State:          m.state,
		LastMessageAge: age,
		ReconnectCount: m.reconnects,
	}
}

// run drives the state machine until ctx is cancelled. Backoff is a single
// timer in this loop rather than recursive retries, so cancellation is one
// ctx check.
func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()
	defer m.setState(models.ConnDisconnected)

	fastRetry := false

	for ctx.Err() == nil {
		m.setState(models.ConnConnecting)

		conn, err := m.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("push feed connect failed",
				logger.String("url", m.cfg.URL),
				logger.ErrorField(err),
			)
			m.recordFailure()
			fastRetry = false
			if !m.waitBackoff(ctx) {
				return
			}
			continue
		}

		connectedAt := time.Now()
		m.onConnected()
		readErr := m.readLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}

		m.setState(models.ConnDegraded)
		logger.Warn("push feed connection lost",
			logger.ErrorField(readErr),
			logger.Duration("uptime", time.Since(connectedAt)),
		)

		if time.Since(connectedAt) >= m.cfg.SuccessResetAfter {
			// Sustained success: reset the failure streak and permit
			// one fast reconnect before backing off again.
			m.resetFailures()
			fastRetry = false
		}

		if !fastRetry {
			fastRetry = true
			continue
		}

		fastRetry = false
		m.recordFailure()
		if !m.waitBackoff(ctx) {
			return
		}
	}
}

// dial performs the websocket handshake and sends the subscription message.
func (m *Manager) dial(ctx context.Context) (*websocket.Conn, error) {
	reconnectsTotal.Inc()
	m.mu.Lock()
	m.reconnects++
	m.mu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: m.cfg.HandshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, m.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial push feed: %w", err)
	}

	if err := m.sendSubscribe(conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

func (m *Manager) sendSubscribe(conn *websocket.Conn) error {
	m.mu.RLock()
	ids := append([]string(nil), m.instruments...)
	m.mu.RUnlock()

	msg, err := json.Marshal(subscribeMessage{Action: "subscribe", Instruments: ids})
	if err != nil {
		return fmt.Errorf("failed to marshal subscribe message: %w", err)
	}
	_ = conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		return fmt.Errorf("failed to send subscribe message: %w", err)
	}
	return nil
}

func (m *Manager) onConnected() {
	m.mu.Lock()
	m.lastMessage = time.Now()
	m.mu.Unlock()

	m.setState(models.ConnConnected)
	if m.onFailures != nil {
		m.onFailures(0)
	}
	logger.Info("push feed connected", logger.String("url", m.cfg.URL))
}

// readLoop forwards frames until the connection errors or goes silent
// longer than the heartbeat timeout. Pings keep a healthy but quiet feed
// alive; pongs count as heartbeats.
func (m *Manager) readLoop(ctx context.Context, conn *websocket.Conn) error {
	conn.SetPongHandler(func(string) error {
		m.touch()
		return conn.SetReadDeadline(time.Now().Add(m.cfg.HeartbeatTimeout))
	})

	pingCtx, stopPing := context.WithCancel(ctx)
	defer stopPing()
	go m.pingLoop(pingCtx, conn)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_ = conn.SetReadDeadline(time.Now().Add(m.cfg.HeartbeatTimeout))
		msgType, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}

		receipt := time.Now()
		m.touch()
		framesReceived.Inc()
		if m.onFrame != nil {
			m.onFrame(raw, receipt)
		}
	}
}

func (m *Manager) pingLoop(ctx context.Context, conn *websocket.Conn) {
	interval := m.cfg.HeartbeatTimeout / 3
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(m.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

func (m *Manager) touch() {
	m.mu.Lock()
	m.lastMessage = time.Now()
	m.mu.Unlock()
}

func (m *Manager) setState(s models.ConnectionState) {
	m.mu.Lock()
	if m.state == s {
		m.mu.Unlock()
		return
	}
	m.state = s
	m.mu.Unlock()

	connStateGauge.Set(float64(s))
	if m.onState != nil {
		m.onState(s)
	}
}

func (m *Manager) recordFailure() {
	m.mu.Lock()
	m.failures++
	n := m.failures
	m.mu.Unlock()

	if m.onFailures != nil {
		m.onFailures(n)
	}
}

func (m *Manager) resetFailures() {
	m.mu.Lock()
	changed := m.failures != 0
	m.failures = 0
	m.mu.Unlock()

	if changed && m.onFailures != nil {
		m.onFailures(0)
	}
}

// ConsecutiveFailures returns the current reconnect-failure streak.
func (m *Manager) ConsecutiveFailures() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.failures
}

// waitBackoff sleeps for the current backoff delay. Returns false if ctx
// was cancelled while waiting.
func (m *Manager) waitBackoff(ctx context.Context) bool {
	m.setState(models.ConnBackingOff)

	m.mu.RLock()
	attempt := m.failures
	m.mu.RUnlock()

	delay := backoffDelay(m.cfg.ReconnectDelay, m.cfg.MaxReconnectDelay, attempt)
	if m.cfg.BackoffJitter > 0 {
		delay += time.Duration(m.rng.Float64() * m.cfg.BackoffJitter * float64(delay))
	}

	logger.Info("push feed backing off",
		logger.Duration("delay", delay),
		logger.Int("consecutive_failures", attempt),
	)

	select {
	case <-ctx.Done():
		return false
	case <-time.After(delay):
		return true
	}
}

// backoffDelay returns the deterministic part of the reconnect delay:
// base doubled per consecutive failure, capped at max.
func backoffDelay(base, max time.Duration, failures int) time.Duration {
	if failures < 1 {
		failures = 1
	}
	delay := base
	for i := 1; i < failures; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
