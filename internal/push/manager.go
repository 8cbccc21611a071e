// ABOUTME: Owns the single push-channel connection for a session
// ABOUTME: Swallows heartbeats and reconnects after abnormal closes on a fixed delay

package push

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/tidwall/gjson"

	"github.com/ZIon2025-x/LinkU1-sub000/internal/clock"
	"github.com/ZIon2025-x/LinkU1-sub000/internal/metrics"
)

const (
	// DefaultReconnectDelay is the fixed wait before each reconnect attempt.
	DefaultReconnectDelay = 3 * time.Second

	// DefaultMaxReconnectAttempts is how many consecutive attempts are made
	// before the push path gives up until the next Connect.
	DefaultMaxReconnectAttempts = 5

	dialTimeout  = 10 * time.Second
	writeTimeout = 5 * time.Second
)

// ErrNotConnected is returned by Connect when the manager has been closed.
var ErrNotConnected = errors.New("push channel closed")

// Config holds Manager settings.
type Config struct {
	URL                  string // base push URL; the user id is appended as a path segment
	CookieName           string
	SessionToken         string
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
}

// Manager maintains one push connection. Inbound frames other than heartbeats
// are passed to the handler on the reader goroutine.
type Manager struct {
	cfg     Config
	dial    DialFunc
	handler func([]byte)
	onState func(open bool)
	clk     clock.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	conn     Conn
	open     bool
	userID   string
	gen      uint64 // bumped per Connect; stale readers and timers compare against it
	attempts int
	timer    clock.Timer
	stopped  bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithDialer replaces WebsocketDial.
func WithDialer(d DialFunc) Option { return func(m *Manager) { m.dial = d } }

// WithClock replaces the wall clock used for reconnect timers.
func WithClock(clk clock.Clock) Option { return func(m *Manager) { m.clk = clk } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(m *Manager) { m.logger = l } }

// WithMetrics records reconnect attempts.
func WithMetrics(mt *metrics.Metrics) Option { return func(m *Manager) { m.metrics = mt } }

// WithStateHook is called whenever the connection opens or closes.
func WithStateHook(f func(open bool)) Option { return func(m *Manager) { m.onState = f } }

// NewManager creates a Manager that delivers frames to handler.
func NewManager(cfg Config, handler func([]byte), opts ...Option) *Manager {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	m := &Manager{
		cfg:     cfg,
		dial:    WebsocketDial,
		handler: handler,
		clk:     clock.Real(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "push")
	return m
}

// Connect opens the push connection for userID, replacing any existing one
// and resetting the reconnect attempt count. ctx bounds the whole session; cancelling
// it tears the connection down. A failed dial schedules a reconnect and
// returns the error.
func (m *Manager) Connect(ctx context.Context, userID string) error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return ErrNotConnected
	}
	old, oldCancel := m.teardownLocked(), m.cancel
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.userID = userID
	m.attempts = 0
	m.gen++
	gen := m.gen
	m.mu.Unlock()

	if old != nil {
		old.Close(websocket.StatusNormalClosure, "reconnecting")
	}
	if oldCancel != nil {
		oldCancel()
	}

	return m.dialAndRun(gen)
}

func (m *Manager) endpoint(userID string) string {
	return strings.TrimRight(m.cfg.URL, "/") + "/" + url.PathEscape(userID)
}

func (m *Manager) header() http.Header {
	h := http.Header{}
	if m.cfg.SessionToken != "" {
		cookie := &http.Cookie{Name: m.cfg.CookieName, Value: m.cfg.SessionToken}
		h.Set("Cookie", cookie.String())
	}
	return h
}

func (m *Manager) dialAndRun(gen uint64) error {
	m.mu.Lock()
	if m.stopped || gen != m.gen {
		m.mu.Unlock()
		return ErrNotConnected
	}
	ctx := m.ctx
	target := m.endpoint(m.userID)
	m.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	conn, err := m.dial(dialCtx, target, m.header())
	cancel()
	if err != nil {
		m.logger.Warn("push dial failed", "error", err)
		m.scheduleReconnect(gen)
		return err
	}

	m.mu.Lock()
	if m.stopped || gen != m.gen {
		m.mu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "superseded")
		return ErrNotConnected
	}
	m.conn = conn
	m.open = true
	m.attempts = 0
	m.mu.Unlock()

	m.logger.Info("push channel open")
	m.notify(true)

	go m.readLoop(ctx, conn, gen)
	return nil
}

func (m *Manager) readLoop(ctx context.Context, conn Conn, gen uint64) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			m.handleClose(conn, gen, err)
			return
		}

		if gjson.GetBytes(data, "type").Str == "heartbeat" {
			continue
		}
		if m.handler != nil {
			m.handler(data)
		}
	}
}

func (m *Manager) handleClose(conn Conn, gen uint64, err error) {
	m.mu.Lock()
	if m.conn == conn {
		m.conn = nil
		m.open = false
	}
	live := !m.stopped && gen == m.gen && m.ctx.Err() == nil
	m.mu.Unlock()

	if !live {
		return
	}
	m.notify(false)

	if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
		m.logger.Info("push channel closed normally")
		return
	}

	m.logger.Warn("push channel closed abnormally", "error", err)
	m.scheduleReconnect(gen)
}

// scheduleReconnect arms the reconnect timer unless the attempts are exhausted.
func (m *Manager) scheduleReconnect(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped || gen != m.gen {
		return
	}
	if m.attempts >= m.cfg.MaxReconnectAttempts {
		m.logger.Error("push reconnect attempts exhausted", "attempts", m.attempts)
		return
	}
	m.attempts++
	attempt := m.attempts
	m.metrics.ReconnectAttempt()

	m.logger.Info("scheduling push reconnect", "attempt", attempt, "delay", m.cfg.ReconnectDelay)
	m.timer = m.clk.AfterFunc(m.cfg.ReconnectDelay, func() {
		m.mu.Lock()
		live := !m.stopped && gen == m.gen
		m.mu.Unlock()
		if !live {
			return
		}
		_ = m.dialAndRun(gen)
	})
}

// Send writes frame as JSON. It reports whether the frame was handed to an
// open connection; callers fall back to HTTP on false.
func (m *Manager) Send(frame any) bool {
	data, err := json.Marshal(frame)
	if err != nil {
		m.logger.Error("encoding push frame", "error", err)
		return false
	}

	m.mu.Lock()
	conn, open, ctx := m.conn, m.open, m.ctx
	m.mu.Unlock()
	if !open || conn == nil {
		return false
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		m.logger.Warn("push write failed", "error", err)
		return false
	}
	return true
}

// IsOpen reports whether the push connection is live.
func (m *Manager) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

// reconnectAttempts returns the consecutive reconnect attempts made since the last open.
func (m *Manager) reconnectAttempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// Close shuts the connection with a normal closure and disables reconnects.
// The Manager cannot be reused.
func (m *Manager) Close() {
	m.mu.Lock()
	wasOpen := m.open
	m.stopped = true
	conn, cancel := m.teardownLocked(), m.cancel
	m.mu.Unlock()

	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "bye")
	}
	if cancel != nil {
		cancel()
	}
	if wasOpen {
		m.notify(false)
	}
}

// teardownLocked stops the reconnect timer and detaches the connection,
// returning it for the caller to close outside the lock.
func (m *Manager) teardownLocked() Conn {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	conn := m.conn
	m.conn = nil
	m.open = false
	return conn
}

func (m *Manager) notify(open bool) {
	if m.onState != nil {
		m.onState(open)
	}
}
