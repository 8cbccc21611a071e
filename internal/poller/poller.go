// ABOUTME: Periodic fallback fetch that reconciles the active task conversation
// ABOUTME: Cheap newest-message check first; full window replace only when it moved

package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ZIon2025-x/LinkU1-sub000/internal/api"
	"github.com/ZIon2025-x/LinkU1-sub000/internal/clock"
	"github.com/ZIon2025-x/LinkU1-sub000/internal/conversation"
	"github.com/ZIon2025-x/LinkU1-sub000/internal/frame"
	"github.com/ZIon2025-x/LinkU1-sub000/internal/metrics"
)

const (
	// DefaultActiveInterval applies while a task conversation is active.
	DefaultActiveInterval = 3 * time.Second

	// DefaultIdleInterval applies otherwise.
	DefaultIdleInterval = 30 * time.Second

	// DefaultPageSize is the visible window fetched on reconciliation.
	DefaultPageSize = 20

	tickTimeout = 15 * time.Second
)

// Fetcher reads messages from the server. *api.Client satisfies it.
type Fetcher interface {
	LatestMessage(ctx context.Context, convID string) (*api.Message, error)
	FetchMessages(ctx context.Context, convID, cursor string, limit int) (*api.MessagePage, error)
}

// UnreadSink receives newly observed messages. *unread.Aggregator satisfies it.
type UnreadSink interface {
	Observe(convID string, m conversation.Message) bool
	Recount(ctx context.Context) error
	RetryPendingReads(ctx context.Context)
}

// Config holds Poller settings.
type Config struct {
	ActiveInterval time.Duration
	IdleInterval   time.Duration
	PageSize       int
}

// Poller drives reconciliation on its own timer.
type Poller struct {
	cfg     Config
	fetcher Fetcher
	store   *conversation.Store
	unread  UnreadSink
	selfID  string
	clk     clock.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	ctx     context.Context
	active  string
	hidden  bool
	running bool
	timer   clock.Timer
}

// Option configures a Poller.
type Option func(*Poller)

// WithClock sets the clock driving the timer.
func WithClock(clk clock.Clock) Option { return func(p *Poller) { p.clk = clk } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(p *Poller) { p.logger = l } }

// WithMetrics records tick outcomes.
func WithMetrics(m *metrics.Metrics) Option { return func(p *Poller) { p.metrics = m } }

// New creates a Poller. unread may be nil.
func New(cfg Config, fetcher Fetcher, store *conversation.Store, unread UnreadSink, selfID string, opts ...Option) *Poller {
	if cfg.ActiveInterval <= 0 {
		cfg.ActiveInterval = DefaultActiveInterval
	}
	if cfg.IdleInterval <= 0 {
		cfg.IdleInterval = DefaultIdleInterval
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	p := &Poller{
		cfg:     cfg,
		fetcher: fetcher,
		store:   store,
		unread:  unread,
		selfID:  selfID,
		clk:     clock.Real(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "poller")
	return p
}

// Start arms the timer. ctx bounds every tick.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ctx = ctx
	p.running = true
	p.scheduleLocked()
}

// Stop disarms the timer. A callback already in flight becomes a no-op.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = false
	p.stopTimerLocked()
}

// SetActive sets the conversation being viewed. Only task conversations are
// polled; anything else switches to the idle interval.
func (p *Poller) SetActive(convID string) {
	if kind, _, err := conversation.ParseID(convID); err != nil || kind != conversation.KindTask {
		convID = ""
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active == convID {
		return
	}
	p.active = convID
	p.scheduleLocked()
}

// Active returns the polled conversation id, or "".
func (p *Poller) Active() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// SetHidden pauses polling while the view is hidden.
func (p *Poller) SetHidden(hidden bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.hidden == hidden {
		return
	}
	p.hidden = hidden
	if hidden {
		p.stopTimerLocked()
		return
	}
	p.scheduleLocked()
}

// interval returns the delay before the next tick.
func (p *Poller) interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.intervalLocked()
}

func (p *Poller) intervalLocked() time.Duration {
	if p.active != "" {
		return p.cfg.ActiveInterval
	}
	return p.cfg.IdleInterval
}

func (p *Poller) stopTimerLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

func (p *Poller) scheduleLocked() {
	p.stopTimerLocked()
	if !p.running || p.hidden {
		return
	}
	p.timer = p.clk.AfterFunc(p.intervalLocked(), p.fire)
}

func (p *Poller) fire() {
	p.mu.Lock()
	live := p.running && !p.hidden
	ctx := p.ctx
	p.timer = nil
	p.mu.Unlock()
	if !live {
		return
	}

	tickCtx, cancel := context.WithTimeout(ctx, tickTimeout)
	if err := p.Tick(tickCtx); err != nil && !errors.Is(err, context.Canceled) {
		p.logger.Warn("poll failed", "error", err)
	}
	cancel()

	p.mu.Lock()
	if p.timer == nil {
		p.scheduleLocked()
	}
	p.mu.Unlock()
}

// Tick runs one reconciliation pass.
func (p *Poller) Tick(ctx context.Context) error {
	active := p.Active()
	if active == "" {
		p.metrics.Poll("idle")
		if p.unread == nil {
			return nil
		}
		if err := p.unread.Recount(ctx); err != nil {
			p.metrics.Poll("error")
			return err
		}
		p.unread.RetryPendingReads(ctx)
		return nil
	}

	latest, err := p.fetcher.LatestMessage(ctx, active)
	if err != nil {
		p.metrics.Poll("error")
		return fmt.Errorf("checking newest message: %w", err)
	}
	if latest == nil || string(latest.ID) == p.store.LastMessageID(active) {
		p.metrics.Poll("unchanged")
		p.retryReads(ctx)
		return nil
	}

	page, err := p.fetcher.FetchMessages(ctx, active, "", p.cfg.PageSize)
	if err != nil {
		p.metrics.Poll("error")
		return fmt.Errorf("fetching window: %w", err)
	}

	now := p.clk.Now()
	msgs := make([]conversation.Message, 0, len(page.Messages))
	for _, wm := range page.Messages {
		msgs = append(msgs, ToLocal(wm, p.selfID, active, now))
	}

	fresh := p.store.ReplaceWindow(active, msgs)
	if snap, ok := p.store.Snapshot(active); ok && snap.HistoryCursor == "" && !snap.HasMoreHistory {
		p.store.SetHistory(active, page.NextCursor, page.HasMore)
	}
	if p.unread != nil {
		for _, m := range fresh {
			p.unread.Observe(active, m)
		}
	}
	p.metrics.Poll("merged")
	p.logger.Debug("window reconciled", "conversation_id", active, "fresh", len(fresh))

	p.retryReads(ctx)
	return nil
}

func (p *Poller) retryReads(ctx context.Context) {
	if p.unread != nil {
		p.unread.RetryPendingReads(ctx)
	}
}

// ToLocal converts a server message. Content holding a serialized lifecycle
// payload becomes its template text as a system event; anything else is
// kept verbatim.
func ToLocal(wm api.Message, selfID, convID string, now time.Time) conversation.Message {
	m := wm.ToMessage(selfID, convID, now)
	if text, ok := frame.FormatContent(m.Content); ok {
		m.Content = text
		m.Kind = conversation.MessageSystemEvent
		m.SenderRole = conversation.RoleSystem
		m.SenderID = ""
	}
	return m
}
