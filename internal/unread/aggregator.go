// ABOUTME: Reconciles unread counts from push, polling and authoritative server recounts
// ABOUTME: Counts each message once and debounces recounts so the server always wins

package unread

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ZIon2025-x/LinkU1-sub000/internal/api"
	"github.com/ZIon2025-x/LinkU1-sub000/internal/clock"
	"github.com/ZIon2025-x/LinkU1-sub000/internal/conversation"
	"github.com/ZIon2025-x/LinkU1-sub000/internal/dedupe"
	"github.com/ZIon2025-x/LinkU1-sub000/internal/metrics"
)

const (
	// DefaultDebounce coalesces bursts of provisional increments into one recount.
	DefaultDebounce = 100 * time.Millisecond

	// DefaultNearBottom is the viewport distance in pixels within which a
	// conversation counts as read.
	DefaultNearBottom = 150

	recountTimeout = 10 * time.Second
	seenTTL        = 24 * time.Hour
	seenMaxSize    = 50_000
)

// ErrNotAtBottom is returned by MarkRead when the viewport is too far from
// the newest message.
var ErrNotAtBottom = errors.New("viewport not near bottom")

// Recounter fetches authoritative unread counts. *api.Client satisfies it.
type Recounter interface {
	UnreadCounts(ctx context.Context) (*api.UnreadCounts, error)
}

// ReadMarker acknowledges reads on the server. *api.Client satisfies it.
type ReadMarker interface {
	MarkRead(ctx context.Context, convID, messageID string) error
}

// Aggregator owns the process-wide unread aggregate for one session.
type Aggregator struct {
	recounter  Recounter
	marker     ReadMarker
	store      *conversation.Store
	seen       *dedupe.Cache
	clk        clock.Clock
	debounce   time.Duration
	nearBottom int
	logger     *slog.Logger
	metrics    *metrics.Metrics
	onChange   func(total int)
	flight     singleflight.Group

	mu           sync.Mutex
	total        int
	perConv      map[string]int
	pendingReads map[string]string // conversation id -> message id awaiting ack
	timer        clock.Timer
	closed       bool
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClock sets the clock used for debounce timers and dedup expiry.
func WithClock(clk clock.Clock) Option { return func(a *Aggregator) { a.clk = clk } }

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option { return func(a *Aggregator) { a.debounce = d } }

// WithNearBottom overrides DefaultNearBottom.
func WithNearBottom(px int) Option { return func(a *Aggregator) { a.nearBottom = px } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(a *Aggregator) { a.logger = l } }

// WithMetrics exports the aggregate as a gauge.
func WithMetrics(m *metrics.Metrics) Option { return func(a *Aggregator) { a.metrics = m } }

// WithChangeHook is called with the new total whenever it changes.
func WithChangeHook(f func(total int)) Option { return func(a *Aggregator) { a.onChange = f } }

// NewAggregator creates an Aggregator writing per-conversation counts into store.
func NewAggregator(recounter Recounter, marker ReadMarker, store *conversation.Store, opts ...Option) *Aggregator {
	a := &Aggregator{
		recounter:    recounter,
		marker:       marker,
		store:        store,
		clk:          clock.Real(),
		debounce:     DefaultDebounce,
		nearBottom:   DefaultNearBottom,
		logger:       slog.Default(),
		perConv:      make(map[string]int),
		pendingReads: make(map[string]string),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.seen = dedupe.New(seenTTL, seenMaxSize, dedupe.WithClock(a.clk))
	a.logger = a.logger.With("component", "unread")
	return a
}

// Total returns the aggregate unread count.
func (a *Aggregator) Total() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.total
}

// Count returns the unread count for one conversation.
func (a *Aggregator) Count(convID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.perConv[convID]
}

// Observe reports a newly delivered message from either producer. Messages
// from self and system events are ignored, and a message id already counted
// by the other producer counts once. Reports whether the count changed.
func (a *Aggregator) Observe(convID string, m conversation.Message) bool {
	if m.SenderRole == conversation.RoleSelf || m.Kind == conversation.MessageSystemEvent {
		return false
	}
	if a.seen.CheckAndMark(dedupe.Key(convID, m.ID)) {
		return false
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return false
	}
	a.perConv[convID]++
	a.total++
	n, total := a.perConv[convID], a.total
	a.scheduleRecountLocked()
	a.mu.Unlock()

	a.store.SetUnread(convID, n)
	a.changed(total)
	return true
}

// MarkSeen records message ids as already counted without changing counts.
// Used for messages loaded from history or present at login.
func (a *Aggregator) MarkSeen(convID string, msgs []conversation.Message) {
	for _, m := range msgs {
		a.seen.Mark(dedupe.Key(convID, m.ID))
	}
}

// scheduleRecountLocked restarts the debounce timer.
func (a *Aggregator) scheduleRecountLocked() {
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = a.clk.AfterFunc(a.debounce, func() {
		a.mu.Lock()
		live := !a.closed
		a.timer = nil
		a.mu.Unlock()
		if !live {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), recountTimeout)
		defer cancel()
		if err := a.Recount(ctx); err != nil {
			a.logger.Warn("debounced unread recount failed", "error", err)
		}
	})
}

// Recount replaces every count with the server's. Concurrent callers share
// one request.
func (a *Aggregator) Recount(ctx context.Context) error {
	v, err, _ := a.flight.Do("recount", func() (any, error) {
		return a.recounter.UnreadCounts(ctx)
	})
	if err != nil {
		return fmt.Errorf("fetching unread counts: %w", err)
	}
	counts := v.(*api.UnreadCounts)

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	previous := a.perConv
	a.perConv = make(map[string]int, len(counts.ByConversation))
	for id, n := range counts.ByConversation {
		a.perConv[id] = n
	}
	a.total = counts.Total
	total := a.total
	current := a.perConv
	a.mu.Unlock()

	for id := range previous {
		if _, ok := current[id]; !ok {
			a.store.SetUnread(id, 0)
		}
	}
	for id, n := range current {
		a.store.SetUnread(id, n)
	}
	a.changed(total)
	return nil
}

// MarkRead clears convID's count when the viewport is within the near-bottom
// threshold and the server acknowledges the read of the newest message. A
// failed acknowledgement is queued for RetryPendingReads.
func (a *Aggregator) MarkRead(ctx context.Context, convID string, distanceFromBottom int) error {
	if distanceFromBottom > a.nearBottom {
		return ErrNotAtBottom
	}
	latest := a.store.LastMessageID(convID)
	if latest == "" {
		return nil
	}
	return a.ack(ctx, convID, latest)
}

func (a *Aggregator) ack(ctx context.Context, convID, messageID string) error {
	if err := a.marker.MarkRead(ctx, convID, messageID); err != nil {
		a.mu.Lock()
		a.pendingReads[convID] = messageID
		a.mu.Unlock()
		a.logger.Warn("read mark failed, will retry", "conversation_id", convID, "error", err)
		return fmt.Errorf("marking read: %w", err)
	}

	a.mu.Lock()
	if a.pendingReads[convID] == messageID {
		delete(a.pendingReads, convID)
	}
	a.total -= a.perConv[convID]
	if a.total < 0 {
		a.total = 0
	}
	delete(a.perConv, convID)
	total := a.total
	a.mu.Unlock()

	a.store.SetUnread(convID, 0)
	a.changed(total)
	return nil
}

// pendingReadIDs returns conversation ids with unacknowledged read marks.
func (a *Aggregator) pendingReadIDs() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.pendingReads))
	for id := range a.pendingReads {
		out = append(out, id)
	}
	return out
}

// RetryPendingReads re-sends queued read marks. Called after a successful
// reconciliation.
func (a *Aggregator) RetryPendingReads(ctx context.Context) {
	a.mu.Lock()
	queued := make(map[string]string, len(a.pendingReads))
	for k, v := range a.pendingReads {
		queued[k] = v
	}
	a.mu.Unlock()

	for convID, msgID := range queued {
		_ = a.ack(ctx, convID, msgID)
	}
}

// Reset clears every count and remembered message id. Used on logout.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.total = 0
	a.perConv = make(map[string]int)
	a.pendingReads = make(map[string]string)
	a.mu.Unlock()

	a.seen.Reset()
	a.changed(0)
}

// Close stops timers. Callbacks that fire afterwards do nothing.
func (a *Aggregator) Close() {
	a.mu.Lock()
	a.closed = true
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.mu.Unlock()
	a.seen.Close()
}

func (a *Aggregator) changed(total int) {
	a.metrics.SetUnread(total)
	if a.onChange != nil {
		a.onChange(total)
	}
}
