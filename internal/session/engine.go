// ABOUTME: Session engine wiring push, polling, unread and send paths around one conversation store
// ABOUTME: Owns identity bootstrap and tears every session-scoped component down on logout

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ZIon2025-x/LinkU1-sub000/internal/api"
	"github.com/ZIon2025-x/LinkU1-sub000/internal/auth"
	"github.com/ZIon2025-x/LinkU1-sub000/internal/clock"
	"github.com/ZIon2025-x/LinkU1-sub000/internal/config"
	"github.com/ZIon2025-x/LinkU1-sub000/internal/conversation"
	"github.com/ZIon2025-x/LinkU1-sub000/internal/frame"
	"github.com/ZIon2025-x/LinkU1-sub000/internal/metrics"
	"github.com/ZIon2025-x/LinkU1-sub000/internal/participation"
	"github.com/ZIon2025-x/LinkU1-sub000/internal/pending"
	"github.com/ZIon2025-x/LinkU1-sub000/internal/poller"
	"github.com/ZIon2025-x/LinkU1-sub000/internal/push"
	"github.com/ZIon2025-x/LinkU1-sub000/internal/store"
	"github.com/ZIon2025-x/LinkU1-sub000/internal/unread"
)

var (
	// ErrNoSession is returned by operations that need a logged-in user.
	ErrNoSession = errors.New("not logged in")

	// ErrNoActiveConversation is returned when an operation needs a selected conversation.
	ErrNoActiveConversation = errors.New("no active conversation")
)

// Backend is every server call the engine makes. *api.Client satisfies it.
type Backend interface {
	Me(ctx context.Context) (*api.Identity, error)
	ListConversations(ctx context.Context) ([]api.ConversationSummary, error)
	ListTasks(ctx context.Context) ([]api.Task, error)
	DecideApplication(ctx context.Context, taskID, applicationID string, approve bool) error
	TaskLifecycle(ctx context.Context, taskID string, action api.TaskAction) error
	poller.Fetcher
	pending.HTTPSender
	unread.Recounter
	unread.ReadMarker
	participation.Remote
}

// PushConn is the push channel as the engine uses it. *push.Manager satisfies it.
type PushConn interface {
	Connect(ctx context.Context, userID string) error
	Send(frame any) bool
	IsOpen() bool
	Close()
}

// PushFactory builds a push channel delivering raw frames to handler and
// reporting open/closed transitions to onState.
type PushFactory func(handler func([]byte), onState func(open bool)) PushConn

// session holds everything scoped to one login.
type session struct {
	userID        string
	ctx           context.Context
	cancel        context.CancelFunc
	push          PushConn
	unread        *unread.Aggregator
	tracker       *pending.Tracker
	poller        *poller.Poller
	classifier    *frame.Classifier
	tab           *store.Tab
	participation *participation.Service
}

// Engine is the conversation sync engine for one process. It survives logins;
// the components inside a session do not.
type Engine struct {
	cfg         *config.Config
	backend     Backend
	shared      *store.Shared
	prefs       *store.Prefs
	store       *conversation.Store
	broadcaster *conversation.Broadcaster
	newPush     PushFactory
	token       string
	clk         clock.Clock
	loc         *time.Location
	logger      *slog.Logger
	metrics     *metrics.Metrics
	onUnread    func(total int)
	onSendFail  func(*pending.SendError)
	onPush      func(open bool)

	mu            sync.Mutex
	sess          *session
	active        string // selected conversation id
	activeService string // external id of the service chat being served
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock shared by every timer in the engine.
func WithClock(clk clock.Clock) Option { return func(e *Engine) { e.clk = clk } }

// WithLocation sets the timezone reported with outbound messages.
func WithLocation(loc *time.Location) Option { return func(e *Engine) { e.loc = loc } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithMetrics enables instrumentation across components.
func WithMetrics(m *metrics.Metrics) Option { return func(e *Engine) { e.metrics = m } }

// WithPushFactory replaces the websocket push channel.
func WithPushFactory(f PushFactory) Option { return func(e *Engine) { e.newPush = f } }

// WithSessionToken sets the session cookie value checked during bootstrap.
func WithSessionToken(token string) Option { return func(e *Engine) { e.token = token } }

// WithUnreadHook is called with the aggregate whenever it changes.
func WithUnreadHook(f func(total int)) Option { return func(e *Engine) { e.onUnread = f } }

// WithPushStateHook is called when the push channel of the current session
// opens or closes.
func WithPushStateHook(f func(open bool)) Option { return func(e *Engine) { e.onPush = f } }

// WithSendFailureHook is called when a message could not be delivered on any path.
func WithSendFailureHook(f func(*pending.SendError)) Option {
	return func(e *Engine) { e.onSendFail = f }
}

// New creates an Engine. shared is the durable storage every tab of this user sees.
func New(cfg *config.Config, backend Backend, shared *store.Shared, opts ...Option) *Engine {
	e := &Engine{
		cfg:     cfg,
		backend: backend,
		shared:  shared,
		prefs:   store.NewPrefs(shared.KV()),
		clk:     clock.Real(),
		loc:     time.Local,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "session")
	if e.token == "" {
		e.token = cfg.Server.SessionToken
	}
	if e.newPush == nil && cfg.Server.PushURL != "" {
		e.newPush = e.websocketPush
	}
	e.broadcaster = conversation.NewBroadcaster(e.logger)
	e.store = conversation.NewStore(
		conversation.WithLogger(e.logger),
		conversation.WithDedupWindow(cfg.Sync.DedupWindow),
		conversation.WithMetrics(e.metrics),
		conversation.WithBroadcaster(e.broadcaster),
	)
	return e
}

func (e *Engine) websocketPush(handler func([]byte), onState func(open bool)) PushConn {
	return push.NewManager(push.Config{
		URL:                  e.cfg.Server.PushURL,
		CookieName:           e.cfg.Server.SessionCookie,
		SessionToken:         e.token,
		ReconnectDelay:       e.cfg.Sync.ReconnectDelay,
		MaxReconnectAttempts: e.cfg.Sync.MaxReconnectAttempts,
	}, handler,
		push.WithClock(e.clk),
		push.WithLogger(e.logger),
		push.WithMetrics(e.metrics),
		push.WithStateHook(onState),
	)
}

// Store returns the conversation store.
func (e *Engine) Store() *conversation.Store { return e.store }

// Subscribe streams store updates for one conversation, or every conversation
// with conversation.AllConversations.
func (e *Engine) Subscribe(ctx context.Context, convID string) (<-chan conversation.Update, string) {
	return e.broadcaster.Subscribe(ctx, convID)
}

// Bootstrap resolves the current identity and logs in. Failure, an expired
// session cookie, or no answer within the bootstrap timeout all leave the
// engine in the guest state and report false.
func (e *Engine) Bootstrap(ctx context.Context) (bool, error) {
	if err := auth.CheckExpiry(e.token, e.clk.Now()); err != nil {
		e.logger.Info("session cookie unusable, continuing as guest", "error", err)
		return false, nil
	}

	bctx, cancel := context.WithTimeout(ctx, e.cfg.Sync.BootstrapTimeout)
	defer cancel()

	type result struct {
		id  *api.Identity
		err error
	}
	ch := make(chan result, 1)
	go func() {
		id, err := e.backend.Me(bctx)
		ch <- result{id, err}
	}()

	var identity *api.Identity
	select {
	case <-bctx.Done():
		e.logger.Warn("identity bootstrap timed out, continuing as guest")
		return false, nil
	case r := <-ch:
		if r.err != nil || r.id == nil || r.id.ID == "" {
			e.logger.Info("not authenticated, continuing as guest", "error", r.err)
			return false, nil
		}
		identity = r.id
	}

	if err := e.Login(ctx, string(identity.ID)); err != nil {
		return false, err
	}
	return true, nil
}

// Login starts a session for userID, replacing any current one. ctx bounds the
// session; cancelling it has the same effect as Logout.
func (e *Engine) Login(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("login: empty user id")
	}
	e.Logout()

	sctx, cancel := context.WithCancel(ctx)
	s := &session{userID: userID, ctx: sctx, cancel: cancel}
	logger := e.logger.With("user_id", userID)

	s.unread = unread.NewAggregator(e.backend, e.backend, e.store,
		unread.WithClock(e.clk),
		unread.WithDebounce(e.cfg.Sync.RecountDebounce),
		unread.WithNearBottom(e.cfg.Sync.NearBottomThreshold),
		unread.WithLogger(logger),
		unread.WithMetrics(e.metrics),
		unread.WithChangeHook(e.onUnread),
	)
	s.classifier = frame.NewClassifier(userID, e.ActiveServiceChat, e.clk)

	var sender pending.PushSender
	if e.newPush != nil {
		s.push = e.newPush(
			func(raw []byte) { e.handleRaw(s, raw) },
			func(open bool) { e.pushStateChanged(s, open) },
		)
		sender = s.push
	}
	s.tracker = pending.NewTracker(e.store, sender, e.backend, userID,
		pending.WithClock(e.clk),
		pending.WithLocation(e.loc),
		pending.WithLogger(logger),
		pending.WithMetrics(e.metrics),
		pending.WithFailureHook(e.onSendFail),
	)
	s.poller = poller.New(poller.Config{
		ActiveInterval: e.cfg.Sync.ActivePollInterval,
		IdleInterval:   e.cfg.Sync.IdlePollInterval,
		PageSize:       e.cfg.Sync.HistoryPageSize,
	}, e.backend, e.store, s.unread, userID,
		poller.WithClock(e.clk),
		poller.WithLogger(logger),
		poller.WithMetrics(e.metrics),
	)
	s.participation = participation.NewService(participation.NewRegistry(), e.backend,
		participation.WithClock(e.clk),
		participation.WithLogger(logger),
	)
	s.tab = e.shared.OpenTab(sctx)

	e.mu.Lock()
	e.sess = s
	e.mu.Unlock()

	if chatID, err := e.prefs.ActiveServiceChat(ctx, userID); err != nil {
		logger.Warn("reading active service chat failed", "error", err)
	} else if chatID != "" {
		e.mu.Lock()
		e.activeService = chatID
		e.mu.Unlock()
		e.store.Ensure(conversation.ServiceID(chatID))
		logger.Info("resumed service chat", "chat_id", chatID)
	}

	if err := e.FullReconcile(ctx); err != nil {
		logger.Warn("initial reconciliation failed", "error", err)
	}
	if err := s.unread.Recount(ctx); err != nil {
		logger.Warn("initial unread recount failed", "error", err)
	}

	watcher := unread.NewSentinelWatcher(s.tab, s.unread, e.FullReconcile, logger)
	go watcher.Run(sctx)

	s.poller.Start(sctx)
	if s.push != nil {
		if err := s.push.Connect(sctx, userID); err != nil {
			logger.Warn("push connect failed, retrying in background", "error", err)
		}
	}
	logger.Info("session started")
	return nil
}

// Logout tears down the current session. Timers and push frames belonging to
// it become no-ops. Safe to call without a session.
func (e *Engine) Logout() {
	e.mu.Lock()
	s := e.sess
	e.sess = nil
	e.active = ""
	e.activeService = ""
	e.mu.Unlock()
	if s == nil {
		return
	}

	s.poller.Stop()
	if s.push != nil {
		s.push.Close()
	}
	s.unread.Reset()
	s.unread.Close()
	s.tab.Close()
	s.cancel()
	e.store.Reset()
	e.logger.Info("session ended", "user_id", s.userID)
}

// Close ends the session and stops update delivery.
func (e *Engine) Close() {
	e.Logout()
	e.broadcaster.Close()
}

// UserID returns the logged-in user, or "" for a guest.
func (e *Engine) UserID() string {
	if s := e.current(); s != nil {
		return s.userID
	}
	return ""
}

// Active returns the selected conversation id.
func (e *Engine) Active() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// ActiveServiceChat returns the external id of the service chat in use.
func (e *Engine) ActiveServiceChat() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activeService
}

// PushOpen reports whether the push channel is connected.
func (e *Engine) PushOpen() bool {
	s := e.current()
	return s != nil && s.push != nil && s.push.IsOpen()
}

// UnreadTotal returns the aggregate unread count.
func (e *Engine) UnreadTotal() int {
	if s := e.current(); s != nil {
		return s.unread.Total()
	}
	return 0
}

// SetViewHidden pauses polling while the client is not visible.
func (e *Engine) SetViewHidden(hidden bool) {
	if s := e.current(); s != nil {
		s.poller.SetHidden(hidden)
	}
}

// pushStateChanged reports push transitions of s. Polling keeps the session
// in sync while the channel is down.
func (e *Engine) pushStateChanged(s *session, open bool) {
	if e.current() != s {
		return
	}
	if open {
		e.logger.Info("push channel open", "user_id", s.userID)
	} else {
		e.logger.Warn("push channel closed, relying on polling", "user_id", s.userID)
	}
	if e.onPush != nil {
		e.onPush(open)
	}
}

func (e *Engine) current() *session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess
}

func (e *Engine) require() (*session, error) {
	s := e.current()
	if s == nil {
		return nil, ErrNoSession
	}
	return s, nil
}
