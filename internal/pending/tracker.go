// ABOUTME: Optimistic send lifecycle for outbound chat messages
// ABOUTME: Echoes locally, tries push then HTTP, and rolls back when both fail

package pending

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ZIon2025-x/LinkU1-sub000/internal/api"
	"github.com/ZIon2025-x/LinkU1-sub000/internal/clock"
	"github.com/ZIon2025-x/LinkU1-sub000/internal/conversation"
	"github.com/ZIon2025-x/LinkU1-sub000/internal/metrics"
)

var (
	// ErrSendInFlight is returned when a send for the same conversation is outstanding.
	ErrSendInFlight = errors.New("send already in progress")

	// ErrEmptyMessage is returned for messages with no text and no attachments.
	ErrEmptyMessage = errors.New("empty message")

	// ErrConversationEnded is returned when sending to an ended service chat.
	ErrConversationEnded = errors.New("conversation has ended")
)

// localTimeLayout is the wall-clock format sent alongside the timezone name.
const localTimeLayout = "2006-01-02 15:04:05"

// Input is what the user submitted.
type Input struct {
	Content     string
	Kind        conversation.MessageKind
	Attachments []conversation.Attachment
	ReceiverID  string
}

// SendError reports that both delivery paths failed. Input is returned so the
// caller can restore it to the composer.
type SendError struct {
	ConversationID string
	Input          Input
	Err            error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("sending to %s: %v", e.ConversationID, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// PushSender is the push channel. *push.Manager satisfies it.
type PushSender interface {
	Send(frame any) bool
}

// HTTPSender is the HTTP fallback. *api.Client satisfies it.
type HTTPSender interface {
	SendMessage(ctx context.Context, convID string, req api.SendRequest) (*api.Message, error)
}

// OutboundFrame is the push-channel send frame. Exactly one of ChatID and
// TaskID is set.
type OutboundFrame struct {
	ReceiverID  string                    `json:"receiver_id,omitempty"`
	Content     string                    `json:"content"`
	ChatID      string                    `json:"chat_id,omitempty"`
	TaskID      string                    `json:"task_id,omitempty"`
	MessageID   string                    `json:"message_id"`
	MessageType string                    `json:"message_type,omitempty"`
	Attachments []conversation.Attachment `json:"attachments,omitempty"`
	Timezone    string                    `json:"timezone"`
	LocalTime   string                    `json:"local_time"`
}

// Tracker runs optimistic sends against a conversation Store.
type Tracker struct {
	store   *conversation.Store
	push    PushSender
	http    HTTPSender
	selfID  string
	clk     clock.Clock
	loc     *time.Location
	logger  *slog.Logger
	metrics *metrics.Metrics
	notify  func(*SendError)

	mu       sync.Mutex
	inflight map[string]bool
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock sets the clock used for temporary ids and timestamps.
func WithClock(clk clock.Clock) Option { return func(t *Tracker) { t.clk = clk } }

// WithLocation sets the timezone reported with push frames.
func WithLocation(loc *time.Location) Option { return func(t *Tracker) { t.loc = loc } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(t *Tracker) { t.logger = l } }

// WithMetrics records send outcomes.
func WithMetrics(m *metrics.Metrics) Option { return func(t *Tracker) { t.metrics = m } }

// WithFailureHook is called once for each send that failed on both paths.
func WithFailureHook(f func(*SendError)) Option { return func(t *Tracker) { t.notify = f } }

// NewTracker creates a Tracker. push may be nil when no push channel exists.
func NewTracker(store *conversation.Store, push PushSender, http HTTPSender, selfID string, opts ...Option) *Tracker {
	t := &Tracker{
		store:    store,
		push:     push,
		http:     http,
		selfID:   selfID,
		clk:      clock.Real(),
		loc:      time.Local,
		logger:   slog.Default(),
		inflight: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With("component", "pending")
	return t
}

// isInFlight reports whether a send for convID is outstanding.
func (t *Tracker) isInFlight(convID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inflight[convID]
}

func (t *Tracker) acquire(convID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.inflight[convID] {
		return false
	}
	t.inflight[convID] = true
	return true
}

func (t *Tracker) release(convID string) {
	t.mu.Lock()
	delete(t.inflight, convID)
	t.mu.Unlock()
}

// tempID is the current time in milliseconds plus jitter so that quick
// successive sends across conversations do not collide.
func (t *Tracker) tempID(now time.Time) string {
	return strconv.FormatInt(now.UnixMilli()+rand.Int63n(1000), 10)
}

// Submit echoes in immediately as a pending message and delivers it. On
// success the returned message is the confirmed form. When both push and HTTP
// fail the echo is removed and a *SendError carrying in is returned.
func (t *Tracker) Submit(ctx context.Context, convID string, in Input) (conversation.Message, error) {
	if strings.TrimSpace(in.Content) == "" && len(in.Attachments) == 0 {
		return conversation.Message{}, ErrEmptyMessage
	}
	kind, extID, err := conversation.ParseID(convID)
	if err != nil {
		return conversation.Message{}, err
	}
	if snap, ok := t.store.Snapshot(convID); ok && snap.IsEnded {
		return conversation.Message{}, ErrConversationEnded
	}
	if !t.acquire(convID) {
		return conversation.Message{}, ErrSendInFlight
	}
	defer t.release(convID)

	if in.Kind == "" {
		in.Kind = conversation.MessageText
	}
	now := t.clk.Now()
	echo := conversation.Message{
		ID:             t.tempID(now),
		ConversationID: convID,
		SenderRole:     conversation.RoleSelf,
		SenderID:       t.selfID,
		Content:        in.Content,
		CreatedAt:      now.UTC(),
		Kind:           in.Kind,
		Attachments:    in.Attachments,
		DeliveryState:  conversation.DeliveryPending,
	}
	t.store.Insert(convID, echo)

	local := now.In(t.loc)
	frame := OutboundFrame{
		ReceiverID:  in.ReceiverID,
		Content:     in.Content,
		MessageID:   echo.ID,
		MessageType: string(in.Kind),
		Attachments: in.Attachments,
		Timezone:    t.loc.String(),
		LocalTime:   local.Format(localTimeLayout),
	}
	if kind == conversation.KindService {
		frame.ChatID = extID
	} else {
		frame.TaskID = extID
	}

	if t.push != nil && t.push.Send(frame) {
		t.metrics.SendResult("push", "ok")
		if err := t.store.ConfirmPending(convID, echo.ID); err != nil {
			// the window was replaced under us; the server copy already stands in
			t.logger.Debug("pending echo gone before confirm", "conversation_id", convID, "temp_id", echo.ID)
		}
		echo.DeliveryState = conversation.DeliveryConfirmed
		return echo, nil
	}

	server, err := t.http.SendMessage(ctx, convID, api.SendRequest{
		Content:         in.Content,
		MessageType:     string(in.Kind),
		ClientMessageID: echo.ID,
		Attachments:     in.Attachments,
		Timezone:        frame.Timezone,
		LocalTime:       frame.LocalTime,
	})
	if err != nil {
		t.metrics.SendResult("http", "error")
		t.store.RemovePending(convID, echo.ID)

		sendErr := &SendError{ConversationID: convID, Input: in, Err: err}
		t.logger.Warn("message send failed", "conversation_id", convID, "error", err)
		if t.notify != nil {
			t.notify(sendErr)
		}
		return conversation.Message{}, sendErr
	}
	t.metrics.SendResult("http", "ok")

	confirmed := server.ToMessage(t.selfID, convID, now)
	confirmed.SenderRole = conversation.RoleSelf
	confirmed.SenderID = t.selfID
	if confirmed.ID == "" {
		confirmed.ID = echo.ID
	}
	if confirmed.Content == "" {
		confirmed.Content = in.Content
	}
	if len(confirmed.Attachments) == 0 {
		confirmed.Attachments = in.Attachments
	}
	if err := t.store.ReplacePending(convID, echo.ID, confirmed); err != nil {
		return conversation.Message{}, err
	}
	return confirmed, nil
}
