// ABOUTME: In-memory fan-out of conversation change notifications
// ABOUTME: Lets UI layers follow one conversation or all of them without polling the store

package conversation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 64

	// AllConversations subscribes to updates for every conversation.
	AllConversations = "*"
)

// UpdateKind says what changed in a conversation.
type UpdateKind string

const (
	UpdateMessages UpdateKind = "messages"
	UpdateEnded    UpdateKind = "ended"
	UpdateSummary  UpdateKind = "summary"
	UpdateHidden   UpdateKind = "hidden"
	UpdateReset    UpdateKind = "reset"
)

// Update is a change notification. Subscribers read the new state with
// Store.Snapshot.
type Update struct {
	ConversationID string
	Kind           UpdateKind
}

// Broadcaster provides in-memory pub/sub for conversation updates.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan Update // conversationID -> subID -> ch
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]map[string]chan Update),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers for updates on conversationID, or on every conversation
// when conversationID is AllConversations. The subscription is cleaned up when
// ctx is cancelled.
func (b *Broadcaster) Subscribe(ctx context.Context, conversationID string) (<-chan Update, string) {
	subID := uuid.New().String()
	ch := make(chan Update, subscriberBufferSize)

	b.mu.Lock()
	if _, ok := b.subscribers[conversationID]; !ok {
		b.subscribers[conversationID] = make(map[string]chan Update)
	}
	b.subscribers[conversationID][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "conversation_id", conversationID, "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(conversationID, subID)
	}()

	return ch, subID
}

// Publish delivers u to subscribers of its conversation and to AllConversations
// subscribers. Updates are dropped for subscribers whose channels are full.
func (b *Broadcaster) Publish(u Update) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, key := range []string{u.ConversationID, AllConversations} {
		for subID, ch := range b.subscribers[key] {
			select {
			case ch <- u:
			default:
				b.logger.Debug("dropped update for slow subscriber",
					"conversation_id", u.ConversationID,
					"sub_id", subID)
			}
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(conversationID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[conversationID]
	if !ok {
		return
	}
	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)

	if len(subs) == 0 {
		delete(b.subscribers, conversationID)
	}

	b.logger.Debug("subscriber removed", "conversation_id", conversationID, "sub_id", subID)
}

// Close closes every subscriber channel.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for convID, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, convID)
	}
}
