// ABOUTME: Authoritative in-memory message log per conversation
// ABOUTME: Applies dedup and total ordering to every insert regardless of delivery path

package conversation

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ZIon2025-x/LinkU1-sub000/internal/metrics"
)

// ErrMessageNotFound is returned when a referenced message is not in the log.
var ErrMessageNotFound = errors.New("message not found")

// Store holds every conversation the session has referenced. All mutations
// are serialized by one mutex and end with a full stable resort.
type Store struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation

	window      time.Duration
	logger      *slog.Logger
	metrics     *metrics.Metrics
	broadcaster *Broadcaster
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithDedupWindow overrides DefaultDedupWindow.
func WithDedupWindow(d time.Duration) Option {
	return func(s *Store) { s.window = d }
}

// WithMetrics records duplicate drops.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithBroadcaster publishes an Update after each mutation.
func WithBroadcaster(b *Broadcaster) Option {
	return func(s *Store) { s.broadcaster = b }
}

// NewStore creates an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		conversations: make(map[string]*Conversation),
		window:        DefaultDedupWindow,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "conversation_store")
	return s
}

// getOrCreateLocked returns the conversation, creating it on first reference.
func (s *Store) getOrCreateLocked(id string) *Conversation {
	if c, ok := s.conversations[id]; ok {
		return c
	}
	kind, _, err := ParseID(id)
	if err != nil {
		s.logger.Warn("conversation created with unrecognized id", "conversation_id", id)
	}
	c := &Conversation{ID: id, Kind: kind}
	s.conversations[id] = c
	return c
}

func (s *Store) publish(id string, kind UpdateKind) {
	if s.broadcaster != nil {
		s.broadcaster.Publish(Update{ConversationID: id, Kind: kind})
	}
}

func normalize(id string, m Message) Message {
	m.ConversationID = id
	m.CreatedAt = m.CreatedAt.UTC()
	if m.DeliveryState == "" {
		m.DeliveryState = DeliveryConfirmed
	}
	return m
}

// Ensure creates the conversation if it does not exist.
func (s *Store) Ensure(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getOrCreateLocked(id)
}

// Insert adds msg to the conversation unless it duplicates an existing
// message. Reports whether the message was added.
func (s *Store) Insert(id string, msg Message) bool {
	msg = normalize(id, msg)

	s.mu.Lock()
	c := s.getOrCreateLocked(id)
	if findDuplicate(c.Messages, msg, s.window) >= 0 {
		s.mu.Unlock()
		s.metrics.DuplicateDropped()
		s.logger.Debug("dropped duplicate message", "conversation_id", id, "message_id", msg.ID)
		return false
	}
	c.Messages = append(c.Messages, msg)
	sortMessages(c.Messages)
	if !msg.IsPending() {
		c.LastMessageID = lastConfirmedID(c.Messages)
	}
	s.mu.Unlock()

	s.publish(id, UpdateMessages)
	return true
}

// ReplacePending swaps the pending message tempID for its confirmed server
// form at the same index, then re-sorts, so a server timestamp later than
// messages that arrived meanwhile moves it after them. Any other copy of the
// confirmed id is dropped. If
// tempID is gone the confirmed message is inserted through dedup instead.
func (s *Store) ReplacePending(id, tempID string, confirmed Message) error {
	confirmed = normalize(id, confirmed)
	confirmed.DeliveryState = DeliveryConfirmed

	s.mu.Lock()
	c := s.getOrCreateLocked(id)
	idx := indexOf(c.Messages, tempID)
	if idx < 0 {
		s.mu.Unlock()
		s.Insert(id, confirmed)
		return nil
	}

	msgs := make([]Message, 0, len(c.Messages))
	for i, m := range c.Messages {
		switch {
		case i == idx:
			msgs = append(msgs, confirmed)
		case m.ID == confirmed.ID:
			// arrived via the other path first
		default:
			msgs = append(msgs, m)
		}
	}
	sortMessages(msgs)
	c.Messages = msgs
	c.LastMessageID = lastConfirmedID(msgs)
	s.mu.Unlock()

	s.publish(id, UpdateMessages)
	return nil
}

// ConfirmPending marks tempID confirmed in place, keeping its id. Used when
// the push channel accepted the send and no server copy is available yet.
func (s *Store) ConfirmPending(id, tempID string) error {
	s.mu.Lock()
	c, ok := s.conversations[id]
	if !ok {
		s.mu.Unlock()
		return ErrMessageNotFound
	}
	idx := indexOf(c.Messages, tempID)
	if idx < 0 {
		s.mu.Unlock()
		return ErrMessageNotFound
	}
	c.Messages[idx].DeliveryState = DeliveryConfirmed
	c.LastMessageID = lastConfirmedID(c.Messages)
	s.mu.Unlock()

	s.publish(id, UpdateMessages)
	return nil
}

// RemovePending deletes tempID if it is still pending. Reports whether a
// message was removed.
func (s *Store) RemovePending(id, tempID string) bool {
	s.mu.Lock()
	c, ok := s.conversations[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	idx := indexOf(c.Messages, tempID)
	if idx < 0 || !c.Messages[idx].IsPending() {
		s.mu.Unlock()
		return false
	}
	c.Messages = append(c.Messages[:idx], c.Messages[idx+1:]...)
	s.mu.Unlock()

	s.publish(id, UpdateMessages)
	return true
}

// PrependHistory merges an older page into the log and records the next
// cursor. LastMessageID is never changed by history. Returns the number of
// messages added.
func (s *Store) PrependHistory(id string, older []Message, cursor string, hasMore bool) int {
	s.mu.Lock()
	c := s.getOrCreateLocked(id)
	added := 0
	for _, m := range older {
		m = normalize(id, m)
		if findDuplicate(c.Messages, m, s.window) >= 0 {
			continue
		}
		c.Messages = append(c.Messages, m)
		added++
	}
	sortMessages(c.Messages)
	c.HistoryCursor = cursor
	c.HasMoreHistory = hasMore
	s.mu.Unlock()

	if added > 0 {
		s.publish(id, UpdateMessages)
	}
	return added
}

// LoadWindow merges the first server page into the log and records the
// history cursor. Messages already delivered by push are kept and
// deduplicated against the page. Returns the messages that were not in the
// log yet.
func (s *Store) LoadWindow(id string, msgs []Message, cursor string, hasMore bool) []Message {
	s.mu.Lock()
	c := s.getOrCreateLocked(id)
	var fresh []Message
	for _, m := range msgs {
		m = normalize(id, m)
		if findDuplicate(c.Messages, m, s.window) >= 0 {
			continue
		}
		c.Messages = append(c.Messages, m)
		fresh = append(fresh, m)
	}
	sortMessages(c.Messages)
	c.LastMessageID = lastConfirmedID(c.Messages)
	c.HistoryCursor = cursor
	c.HasMoreHistory = hasMore
	c.WindowLoaded = true
	s.mu.Unlock()

	s.publish(id, UpdateMessages)
	return fresh
}

// SetHistory records the history cursor without merging messages.
func (s *Store) SetHistory(id, cursor string, hasMore bool) {
	s.mu.Lock()
	c := s.getOrCreateLocked(id)
	c.HistoryCursor = cursor
	c.HasMoreHistory = hasMore
	s.mu.Unlock()
}

// ReplaceWindow replaces the visible window with an authoritative fetch.
// The window starts at the oldest fetched message. Older history is kept,
// confirmed messages inside the window that the server no longer reports are
// dropped, and pending echoes survive unless a fetched message duplicates
// them. Returns the fetched messages that were not already in the log.
func (s *Store) ReplaceWindow(id string, msgs []Message) []Message {
	if len(msgs) == 0 {
		return nil
	}

	incoming := make([]Message, len(msgs))
	for i, m := range msgs {
		incoming[i] = normalize(id, m)
	}
	sortMessages(incoming)
	start := incoming[0].CreatedAt

	s.mu.Lock()
	c := s.getOrCreateLocked(id)
	previous := c.Messages

	var kept, pending []Message
	for _, m := range previous {
		switch {
		case m.IsPending():
			pending = append(pending, m)
		case m.CreatedAt.Before(start):
			kept = append(kept, m)
		}
	}

	var fresh []Message
	for _, m := range incoming {
		if findDuplicate(kept, m, s.window) >= 0 {
			continue
		}
		if i := findDuplicate(pending, m, s.window); i >= 0 {
			pending = append(pending[:i], pending[i+1:]...)
		} else if findDuplicate(previous, m, s.window) < 0 {
			fresh = append(fresh, m)
		}
		kept = append(kept, m)
	}
	kept = append(kept, pending...)
	sortMessages(kept)

	c.Messages = kept
	c.LastMessageID = lastConfirmedID(kept)
	s.mu.Unlock()

	s.publish(id, UpdateMessages)
	return fresh
}

// Snapshot returns a deep copy of the conversation.
func (s *Store) Snapshot(id string) (Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conversations[id]
	if !ok {
		return Conversation{}, false
	}
	return copyConversation(c, true), true
}

// LastMessageID returns the newest confirmed message id seen on the forward path.
func (s *Store) LastMessageID(id string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.conversations[id]; ok {
		return c.LastMessageID
	}
	return ""
}

// MarkEnded flags a service conversation as ended. Reports whether it changed.
func (s *Store) MarkEnded(id string) bool {
	s.mu.Lock()
	c := s.getOrCreateLocked(id)
	changed := !c.IsEnded
	c.IsEnded = true
	s.mu.Unlock()

	if changed {
		s.publish(id, UpdateEnded)
	}
	return changed
}

// SetHidden sets the hidden flag. Reports whether it changed.
func (s *Store) SetHidden(id string, hidden bool) bool {
	s.mu.Lock()
	c := s.getOrCreateLocked(id)
	changed := c.Hidden != hidden
	c.Hidden = hidden
	s.mu.Unlock()

	if changed {
		s.publish(id, UpdateHidden)
	}
	return changed
}

// Summary is list-level metadata for one conversation.
type Summary struct {
	ID          string
	Title       string
	Preview     string
	UpdatedAt   time.Time
	UnreadCount int
	IsEnded     bool
}

// ApplySummary updates list metadata, creating the conversation if needed.
func (s *Store) ApplySummary(sum Summary) {
	s.mu.Lock()
	c := s.getOrCreateLocked(sum.ID)
	c.Title = sum.Title
	c.Preview = sum.Preview
	c.UpdatedAt = sum.UpdatedAt
	c.UnreadCount = sum.UnreadCount
	if sum.IsEnded {
		c.IsEnded = true
	}
	s.mu.Unlock()

	s.publish(sum.ID, UpdateSummary)
}

// SetUnread sets the per-conversation unread count.
func (s *Store) SetUnread(id string, n int) {
	s.mu.Lock()
	c := s.getOrCreateLocked(id)
	changed := c.UnreadCount != n
	c.UnreadCount = n
	s.mu.Unlock()

	if changed {
		s.publish(id, UpdateSummary)
	}
}

// List returns every conversation without messages, most recently updated
// first. Hidden conversations are included only when includeHidden is set.
func (s *Store) List(includeHidden bool) []Conversation {
	s.mu.RLock()
	out := make([]Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		if c.Hidden && !includeHidden {
			continue
		}
		out = append(out, copyConversation(c, false))
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Reset drops every conversation. Used on logout.
func (s *Store) Reset() {
	s.mu.Lock()
	s.conversations = make(map[string]*Conversation)
	s.mu.Unlock()

	s.publish("", UpdateReset)
}

func indexOf(msgs []Message, id string) int {
	for i := range msgs {
		if msgs[i].ID == id {
			return i
		}
	}
	return -1
}

func copyConversation(c *Conversation, withMessages bool) Conversation {
	out := *c
	out.Messages = nil
	if withMessages && len(c.Messages) > 0 {
		out.Messages = make([]Message, len(c.Messages))
		for i, m := range c.Messages {
			if len(m.Attachments) > 0 {
				m.Attachments = append([]Attachment(nil), m.Attachments...)
			}
			out.Messages[i] = m
		}
	}
	return out
}
