// ABOUTME: Cross-tab views over one shared KV with change notification
// ABOUTME: Writes from one tab are delivered as Change events to every other tab

package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// changeBufferSize is the channel buffer for each tab's change feed.
const changeBufferSize = 64

// Change describes a mutation of a shared key made by another tab.
type Change struct {
	Key      string
	OldValue string
	NewValue string
	Deleted  bool
	Origin   string // tab ID that made the change
}

// Shared wraps a KV and fans out change events between tabs. A change is never
// delivered to the tab that made it.
type Shared struct {
	kv     KV
	logger *slog.Logger

	// writeMu orders read-modify-notify sequences so OldValue is accurate.
	writeMu sync.Mutex

	mu   sync.RWMutex
	tabs map[string]chan Change
}

// NewShared creates a Shared over kv. Pass nil logger for default.
func NewShared(kv KV, logger *slog.Logger) *Shared {
	if logger == nil {
		logger = slog.Default()
	}
	return &Shared{
		kv:     kv,
		logger: logger.With("component", "shared_storage"),
		tabs:   make(map[string]chan Change),
	}
}

// OpenTab registers a new tab. The tab is closed automatically when ctx is
// cancelled.
func (s *Shared) OpenTab(ctx context.Context) *Tab {
	t := &Tab{
		id:     uuid.New().String(),
		shared: s,
		ch:     make(chan Change, changeBufferSize),
	}

	s.mu.Lock()
	s.tabs[t.id] = t.ch
	s.mu.Unlock()

	s.logger.Debug("tab opened", "tab_id", t.id)

	go func() {
		<-ctx.Done()
		s.closeTab(t.id)
	}()

	return t
}

// KV returns the underlying store.
func (s *Shared) KV() KV {
	return s.kv
}

func (s *Shared) closeTab(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.tabs[id]
	if !ok {
		return
	}
	delete(s.tabs, id)
	close(ch)

	s.logger.Debug("tab closed", "tab_id", id)
}

func (s *Shared) publish(c Change) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for id, ch := range s.tabs {
		if id == c.Origin {
			continue
		}
		select {
		case ch <- c:
		default:
			s.logger.Warn("dropped change for slow tab", "tab_id", id, "key", c.Key)
		}
	}
}

func (s *Shared) set(ctx context.Context, origin, key, value string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	old, err := s.kv.Get(ctx, key)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if err := s.kv.Set(ctx, key, value); err != nil {
		return err
	}
	s.publish(Change{Key: key, OldValue: old, NewValue: value, Origin: origin})
	return nil
}

func (s *Shared) delete(ctx context.Context, origin, key string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	old, err := s.kv.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.kv.Delete(ctx, key); err != nil {
		return err
	}
	s.publish(Change{Key: key, OldValue: old, Deleted: true, Origin: origin})
	return nil
}

// Tab is one engine instance's view of shared storage. It satisfies Storage.
type Tab struct {
	id     string
	shared *Shared
	ch     chan Change
}

// ID returns the tab's unique identifier.
func (t *Tab) ID() string { return t.id }

// Get reads a key from shared storage.
func (t *Tab) Get(ctx context.Context, key string) (string, error) {
	return t.shared.kv.Get(ctx, key)
}

// Set writes a key and notifies every other tab.
func (t *Tab) Set(ctx context.Context, key, value string) error {
	return t.shared.set(ctx, t.id, key, value)
}

// Delete removes a key and notifies every other tab if it existed.
func (t *Tab) Delete(ctx context.Context, key string) error {
	return t.shared.delete(ctx, t.id, key)
}

// Changes returns the feed of changes made by other tabs. The channel is
// closed when the tab closes.
func (t *Tab) Changes() <-chan Change { return t.ch }

// Close unregisters the tab.
func (t *Tab) Close() {
	t.shared.closeTab(t.id)
}
