// ABOUTME: User-driven engine operations: select, page history, send, read, hide
// ABOUTME: Also full reconciliation and the cross-tab payment notice

package session

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/ZIon2025-x/LinkU1-sub000/internal/api"
	"github.com/ZIon2025-x/LinkU1-sub000/internal/conversation"
	"github.com/ZIon2025-x/LinkU1-sub000/internal/participation"
	"github.com/ZIon2025-x/LinkU1-sub000/internal/pending"
	"github.com/ZIon2025-x/LinkU1-sub000/internal/poller"
	"github.com/ZIon2025-x/LinkU1-sub000/internal/unread"
)

// RefreshConversations reloads list metadata. Conversations in the persisted
// removed set stay hidden.
func (e *Engine) RefreshConversations(ctx context.Context) error {
	s, err := e.require()
	if err != nil {
		return err
	}
	rows, err := e.backend.ListConversations(ctx)
	if err != nil {
		return fmt.Errorf("listing conversations: %w", err)
	}
	removed, err := e.prefs.RemovedConversations(ctx, s.userID)
	if err != nil {
		e.logger.Warn("reading removed conversations failed", "error", err)
	}

	for _, row := range rows {
		id := row.ConversationID()
		last := conversation.Message{
			Kind:    conversation.ParseMessageKind(row.LastType),
			Content: row.LastMessage,
		}
		e.store.ApplySummary(conversation.Summary{
			ID:          id,
			Title:       row.Title,
			Preview:     conversation.Preview(last, conversation.DefaultPreviewLength),
			UpdatedAt:   row.UpdatedAt(),
			UnreadCount: row.UnreadCount,
			IsEnded:     row.IsEnded,
		})
		e.store.SetHidden(id, removed[id])
	}
	return nil
}

// FullReconcile reloads the task list and the conversation list in parallel.
func (e *Engine) FullReconcile(ctx context.Context) error {
	s, err := e.require()
	if err != nil {
		return err
	}

	var tasks []api.Task
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := e.backend.ListTasks(gctx)
		if err != nil {
			return fmt.Errorf("listing tasks: %w", err)
		}
		tasks = t
		return nil
	})
	g.Go(func() error {
		return e.RefreshConversations(gctx)
	})
	if err := g.Wait(); err != nil {
		return err
	}

	for _, t := range tasks {
		e.store.Ensure(conversation.TaskID(string(t.ID)))
	}
	e.logger.Debug("full reconciliation done", "user_id", s.userID, "tasks", len(tasks))
	return nil
}

// SelectConversation makes id the active conversation and loads its newest
// window on first open. Task conversations start polling at the active rate.
func (e *Engine) SelectConversation(ctx context.Context, id string) error {
	s, err := e.require()
	if err != nil {
		return err
	}
	kind, extID, err := conversation.ParseID(id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.active = id
	if kind == conversation.KindService {
		e.activeService = extID
	}
	e.mu.Unlock()

	e.store.Ensure(id)
	s.poller.SetActive(id)
	if kind == conversation.KindService {
		if err := e.prefs.SetActiveServiceChat(ctx, s.userID, extID); err != nil {
			e.logger.Warn("persisting active service chat failed", "chat_id", extID, "error", err)
		}
	}

	if snap, ok := e.store.Snapshot(id); ok && snap.WindowLoaded {
		return nil
	}
	page, err := e.backend.FetchMessages(ctx, id, "", e.cfg.Sync.HistoryPageSize)
	if err != nil {
		return fmt.Errorf("loading conversation: %w", err)
	}
	msgs := e.toLocal(s, id, page.Messages)
	e.store.LoadWindow(id, msgs, page.NextCursor, page.HasMore)
	s.unread.MarkSeen(id, msgs)
	return nil
}

// LoadOlder prepends the next history page to the active conversation and
// reports how many messages were added.
func (e *Engine) LoadOlder(ctx context.Context) (int, error) {
	s, id, err := e.requireActive()
	if err != nil {
		return 0, err
	}
	snap, ok := e.store.Snapshot(id)
	if !ok || !snap.HasMoreHistory {
		return 0, nil
	}
	page, err := e.backend.FetchMessages(ctx, id, snap.HistoryCursor, e.cfg.Sync.HistoryPageSize)
	if err != nil {
		return 0, fmt.Errorf("loading history: %w", err)
	}
	msgs := e.toLocal(s, id, page.Messages)
	s.unread.MarkSeen(id, msgs)
	return e.store.PrependHistory(id, msgs, page.NextCursor, page.HasMore), nil
}

// Send submits a message to the active conversation.
func (e *Engine) Send(ctx context.Context, in pending.Input) (conversation.Message, error) {
	s, id, err := e.requireActive()
	if err != nil {
		return conversation.Message{}, err
	}
	return s.tracker.Submit(ctx, id, in)
}

// MarkRead acknowledges the active conversation as read when the viewport is
// within the near-bottom threshold.
func (e *Engine) MarkRead(ctx context.Context, distanceFromBottom int) error {
	s, id, err := e.requireActive()
	if err != nil {
		return err
	}
	return s.unread.MarkRead(ctx, id, distanceFromBottom)
}

// Hide removes a conversation from the list until a new message arrives.
func (e *Engine) Hide(ctx context.Context, id string) error {
	s, err := e.require()
	if err != nil {
		return err
	}
	e.store.SetHidden(id, true)
	if err := e.prefs.SetRemoved(ctx, s.userID, id, true); err != nil {
		return fmt.Errorf("persisting hidden conversation: %w", err)
	}

	e.mu.Lock()
	wasActive := e.active == id
	if wasActive {
		e.active = ""
	}
	e.mu.Unlock()
	if wasActive {
		s.poller.SetActive("")
	}
	return nil
}

// PaymentCompleted reconciles after an out-of-band payment for taskID and
// tells every other tab to do the same.
func (e *Engine) PaymentCompleted(ctx context.Context, taskID string) error {
	s, err := e.require()
	if err != nil {
		return err
	}
	if err := e.FullReconcile(ctx); err != nil {
		e.logger.Warn("reconciliation after payment failed", "task_id", taskID, "error", err)
	}
	if err := s.unread.Recount(ctx); err != nil {
		e.logger.Warn("recount after payment failed", "task_id", taskID, "error", err)
	}
	if err := unread.RaisePaymentSentinel(ctx, s.tab, taskID); err != nil {
		return fmt.Errorf("raising payment sentinel: %w", err)
	}
	return nil
}

// Apply applies the logged-in user to taskID. The participant starts out
// pending until the poster approves it.
func (e *Engine) Apply(ctx context.Context, taskID string) (participation.State, error) {
	s, err := e.require()
	if err != nil {
		return participation.State{}, err
	}
	st, err := s.participation.Apply(ctx, taskID, s.userID)
	if err != nil {
		return participation.State{}, err
	}
	if err := e.RefreshConversations(ctx); err != nil {
		e.logger.Warn("refresh after applying failed", "task_id", taskID, "error", err)
	}
	return st, nil
}

// Participant returns the server's record for userID in taskID. An empty
// userID means the logged-in user.
func (e *Engine) Participant(ctx context.Context, taskID, userID string) (participation.State, error) {
	s, err := e.require()
	if err != nil {
		return participation.State{}, err
	}
	if userID == "" {
		userID = s.userID
	}
	return s.participation.Sync(ctx, taskID, userID)
}

// Participants returns the tracked participants of taskID.
func (e *Engine) Participants(taskID string) []participation.State {
	s := e.current()
	if s == nil {
		return nil
	}
	return s.participation.Registry().ForTask(taskID)
}

// Participate applies action to userID's participation in taskID, fetching
// the record first when it is not tracked yet.
func (e *Engine) Participate(ctx context.Context, taskID, userID string, action participation.Action) (participation.State, error) {
	s, err := e.require()
	if err != nil {
		return participation.State{}, err
	}
	if userID == "" {
		userID = s.userID
	}
	if _, ok := s.participation.Registry().Get(taskID, userID); !ok {
		if _, err := s.participation.Sync(ctx, taskID, userID); err != nil {
			return participation.State{}, err
		}
	}
	return s.participation.Do(ctx, taskID, userID, action)
}

// DecideApplication approves or rejects an application to taskID, then
// refreshes the conversation list so the new task chat or preview shows up.
func (e *Engine) DecideApplication(ctx context.Context, taskID, applicationID string, approve bool) error {
	if _, err := e.require(); err != nil {
		return err
	}
	if err := e.backend.DecideApplication(ctx, taskID, applicationID, approve); err != nil {
		return fmt.Errorf("deciding application %s: %w", applicationID, err)
	}
	if err := e.RefreshConversations(ctx); err != nil {
		e.logger.Warn("refresh after application decision failed", "task_id", taskID, "error", err)
	}
	return nil
}

// TaskAction runs a task-level action such as confirm or distribute_reward
// and reconciles the task list afterwards.
func (e *Engine) TaskAction(ctx context.Context, taskID string, action api.TaskAction) error {
	if _, err := e.require(); err != nil {
		return err
	}
	if err := e.backend.TaskLifecycle(ctx, taskID, action); err != nil {
		return fmt.Errorf("%s task %s: %w", action, taskID, err)
	}
	if err := e.FullReconcile(ctx); err != nil {
		e.logger.Warn("reconciliation after task action failed", "task_id", taskID, "error", err)
	}
	return nil
}

func (e *Engine) requireActive() (*session, string, error) {
	s, err := e.require()
	if err != nil {
		return nil, "", err
	}
	id := e.Active()
	if id == "" {
		return nil, "", ErrNoActiveConversation
	}
	return s, id, nil
}

func (e *Engine) toLocal(s *session, convID string, wire []api.Message) []conversation.Message {
	now := e.clk.Now()
	out := make([]conversation.Message, 0, len(wire))
	for _, wm := range wire {
		out = append(out, poller.ToLocal(wm, s.userID, convID, now))
	}
	return out
}
