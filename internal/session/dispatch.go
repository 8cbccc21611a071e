// ABOUTME: Routes classified push frames into the store, unread aggregate and list refresh
// ABOUTME: Frames from a session that has since ended are dropped

package session

import (
	"context"
	"time"

	"github.com/ZIon2025-x/LinkU1-sub000/internal/conversation"
	"github.com/ZIon2025-x/LinkU1-sub000/internal/frame"
)

const sideEffectTimeout = 10 * time.Second

// handleRaw runs on the push reader goroutine.
func (e *Engine) handleRaw(s *session, raw []byte) {
	if e.current() != s {
		return
	}
	f, err := s.classifier.Classify(raw)
	if err != nil {
		e.metrics.FrameReceived("invalid")
		e.logger.Debug("dropping push frame", "error", err, "size", len(raw))
		return
	}
	e.metrics.FrameReceived(string(f.Kind()))
	e.dispatch(s, f)
}

func (e *Engine) dispatch(s *session, f frame.Frame) {
	switch f := f.(type) {
	case frame.Heartbeat:
	case frame.SendAck:
		e.logger.Debug("send acknowledged", "message_id", f.MessageID)
	case frame.ChatEnded:
		e.chatEnded(s, f)
	case frame.LifecycleEvent:
		e.lifecycle(s, f)
	case frame.TaskMessage:
		e.deliver(s, conversation.TaskID(f.TaskID), f.Message)
	case frame.ServiceMessage:
		e.deliver(s, conversation.ServiceID(f.ChatID), f.Message)
	case frame.GenericMessage:
		chatID := f.ChatID
		if chatID == "" {
			chatID = e.ActiveServiceChat()
		}
		if chatID == "" {
			e.logger.Debug("dropping message with no conversation", "from", f.From)
			return
		}
		e.deliver(s, conversation.ServiceID(chatID), f.Message)
	}
}

// deliver inserts an inbound chat message. A message for a hidden
// conversation brings it back into the list.
func (e *Engine) deliver(s *session, convID string, m conversation.Message) {
	if !e.store.Insert(convID, m) {
		return
	}
	if e.store.SetHidden(convID, false) {
		ctx, cancel := context.WithTimeout(s.ctx, sideEffectTimeout)
		if err := e.prefs.SetRemoved(ctx, s.userID, convID, false); err != nil {
			e.logger.Warn("persisting unhidden conversation failed", "conversation_id", convID, "error", err)
		}
		cancel()
	}
	s.unread.Observe(convID, m)
}

func (e *Engine) chatEnded(s *session, f frame.ChatEnded) {
	convID := f.ConversationID()
	if e.store.MarkEnded(convID) {
		e.store.Insert(convID, f.SystemMessage("ended-"+f.ChatID))
	}

	e.mu.Lock()
	wasActive := e.activeService == f.ChatID
	if wasActive {
		e.activeService = ""
	}
	e.mu.Unlock()
	if !wasActive {
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, sideEffectTimeout)
	defer cancel()
	if err := e.prefs.SetActiveServiceChat(ctx, s.userID, ""); err != nil {
		e.logger.Warn("clearing active service chat failed", "chat_id", f.ChatID, "error", err)
	}
}

// lifecycle shows the event only in an open conversation, then refreshes the
// list exactly once and resyncs our own participant record when we track it.
func (e *Engine) lifecycle(s *session, f frame.LifecycleEvent) {
	convID := f.ConversationID()
	if e.Active() == convID {
		e.store.Insert(convID, f.SystemMessage())
	}

	ctx, cancel := context.WithTimeout(s.ctx, sideEffectTimeout)
	defer cancel()
	if err := e.RefreshConversations(ctx); err != nil {
		e.logger.Warn("conversation refresh after lifecycle event failed", "tag", f.Tag, "error", err)
	}
	if _, ok := s.participation.Registry().Get(f.TaskID, s.userID); ok {
		if _, err := s.participation.Sync(ctx, f.TaskID, s.userID); err != nil {
			e.logger.Warn("participant resync failed", "task_id", f.TaskID, "error", err)
		}
	}
}
