// ABOUTME: Closed set of inbound push frame kinds
// ABOUTME: Each raw frame classifies into exactly one of these types

package frame

import (
	"time"

	"github.com/ZIon2025-x/LinkU1-sub000/internal/conversation"
)

// Kind names a frame type.
type Kind string

const (
	KindHeartbeat      Kind = "heartbeat"
	KindSendAck        Kind = "send_ack"
	KindChatEnded      Kind = "chat_ended"
	KindLifecycle      Kind = "lifecycle"
	KindTaskMessage    Kind = "task_message"
	KindServiceMessage Kind = "service_message"
	KindGenericMessage Kind = "generic_message"
)

// Frame is a classified inbound frame. The set of implementations is closed.
type Frame interface {
	Kind() Kind
	isFrame()
}

// Heartbeat keeps the connection alive. Never forwarded past the connection.
type Heartbeat struct{}

// SendAck confirms the server received an outbound frame. Carries no content.
type SendAck struct {
	MessageID string
	ChatID    string
	TaskID    string
}

// ChatEnded reports that a service chat was closed, or timed out when Timeout is set.
type ChatEnded struct {
	ChatID    string
	Timeout   bool
	CreatedAt time.Time
}

// LifecycleEvent is a task or application state change rendered as a system message.
type LifecycleEvent struct {
	Tag       Tag
	TaskID    string
	TaskTitle string
	MessageID string
	CreatedAt time.Time
}

// TaskMessage is a chat message in a task conversation.
type TaskMessage struct {
	TaskID  string
	Message conversation.Message
}

// ServiceMessage is a chat message in the active service conversation.
type ServiceMessage struct {
	ChatID  string
	Message conversation.Message
}

// GenericMessage is the legacy shape keyed by from. ChatID is empty when the
// frame did not name a chat.
type GenericMessage struct {
	From    string
	ChatID  string
	Message conversation.Message
}

func (Heartbeat) Kind() Kind      { return KindHeartbeat }
func (SendAck) Kind() Kind        { return KindSendAck }
func (ChatEnded) Kind() Kind      { return KindChatEnded }
func (LifecycleEvent) Kind() Kind { return KindLifecycle }
func (TaskMessage) Kind() Kind    { return KindTaskMessage }
func (ServiceMessage) Kind() Kind { return KindServiceMessage }
func (GenericMessage) Kind() Kind { return KindGenericMessage }

func (Heartbeat) isFrame()      {}
func (SendAck) isFrame()        {}
func (ChatEnded) isFrame()      {}
func (LifecycleEvent) isFrame() {}
func (TaskMessage) isFrame()    {}
func (ServiceMessage) isFrame() {}
func (GenericMessage) isFrame() {}

// ConversationID returns the task conversation the event belongs to.
func (e LifecycleEvent) ConversationID() string {
	return conversation.TaskID(e.TaskID)
}

// Text renders the event through the template table.
func (e LifecycleEvent) Text() string {
	return e.Tag.Format(e.TaskTitle)
}

// SystemMessage materializes the event as a system message.
func (e LifecycleEvent) SystemMessage() conversation.Message {
	return conversation.Message{
		ID:             e.MessageID,
		ConversationID: e.ConversationID(),
		SenderRole:     conversation.RoleSystem,
		Content:        e.Text(),
		CreatedAt:      e.CreatedAt,
		Kind:           conversation.MessageSystemEvent,
		DeliveryState:  conversation.DeliveryConfirmed,
	}
}

// ConversationID returns the service conversation that ended.
func (e ChatEnded) ConversationID() string {
	return conversation.ServiceID(e.ChatID)
}

// Text is the synthesized notice appended to the ended conversation.
func (e ChatEnded) Text() string {
	if e.Timeout {
		return "This conversation timed out due to inactivity"
	}
	return "This conversation has ended"
}

// SystemMessage materializes the notice. id must be unique within the conversation.
func (e ChatEnded) SystemMessage(id string) conversation.Message {
	return conversation.Message{
		ID:             id,
		ConversationID: e.ConversationID(),
		SenderRole:     conversation.RoleSystem,
		Content:        e.Text(),
		CreatedAt:      e.CreatedAt,
		Kind:           conversation.MessageSystemEvent,
		DeliveryState:  conversation.DeliveryConfirmed,
	}
}
