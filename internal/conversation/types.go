// ABOUTME: Conversation and message data model for the local sync log
// ABOUTME: Defines ids, sender roles, message kinds and delivery states

package conversation

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind distinguishes service chats from task chats.
type Kind string

const (
	KindService Kind = "service"
	KindTask    Kind = "task"
)

// SenderRole identifies who authored a message relative to the local user.
type SenderRole string

const (
	RoleSelf         SenderRole = "self"
	RoleOther        SenderRole = "other"
	RoleSystem       SenderRole = "system"
	RoleServiceAgent SenderRole = "service_agent"
	RoleAdmin        SenderRole = "admin"
)

// MessageKind is the content type of a message.
type MessageKind string

const (
	MessageText        MessageKind = "text"
	MessageImage       MessageKind = "image"
	MessageFile        MessageKind = "file"
	MessageTaskCard    MessageKind = "task_card"
	MessageSystemEvent MessageKind = "system_event"
)

// ParseMessageKind maps a wire message_type to a MessageKind, defaulting to text.
func ParseMessageKind(s string) MessageKind {
	switch MessageKind(strings.ToLower(s)) {
	case MessageImage:
		return MessageImage
	case MessageFile:
		return MessageFile
	case MessageTaskCard:
		return MessageTaskCard
	case MessageSystemEvent, "system":
		return MessageSystemEvent
	default:
		return MessageText
	}
}

// DeliveryState tracks an outbound message through the send lifecycle.
type DeliveryState string

const (
	DeliveryPending   DeliveryState = "pending"
	DeliveryConfirmed DeliveryState = "confirmed"
	DeliveryFailed    DeliveryState = "failed"
)

// Attachment is a file or image reference carried by a message.
type Attachment struct {
	URL      string `json:"url"`
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// Message is one entry in a conversation log. ID is a temporary client id
// while DeliveryState is pending and the server id afterwards.
type Message struct {
	ID             string
	ConversationID string
	SenderRole     SenderRole
	SenderID       string
	Content        string
	CreatedAt      time.Time
	Kind           MessageKind
	Attachments    []Attachment
	DeliveryState  DeliveryState
}

// IsPending reports whether m is an unconfirmed optimistic echo.
func (m Message) IsPending() bool {
	return m.DeliveryState == DeliveryPending
}

// Conversation is the local view of one chat.
type Conversation struct {
	ID             string
	Kind           Kind
	Messages       []Message
	LastMessageID  string
	UnreadCount    int
	IsEnded        bool
	HistoryCursor  string
	HasMoreHistory bool
	// WindowLoaded is set once the newest page has been fetched from the server.
	WindowLoaded bool
	Hidden       bool

	// Summary fields populated by list refresh.
	Title     string
	Preview   string
	UpdatedAt time.Time
}

// ErrInvalidID is returned when a conversation id is not service:<id> or task:<id>.
var ErrInvalidID = errors.New("invalid conversation id")

// ServiceID returns the conversation id for a service chat.
func ServiceID(chatID string) string {
	return string(KindService) + ":" + chatID
}

// TaskID returns the conversation id for a task chat.
func TaskID(taskID string) string {
	return string(KindTask) + ":" + taskID
}

// ParseID splits a conversation id into its kind and external id.
func ParseID(id string) (Kind, string, error) {
	prefix, rest, ok := strings.Cut(id, ":")
	if !ok || rest == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	switch Kind(prefix) {
	case KindService, KindTask:
		return Kind(prefix), rest, nil
	default:
		return "", "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
}

// RoleFor maps sender identity onto a SenderRole relative to selfID.
func RoleFor(selfID, senderID, senderType string) SenderRole {
	if senderID != "" && senderID == selfID {
		return RoleSelf
	}
	switch strings.ToLower(senderType) {
	case "system":
		return RoleSystem
	case "customer_service", "service", "service_agent":
		return RoleServiceAgent
	case "admin":
		return RoleAdmin
	default:
		return RoleOther
	}
}
