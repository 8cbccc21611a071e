// ABOUTME: Wire types for the LinkU HTTP API
// ABOUTME: Converts server messages into local conversation messages

package api

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/tidwall/gjson"

	"github.com/ZIon2025-x/LinkU1-sub000/internal/conversation"
	"github.com/ZIon2025-x/LinkU1-sub000/internal/frame"
)

// ID is an identifier the server may send as a JSON number or string.
type ID string

// UnmarshalJSON accepts numbers, strings and null.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

// Identity is the authenticated user.
type Identity struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}

// Message is a chat message as the server returns it.
type Message struct {
	ID          ID                        `json:"id"`
	SenderID    ID                        `json:"sender_id"`
	SenderType  string                    `json:"sender_type"`
	Content     string                    `json:"content"`
	MessageType string                    `json:"message_type"`
	CreatedAt   json.RawMessage           `json:"created_at"`
	Attachments []conversation.Attachment `json:"attachments,omitempty"`
}

// ToMessage converts m for conversation convID. Timestamps that cannot be
// parsed fall back to fallback.
func (m Message) ToMessage(selfID, convID string, fallback time.Time) conversation.Message {
	created, ok := frame.ParseTimestamp(gjson.ParseBytes(m.CreatedAt))
	if !ok {
		created = fallback.UTC()
	}
	role := conversation.RoleFor(selfID, string(m.SenderID), m.SenderType)
	senderID := string(m.SenderID)
	if role == conversation.RoleSystem {
		senderID = ""
	}
	return conversation.Message{
		ID:             string(m.ID),
		ConversationID: convID,
		SenderRole:     role,
		SenderID:       senderID,
		Content:        m.Content,
		CreatedAt:      created,
		Kind:           conversation.ParseMessageKind(m.MessageType),
		Attachments:    m.Attachments,
		DeliveryState:  conversation.DeliveryConfirmed,
	}
}

// MessagePage is one page of messages, oldest first.
type MessagePage struct {
	Messages   []Message `json:"messages"`
	NextCursor string    `json:"next_cursor"`
	HasMore    bool      `json:"has_more"`
}

// ConversationSummary is one row of the conversation list.
type ConversationSummary struct {
	Kind          string          `json:"kind"` // "task" or "service"
	ID            ID              `json:"id"`
	Title         string          `json:"title"`
	LastMessage   string          `json:"last_message"`
	LastMessageAt json.RawMessage `json:"last_message_at"`
	LastType      string          `json:"last_message_type"`
	UnreadCount   int             `json:"unread_count"`
	IsEnded       bool            `json:"is_ended"`
}

// ConversationID returns the local conversation id for the row.
func (s ConversationSummary) ConversationID() string {
	if s.Kind == string(conversation.KindService) {
		return conversation.ServiceID(string(s.ID))
	}
	return conversation.TaskID(string(s.ID))
}

// UpdatedAt parses LastMessageAt, returning the zero time when absent.
func (s ConversationSummary) UpdatedAt() time.Time {
	t, _ := frame.ParseTimestamp(gjson.ParseBytes(s.LastMessageAt))
	return t
}

// SendRequest is the body for sending a message over HTTP.
type SendRequest struct {
	Content         string                    `json:"content"`
	MessageType     string                    `json:"message_type,omitempty"`
	ClientMessageID string                    `json:"client_message_id,omitempty"`
	Attachments     []conversation.Attachment `json:"attachments,omitempty"`
	Timezone        string                    `json:"timezone,omitempty"`
	LocalTime       string                    `json:"local_time,omitempty"`
}

// UnreadCounts is the authoritative unread recount.
type UnreadCounts struct {
	Total          int            `json:"total"`
	ByConversation map[string]int `json:"by_conversation"`
}

// Task is one row of the user's task list.
type Task struct {
	ID     ID     `json:"id"`
	Title  string `json:"title"`
	Status string `json:"status"`
}

// Application is a user's application to a task.
type Application struct {
	ID     ID     `json:"id"`
	TaskID ID     `json:"task_id"`
	UserID ID     `json:"user_id"`
	Status string `json:"status"`
}

// Participant is a user's participation record in a multi-person task.
type Participant struct {
	TaskID        ID              `json:"task_id"`
	UserID        ID              `json:"user_id"`
	Status        string          `json:"status"`
	PriorStatus   string          `json:"prior_status,omitempty"`
	SlotStartTime json.RawMessage `json:"slot_start_time,omitempty"`
}

// SlotStart parses SlotStartTime, reporting false when absent.
func (p Participant) SlotStart() (time.Time, bool) {
	return frame.ParseTimestamp(gjson.ParseBytes(p.SlotStartTime))
}
