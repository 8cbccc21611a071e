// ABOUTME: Classifies raw push frames into the closed Frame set
// ABOUTME: Sniffs fields with gjson in a fixed precedence order

package frame

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/tidwall/gjson"

	"github.com/ZIon2025-x/LinkU1-sub000/internal/clock"
	"github.com/ZIon2025-x/LinkU1-sub000/internal/conversation"
)

var (
	// ErrMalformed is returned for frames that are not a JSON object.
	ErrMalformed = errors.New("malformed frame")

	// ErrUnrecognized is returned for well-formed frames matching no kind.
	ErrUnrecognized = errors.New("unrecognized frame")
)

const (
	typeHeartbeat   = "heartbeat"
	typeMessageSent = "message_sent"
	typeChatEnded   = "chat_ended"
	typeChatTimeout = "chat_timeout"
)

// naiveLayouts are server timestamp formats without a zone; they are read as UTC.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Classifier turns raw frames into Frames. It needs the local user id to
// assign sender roles and the active service chat id to recognize service
// messages.
type Classifier struct {
	selfID     string
	activeChat func() string
	clk        clock.Clock
	seq        atomic.Uint64
}

// NewClassifier creates a Classifier. activeChat may be nil when no service
// chat is ever active.
func NewClassifier(selfID string, activeChat func() string, clk clock.Clock) *Classifier {
	if activeChat == nil {
		activeChat = func() string { return "" }
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Classifier{selfID: selfID, activeChat: activeChat, clk: clk}
}

// Classify returns exactly one Frame for raw, or an error the caller should
// log and drop.
func (c *Classifier) Classify(raw []byte) (Frame, error) {
	if !gjson.ValidBytes(raw) {
		return nil, ErrMalformed
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return nil, ErrMalformed
	}

	typ := doc.Get("type").String()
	switch typ {
	case typeHeartbeat:
		return Heartbeat{}, nil
	case typeMessageSent:
		return SendAck{
			MessageID: firstString(doc, "message_id", "id"),
			ChatID:    doc.Get("chat_id").String(),
			TaskID:    doc.Get("task_id").String(),
		}, nil
	case typeChatEnded, typeChatTimeout:
		chatID := doc.Get("chat_id").String()
		if chatID == "" {
			return nil, fmt.Errorf("%w: %s without chat_id", ErrUnrecognized, typ)
		}
		return ChatEnded{
			ChatID:    chatID,
			Timeout:   typ == typeChatTimeout,
			CreatedAt: c.timestamp(doc),
		}, nil
	}

	taskID := doc.Get("task_id").String()

	if tag, ok := ParseTag(typ); ok {
		if taskID == "" {
			return nil, fmt.Errorf("%w: %s without task_id", ErrUnrecognized, typ)
		}
		id := firstString(doc, "id", "message_id")
		if id == "" {
			id = c.syntheticID("evt")
		}
		return LifecycleEvent{
			Tag:       tag,
			TaskID:    taskID,
			TaskTitle: doc.Get("task_title").String(),
			MessageID: id,
			CreatedAt: c.timestamp(doc),
		}, nil
	}

	if taskID != "" {
		return TaskMessage{
			TaskID:  taskID,
			Message: c.message(doc, conversation.TaskID(taskID)),
		}, nil
	}

	chatID := doc.Get("chat_id").String()
	if chatID != "" && chatID == c.activeChat() {
		return ServiceMessage{
			ChatID:  chatID,
			Message: c.message(doc, conversation.ServiceID(chatID)),
		}, nil
	}

	if from := doc.Get("from").String(); from != "" {
		convID := ""
		if chatID != "" {
			convID = conversation.ServiceID(chatID)
		}
		return GenericMessage{
			From:    from,
			ChatID:  chatID,
			Message: c.message(doc, convID),
		}, nil
	}

	return nil, ErrUnrecognized
}

func (c *Classifier) message(doc gjson.Result, convID string) conversation.Message {
	id := firstString(doc, "id", "message_id")
	if id == "" {
		id = c.syntheticID("push")
	}

	senderID := firstString(doc, "sender_id", "from")
	msg := conversation.Message{
		ID:             id,
		ConversationID: convID,
		SenderRole:     c.role(senderID, doc.Get("sender_type").String()),
		SenderID:       senderID,
		Content:        doc.Get("content").String(),
		CreatedAt:      c.timestamp(doc),
		Kind:           conversation.ParseMessageKind(doc.Get("message_type").String()),
		DeliveryState:  conversation.DeliveryConfirmed,
	}
	if msg.SenderRole == conversation.RoleSystem {
		msg.SenderID = ""
	}

	doc.Get("attachments").ForEach(func(_, a gjson.Result) bool {
		if url := a.Get("url").String(); url != "" {
			msg.Attachments = append(msg.Attachments, conversation.Attachment{
				URL:      url,
				Name:     a.Get("name").String(),
				MimeType: a.Get("mime_type").String(),
				Size:     a.Get("size").Int(),
			})
		}
		return true
	})
	return msg
}

func (c *Classifier) role(senderID, senderType string) conversation.SenderRole {
	return conversation.RoleFor(c.selfID, senderID, senderType)
}

func (c *Classifier) timestamp(doc gjson.Result) time.Time {
	if t, ok := ParseTimestamp(doc.Get("created_at")); ok {
		return t
	}
	return c.clk.Now().UTC()
}

func (c *Classifier) syntheticID(prefix string) string {
	return prefix + "-" + strconv.FormatInt(c.clk.Now().UnixMilli(), 10) + "-" + strconv.FormatUint(c.seq.Add(1), 10)
}

// ParseTimestamp reads a created_at value. Strings may be RFC 3339 or naive
// (assumed UTC); numbers are Unix seconds, or milliseconds when large.
func ParseTimestamp(v gjson.Result) (time.Time, bool) {
	switch v.Type {
	case gjson.Number:
		n := v.Int()
		if n <= 0 {
			return time.Time{}, false
		}
		if n >= 1e12 {
			return time.UnixMilli(n).UTC(), true
		}
		return time.Unix(n, 0).UTC(), true
	case gjson.String:
		s := strings.TrimSpace(v.Str)
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t.UTC(), true
		}
		for _, layout := range naiveLayouts {
			if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

func firstString(doc gjson.Result, keys ...string) string {
	for _, k := range keys {
		if s := doc.Get(k).String(); s != "" {
			return s
		}
	}
	return ""
}
