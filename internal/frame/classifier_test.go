// ABOUTME: Tests for push frame classification
// ABOUTME: Covers precedence order, role mapping, timestamps and malformed input

package frame

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/ZIon2025-x/LinkU1-sub000/internal/clock"
	"github.com/ZIon2025-x/LinkU1-sub000/internal/conversation"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestClassifier(active string) *Classifier {
	return NewClassifier("u-self", func() string { return active }, clock.NewFake(now))
}

func TestClassify_Kinds(t *testing.T) {
	c := newTestClassifier("c-1")

	tests := []struct {
		name string
		raw  string
		want Kind
	}{
		{"heartbeat", `{"type":"heartbeat"}`, KindHeartbeat},
		{"send ack", `{"type":"message_sent","message_id":"99","chat_id":"c-1"}`, KindSendAck},
		{"chat ended", `{"type":"chat_ended","chat_id":"c-1"}`, KindChatEnded},
		{"chat timeout", `{"type":"chat_timeout","chat_id":"c-1"}`, KindChatEnded},
		{"lifecycle beats task message", `{"type":"task_completed","task_id":42,"task_title":"Clean flat"}`, KindLifecycle},
		{"task message", `{"task_id":"42","sender_id":"u-2","content":"hi"}`, KindTaskMessage},
		{"service message for active chat", `{"chat_id":"c-1","sender_type":"customer_service","content":"hello"}`, KindServiceMessage},
		{"legacy from shape", `{"from":"u-3","content":"yo"}`, KindGenericMessage},
		{"inactive chat falls through to from", `{"chat_id":"c-2","from":"agent-7","content":"x"}`, KindGenericMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := c.Classify([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.Kind())
		})
	}
}

func TestClassify_Errors(t *testing.T) {
	c := newTestClassifier("c-1")

	for _, raw := range []string{`not json`, `[1,2]`, `"str"`, `{"type":`} {
		_, err := c.Classify([]byte(raw))
		assert.ErrorIs(t, err, ErrMalformed, raw)
	}

	for _, raw := range []string{
		`{}`,
		`{"chat_id":"c-2","content":"no sender"}`,
		`{"type":"chat_ended"}`,
		`{"type":"task_completed"}`,
	} {
		_, err := c.Classify([]byte(raw))
		assert.ErrorIs(t, err, ErrUnrecognized, raw)
	}
}

func TestClassify_LifecycleEvent(t *testing.T) {
	c := newTestClassifier("")

	f, err := c.Classify([]byte(`{"type":"task_completed","task_id":42,"task_title":"Clean flat"}`))
	require.NoError(t, err)

	ev, ok := f.(LifecycleEvent)
	require.True(t, ok)
	assert.Equal(t, TagTaskCompleted, ev.Tag)
	assert.Equal(t, "42", ev.TaskID)
	assert.Equal(t, "task:42", ev.ConversationID())
	assert.Contains(t, ev.Text(), "Clean flat")
	assert.NotEmpty(t, ev.MessageID)
	assert.Equal(t, now, ev.CreatedAt)

	m := ev.SystemMessage()
	assert.Equal(t, conversation.RoleSystem, m.SenderRole)
	assert.Equal(t, conversation.MessageSystemEvent, m.Kind)
	assert.Equal(t, ev.Text(), m.Content)
}

func TestClassify_ChatTimeout(t *testing.T) {
	c := newTestClassifier("c-1")

	f, err := c.Classify([]byte(`{"type":"chat_timeout","chat_id":"c-1"}`))
	require.NoError(t, err)

	ended := f.(ChatEnded)
	assert.True(t, ended.Timeout)
	assert.Equal(t, "service:c-1", ended.ConversationID())
	assert.Contains(t, ended.Text(), "timed out")
}

func TestClassify_Roles(t *testing.T) {
	c := newTestClassifier("c-1")

	tests := []struct {
		raw  string
		want conversation.SenderRole
	}{
		{`{"task_id":"1","sender_id":"u-self","content":"a"}`, conversation.RoleSelf},
		{`{"task_id":"1","sender_id":"u-2","content":"a"}`, conversation.RoleOther},
		{`{"task_id":"1","sender_type":"system","content":"a"}`, conversation.RoleSystem},
		{`{"chat_id":"c-1","sender_id":"cs-1","sender_type":"customer_service","content":"a"}`, conversation.RoleServiceAgent},
		{`{"task_id":"1","sender_id":"ad-1","sender_type":"admin","content":"a"}`, conversation.RoleAdmin},
		{`{"from":"u-self","content":"a"}`, conversation.RoleSelf},
	}
	for _, tt := range tests {
		f, err := c.Classify([]byte(tt.raw))
		require.NoError(t, err, tt.raw)

		var m conversation.Message
		switch v := f.(type) {
		case TaskMessage:
			m = v.Message
		case ServiceMessage:
			m = v.Message
		case GenericMessage:
			m = v.Message
		default:
			t.Fatalf("unexpected frame %T", f)
		}
		assert.Equal(t, tt.want, m.SenderRole, tt.raw)
	}
}

func TestClassify_MessageFields(t *testing.T) {
	c := newTestClassifier("")

	raw := `{"task_id":"7","id":1234,"sender_id":"u-2","content":"photo","message_type":"image",
		"created_at":"2024-05-01T10:00:00","attachments":[{"url":"https://cdn/x.png","name":"x.png"},{"name":"no url"}]}`
	f, err := c.Classify([]byte(raw))
	require.NoError(t, err)

	m := f.(TaskMessage).Message
	assert.Equal(t, "1234", m.ID)
	assert.Equal(t, "task:7", m.ConversationID)
	assert.Equal(t, conversation.MessageImage, m.Kind)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), m.CreatedAt)
	require.Len(t, m.Attachments, 1)
	assert.Equal(t, "https://cdn/x.png", m.Attachments[0].URL)
}

func TestClassify_SyntheticIDsAreUnique(t *testing.T) {
	c := newTestClassifier("")

	a, err := c.Classify([]byte(`{"task_id":"1","content":"a"}`))
	require.NoError(t, err)
	b, err := c.Classify([]byte(`{"task_id":"1","content":"b"}`))
	require.NoError(t, err)

	assert.NotEqual(t, a.(TaskMessage).Message.ID, b.(TaskMessage).Message.ID)
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Time
		ok   bool
	}{
		{`"2024-05-01T10:00:00+08:00"`, time.Date(2024, 5, 1, 2, 0, 0, 0, time.UTC), true},
		{`"2024-05-01 10:00:00.123"`, time.Date(2024, 5, 1, 10, 0, 0, 123e6, time.UTC), true},
		{`1714557600`, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), true},
		{`1714557600000`, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), true},
		{`"yesterday"`, time.Time{}, false},
		{`null`, time.Time{}, false},
	}
	for _, tt := range tests {
		got, ok := ParseTimestamp(gjson.Parse(tt.raw))
		assert.Equal(t, tt.ok, ok, tt.raw)
		assert.True(t, tt.want.Equal(got), "%s: got %v", tt.raw, got)
	}
}
