// ABOUTME: Tests for the optimistic send tracker
// ABOUTME: Covers push confirm, HTTP replace, rollback on double failure and the re-entrancy guard

package pending

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZIon2025-x/LinkU1-sub000/internal/api"
	"github.com/ZIon2025-x/LinkU1-sub000/internal/clock"
	"github.com/ZIon2025-x/LinkU1-sub000/internal/conversation"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fakePush struct {
	mu     sync.Mutex
	open   bool
	frames []OutboundFrame
}

func (p *fakePush) Send(frame any) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.open {
		return false
	}
	p.frames = append(p.frames, frame.(OutboundFrame))
	return true
}

type fakeHTTP struct {
	mu      sync.Mutex
	calls   []api.SendRequest
	reply   *api.Message
	err     error
	block   chan struct{}
	started chan struct{}
}

func (h *fakeHTTP) SendMessage(ctx context.Context, convID string, req api.SendRequest) (*api.Message, error) {
	h.mu.Lock()
	h.calls = append(h.calls, req)
	h.mu.Unlock()
	if h.started != nil {
		close(h.started)
	}
	if h.block != nil {
		<-h.block
	}
	return h.reply, h.err
}

func newTracker(push PushSender, http HTTPSender, opts ...Option) (*Tracker, *conversation.Store) {
	store := conversation.NewStore()
	opts = append([]Option{WithClock(clock.NewFake(now)), WithLocation(time.UTC)}, opts...)
	return NewTracker(store, push, http, "u-self", opts...), store
}

func TestSubmit_PushConfirmsInPlace(t *testing.T) {
	push := &fakePush{open: true}
	http := &fakeHTTP{}
	tr, store := newTracker(push, http)

	store.Insert("service:c1", conversation.Message{ID: "1", SenderRole: conversation.RoleServiceAgent, Content: "hello", CreatedAt: now.Add(-time.Minute)})

	msg, err := tr.Submit(context.Background(), "service:c1", Input{Content: "hi", ReceiverID: "cs-7"})
	require.NoError(t, err)
	assert.Equal(t, conversation.DeliveryConfirmed, msg.DeliveryState)
	assert.Empty(t, http.calls)

	require.Len(t, push.frames, 1)
	f := push.frames[0]
	assert.Equal(t, "c1", f.ChatID)
	assert.Empty(t, f.TaskID)
	assert.Equal(t, "cs-7", f.ReceiverID)
	assert.Equal(t, msg.ID, f.MessageID)
	assert.Equal(t, "UTC", f.Timezone)
	assert.Equal(t, "2024-05-01 12:00:00", f.LocalTime)

	snap, _ := store.Snapshot("service:c1")
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, msg.ID, snap.Messages[1].ID)
	assert.Equal(t, conversation.DeliveryConfirmed, snap.Messages[1].DeliveryState)
}

func TestSubmit_HTTPFallbackReplacesEcho(t *testing.T) {
	push := &fakePush{open: false}
	http := &fakeHTTP{reply: &api.Message{ID: "901", Content: "hi", CreatedAt: []byte(`"2024-05-01T12:00:01Z"`)}}
	tr, store := newTracker(push, http)

	msg, err := tr.Submit(context.Background(), "task:42", Input{Content: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "901", msg.ID)
	assert.Equal(t, conversation.RoleSelf, msg.SenderRole)

	require.Len(t, http.calls, 1)
	assert.NotEmpty(t, http.calls[0].ClientMessageID)

	snap, _ := store.Snapshot("task:42")
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, "901", snap.Messages[0].ID)
	assert.Equal(t, "901", snap.LastMessageID)
}

func TestSubmit_BothPathsFailRollsBack(t *testing.T) {
	var notified []*SendError
	push := &fakePush{open: false}
	http := &fakeHTTP{err: errors.New("503")}
	tr, store := newTracker(push, http, WithFailureHook(func(e *SendError) { notified = append(notified, e) }))

	in := Input{Content: "draft text"}
	_, err := tr.Submit(context.Background(), "task:42", in)

	var sendErr *SendError
	require.ErrorAs(t, err, &sendErr)
	assert.Equal(t, in, sendErr.Input)
	assert.EqualError(t, errors.Unwrap(err), "503")
	require.Len(t, notified, 1)

	snap, _ := store.Snapshot("task:42")
	assert.Empty(t, snap.Messages)
	assert.False(t, tr.isInFlight("task:42"))
}

func TestSubmit_RejectsSecondSendWhileInFlight(t *testing.T) {
	http := &fakeHTTP{
		reply:   &api.Message{ID: "5"},
		block:   make(chan struct{}),
		started: make(chan struct{}),
	}
	tr, store := newTracker(nil, http)

	done := make(chan error, 1)
	go func() {
		_, err := tr.Submit(context.Background(), "task:1", Input{Content: "first"})
		done <- err
	}()
	<-http.started

	_, err := tr.Submit(context.Background(), "task:1", Input{Content: "something else"})
	assert.ErrorIs(t, err, ErrSendInFlight)

	// other conversations are not blocked
	assert.False(t, tr.isInFlight("task:2"))

	close(http.block)
	require.NoError(t, <-done)

	snap, _ := store.Snapshot("task:1")
	assert.Len(t, snap.Messages, 1)
}

func TestSubmit_Validation(t *testing.T) {
	tr, store := newTracker(nil, &fakeHTTP{})

	_, err := tr.Submit(context.Background(), "task:1", Input{Content: "   "})
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = tr.Submit(context.Background(), "room:1", Input{Content: "x"})
	assert.ErrorIs(t, err, conversation.ErrInvalidID)

	store.MarkEnded("service:c1")
	_, err = tr.Submit(context.Background(), "service:c1", Input{Content: "x"})
	assert.ErrorIs(t, err, ErrConversationEnded)
}

func TestSubmit_TaskFrameCarriesTaskID(t *testing.T) {
	push := &fakePush{open: true}
	tr, _ := newTracker(push, &fakeHTTP{})

	_, err := tr.Submit(context.Background(), "task:42", Input{Content: "x"})
	require.NoError(t, err)
	require.Len(t, push.frames, 1)
	assert.Equal(t, "42", push.frames[0].TaskID)
	assert.Empty(t, push.frames[0].ChatID)
}
