// ABOUTME: Tests for the unread Aggregator
// ABOUTME: Covers cross-producer dedup, debounced authoritative recount and read-mark gating

package unread

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

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeServer struct {
	mu       sync.Mutex
	counts   api.UnreadCounts
	recounts int
	marks    []string
	markErr  error
}

func (f *fakeServer) UnreadCounts(context.Context) (*api.UnreadCounts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recounts++
	c := f.counts
	return &c, nil
}

func (f *fakeServer) MarkRead(_ context.Context, convID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return f.markErr
	}
	f.marks = append(f.marks, convID+"@"+messageID)
	return nil
}

func newAggregator(srv *fakeServer) (*Aggregator, *conversation.Store, *clock.Fake) {
	clk := clock.NewFake(t0)
	store := conversation.NewStore()
	agg := NewAggregator(srv, srv, store, WithClock(clk))
	return agg, store, clk
}

func incoming(id string) conversation.Message {
	return conversation.Message{ID: id, SenderRole: conversation.RoleOther, Content: "m" + id, CreatedAt: t0, Kind: conversation.MessageText}
}

func TestObserve_SameMessageFromBothProducersCountsOnce(t *testing.T) {
	srv := &fakeServer{}
	agg, store, _ := newAggregator(srv)
	defer agg.Close()

	assert.True(t, agg.Observe("task:1", incoming("10")))  // push
	assert.False(t, agg.Observe("task:1", incoming("10"))) // poll

	assert.Equal(t, 1, agg.Total())
	snap, _ := store.Snapshot("task:1")
	assert.Equal(t, 1, snap.UnreadCount)
}

func TestObserve_IgnoresSelfAndSystemEvents(t *testing.T) {
	agg, _, _ := newAggregator(&fakeServer{})
	defer agg.Close()

	self := incoming("1")
	self.SenderRole = conversation.RoleSelf
	sys := incoming("2")
	sys.Kind = conversation.MessageSystemEvent

	assert.False(t, agg.Observe("task:1", self))
	assert.False(t, agg.Observe("task:1", sys))
	assert.Equal(t, 0, agg.Total())
}

func TestObserve_DebouncedRecountWins(t *testing.T) {
	srv := &fakeServer{counts: api.UnreadCounts{Total: 7, ByConversation: map[string]int{"task:1": 2, "service:9": 5}}}
	agg, store, clk := newAggregator(srv)
	defer agg.Close()

	agg.Observe("task:1", incoming("1"))
	clk.Advance(50 * time.Millisecond)
	agg.Observe("task:1", incoming("2"))
	agg.Observe("task:3", incoming("3"))
	assert.Equal(t, 3, agg.Total(), "provisional")

	clk.Advance(DefaultDebounce)
	assert.Equal(t, 1, srv.recounts, "burst coalesced into one recount")
	assert.Equal(t, 7, agg.Total())
	assert.Equal(t, 5, agg.Count("service:9"))

	snap, _ := store.Snapshot("task:3")
	assert.Equal(t, 0, snap.UnreadCount, "conversations absent from the recount are cleared")
}

func TestMarkRead_RequiresNearBottom(t *testing.T) {
	srv := &fakeServer{}
	agg, store, _ := newAggregator(srv)
	defer agg.Close()

	store.Insert("task:1", incoming("10"))
	agg.Observe("task:1", incoming("10"))

	err := agg.MarkRead(context.Background(), "task:1", DefaultNearBottom+1)
	assert.ErrorIs(t, err, ErrNotAtBottom)
	assert.Equal(t, 1, agg.Count("task:1"))
	assert.Empty(t, srv.marks)

	require.NoError(t, agg.MarkRead(context.Background(), "task:1", DefaultNearBottom))
	assert.Equal(t, 0, agg.Count("task:1"))
	assert.Equal(t, 0, agg.Total())
	assert.Equal(t, []string{"task:1@10"}, srv.marks)
}

func TestMarkRead_FailureRetriedLater(t *testing.T) {
	srv := &fakeServer{markErr: errors.New("offline")}
	agg, store, _ := newAggregator(srv)
	defer agg.Close()

	store.Insert("task:1", incoming("10"))
	agg.Observe("task:1", incoming("10"))

	require.Error(t, agg.MarkRead(context.Background(), "task:1", 0))
	assert.Equal(t, 1, agg.Count("task:1"), "count is not reset without server ack")
	assert.Equal(t, []string{"task:1"}, agg.pendingReadIDs())

	srv.mu.Lock()
	srv.markErr = nil
	srv.mu.Unlock()

	agg.RetryPendingReads(context.Background())
	assert.Empty(t, agg.pendingReadIDs())
	assert.Equal(t, 0, agg.Count("task:1"))
}

func TestMarkRead_EmptyConversationIsNoop(t *testing.T) {
	srv := &fakeServer{}
	agg, _, _ := newAggregator(srv)
	defer agg.Close()

	require.NoError(t, agg.MarkRead(context.Background(), "task:1", 0))
	assert.Empty(t, srv.marks)
}

func TestReset_ForgetsSeenIDs(t *testing.T) {
	agg, _, _ := newAggregator(&fakeServer{})
	defer agg.Close()

	agg.Observe("task:1", incoming("1"))
	agg.Reset()
	assert.Equal(t, 0, agg.Total())

	assert.True(t, agg.Observe("task:1", incoming("1")), "a new session counts from scratch")
}

func TestClose_TimerAfterCloseIsNoop(t *testing.T) {
	srv := &fakeServer{counts: api.UnreadCounts{Total: 9}}
	agg, _, clk := newAggregator(srv)

	agg.Observe("task:1", incoming("1"))
	agg.Close()
	clk.Advance(time.Second)

	assert.Equal(t, 0, srv.recounts)
}

func TestMarkSeen_SuppressesLaterObserve(t *testing.T) {
	agg, _, _ := newAggregator(&fakeServer{})
	defer agg.Close()

	agg.MarkSeen("task:1", []conversation.Message{incoming("1")})
	assert.False(t, agg.Observe("task:1", incoming("1")))
}
