// ABOUTME: Tests for the participant transition table
// ABOUTME: Covers every edge, terminal states, slot-start rule and exit rejection restore

package participation

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func TestNext_TableEdges(t *testing.T) {
	tests := []struct {
		from   Status
		action Action
		want   Status
	}{
		{StatusPending, ActionApprove, StatusAccepted},
		{StatusPending, ActionReject, StatusRejected},
		{StatusAccepted, ActionStart, StatusInProgress},
		{StatusInProgress, ActionRequestExit, StatusExitRequested},
		{StatusAccepted, ActionRequestExit, StatusExitRequested},
		{StatusInProgress, ActionComplete, StatusCompleted},
		{StatusExitRequested, ActionApproveExit, StatusExited},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.action), func(t *testing.T) {
			next, err := Next(State{Status: tt.from}, tt.action, t0)
			require.NoError(t, err)
			assert.Equal(t, tt.want, next.Status)
			assert.Equal(t, t0, next.UpdatedAt)
		})
	}
}

func TestNext_RejectedEdges(t *testing.T) {
	tests := []struct {
		from   Status
		action Action
	}{
		{StatusPending, ActionStart},
		{StatusAccepted, ActionComplete},
		{StatusInProgress, ActionApprove},
		{StatusExitRequested, ActionComplete},
		{StatusPending, ActionRequestExit},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.action), func(t *testing.T) {
			s := State{TaskID: "t1", UserID: "u1", Status: tt.from}
			next, err := Next(s, tt.action, t0)

			var rerr *RuleError
			require.True(t, errors.As(err, &rerr))
			assert.ErrorIs(t, err, ErrInvalidTransition)
			assert.Equal(t, tt.from, rerr.From)
			assert.Equal(t, s, next)
		})
	}
}

func TestNext_TerminalStatesHaveNoExits(t *testing.T) {
	for _, st := range []Status{StatusExited, StatusRejected, StatusCompleted} {
		assert.True(t, st.Terminal())
		assert.Empty(t, Allowed(st), st)
	}
	assert.False(t, StatusInProgress.Terminal())
}

func TestNext_RequestExitBeforeSlot(t *testing.T) {
	s := State{Status: StatusInProgress, SlotStart: t0.Add(time.Hour)}

	next, err := Next(s, ActionRequestExit, t0)
	require.NoError(t, err)
	assert.Equal(t, StatusExitRequested, next.Status)
	assert.Equal(t, StatusInProgress, next.Prior)
}

func TestNext_RequestExitAfterSlotStart(t *testing.T) {
	s := State{TaskID: "t1", UserID: "u1", Status: StatusInProgress, SlotStart: t0}

	// now == slot start already counts as started
	_, err := Next(s, ActionRequestExit, t0)
	var rerr *RuleError
	require.True(t, errors.As(err, &rerr))
	assert.ErrorIs(t, err, ErrSlotStarted)
	assert.Equal(t, ActionRequestExit, rerr.Action)
}

func TestNext_RejectExitRestoresPrior(t *testing.T) {
	for _, prior := range []Status{StatusAccepted, StatusInProgress} {
		s := State{Status: prior, SlotStart: t0.Add(time.Hour)}
		requested, err := Next(s, ActionRequestExit, t0)
		require.NoError(t, err)

		restored, err := Next(requested, ActionRejectExit, t0.Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, prior, restored.Status)
		assert.Empty(t, restored.Prior)
	}
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus("exit_requested")
	require.NoError(t, err)
	assert.Equal(t, StatusExitRequested, st)

	_, err = ParseStatus("archived")
	assert.ErrorIs(t, err, ErrUnknownStatus)
}

func TestRegistry_ApplyIsIdempotent(t *testing.T) {
	r := NewRegistry()
	first := r.Apply("t1", "u1", time.Time{}, t0)
	assert.Equal(t, StatusPending, first.Status)

	_, err := r.Transition("t1", "u1", ActionApprove, t0)
	require.NoError(t, err)

	again := r.Apply("t1", "u1", time.Time{}, t0.Add(time.Hour))
	assert.Equal(t, StatusAccepted, again.Status)
}

func TestRegistry_UnknownParticipant(t *testing.T) {
	r := NewRegistry()
	_, err := r.Transition("t1", "ghost", ActionStart, t0)
	assert.ErrorIs(t, err, ErrUnknownParticipant)
}

func TestRegistry_CompletionIsPerParticipant(t *testing.T) {
	r := NewRegistry()
	for _, u := range []string{"u1", "u2"} {
		r.Put(State{TaskID: "t1", UserID: u, Status: StatusInProgress})
	}

	_, err := r.Transition("t1", "u1", ActionComplete, t0)
	require.NoError(t, err)

	states := r.ForTask("t1")
	require.Len(t, states, 2)
	assert.Equal(t, StatusCompleted, states[0].Status)
	assert.Equal(t, StatusInProgress, states[1].Status)
}
