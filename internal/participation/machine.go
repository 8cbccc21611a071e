// ABOUTME: Participant status machine for multi-participant tasks
// ABOUTME: Transitions come from a fixed (status, action) table; anything else is a rule error

package participation

import (
	"errors"
	"fmt"
	"time"
)

// Status is a participant's state within one task.
type Status string

const (
	StatusPending       Status = "pending"
	StatusAccepted      Status = "accepted"
	StatusInProgress    Status = "in_progress"
	StatusExitRequested Status = "exit_requested"
	StatusExited        Status = "exited"
	StatusRejected      Status = "rejected"
	StatusCompleted     Status = "completed"
)

// ParseStatus validates a server status string.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusAccepted, StatusInProgress, StatusExitRequested,
		StatusExited, StatusRejected, StatusCompleted:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
}

// Terminal reports whether no action can leave s.
func (s Status) Terminal() bool {
	return s == StatusExited || s == StatusRejected || s == StatusCompleted
}

// Action is a participant-level operation.
type Action string

const (
	ActionApprove     Action = "approve"
	ActionReject      Action = "reject"
	ActionStart       Action = "start"
	ActionRequestExit Action = "request_exit"
	ActionApproveExit Action = "approve_exit"
	ActionRejectExit  Action = "reject_exit"
	ActionComplete    Action = "complete"
)

var (
	// ErrInvalidTransition means the action is not allowed from the current status.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrSlotStarted means an exit was requested after the time slot began.
	ErrSlotStarted = errors.New("time slot already started")

	// ErrUnknownParticipant means no state is tracked for the task and user.
	ErrUnknownParticipant = errors.New("unknown participant")

	// ErrUnknownStatus means the server reported a status this machine does not model.
	ErrUnknownStatus = errors.New("unknown participant status")
)

// RuleError is a rejected operation. It is never returned for transport
// failures, so callers can tell "not allowed" from "could not reach the server".
type RuleError struct {
	TaskID string
	UserID string
	From   Status
	Action Action
	Err    error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("participant %s/%s: %s from %s: %v", e.TaskID, e.UserID, e.Action, e.From, e.Err)
}

func (e *RuleError) Unwrap() error { return e.Err }

type edge struct {
	from   Status
	action Action
}

// transitions is the whole machine. reject_exit maps to the zero Status
// because its target is the status held before the exit request.
var transitions = map[edge]Status{
	{StatusPending, ActionApprove}:           StatusAccepted,
	{StatusPending, ActionReject}:            StatusRejected,
	{StatusAccepted, ActionStart}:            StatusInProgress,
	{StatusAccepted, ActionRequestExit}:      StatusExitRequested,
	{StatusInProgress, ActionRequestExit}:    StatusExitRequested,
	{StatusInProgress, ActionComplete}:       StatusCompleted,
	{StatusExitRequested, ActionApproveExit}: StatusExited,
	{StatusExitRequested, ActionRejectExit}:  "",
}

// State is one participant's record.
type State struct {
	TaskID    string
	UserID    string
	Status    Status
	Prior     Status // status before an exit request
	SlotStart time.Time
	UpdatedAt time.Time
}

// Allowed lists the actions valid from s.
func Allowed(s Status) []Action {
	var out []Action
	for _, a := range []Action{
		ActionApprove, ActionReject, ActionStart, ActionRequestExit,
		ActionApproveExit, ActionRejectExit, ActionComplete,
	} {
		if _, ok := transitions[edge{s, a}]; ok {
			out = append(out, a)
		}
	}
	return out
}

// Next computes the state after applying action at now. It does not mutate s.
func Next(s State, action Action, now time.Time) (State, error) {
	target, ok := transitions[edge{s.Status, action}]
	if !ok {
		return s, s.ruleError(action, ErrInvalidTransition)
	}

	next := s
	next.UpdatedAt = now
	switch action {
	case ActionRequestExit:
		if !s.SlotStart.IsZero() && !now.Before(s.SlotStart) {
			return s, s.ruleError(action, ErrSlotStarted)
		}
		next.Prior = s.Status
	case ActionRejectExit:
		target = s.Prior
		if target == "" {
			target = StatusInProgress
		}
		next.Prior = ""
	case ActionApproveExit:
		next.Prior = ""
	}
	next.Status = target
	return next, nil
}

func (s State) ruleError(action Action, err error) *RuleError {
	return &RuleError{TaskID: s.TaskID, UserID: s.UserID, From: s.Status, Action: action, Err: err}
}
