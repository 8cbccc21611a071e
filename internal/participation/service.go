// ABOUTME: Participation service: validates locally, performs the remote action, then commits
// ABOUTME: Rule violations never reach the server; transport errors leave local state untouched

package participation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ZIon2025-x/LinkU1-sub000/internal/api"
	"github.com/ZIon2025-x/LinkU1-sub000/internal/clock"
)

// Remote is the server side of participation. *api.Client satisfies it.
type Remote interface {
	ApplyToTask(ctx context.Context, taskID string) (*api.Participant, error)
	GetParticipant(ctx context.Context, taskID, userID string) (*api.Participant, error)
	ParticipantAction(ctx context.Context, taskID, userID string, action api.TaskAction) error
}

var remoteActions = map[Action]api.TaskAction{
	ActionApprove:     api.ActionApprove,
	ActionReject:      api.ActionReject,
	ActionStart:       api.ActionStart,
	ActionRequestExit: api.ActionRequestExit,
	ActionApproveExit: api.ActionApproveExit,
	ActionRejectExit:  api.ActionRejectExit,
	ActionComplete:    api.ActionComplete,
}

// Service runs participant actions against the server.
type Service struct {
	registry *Registry
	remote   Remote
	clk      clock.Clock
	logger   *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithClock sets the clock used for slot checks.
func WithClock(clk clock.Clock) ServiceOption { return func(s *Service) { s.clk = clk } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ServiceOption { return func(s *Service) { s.logger = l } }

// NewService creates a Service over registry.
func NewService(registry *Registry, remote Remote, opts ...ServiceOption) *Service {
	s := &Service{
		registry: registry,
		remote:   remote,
		clk:      clock.Real(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "participation")
	return s
}

// Registry returns the underlying registry.
func (s *Service) Registry() *Registry { return s.registry }

// Apply applies userID to taskID and records the pending participant. A
// participant that is already tracked is returned without contacting the
// server.
func (s *Service) Apply(ctx context.Context, taskID, userID string) (State, error) {
	if st, ok := s.registry.Get(taskID, userID); ok {
		return st, nil
	}
	p, err := s.remote.ApplyToTask(ctx, taskID)
	if err != nil {
		return State{}, fmt.Errorf("applying to task: %w", err)
	}
	start, _ := p.SlotStart()
	st := s.registry.Apply(taskID, userID, start, s.clk.Now())
	s.logger.Info("applied to task", "task_id", taskID, "user_id", userID)
	return st, nil
}

// Sync fetches the participant record and stores it locally.
func (s *Service) Sync(ctx context.Context, taskID, userID string) (State, error) {
	p, err := s.remote.GetParticipant(ctx, taskID, userID)
	if err != nil {
		return State{}, fmt.Errorf("fetching participant: %w", err)
	}
	status, err := ParseStatus(p.Status)
	if err != nil {
		return State{}, err
	}
	st := State{
		TaskID:    taskID,
		UserID:    userID,
		Status:    status,
		UpdatedAt: s.clk.Now(),
	}
	if prior, err := ParseStatus(p.PriorStatus); err == nil {
		st.Prior = prior
	}
	if start, ok := p.SlotStart(); ok {
		st.SlotStart = start
	}
	s.registry.Put(st)
	return st, nil
}

// Do performs action for userID in taskID.
func (s *Service) Do(ctx context.Context, taskID, userID string, action Action) (State, error) {
	if _, err := s.registry.Check(taskID, userID, action, s.clk.Now()); err != nil {
		return State{}, err
	}

	remote, ok := remoteActions[action]
	if !ok {
		return State{}, &RuleError{TaskID: taskID, UserID: userID, Action: action, Err: ErrInvalidTransition}
	}
	if err := s.remote.ParticipantAction(ctx, taskID, userID, remote); err != nil {
		return State{}, fmt.Errorf("%s participant: %w", action, err)
	}

	next, err := s.registry.Transition(taskID, userID, action, s.clk.Now())
	if err != nil {
		// Local state moved while the request was in flight; the server is authoritative.
		s.logger.Warn("participant changed during action, resyncing",
			"task_id", taskID, "user_id", userID, "action", action, "error", err)
		return s.Sync(ctx, taskID, userID)
	}
	s.logger.Info("participant transitioned",
		"task_id", taskID, "user_id", userID, "action", action, "status", next.Status)
	return next, nil
}
