// ABOUTME: In-memory registry of participant states keyed by task and user
// ABOUTME: Commits transitions atomically so concurrent actions cannot both succeed

package participation

import (
	"sort"
	"sync"
	"time"
)

type key struct {
	task string
	user string
}

// Registry holds every tracked participant. States are never deleted.
type Registry struct {
	mu     sync.RWMutex
	states map[key]State
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{states: make(map[key]State)}
}

// Apply records a new application in the pending status. An existing record is
// returned unchanged.
func (r *Registry) Apply(taskID, userID string, slotStart, now time.Time) State {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{taskID, userID}
	if s, ok := r.states[k]; ok {
		return s
	}
	s := State{TaskID: taskID, UserID: userID, Status: StatusPending, SlotStart: slotStart, UpdatedAt: now}
	r.states[k] = s
	return s
}

// Put stores s as reported by the server, replacing any local record.
func (r *Registry) Put(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[key{s.TaskID, s.UserID}] = s
}

// Get returns the tracked state.
func (r *Registry) Get(taskID, userID string) (State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.states[key{taskID, userID}]
	return s, ok
}

// Check validates action without committing it.
func (r *Registry) Check(taskID, userID string, action Action, now time.Time) (State, error) {
	s, ok := r.Get(taskID, userID)
	if !ok {
		return State{}, &RuleError{TaskID: taskID, UserID: userID, Action: action, Err: ErrUnknownParticipant}
	}
	return Next(s, action, now)
}

// Transition applies action and stores the result.
func (r *Registry) Transition(taskID, userID string, action Action, now time.Time) (State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{taskID, userID}
	s, ok := r.states[k]
	if !ok {
		return State{}, &RuleError{TaskID: taskID, UserID: userID, Action: action, Err: ErrUnknownParticipant}
	}
	next, err := Next(s, action, now)
	if err != nil {
		return s, err
	}
	r.states[k] = next
	return next, nil
}

// ForTask returns every participant of taskID ordered by user id.
func (r *Registry) ForTask(taskID string) []State {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []State
	for k, s := range r.states {
		if k.task == taskID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}
