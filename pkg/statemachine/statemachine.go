package statemachine

import (
	"fmt"
	"sync"
)

// TransitionFn is invoked after a successful transition. Observers may query
// the machine but must not transition it.
type TransitionFn[S comparable] func(from, to S)

// InvalidTransitionError is returned when a transition is not present in the
// machine's transition table.
type InvalidTransitionError[S comparable] struct {
	From S
	To   S
}

func (e InvalidTransitionError[S]) Error() string {
	return fmt.Sprintf("invalid transition %v -> %v", e.From, e.To)
}

// StateMachine is a small thread-safe finite-state machine with an explicit
// transition table. Every legal edge must be declared up front, which keeps
// the set of transitions enumerable for tests.
//
// Observers of concurrent transitions are notified in the order the
// transitions happened: notifyMtx is held from the state swap until every
// observer returned.
type StateMachine[S comparable] struct {
	notifyMtx sync.Mutex

	mutex     sync.RWMutex
	state     S
	edges     map[S]map[S]struct{}
	observers []TransitionFn[S]
}

// NewStateMachine creates a machine in the initial state with the given
// transition table (from -> allowed targets).
func NewStateMachine[S comparable](initial S, transitions map[S][]S) *StateMachine[S] {
	edges := make(map[S]map[S]struct{}, len(transitions))
	for from, targets := range transitions {
		set := make(map[S]struct{}, len(targets))
		for _, to := range targets {
			set[to] = struct{}{}
		}
		edges[from] = set
	}
	return &StateMachine[S]{
		state: initial,
		edges: edges,
	}
}

// OnTransition registers an observer called after each transition.
func (sm *StateMachine[S]) OnTransition(fn TransitionFn[S]) {
	sm.mutex.Lock()
	sm.observers = append(sm.observers, fn)
	sm.mutex.Unlock()
}

// Current returns the current state.
func (sm *StateMachine[S]) Current() S {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	return sm.state
}

// CanTransition reports whether to is reachable from the current state.
func (sm *StateMachine[S]) CanTransition(to S) bool {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	_, ok := sm.edges[sm.state][to]
	return ok
}

// Transition moves the machine to the given state and notifies observers.
func (sm *StateMachine[S]) Transition(to S) error {
	sm.notifyMtx.Lock()
	defer sm.notifyMtx.Unlock()

	sm.mutex.Lock()
	from := sm.state
	if _, ok := sm.edges[from][to]; !ok {
		sm.mutex.Unlock()
		return InvalidTransitionError[S]{From: from, To: to}
	}
	sm.state = to
	observers := append([]TransitionFn[S](nil), sm.observers...)
	sm.mutex.Unlock()

	for _, fn := range observers {
		fn(from, to)
	}
	return nil
}

// TransitionIf moves to the target only when the machine is currently in
// one of the given states. It returns false without error when the machine
// is elsewhere.
func (sm *StateMachine[S]) TransitionIf(to S, from ...S) (bool, error) {
	sm.notifyMtx.Lock()
	defer sm.notifyMtx.Unlock()

	sm.mutex.Lock()
	cur := sm.state
	match := false
	for _, f := range from {
		if f == cur {
			match = true
			break
		}
	}
	if !match {
		sm.mutex.Unlock()
		return false, nil
	}
	if _, ok := sm.edges[cur][to]; !ok {
		sm.mutex.Unlock()
		return false, InvalidTransitionError[S]{From: cur, To: to}
	}
	sm.state = to
	observers := append([]TransitionFn[S](nil), sm.observers...)
	sm.mutex.Unlock()

	for _, fn := range observers {
		fn(cur, to)
	}
	return true, nil
}

// Edges returns a copy of the transition table.
func (sm *StateMachine[S]) Edges() map[S][]S {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	out := make(map[S][]S, len(sm.edges))
	for from, set := range sm.edges {
		for to := range set {
			out[from] = append(out[from], to)
		}
	}
	return out
}
