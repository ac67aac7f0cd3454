package statemachine

import (
	"context"
	"fmt"
)

// State represents a state in the state machine.
type State interface {
	Name() string
}

// Event represents an event that can trigger a state transition.
type Event interface {
	Name() string
}

// Action executes side effects during state transitions. Returning an error prevents the transition.
type Action func(ctx context.Context, from, to State, event Event, data any) error

// Guard evaluates whether a transition should be allowed based on runtime conditions.
type Guard func(ctx context.Context, from State, event Event, data any) bool

// Transition defines a state change triggered by an event, with optional guards and actions.
type Transition struct {
	From    State
	To      State
	Event   Event
	Guards  []Guard  // All must pass for transition to proceed
	Actions []Action // Executed in order before the new state is returned
}

// StringState provides a simple string-based state implementation.
type StringState string

func (s StringState) Name() string {
	return string(s)
}

// StringEvent provides a simple string-based event implementation.
type StringEvent string

func (e StringEvent) Name() string {
	return string(e)
}

// Machine is a stateless transition table. It does not track a current state:
// callers own their state (an entity status field) and ask the machine to
// resolve the next one. This keeps a single machine shareable across any
// number of entities without synchronization.
type Machine struct {
	// [fromState][event][]Transition for O(1) lookups
	transitions map[string]map[string][]Transition
}

// Option configures a machine during construction.
type Option func(*Machine) error

// New creates a transition table from the given options.
func New(opts ...Option) (*Machine, error) {
	m := &Machine{transitions: make(map[string]map[string][]Transition)}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// MustNew creates a transition table and panics on configuration errors.
// Transition tables are package-level constants in practice; a broken table
// should prevent startup.
func MustNew(opts ...Option) *Machine {
	m, err := New(opts...)
	if err != nil {
		panic(fmt.Sprintf("statemachine: %v", err))
	}
	return m
}

// WithTransition adds a single transition.
func WithTransition(from, to State, event Event, guards []Guard, actions []Action) Option {
	return func(m *Machine) error {
		return m.add(from, to, event, guards, actions)
	}
}

// WithTransitions adds multiple transitions at once.
func WithTransitions(transitions ...Transition) Option {
	return func(m *Machine) error {
		for i, t := range transitions {
			if err := m.add(t.From, t.To, t.Event, t.Guards, t.Actions); err != nil {
				return fmt.Errorf("transition[%d]: %w", i, err)
			}
		}
		return nil
	}
}

func (m *Machine) add(from, to State, event Event, guards []Guard, actions []Action) error {
	if from == nil || to == nil || event == nil {
		return ErrInvalidTransition
	}

	fromName := from.Name()
	if _, ok := m.transitions[fromName]; !ok {
		m.transitions[fromName] = make(map[string][]Transition)
	}

	// Multiple transitions allowed for same from/event to support guard-based branching
	m.transitions[fromName][event.Name()] = append(m.transitions[fromName][event.Name()], Transition{
		From:    from,
		To:      to,
		Event:   event,
		Guards:  guards,
		Actions: actions,
	})
	return nil
}

// Fire resolves the transition for the given state and event, runs its guards
// and actions, and returns the resulting state. The caller is responsible for
// persisting the returned state.
func (m *Machine) Fire(ctx context.Context, from State, event Event, data any) (State, error) {
	if from == nil {
		return nil, ErrInvalidTransition
	}
	if event == nil {
		return nil, ErrInvalidEvent
	}

	transitions, ok := m.lookup(from, event)
	if !ok {
		return nil, NewErrNoTransitionAvailable(from.Name(), event.Name())
	}

	// First transition with passing guards wins (enables priority ordering)
	var valid *Transition
	for i, t := range transitions {
		if guardsPass(ctx, t, from, event, data) {
			valid = &transitions[i]
			break
		}
	}
	if valid == nil {
		return nil, NewErrTransitionRejected(from.Name(), event.Name())
	}

	// Actions run before the state is returned; any failure aborts the transition
	for _, action := range valid.Actions {
		if action != nil {
			if err := action(ctx, from, valid.To, event, data); err != nil {
				return nil, fmt.Errorf("action failed: %w", err)
			}
		}
	}

	return valid.To, nil
}

// CanFire reports whether any transition exists for the state/event pair whose
// guards would allow it.
func (m *Machine) CanFire(ctx context.Context, from State, event Event, data any) bool {
	if from == nil || event == nil {
		return false
	}

	transitions, ok := m.lookup(from, event)
	if !ok {
		return false
	}

	for _, t := range transitions {
		if guardsPass(ctx, t, from, event, data) {
			return true
		}
	}
	return false
}

// Terminal reports whether a state has no outgoing transitions.
func (m *Machine) Terminal(state State) bool {
	if state == nil {
		return false
	}
	events, ok := m.transitions[state.Name()]
	return !ok || len(events) == 0
}

func (m *Machine) lookup(from State, event Event) ([]Transition, bool) {
	events, ok := m.transitions[from.Name()]
	if !ok {
		return nil, false
	}
	transitions, ok := events[event.Name()]
	if !ok || len(transitions) == 0 {
		return nil, false
	}
	return transitions, true
}

func guardsPass(ctx context.Context, t Transition, from State, event Event, data any) bool {
	for _, guard := range t.Guards {
		if guard != nil && !guard(ctx, from, event, data) {
			return false
		}
	}
	return true
}
