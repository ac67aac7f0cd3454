// Package statemachine provides a stateless finite state machine: a
// transition table that resolves (state, event) pairs to a next state,
// with optional guards and actions.
//
// A Machine carries no current state of its own, so a single table can
// validate transitions for any number of entities concurrently:
//
//	var machine = statemachine.MustNew(
//		statemachine.WithTransitions(
//			statemachine.Transition{From: pending, To: completed, Event: complete},
//			statemachine.Transition{From: pending, To: failed, Event: fail},
//		),
//	)
//
//	next, err := machine.Fire(ctx, pending, complete, tx)
//
// Attempting an event with no transition from the current state returns
// ErrNoTransitionAvailable; guard rejection returns ErrTransitionRejected.
package statemachine
