package statemachine_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/agentpay/pkg/statemachine"
)

const (
	statePending   = statemachine.StringState("pending")
	stateCompleted = statemachine.StringState("completed")
	stateFailed    = statemachine.StringState("failed")

	eventComplete = statemachine.StringEvent("complete")
	eventFail     = statemachine.StringEvent("fail")
)

func newTestMachine(t *testing.T, opts ...statemachine.Option) *statemachine.Machine {
	t.Helper()
	base := []statemachine.Option{
		statemachine.WithTransitions(
			statemachine.Transition{From: statePending, To: stateCompleted, Event: eventComplete},
			statemachine.Transition{From: statePending, To: stateFailed, Event: eventFail},
		),
	}
	m, err := statemachine.New(append(base, opts...)...)
	require.NoError(t, err)
	return m
}

func TestFire(t *testing.T) {
	ctx := context.Background()

	t.Run("resolves next state", func(t *testing.T) {
		m := newTestMachine(t)
		next, err := m.Fire(ctx, statePending, eventComplete, nil)
		require.NoError(t, err)
		assert.Equal(t, "completed", next.Name())
	})

	t.Run("unknown event from state", func(t *testing.T) {
		m := newTestMachine(t)
		_, err := m.Fire(ctx, stateCompleted, eventComplete, nil)
		require.Error(t, err)
		assert.True(t, statemachine.IsNoTransitionAvailableError(err))

		var noTransition *statemachine.ErrNoTransitionAvailable
		require.ErrorAs(t, err, &noTransition)
		assert.Equal(t, "completed", noTransition.StateName)
		assert.Equal(t, "complete", noTransition.EventName)
	})

	t.Run("guard rejection", func(t *testing.T) {
		deny := func(ctx context.Context, from statemachine.State, event statemachine.Event, data any) bool {
			return false
		}
		m, err := statemachine.New(statemachine.WithTransition(
			statePending, stateCompleted, eventComplete,
			[]statemachine.Guard{deny}, nil,
		))
		require.NoError(t, err)

		_, err = m.Fire(ctx, statePending, eventComplete, nil)
		assert.True(t, statemachine.IsTransitionRejectedError(err))
	})

	t.Run("action failure aborts transition", func(t *testing.T) {
		boom := errors.New("boom")
		failing := func(ctx context.Context, from, to statemachine.State, event statemachine.Event, data any) error {
			return boom
		}
		m, err := statemachine.New(statemachine.WithTransition(
			statePending, stateCompleted, eventComplete,
			nil, []statemachine.Action{failing},
		))
		require.NoError(t, err)

		_, err = m.Fire(ctx, statePending, eventComplete, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("data is passed to guards", func(t *testing.T) {
		var seen any
		capture := func(ctx context.Context, from statemachine.State, event statemachine.Event, data any) bool {
			seen = data
			return true
		}
		m, err := statemachine.New(statemachine.WithTransition(
			statePending, stateCompleted, eventComplete,
			[]statemachine.Guard{capture}, nil,
		))
		require.NoError(t, err)

		_, err = m.Fire(ctx, statePending, eventComplete, 42)
		require.NoError(t, err)
		assert.Equal(t, 42, seen)
	})
}

func TestCanFire(t *testing.T) {
	ctx := context.Background()
	m := newTestMachine(t)

	assert.True(t, m.CanFire(ctx, statePending, eventComplete, nil))
	assert.True(t, m.CanFire(ctx, statePending, eventFail, nil))
	assert.False(t, m.CanFire(ctx, stateCompleted, eventComplete, nil))
	assert.False(t, m.CanFire(ctx, stateFailed, eventFail, nil))
}

func TestTerminal(t *testing.T) {
	m := newTestMachine(t)

	assert.False(t, m.Terminal(statePending))
	assert.True(t, m.Terminal(stateCompleted))
	assert.True(t, m.Terminal(stateFailed))
}

func TestMustNew(t *testing.T) {
	assert.Panics(t, func() {
		statemachine.MustNew(statemachine.WithTransition(nil, nil, nil, nil, nil))
	})
}
