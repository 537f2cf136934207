package coordinator

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundHappyPath(t *testing.T) {
	r := NewRound(1, slog.Default())
	assert.Equal(t, StateAwaitingClients, r.State())

	for _, step := range []struct {
		event string
		state string
	}{
		{EventCloseWindow, StateAggregating},
		{EventAggregated, StateEvaluating},
		{EventEvaluated, StatePublishing},
		{EventPublished, StateComplete},
	} {
		require.NoError(t, r.FSM.Event(step.event))
		assert.Equal(t, step.state, r.State())
	}
}

func TestRoundFailFromAnyNonTerminal(t *testing.T) {
	advance := map[string][]string{
		StateAwaitingClients: {},
		StateAggregating:     {EventCloseWindow},
		StateEvaluating:      {EventCloseWindow, EventAggregated},
		StatePublishing:      {EventCloseWindow, EventAggregated, EventEvaluated},
	}

	for state, events := range advance {
		t.Run(state, func(t *testing.T) {
			r := NewRound(1, slog.Default())
			for _, e := range events {
				require.NoError(t, r.FSM.Event(e))
			}
			require.Equal(t, state, r.State())

			require.NoError(t, r.FSM.Event(EventFail, errors.New("boom")))
			assert.Equal(t, StateFailed, r.State())
		})
	}
}

func TestRoundTerminalStatesRejectEvents(t *testing.T) {
	r := NewRound(1, slog.Default())
	for _, e := range []string{EventCloseWindow, EventAggregated, EventEvaluated, EventPublished} {
		require.NoError(t, r.FSM.Event(e))
	}
	require.Equal(t, StateComplete, r.State())

	assert.Error(t, r.FSM.Event(EventFail))
	assert.Error(t, r.FSM.Event(EventCloseWindow))
}

func TestRoundInvalidTransition(t *testing.T) {
	r := NewRound(1, slog.Default())
	assert.Error(t, r.FSM.Event(EventPublished))
	assert.Equal(t, StateAwaitingClients, r.State())
}
