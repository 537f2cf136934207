package coordinator

import (
	"log/slog"

	"github.com/looplab/fsm"
)

const (
	StateAwaitingClients = "awaiting_clients"
	StateAggregating     = "aggregating"
	StateEvaluating      = "evaluating"
	StatePublishing      = "publishing"
	StateComplete        = "complete"
	StateFailed          = "failed"

	EventCloseWindow = "close_window"
	EventAggregated  = "aggregated"
	EventEvaluated   = "evaluated"
	EventPublished   = "published"
	EventFail        = "fail"
)

// Round is one attempt at a training round, driven through
// AWAITING_CLIENTS -> AGGREGATING -> EVALUATING -> PUBLISHING ->
// COMPLETE, with FAILED reachable from every non-terminal state.
type Round struct {
	Number uint64
	FSM    *fsm.FSM
}

func NewRound(number uint64, logger *slog.Logger) *Round {
	r := &Round{Number: number}

	logTransition := func(e *fsm.Event) {
		logger.Info("round state changed",
			slog.Uint64("round", number),
			slog.String("from", e.Src),
			slog.String("state", e.FSM.Current()),
		)
	}

	r.FSM = fsm.NewFSM(
		StateAwaitingClients,
		fsm.Events{
			{Name: EventCloseWindow, Src: []string{StateAwaitingClients}, Dst: StateAggregating},
			{Name: EventAggregated, Src: []string{StateAggregating}, Dst: StateEvaluating},
			{Name: EventEvaluated, Src: []string{StateEvaluating}, Dst: StatePublishing},
			{Name: EventPublished, Src: []string{StatePublishing}, Dst: StateComplete},
			{Name: EventFail, Src: []string{
				StateAwaitingClients, StateAggregating, StateEvaluating, StatePublishing,
			}, Dst: StateFailed},
		},
		fsm.Callbacks{
			EventCloseWindow: logTransition,
			EventAggregated:  logTransition,
			EventEvaluated:   logTransition,
			EventPublished:   logTransition,
			EventFail: func(e *fsm.Event) {
				args := []any{
					slog.Uint64("round", number),
					slog.String("from", e.Src),
				}
				if len(e.Args) > 0 {
					args = append(args, slog.Any("error", e.Args[0]))
				}
				logger.Warn("round failed", args...)
			},
		},
	)

	return r
}

// State returns the round's current state name.
func (r *Round) State() string {
	return r.FSM.Current()
}
