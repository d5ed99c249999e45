package statemachine

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"

	"github.com/dmejia/cobranza-api/internal/models"
)

// OfflineActionFSM wraps a queued offline action with its state machine.
// Lifecycle: queued -> attempting -> {applied, queued (retry), abandoned}.
type OfflineActionFSM struct {
	action *models.OfflineAction
	fsm    *fsm.FSM
}

// NewOfflineActionFSM creates a state machine over a queued action
func NewOfflineActionFSM(action *models.OfflineAction) *OfflineActionFSM {
	afsm := &OfflineActionFSM{
		action: action,
	}

	afsm.fsm = fsm.NewFSM(
		action.Status,
		fsm.Events{
			// queued → attempting (replay starts)
			{Name: "attempt", Src: []string{models.ActionStatusQueued}, Dst: models.ActionStatusAttempting},

			// attempting → applied (replay persisted, entry removed)
			{Name: "apply", Src: []string{models.ActionStatusAttempting}, Dst: models.ActionStatusApplied},

			// attempting → queued (failed, retry budget remains)
			{Name: "requeue", Src: []string{models.ActionStatusAttempting}, Dst: models.ActionStatusQueued},

			// attempting → abandoned (retries exhausted, entry removed)
			{Name: "abandon", Src: []string{models.ActionStatusAttempting}, Dst: models.ActionStatusAbandoned},
		},
		fsm.Callbacks{},
	)

	return afsm
}

// Attempt transitions the action to attempting
func (a *OfflineActionFSM) Attempt(ctx context.Context) error {
	if err := a.fsm.Event(ctx, "attempt"); err != nil {
		return fmt.Errorf("cannot start replay attempt in state %s: %w", a.action.Status, err)
	}
	a.action.Status = a.fsm.Current()
	return nil
}

// Apply transitions the action to applied after a successful replay
func (a *OfflineActionFSM) Apply(ctx context.Context) error {
	if err := a.fsm.Event(ctx, "apply"); err != nil {
		return fmt.Errorf("cannot mark action applied in state %s: %w", a.action.Status, err)
	}
	a.action.Status = a.fsm.Current()
	return nil
}

// Requeue records a failed attempt and returns the action to the queue.
// The retry counter moves here so the attempt count and the state can
// never disagree.
func (a *OfflineActionFSM) Requeue(ctx context.Context, lastError string) error {
	if err := a.fsm.Event(ctx, "requeue"); err != nil {
		return fmt.Errorf("cannot requeue action in state %s: %w", a.action.Status, err)
	}
	a.action.Status = a.fsm.Current()
	a.action.RetryCount++
	a.action.LastError = lastError
	return nil
}

// Abandon marks the action as dead after its retries are exhausted
func (a *OfflineActionFSM) Abandon(ctx context.Context, lastError string) error {
	if err := a.fsm.Event(ctx, "abandon"); err != nil {
		return fmt.Errorf("cannot abandon action in state %s: %w", a.action.Status, err)
	}
	a.action.Status = a.fsm.Current()
	a.action.RetryCount++
	a.action.LastError = lastError
	return nil
}

// Current returns the current state
func (a *OfflineActionFSM) Current() string {
	return a.fsm.Current()
}

// Can checks if a transition is possible
func (a *OfflineActionFSM) Can(event string) bool {
	return a.fsm.Can(event)
}
