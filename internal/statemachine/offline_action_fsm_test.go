package statemachine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmejia/cobranza-api/internal/models"
)

func newQueuedAction() *models.OfflineAction {
	action, _ := models.NewDistributePaymentAction(models.DistributePaymentPayload{
		ClientDocument: "0801-1990-12345",
		Amount:         500,
		Mode:           "auto",
		CollectorID:    7,
	})
	return action
}

func TestOfflineActionFSM_SuccessfulReplay(t *testing.T) {
	action := newQueuedAction()
	machine := NewOfflineActionFSM(action)

	ctx := context.Background()
	assert.NoError(t, machine.Attempt(ctx))
	assert.Equal(t, models.ActionStatusAttempting, action.Status)

	assert.NoError(t, machine.Apply(ctx))
	assert.Equal(t, models.ActionStatusApplied, action.Status)
	assert.Equal(t, 0, action.RetryCount)
}

func TestOfflineActionFSM_RequeueIncrementsRetryCount(t *testing.T) {
	action := newQueuedAction()
	machine := NewOfflineActionFSM(action)

	ctx := context.Background()
	assert.NoError(t, machine.Attempt(ctx))
	assert.NoError(t, machine.Requeue(ctx, "connection refused"))

	assert.Equal(t, models.ActionStatusQueued, action.Status)
	assert.Equal(t, 1, action.RetryCount)
	assert.Equal(t, "connection refused", action.LastError)

	// Requeued action can be attempted again
	machine = NewOfflineActionFSM(action)
	assert.NoError(t, machine.Attempt(ctx))
}

func TestOfflineActionFSM_AbandonFromAttempting(t *testing.T) {
	action := newQueuedAction()
	action.RetryCount = action.MaxRetries
	machine := NewOfflineActionFSM(action)

	ctx := context.Background()
	assert.NoError(t, machine.Attempt(ctx))
	assert.NoError(t, machine.Abandon(ctx, "gateway timeout"))

	assert.Equal(t, models.ActionStatusAbandoned, action.Status)
	assert.True(t, action.RetriesExhausted())
}

func TestOfflineActionFSM_InvalidTransitions(t *testing.T) {
	action := newQueuedAction()
	machine := NewOfflineActionFSM(action)

	ctx := context.Background()
	// Cannot apply or requeue before attempting
	assert.Error(t, machine.Apply(ctx))
	assert.Error(t, machine.Requeue(ctx, "x"))
	assert.Equal(t, models.ActionStatusQueued, action.Status)

	// Applied is terminal
	assert.NoError(t, machine.Attempt(ctx))
	assert.NoError(t, machine.Apply(ctx))
	assert.Error(t, machine.Attempt(ctx))
}
