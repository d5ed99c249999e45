package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dmejia/cobranza-api/internal/models"
	"github.com/stretchr/testify/assert"
)

// memQueueRepo is an in-memory queue keeping insertion order, standing in
// for the sqlite-backed repository.
type memQueueRepo struct {
	mu        sync.Mutex
	order     []string
	actions   map[string]models.OfflineAction
	upsertErr error
}

func newMemQueueRepo() *memQueueRepo {
	return &memQueueRepo{actions: map[string]models.OfflineAction{}}
}

func (m *memQueueRepo) List(ctx context.Context) ([]models.OfflineAction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.OfflineAction, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.actions[id])
	}
	return out, nil
}

func (m *memQueueRepo) Upsert(ctx context.Context, action *models.OfflineAction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	if _, ok := m.actions[action.ID]; !ok {
		m.order = append(m.order, action.ID)
	}
	m.actions[action.ID] = *action
	return nil
}

func (m *memQueueRepo) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.actions, id)
	for i, existing := range m.order {
		if existing == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *memQueueRepo) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.order = nil
	m.actions = map[string]models.OfflineAction{}
	return nil
}

func (m *memQueueRepo) Count(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.order)), nil
}

// statefulInstallmentRepo tracks installment state across UpdateAmounts so
// replays see the effects of earlier writes.
func statefulInstallmentRepo(state *[]models.Installment) *mockInstallmentRepo {
	return &mockInstallmentRepo{
		mockFindByClient: func(ctx context.Context, clientDocument string) ([]models.Installment, error) {
			out := make([]models.Installment, len(*state))
			copy(out, *state)
			return out, nil
		},
		mockUpdateAmounts: func(ctx context.Context, id uint, newReceived float64, newStatus string, receivedDate time.Time) error {
			for i := range *state {
				if (*state)[i].ID == id {
					(*state)[i].ReceivedAmount = newReceived
					(*state)[i].Status = newStatus
					return nil
				}
			}
			return errors.New("installment not found")
		},
	}
}

func newSyncServiceForTest(queueRepo *memQueueRepo, installmentRepo *mockInstallmentRepo, recordRepo *mockPaymentRecordRepo, maxRetries int) (*SyncService, *[]time.Duration) {
	balanceSvc := NewBalanceService()
	svc := NewSyncService(
		queueRepo,
		installmentRepo,
		balanceSvc,
		NewDistributionService(balanceSvc),
		NewReconciliationService(installmentRepo, recordRepo),
		nil,
		maxRetries,
	)
	var sleeps []time.Duration
	svc.sleep = func(d time.Duration) { sleeps = append(sleeps, d) }
	return svc, &sleeps
}

func testPayload(amount float64) models.DistributePaymentPayload {
	return models.DistributePaymentPayload{
		ClientDocument: "0801",
		Amount:         amount,
		Mode:           DistributionModeAuto,
		CollectorID:    7,
		PaymentMethod:  models.PaymentMethodCash,
		PaymentDate:    time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC),
	}
}

func TestEnqueue_SetsRetryBudget(t *testing.T) {
	queueRepo := newMemQueueRepo()
	svc, _ := newSyncServiceForTest(queueRepo, &mockInstallmentRepo{}, &mockPaymentRecordRepo{}, 5)

	action, err := svc.Enqueue(context.Background(), testPayload(50))
	assert.NoError(t, err)
	assert.Equal(t, models.ActionTypeDistributePayment, action.Type)
	assert.Equal(t, models.ActionStatusQueued, action.Status)
	assert.Equal(t, 5, action.MaxRetries)

	count, _ := queueRepo.Count(context.Background())
	assert.Equal(t, int64(1), count)
}

func TestProcessQueue_AppliesAndDequeues(t *testing.T) {
	state := []models.Installment{makeInstallment(1, "V-001", "0801", 100, 0)}
	var record *models.PaymentRecord
	recordRepo := &mockPaymentRecordRepo{
		mockCreate: func(ctx context.Context, r *models.PaymentRecord) error {
			record = r
			return nil
		},
	}
	queueRepo := newMemQueueRepo()
	svc, sleeps := newSyncServiceForTest(queueRepo, statefulInstallmentRepo(&state), recordRepo, 3)

	_, err := svc.Enqueue(context.Background(), testPayload(50))
	assert.NoError(t, err)

	err = svc.ProcessQueue(context.Background())
	assert.NoError(t, err)

	// First attempt succeeds: no backoff, entry removed, writes landed
	assert.Empty(t, *sleeps)
	count, _ := queueRepo.Count(context.Background())
	assert.Equal(t, int64(0), count)
	assert.Equal(t, 50.0, state[0].ReceivedAmount)
	assert.Equal(t, models.InstallmentStatusPartiallyPaid, state[0].Status)
	assert.NotNil(t, record)
	assert.Equal(t, 50.0, record.DistributedAmount)
}

func TestProcessQueue_ReplaysAgainstFreshState(t *testing.T) {
	// Entered offline when the installment still owed 100
	state := []models.Installment{makeInstallment(1, "V-001", "0801", 100, 0)}
	var record *models.PaymentRecord
	recordRepo := &mockPaymentRecordRepo{
		mockCreate: func(ctx context.Context, r *models.PaymentRecord) error {
			record = r
			return nil
		},
	}
	queueRepo := newMemQueueRepo()
	svc, _ := newSyncServiceForTest(queueRepo, statefulInstallmentRepo(&state), recordRepo, 3)

	_, err := svc.Enqueue(context.Background(), testPayload(30))
	assert.NoError(t, err)

	// Another payment lands before the queue drains; only 20 is still owed
	state[0].ReceivedAmount = 80
	state[0].Status = models.InstallmentStatusFor(100, 80)

	err = svc.ProcessQueue(context.Background())
	assert.NoError(t, err)

	// Replay recomputed from the captured inputs, not the stale entry-time
	// numbers: 20 applied, 10 surfaced as unapplied
	assert.Equal(t, 100.0, state[0].ReceivedAmount)
	assert.Equal(t, models.InstallmentStatusPaid, state[0].Status)
	assert.NotNil(t, record)
	assert.Equal(t, 30.0, record.PaymentAmount)
	assert.Equal(t, 20.0, record.DistributedAmount)
	assert.Equal(t, 10.0, record.UnappliedAmount)
}

func TestProcessQueue_AbandonsAfterExhaustingRetries(t *testing.T) {
	attempts := 0
	installmentRepo := &mockInstallmentRepo{
		mockFindByClient: func(ctx context.Context, clientDocument string) ([]models.Installment, error) {
			attempts++
			return nil, errors.New("backend no disponible")
		},
	}
	queueRepo := newMemQueueRepo()
	svc, sleeps := newSyncServiceForTest(queueRepo, installmentRepo, &mockPaymentRecordRepo{}, 3)

	_, err := svc.Enqueue(context.Background(), testPayload(50))
	assert.NoError(t, err)

	// Per-action failures are logged, not bubbled up
	err = svc.ProcessQueue(context.Background())
	assert.NoError(t, err)

	// maxRetries=3 means one initial attempt plus three retries
	assert.Equal(t, 4, attempts)
	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}, *sleeps)
	count, _ := queueRepo.Count(context.Background())
	assert.Equal(t, int64(0), count)
}

func TestProcessQueue_RecoversActionStuckAttempting(t *testing.T) {
	// A crash after the attempt state was persisted but before settling
	// leaves the action durably marked attempting
	state := []models.Installment{makeInstallment(1, "V-001", "0801", 100, 0)}
	recordRepo := &mockPaymentRecordRepo{
		mockCreate: func(ctx context.Context, r *models.PaymentRecord) error { return nil },
	}
	queueRepo := newMemQueueRepo()
	svc, _ := newSyncServiceForTest(queueRepo, statefulInstallmentRepo(&state), recordRepo, 3)

	action, err := models.NewDistributePaymentAction(testPayload(50))
	assert.NoError(t, err)
	action.Status = models.ActionStatusAttempting
	assert.NoError(t, queueRepo.Upsert(context.Background(), action))

	err = svc.ProcessQueue(context.Background())
	assert.NoError(t, err)

	// The next drain recovers and applies it instead of skipping it forever
	count, _ := queueRepo.Count(context.Background())
	assert.Equal(t, int64(0), count)
	assert.Equal(t, 50.0, state[0].ReceivedAmount)
}

func TestProcessQueue_ToleratesQueuePersistFailures(t *testing.T) {
	state := []models.Installment{makeInstallment(1, "V-001", "0801", 100, 0)}
	recordRepo := &mockPaymentRecordRepo{
		mockCreate: func(ctx context.Context, r *models.PaymentRecord) error { return nil },
	}
	queueRepo := newMemQueueRepo()
	svc, _ := newSyncServiceForTest(queueRepo, statefulInstallmentRepo(&state), recordRepo, 3)

	_, err := svc.Enqueue(context.Background(), testPayload(50))
	assert.NoError(t, err)

	// Bookkeeping writes failing must not block the replay itself
	queueRepo.upsertErr = errors.New("disk full")
	err = svc.ProcessQueue(context.Background())
	assert.NoError(t, err)

	assert.Equal(t, 50.0, state[0].ReceivedAmount)
	count, _ := queueRepo.Count(context.Background())
	assert.Equal(t, int64(0), count)
}

func TestProcessQueue_DropsUnknownActionType(t *testing.T) {
	attempts := 0
	installmentRepo := &mockInstallmentRepo{
		mockFindByClient: func(ctx context.Context, clientDocument string) ([]models.Installment, error) {
			attempts++
			return nil, nil
		},
	}
	queueRepo := newMemQueueRepo()
	svc, sleeps := newSyncServiceForTest(queueRepo, installmentRepo, &mockPaymentRecordRepo{}, 3)

	queueRepo.Upsert(context.Background(), &models.OfflineAction{
		ID:         "bad-action",
		Type:       "FORMAT_DISK",
		Status:     models.ActionStatusQueued,
		Payload:    []byte(`{}`),
		MaxRetries: 3,
		EnqueuedAt: time.Now(),
	})

	err := svc.ProcessQueue(context.Background())
	assert.NoError(t, err)

	// The action can never succeed: dropped without replaying or retrying
	assert.Equal(t, 0, attempts)
	assert.Empty(t, *sleeps)
	count, _ := queueRepo.Count(context.Background())
	assert.Equal(t, int64(0), count)
}

func TestClearQueue(t *testing.T) {
	queueRepo := newMemQueueRepo()
	svc, _ := newSyncServiceForTest(queueRepo, &mockInstallmentRepo{}, &mockPaymentRecordRepo{}, 3)

	svc.Enqueue(context.Background(), testPayload(10))
	svc.Enqueue(context.Background(), testPayload(20))

	entries, err := svc.QueueEntries(context.Background())
	assert.NoError(t, err)
	assert.Len(t, entries, 2)

	assert.NoError(t, svc.ClearQueue(context.Background()))
	count, _ := queueRepo.Count(context.Background())
	assert.Equal(t, int64(0), count)
}
