package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmejia/cobranza-api/internal/models"
	"github.com/dmejia/cobranza-api/internal/repository"
	"github.com/dmejia/cobranza-api/internal/statemachine"
	"github.com/dmejia/cobranza-api/pkg/logger"
)

// Backoff bounds for replay attempts
const (
	replayBaseBackoff = time.Second
	replayMaxBackoff  = 10 * time.Second
)

// SyncService replays queued offline distributions against the backend.
// Replay always recomputes from the action's captured inputs against the
// installment state at replay time, never from the numbers computed when
// the collector was offline: other payments may have landed in between.
type SyncService struct {
	queueRepo         repository.QueueRepository
	installmentRepo   repository.InstallmentRepository
	balanceSvc        *BalanceService
	distributionSvc   *DistributionService
	reconciliationSvc *ReconciliationService
	notificationSvc   *NotificationService
	maxRetries        int

	// Queue processing is strictly sequential: one action settles fully
	// before the next is attempted.
	mu sync.Mutex

	// Injected for deterministic tests
	sleep func(time.Duration)
}

// NewSyncService creates a new sync service
func NewSyncService(
	queueRepo repository.QueueRepository,
	installmentRepo repository.InstallmentRepository,
	balanceSvc *BalanceService,
	distributionSvc *DistributionService,
	reconciliationSvc *ReconciliationService,
	notificationSvc *NotificationService,
	maxRetries int,
) *SyncService {
	if maxRetries <= 0 {
		maxRetries = models.DefaultMaxRetries
	}
	return &SyncService{
		queueRepo:         queueRepo,
		installmentRepo:   installmentRepo,
		balanceSvc:        balanceSvc,
		distributionSvc:   distributionSvc,
		reconciliationSvc: reconciliationSvc,
		notificationSvc:   notificationSvc,
		maxRetries:        maxRetries,
		sleep:             time.Sleep,
	}
}

// Enqueue stores a distribution entered while disconnected in the durable
// local queue for later replay.
func (s *SyncService) Enqueue(ctx context.Context, payload models.DistributePaymentPayload) (*models.OfflineAction, error) {
	action, err := models.NewDistributePaymentAction(payload)
	if err != nil {
		return nil, err
	}
	action.MaxRetries = s.maxRetries

	if err := s.queueRepo.Upsert(ctx, action); err != nil {
		return nil, fmt.Errorf("failed to enqueue action: %w", err)
	}

	logger.Info("Queued offline distribution",
		"action_id", action.ID, "client", payload.ClientDocument, "amount", payload.Amount)
	return action, nil
}

// QueueEntries lists the pending actions oldest first
func (s *SyncService) QueueEntries(ctx context.Context) ([]models.OfflineAction, error) {
	return s.queueRepo.List(ctx)
}

// ClearQueue drops every queued action on explicit user command
func (s *SyncService) ClearQueue(ctx context.Context) error {
	return s.queueRepo.Clear(ctx)
}

// ProcessQueue drains the queue sequentially. Each action is retried with
// exponential backoff until it applies or exhausts its retries; only then
// does the next action start, so replays of one client's sales never race
// each other.
func (s *SyncService) ProcessQueue(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	actions, err := s.queueRepo.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list offline queue: %w", err)
	}

	for i := range actions {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.settleAction(ctx, &actions[i]); err != nil {
			logger.Error("Offline action failed to settle",
				"action_id", actions[i].ID, "error", err)
		}
	}

	return nil
}

// settleAction runs one action to completion: applied or abandoned
func (s *SyncService) settleAction(ctx context.Context, action *models.OfflineAction) error {
	payload, err := action.DistributePayment()
	if err != nil {
		// Unknown type or corrupt payload can never succeed; drop it loudly
		s.queueRepo.Remove(ctx, action.ID)
		s.notifyAbandoned(ctx, action, err.Error())
		return fmt.Errorf("%w: %v", ErrActionType, err)
	}

	// A crash between persisting the attempting state and settling leaves
	// the action stuck: replays only start from queued. Recover it here so
	// the payment is retried instead of sitting in the queue forever.
	if action.Status == models.ActionStatusAttempting {
		logger.Warn("Recovering offline action stuck in attempting state",
			"action_id", action.ID, "retry_count", action.RetryCount)
		action.Status = models.ActionStatusQueued
	}

	for {
		if action.RetryCount > 0 {
			s.sleep(replayBackoff(action.RetryCount))
		}

		machine := statemachine.NewOfflineActionFSM(action)
		if err := machine.Attempt(ctx); err != nil {
			return err
		}
		if err := s.queueRepo.Upsert(ctx, action); err != nil {
			logger.Warn("Failed to persist attempt state",
				"action_id", action.ID, "error", err)
		}

		replayErr := s.replay(ctx, payload)
		if replayErr == nil {
			machine.Apply(ctx)
			if err := s.queueRepo.Remove(ctx, action.ID); err != nil {
				return fmt.Errorf("replay applied but failed to dequeue: %w", err)
			}
			s.notifyApplied(ctx, payload)
			logger.Info("Offline action applied",
				"action_id", action.ID, "client", payload.ClientDocument)
			return nil
		}

		if action.RetryCount >= action.MaxRetries {
			machine.Abandon(ctx, replayErr.Error())
			s.queueRepo.Remove(ctx, action.ID)
			s.notifyAbandoned(ctx, action, replayErr.Error())
			logger.Error("Offline action abandoned after exhausting retries",
				"action_id", action.ID, "retries", action.RetryCount, "error", replayErr)
			return fmt.Errorf("%w: %v", ErrReplayExhausted, replayErr)
		}

		machine.Requeue(ctx, replayErr.Error())
		if err := s.queueRepo.Upsert(ctx, action); err != nil {
			logger.Warn("Failed to persist retry state",
				"action_id", action.ID, "error", err)
		}
		logger.Warn("Offline action replay failed, requeued",
			"action_id", action.ID, "retry_count", action.RetryCount, "error", replayErr)
	}
}

// replay re-runs the distribution pipeline against fresh installment state
func (s *SyncService) replay(ctx context.Context, payload *models.DistributePaymentPayload) error {
	installments, err := s.installmentRepo.FindByClient(ctx, payload.ClientDocument)
	if err != nil {
		return fmt.Errorf("failed to fetch installments: %w", err)
	}

	groups := s.balanceSvc.GroupSales(installments)
	dist, err := s.distributionSvc.ComputeDistribution(groups, payload.Amount, payload.Mode, payload.ManualOverrides)
	if err != nil {
		return fmt.Errorf("failed to recompute distribution: %w", err)
	}

	result, err := s.reconciliationSvc.BuildUpdates(dist, groups, ApplyOptions{
		ClientDocument:   payload.ClientDocument,
		CollectorID:      payload.CollectorID,
		PaymentDate:      payload.PaymentDate,
		PaymentMethod:    payload.PaymentMethod,
		Notes:            payload.Notes,
		AllowOverpayment: payload.AllowOverpayment,
	})
	if err != nil {
		return fmt.Errorf("failed to build updates: %w", err)
	}

	outcome, err := s.reconciliationSvc.Persist(ctx, result, payload.PaymentDate)
	if err != nil {
		return err
	}
	if len(outcome.Failed) > 0 {
		return fmt.Errorf("%d of %d installment updates failed",
			len(outcome.Failed), len(result.Updates))
	}

	return nil
}

func (s *SyncService) notifyApplied(ctx context.Context, payload *models.DistributePaymentPayload) {
	if s.notificationSvc == nil {
		return
	}
	s.notificationSvc.NotifyUser(ctx, payload.CollectorID,
		"Pago sincronizado",
		fmt.Sprintf("El pago de L%.2f del cliente %s fue aplicado", payload.Amount, payload.ClientDocument),
		models.NotificationTypeReplayApplied)
}

func (s *SyncService) notifyAbandoned(ctx context.Context, action *models.OfflineAction, reason string) {
	if s.notificationSvc == nil {
		return
	}
	collectorID := uint(0)
	amountNote := ""
	if payload, err := action.DistributePayment(); err == nil {
		collectorID = payload.CollectorID
		amountNote = fmt.Sprintf(" de L%.2f del cliente %s", payload.Amount, payload.ClientDocument)
	}
	if collectorID == 0 {
		return
	}
	// The intended payment is lost unless re-entered; this must not be quiet
	s.notificationSvc.NotifyUser(ctx, collectorID,
		"Sincronización fallida",
		fmt.Sprintf("El pago%s no pudo sincronizarse y fue descartado. Debe registrarse de nuevo. Motivo: %s",
			amountNote, reason),
		models.NotificationTypeReplayAbandoned)
}

// replayBackoff returns the delay before retry n: 1s, 2s, 4s... capped at 10s
func replayBackoff(retryCount int) time.Duration {
	delay := replayBaseBackoff * time.Duration(1<<uint(retryCount-1))
	if delay > replayMaxBackoff {
		return replayMaxBackoff
	}
	return delay
}
