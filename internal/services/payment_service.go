package services

import (
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"time"

	"github.com/dmejia/cobranza-api/internal/jobs"
	"github.com/dmejia/cobranza-api/internal/models"
	"github.com/dmejia/cobranza-api/internal/repository"
	"github.com/dmejia/cobranza-api/internal/storage"
)

// PaymentService orchestrates the distribution pipeline: fetch fresh
// installments, compute the allocation, build and persist the update set,
// or queue the whole thing for offline replay.
type PaymentService struct {
	installmentRepo   repository.InstallmentRepository
	recordRepo        repository.PaymentRecordRepository
	balanceSvc        *BalanceService
	distributionSvc   *DistributionService
	reconciliationSvc *ReconciliationService
	syncSvc           *SyncService
	notificationSvc   *NotificationService
	auditSvc          *AuditService
	imageSvc          *ReceiptImageService
	storage           *storage.LocalStorage
	worker            *jobs.Worker
}

// NewPaymentService creates a new payment service
func NewPaymentService(
	installmentRepo repository.InstallmentRepository,
	recordRepo repository.PaymentRecordRepository,
	balanceSvc *BalanceService,
	distributionSvc *DistributionService,
	reconciliationSvc *ReconciliationService,
	syncSvc *SyncService,
	notificationSvc *NotificationService,
	auditSvc *AuditService,
	imageSvc *ReceiptImageService,
	storage *storage.LocalStorage,
	worker *jobs.Worker,
) *PaymentService {
	return &PaymentService{
		installmentRepo:   installmentRepo,
		recordRepo:        recordRepo,
		balanceSvc:        balanceSvc,
		distributionSvc:   distributionSvc,
		reconciliationSvc: reconciliationSvc,
		syncSvc:           syncSvc,
		notificationSvc:   notificationSvc,
		auditSvc:          auditSvc,
		imageSvc:          imageSvc,
		storage:           storage,
		worker:            worker,
	}
}

// DistributionRequest is a confirmed (or previewed) distribution entry
type DistributionRequest struct {
	Amount           float64            `json:"amount"`
	Mode             string             `json:"mode"`
	ManualOverrides  map[string]float64 `json:"manual_overrides,omitempty"`
	PaymentMethod    string             `json:"payment_method"`
	Notes            string             `json:"notes,omitempty"`
	PaymentDate      time.Time          `json:"payment_date"`
	AllowOverpayment bool               `json:"allow_overpayment,omitempty"`
	ConfirmMismatch  bool               `json:"confirm_mismatch,omitempty"`
	Offline          bool               `json:"offline,omitempty"`
}

// ConfirmResult reports what happened to a confirmed distribution:
// either it was applied (Outcome set), queued for replay (Queued set), or
// it needs explicit confirmation of a total/amount mismatch first.
type ConfirmResult struct {
	Distribution      *DistributionResult   `json:"distribution"`
	NeedsConfirmation bool                  `json:"needs_confirmation"`
	Outcome           *ApplyOutcome         `json:"outcome,omitempty"`
	Queued            *models.OfflineAction `json:"queued,omitempty"`
}

// GetClientBalance recomputes the client's derived totals from current
// installment state.
func (s *PaymentService) GetClientBalance(ctx context.Context, clientDocument string) (*ClientBalance, error) {
	installments, err := s.installmentRepo.FindByClient(ctx, clientDocument)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch installments: %w", err)
	}
	balance := s.balanceSvc.CalculateClientBalance(installments)
	if balance.ClientDocument == "" {
		balance.ClientDocument = clientDocument
	}
	return &balance, nil
}

// ListClientInstallments returns the client's installments in sale order
func (s *PaymentService) ListClientInstallments(ctx context.Context, clientDocument string) ([]models.Installment, error) {
	return s.installmentRepo.FindByClient(ctx, clientDocument)
}

// ListInstallments pages through installments for the dashboard
func (s *PaymentService) ListInstallments(ctx context.Context, query *repository.ListQuery) ([]models.Installment, int64, error) {
	return s.installmentRepo.List(ctx, query)
}

// PreviewDistribution computes the allocation against fresh state without
// applying anything. The preview is recomputed from scratch on every call
// so it always reflects the latest balances.
func (s *PaymentService) PreviewDistribution(ctx context.Context, clientDocument string, amount float64, mode string, overrides map[string]float64) (*DistributionResult, error) {
	installments, err := s.installmentRepo.FindByClient(ctx, clientDocument)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch installments: %w", err)
	}
	groups := s.balanceSvc.GroupSales(installments)
	return s.distributionSvc.ComputeDistribution(groups, amount, mode, overrides)
}

// ConfirmDistribution runs the full pipeline for a collector-confirmed
// payment. A distributed-total/amount mismatch halts the flow until the
// collector confirms it explicitly; nothing is applied in that case.
func (s *PaymentService) ConfirmDistribution(ctx context.Context, clientDocument string, collectorID uint, req DistributionRequest) (*ConfirmResult, error) {
	installments, err := s.installmentRepo.FindByClient(ctx, clientDocument)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch installments: %w", err)
	}
	groups := s.balanceSvc.GroupSales(installments)

	dist, err := s.distributionSvc.ComputeDistribution(groups, req.Amount, req.Mode, req.ManualOverrides)
	if err != nil {
		return nil, err
	}

	if dist.NeedsConfirmation() && !req.ConfirmMismatch {
		return &ConfirmResult{Distribution: dist, NeedsConfirmation: true}, nil
	}

	paymentDate := req.PaymentDate
	if paymentDate.IsZero() {
		paymentDate = time.Now()
	}

	opts := ApplyOptions{
		ClientDocument:   clientDocument,
		CollectorID:      collectorID,
		PaymentDate:      paymentDate,
		PaymentMethod:    req.PaymentMethod,
		Notes:            req.Notes,
		AllowOverpayment: req.AllowOverpayment,
	}

	result, err := s.reconciliationSvc.BuildUpdates(dist, groups, opts)
	if err != nil {
		return nil, err
	}

	if req.Offline {
		action, err := s.syncSvc.Enqueue(ctx, models.DistributePaymentPayload{
			ClientDocument:   clientDocument,
			Amount:           req.Amount,
			Mode:             req.Mode,
			ManualOverrides:  req.ManualOverrides,
			CollectorID:      collectorID,
			PaymentMethod:    req.PaymentMethod,
			Notes:            req.Notes,
			PaymentDate:      paymentDate,
			AllowOverpayment: req.AllowOverpayment,
			// Entry-time numbers travel along for audit; replay recomputes
			ComputedDetails: result.Record.DistributionDetails,
		})
		if err != nil {
			return nil, err
		}
		return &ConfirmResult{Distribution: dist, Queued: action}, nil
	}

	outcome, err := s.reconciliationSvc.Persist(ctx, result, paymentDate)
	if err != nil {
		return nil, err
	}

	s.afterApply(collectorID, outcome)

	return &ConfirmResult{Distribution: dist, Outcome: outcome}, nil
}

// afterApply dispatches audit and notification side effects off the
// request path.
func (s *PaymentService) afterApply(collectorID uint, outcome *ApplyOutcome) {
	record := outcome.Record
	s.worker.EnqueueAsync(func(ctx context.Context) error {
		if s.auditSvc != nil {
			details, _ := json.Marshal(record.DistributionDetails)
			s.auditSvc.Log(ctx, collectorID, "DISTRIBUTE", "PaymentRecord", record.ID, string(details), "", "")
		}
		if s.notificationSvc == nil {
			return nil
		}
		message := fmt.Sprintf("Pago de L%.2f del cliente %s registrado", record.PaymentAmount, record.ClientDocument)
		if outcome.Unapplied > 0 {
			message = fmt.Sprintf("%s (L%.2f sin aplicar)", message, outcome.Unapplied)
		}
		return s.notificationSvc.NotifyUser(ctx, collectorID,
			"Pago registrado", message, models.NotificationTypePaymentApplied)
	})
}

// NotifyOverdueInstallments alerts managers with the current count of
// overdue installments. Runs from the scheduler.
func (s *PaymentService) NotifyOverdueInstallments(ctx context.Context) error {
	query := repository.NewListQuery()
	query.PerPage = 1
	query.Filters["overdue"] = "true"

	_, total, err := s.installmentRepo.List(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to count overdue installments: %w", err)
	}
	if total == 0 {
		return nil
	}

	return s.notificationSvc.NotifyManagers(ctx, "Cuotas vencidas",
		fmt.Sprintf("Hay %d cuotas vencidas pendientes de cobro", total),
		models.NotificationTypeInstallmentsDue)
}

// FindRecordByID fetches one payment record with its collector
func (s *PaymentService) FindRecordByID(ctx context.Context, id uint) (*models.PaymentRecord, error) {
	return s.recordRepo.FindByID(ctx, id)
}

// ListRecords pages through the payment audit trail
func (s *PaymentService) ListRecords(ctx context.Context, query *repository.ListQuery) ([]models.PaymentRecord, int64, error) {
	return s.recordRepo.List(ctx, query)
}

// FindRecordsByClient returns a client's payment history, newest first
func (s *PaymentService) FindRecordsByClient(ctx context.Context, clientDocument string) ([]models.PaymentRecord, error) {
	return s.recordRepo.FindByClient(ctx, clientDocument)
}

// UploadReceipt stores a receipt for a payment record. Photos are
// normalized first; PDFs are stored as received.
func (s *PaymentService) UploadReceipt(ctx context.Context, recordID uint, file multipart.File, header *multipart.FileHeader) (string, error) {
	record, err := s.recordRepo.FindByID(ctx, recordID)
	if err != nil {
		return "", ErrNotFound
	}

	var path string
	if s.imageSvc != nil && s.imageSvc.IsImage(header) {
		data, filename, normErr := s.imageSvc.Normalize(file, header)
		if normErr != nil {
			return "", normErr
		}
		path, err = s.storage.UploadFromBytes(data, filename, "receipts")
	} else {
		path, err = s.storage.Upload(file, header, "receipts")
	}
	if err != nil {
		return "", fmt.Errorf("failed to store receipt: %w", err)
	}

	if err := s.recordRepo.SetReceiptPath(ctx, record.ID, path); err != nil {
		s.storage.Delete(path)
		return "", fmt.Errorf("failed to link receipt: %w", err)
	}

	return path, nil
}

// ReceiptPath returns the stored receipt path for a record, if any
func (s *PaymentService) ReceiptPath(ctx context.Context, recordID uint) (string, error) {
	record, err := s.recordRepo.FindByID(ctx, recordID)
	if err != nil {
		return "", ErrNotFound
	}
	if record.ReceiptPath == nil || *record.ReceiptPath == "" {
		return "", ErrNotFound
	}
	return *record.ReceiptPath, nil
}
