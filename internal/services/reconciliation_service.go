package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/dmejia/cobranza-api/internal/models"
	"github.com/dmejia/cobranza-api/internal/repository"
	"github.com/dmejia/cobranza-api/pkg/logger"
)

// InstallmentUpdate is one concrete installment mutation produced from a
// distribution. Updates are applied in the order they were computed.
type InstallmentUpdate struct {
	InstallmentID    uint    `json:"installment_id"`
	SaleNumber       string  `json:"sale_number"`
	PreviousReceived float64 `json:"previous_received"`
	AppliedAmount    float64 `json:"applied_amount"`
	NewReceived      float64 `json:"new_received"`
	NewStatus        string  `json:"new_status"`
}

// ReconciliationResult is the computed update set for one distribution.
// Nothing has been persisted yet when this is returned.
type ReconciliationResult struct {
	Record    *models.PaymentRecord `json:"record"`
	Updates   []InstallmentUpdate   `json:"updates"`
	Unapplied float64               `json:"unapplied"`
}

// ApplyOptions carries the audit fields of a confirmed distribution
type ApplyOptions struct {
	ClientDocument   string
	CollectorID      uint
	PaymentDate      time.Time
	PaymentMethod    string
	Notes            string
	AllowOverpayment bool
}

// FailedUpdate reports one installment write that the gateway rejected
type FailedUpdate struct {
	InstallmentID uint   `json:"installment_id"`
	Error         string `json:"error"`
}

// ApplyOutcome reports the persistence result per installment. There is no
// rollback; callers see exactly which updates landed.
type ApplyOutcome struct {
	Record    *models.PaymentRecord `json:"record"`
	Applied   []uint                `json:"applied"`
	Failed    []FailedUpdate        `json:"failed"`
	Unapplied float64               `json:"unapplied"`
}

// ReconciliationService turns a computed distribution into installment
// updates and a payment record, then pushes them through the persistence
// gateway. BuildUpdates is pure; only Persist touches external state.
type ReconciliationService struct {
	installmentRepo repository.InstallmentRepository
	recordRepo      repository.PaymentRecordRepository
}

// NewReconciliationService creates a new reconciliation service
func NewReconciliationService(installmentRepo repository.InstallmentRepository, recordRepo repository.PaymentRecordRepository) *ReconciliationService {
	return &ReconciliationService{
		installmentRepo: installmentRepo,
		recordRepo:      recordRepo,
	}
}

// BuildUpdates allocates each sale's applied amount across that sale's
// installments, smallest remaining balance first, and assembles the payment
// record. An installment never receives more than its remaining balance:
// the excess rolls to the next installment of the sale and whatever cannot
// be placed ends up in Unapplied. Only an explicit AllowOverpayment lets the
// sale's final installment absorb the surplus instead.
func (s *ReconciliationService) BuildUpdates(dist *DistributionResult, groups []SaleGroup, opts ApplyOptions) (*ReconciliationResult, error) {
	byNumber := make(map[string]SaleGroup, len(groups))
	for _, group := range groups {
		byNumber[group.SaleNumber] = group
	}

	result := &ReconciliationResult{
		Updates:   []InstallmentUpdate{},
		Unapplied: dist.Remainder,
	}

	var details []models.DistributionDetail
	distributed := 0.0
	touchedSales := make(map[string]bool)

	for _, item := range dist.Items {
		group, ok := byNumber[item.SaleNumber]
		if !ok {
			return nil, fmt.Errorf("distribución inconsistente: %w", ErrUnknownSale)
		}

		// Allocation order within the sale mirrors the engine's policy:
		// smallest remaining balance first, input order on ties.
		installments := make([]models.Installment, len(group.Installments))
		copy(installments, group.Installments)
		sort.SliceStable(installments, func(i, j int) bool {
			return installments[i].RemainingBalance() < installments[j].RemainingBalance()
		})

		budget := item.AppliedAmount
		lastUpdate := -1
		for _, inst := range installments {
			if budget <= 0 {
				break
			}
			remaining := inst.RemainingBalance()
			if remaining <= 0 {
				continue
			}
			applied := math.Min(budget, remaining)
			newReceived := inst.ReceivedAmount + applied
			newStatus := models.InstallmentStatusFor(inst.OriginalAmount, newReceived)

			result.Updates = append(result.Updates, InstallmentUpdate{
				InstallmentID:    inst.ID,
				SaleNumber:       inst.SaleNumber,
				PreviousReceived: inst.ReceivedAmount,
				AppliedAmount:    applied,
				NewReceived:      newReceived,
				NewStatus:        newStatus,
			})
			details = append(details, models.DistributionDetail{
				InstallmentID:     inst.ID,
				SaleNumber:        inst.SaleNumber,
				OriginalAmount:    inst.OriginalAmount,
				AppliedAmount:     applied,
				InstallmentStatus: newStatus,
			})
			lastUpdate = len(result.Updates) - 1
			distributed += applied
			budget -= applied
			touchedSales[inst.SaleNumber] = true
		}

		if budget > 0 {
			if opts.AllowOverpayment && lastUpdate >= 0 {
				// Caller explicitly accepted inflating past the face value
				update := &result.Updates[lastUpdate]
				detail := &details[len(details)-1]
				update.AppliedAmount += budget
				update.NewReceived += budget
				update.NewStatus = models.InstallmentStatusFor(detail.OriginalAmount, update.NewReceived)
				detail.AppliedAmount = update.AppliedAmount
				detail.InstallmentStatus = update.NewStatus
				distributed += budget
			} else {
				result.Unapplied += budget
			}
		}
	}

	record := &models.PaymentRecord{
		ClientDocument:      opts.ClientDocument,
		PaymentAmount:       dist.Amount,
		DistributedAmount:   distributed,
		UnappliedAmount:     result.Unapplied,
		PaymentDate:         opts.PaymentDate,
		PaymentMethod:       opts.PaymentMethod,
		CollectorID:         opts.CollectorID,
		DistributionDetails: details,
	}
	if opts.Notes != "" {
		record.Notes = &opts.Notes
	}
	if len(touchedSales) == 1 {
		for saleNumber := range touchedSales {
			record.SaleNumber = &saleNumber
		}
	}
	result.Record = record

	return result, nil
}

// Persist writes the payment record and then applies the installment
// updates in computed order through the gateway. Failures are collected per
// installment and reported; successful writes are not rolled back.
func (s *ReconciliationService) Persist(ctx context.Context, result *ReconciliationResult, receivedDate time.Time) (*ApplyOutcome, error) {
	if err := s.recordRepo.Create(ctx, result.Record); err != nil {
		return nil, fmt.Errorf("failed to create payment record: %w", err)
	}

	outcome := &ApplyOutcome{
		Record:    result.Record,
		Applied:   []uint{},
		Failed:    []FailedUpdate{},
		Unapplied: result.Unapplied,
	}

	for _, update := range result.Updates {
		err := s.installmentRepo.UpdateAmounts(ctx, update.InstallmentID, update.NewReceived, update.NewStatus, receivedDate)
		if err != nil {
			logger.Error("Failed to update installment",
				"installment_id", update.InstallmentID, "error", err)
			outcome.Failed = append(outcome.Failed, FailedUpdate{
				InstallmentID: update.InstallmentID,
				Error:         err.Error(),
			})
			continue
		}
		outcome.Applied = append(outcome.Applied, update.InstallmentID)
	}

	return outcome, nil
}
