package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmejia/cobranza-api/internal/models"
	"github.com/dmejia/cobranza-api/internal/repository"
	"github.com/stretchr/testify/assert"
)

type mockInstallmentRepo struct {
	repository.InstallmentRepository
	mockFindByClient  func(ctx context.Context, clientDocument string) ([]models.Installment, error)
	mockUpdateAmounts func(ctx context.Context, id uint, newReceived float64, newStatus string, receivedDate time.Time) error
	mockList          func(ctx context.Context, query *repository.ListQuery) ([]models.Installment, int64, error)
}

func (m *mockInstallmentRepo) FindByClient(ctx context.Context, clientDocument string) ([]models.Installment, error) {
	return m.mockFindByClient(ctx, clientDocument)
}

func (m *mockInstallmentRepo) UpdateAmounts(ctx context.Context, id uint, newReceived float64, newStatus string, receivedDate time.Time) error {
	return m.mockUpdateAmounts(ctx, id, newReceived, newStatus, receivedDate)
}

func (m *mockInstallmentRepo) List(ctx context.Context, query *repository.ListQuery) ([]models.Installment, int64, error) {
	return m.mockList(ctx, query)
}

type mockPaymentRecordRepo struct {
	repository.PaymentRecordRepository
	mockCreate func(ctx context.Context, record *models.PaymentRecord) error
}

func (m *mockPaymentRecordRepo) Create(ctx context.Context, record *models.PaymentRecord) error {
	return m.mockCreate(ctx, record)
}

func buildDistribution(t *testing.T, groups []SaleGroup, amount float64) *DistributionResult {
	t.Helper()
	dist, err := NewDistributionService(NewBalanceService()).ComputeDistribution(groups, amount, DistributionModeAuto, nil)
	assert.NoError(t, err)
	return dist
}

func applyOpts() ApplyOptions {
	return ApplyOptions{
		ClientDocument: "0801",
		CollectorID:    7,
		PaymentDate:    time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC),
		PaymentMethod:  models.PaymentMethodCash,
	}
}

func TestBuildUpdates_AllocatesWithinSaleSmallestFirst(t *testing.T) {
	svc := NewReconciliationService(nil, nil)

	// One sale, installments with remaining 10 and 100
	groups := saleGroups(
		makeInstallment(1, "V-001", "0801", 100, 90),
		makeInstallment(2, "V-001", "0801", 100, 0),
	)
	dist := buildDistribution(t, groups, 50)

	result, err := svc.BuildUpdates(dist, groups, applyOpts())
	assert.NoError(t, err)

	assert.Len(t, result.Updates, 2)
	// Installment 1 (remaining 10) settles first, then 2 takes the rest
	assert.Equal(t, uint(1), result.Updates[0].InstallmentID)
	assert.Equal(t, 10.0, result.Updates[0].AppliedAmount)
	assert.Equal(t, models.InstallmentStatusPaid, result.Updates[0].NewStatus)
	assert.Equal(t, uint(2), result.Updates[1].InstallmentID)
	assert.Equal(t, 40.0, result.Updates[1].AppliedAmount)
	assert.Equal(t, models.InstallmentStatusPartiallyPaid, result.Updates[1].NewStatus)
	assert.Equal(t, 0.0, result.Unapplied)
}

func TestBuildUpdates_CapsAtRemainingWithoutOverpayment(t *testing.T) {
	svc := NewReconciliationService(nil, nil)

	// Sale debt is 10; the collector confirmed 25 anyway
	groups := saleGroups(makeInstallment(1, "V-001", "0801", 100, 90))
	dist := &DistributionResult{
		Amount: 25,
		Mode:   DistributionModeManual,
		Items: []SaleDistributionItem{{
			SaleNumber:      "V-001",
			SaleValue:       100,
			CurrentReceived: 90,
			PendingValue:    10,
			AppliedAmount:   25,
			NewAmount:       115,
		}},
		TotalDistributed: 25,
	}

	result, err := svc.BuildUpdates(dist, groups, applyOpts())
	assert.NoError(t, err)

	assert.Len(t, result.Updates, 1)
	assert.Equal(t, 10.0, result.Updates[0].AppliedAmount)
	assert.Equal(t, 100.0, result.Updates[0].NewReceived)
	assert.Equal(t, 15.0, result.Unapplied)
	assert.Equal(t, 15.0, result.Record.UnappliedAmount)
	assert.Equal(t, 10.0, result.Record.DistributedAmount)
}

func TestBuildUpdates_OverpaymentInflatesLastInstallment(t *testing.T) {
	svc := NewReconciliationService(nil, nil)

	groups := saleGroups(makeInstallment(1, "V-001", "0801", 100, 90))
	dist := &DistributionResult{
		Amount: 25,
		Mode:   DistributionModeManual,
		Items: []SaleDistributionItem{{
			SaleNumber:    "V-001",
			AppliedAmount: 25,
		}},
		TotalDistributed: 25,
	}

	opts := applyOpts()
	opts.AllowOverpayment = true
	result, err := svc.BuildUpdates(dist, groups, opts)
	assert.NoError(t, err)

	assert.Len(t, result.Updates, 1)
	assert.Equal(t, 25.0, result.Updates[0].AppliedAmount)
	assert.Equal(t, 115.0, result.Updates[0].NewReceived)
	assert.Equal(t, models.InstallmentStatusPaid, result.Updates[0].NewStatus)
	assert.Equal(t, 0.0, result.Unapplied)
	assert.Equal(t, 25.0, result.Record.DistributedAmount)
}

func TestBuildUpdates_StatusWithinEpsilonIsPaid(t *testing.T) {
	svc := NewReconciliationService(nil, nil)

	groups := saleGroups(makeInstallment(1, "V-001", "0801", 100, 60))
	dist := buildDistribution(t, groups, 39.995)

	result, err := svc.BuildUpdates(dist, groups, applyOpts())
	assert.NoError(t, err)

	assert.InDelta(t, 99.995, result.Updates[0].NewReceived, 1e-9)
	assert.Equal(t, models.InstallmentStatusPaid, result.Updates[0].NewStatus)
}

func TestBuildUpdates_RecordFields(t *testing.T) {
	svc := NewReconciliationService(nil, nil)

	groups := saleGroups(
		makeInstallment(1, "V-001", "0801", 100, 0),
		makeInstallment(2, "V-002", "0801", 100, 0),
	)
	dist := buildDistribution(t, groups, 150)

	opts := applyOpts()
	opts.Notes = "abono quincenal"
	result, err := svc.BuildUpdates(dist, groups, opts)
	assert.NoError(t, err)

	record := result.Record
	assert.Equal(t, "0801", record.ClientDocument)
	assert.Equal(t, uint(7), record.CollectorID)
	assert.Equal(t, 150.0, record.PaymentAmount)
	assert.Equal(t, 150.0, record.DistributedAmount)
	assert.Equal(t, "abono quincenal", *record.Notes)
	// Two sales touched, so the record is client-level
	assert.Nil(t, record.SaleNumber)
	assert.Len(t, record.DistributionDetails, 2)
}

func TestBuildUpdates_SingleSaleTaggedOnRecord(t *testing.T) {
	svc := NewReconciliationService(nil, nil)

	groups := saleGroups(makeInstallment(1, "V-001", "0801", 100, 0))
	dist := buildDistribution(t, groups, 50)

	result, err := svc.BuildUpdates(dist, groups, applyOpts())
	assert.NoError(t, err)

	assert.NotNil(t, result.Record.SaleNumber)
	assert.Equal(t, "V-001", *result.Record.SaleNumber)
}

func TestBuildUpdates_UnknownSaleInDistribution(t *testing.T) {
	svc := NewReconciliationService(nil, nil)

	groups := saleGroups(makeInstallment(1, "V-001", "0801", 100, 0))
	dist := &DistributionResult{
		Amount: 50,
		Items:  []SaleDistributionItem{{SaleNumber: "V-999", AppliedAmount: 50}},
	}

	_, err := svc.BuildUpdates(dist, groups, applyOpts())
	assert.ErrorIs(t, err, ErrUnknownSale)
}

func TestPersist_RecordFailureAbortsBeforeUpdates(t *testing.T) {
	updates := 0
	installmentRepo := &mockInstallmentRepo{
		mockUpdateAmounts: func(ctx context.Context, id uint, newReceived float64, newStatus string, receivedDate time.Time) error {
			updates++
			return nil
		},
	}
	recordRepo := &mockPaymentRecordRepo{
		mockCreate: func(ctx context.Context, record *models.PaymentRecord) error {
			return errors.New("db down")
		},
	}
	svc := NewReconciliationService(installmentRepo, recordRepo)

	groups := saleGroups(makeInstallment(1, "V-001", "0801", 100, 0))
	dist := buildDistribution(t, groups, 50)
	result, err := svc.BuildUpdates(dist, groups, applyOpts())
	assert.NoError(t, err)

	_, err = svc.Persist(context.Background(), result, time.Now())
	assert.Error(t, err)
	assert.Equal(t, 0, updates)
}

func TestPersist_PartialFailureReportedWithoutRollback(t *testing.T) {
	installmentRepo := &mockInstallmentRepo{
		mockUpdateAmounts: func(ctx context.Context, id uint, newReceived float64, newStatus string, receivedDate time.Time) error {
			if id == 2 {
				return errors.New("conexión perdida")
			}
			return nil
		},
	}
	recordRepo := &mockPaymentRecordRepo{
		mockCreate: func(ctx context.Context, record *models.PaymentRecord) error { return nil },
	}
	svc := NewReconciliationService(installmentRepo, recordRepo)

	groups := saleGroups(
		makeInstallment(1, "V-001", "0801", 100, 0),
		makeInstallment(2, "V-001", "0801", 100, 0),
		makeInstallment(3, "V-001", "0801", 100, 0),
	)
	dist := buildDistribution(t, groups, 300)
	result, err := svc.BuildUpdates(dist, groups, applyOpts())
	assert.NoError(t, err)

	outcome, err := svc.Persist(context.Background(), result, time.Now())
	assert.NoError(t, err)

	// The failed write is reported; the two successes stay applied
	assert.Len(t, outcome.Applied, 2)
	assert.Len(t, outcome.Failed, 1)
	assert.Equal(t, uint(2), outcome.Failed[0].InstallmentID)
	assert.Equal(t, "conexión perdida", outcome.Failed[0].Error)
}
