package services

import (
	"math"
	"testing"

	"github.com/dmejia/cobranza-api/internal/models"
	"github.com/stretchr/testify/assert"
)

func saleGroups(installments ...models.Installment) []SaleGroup {
	return NewBalanceService().GroupSales(installments)
}

func TestComputeDistribution_AutoSmallestPendingFirst(t *testing.T) {
	svc := NewDistributionService(NewBalanceService())

	groups := saleGroups(
		makeInstallment(1, "V-001", "0801", 500, 0),
		makeInstallment(2, "V-002", "0801", 100, 0),
		makeInstallment(3, "V-003", "0801", 250, 0),
	)

	result, err := svc.ComputeDistribution(groups, 300, DistributionModeAuto, nil)
	assert.NoError(t, err)

	// 100 settles first, then 200 of the 250
	assert.Len(t, result.Items, 2)
	assert.Equal(t, "V-002", result.Items[0].SaleNumber)
	assert.Equal(t, 100.0, result.Items[0].AppliedAmount)
	assert.Equal(t, "V-003", result.Items[1].SaleNumber)
	assert.Equal(t, 200.0, result.Items[1].AppliedAmount)
	assert.Equal(t, 300.0, result.TotalDistributed)
	assert.Equal(t, 0.0, result.Remainder)
}

func TestComputeDistribution_AutoTieBreakKeepsInputOrder(t *testing.T) {
	svc := NewDistributionService(NewBalanceService())

	// Two sales tied at 30 pending; the one seen first wins the tie
	groups := saleGroups(
		makeInstallment(1, "V-050", "0801", 50, 0),
		makeInstallment(2, "V-030A", "0801", 30, 0),
		makeInstallment(3, "V-030B", "0801", 30, 0),
	)

	result, err := svc.ComputeDistribution(groups, 40, DistributionModeAuto, nil)
	assert.NoError(t, err)

	assert.Len(t, result.Items, 2)
	assert.Equal(t, "V-030A", result.Items[0].SaleNumber)
	assert.Equal(t, 30.0, result.Items[0].AppliedAmount)
	assert.Equal(t, "V-030B", result.Items[1].SaleNumber)
	assert.Equal(t, 10.0, result.Items[1].AppliedAmount)
}

func TestComputeDistribution_AutoSkipsSettledSales(t *testing.T) {
	svc := NewDistributionService(NewBalanceService())

	groups := saleGroups(
		makeInstallment(1, "V-001", "0801", 100, 100),
		makeInstallment(2, "V-002", "0801", 100, 99.995),
		makeInstallment(3, "V-003", "0801", 200, 0),
	)

	result, err := svc.ComputeDistribution(groups, 50, DistributionModeAuto, nil)
	assert.NoError(t, err)

	// Settled sales produce no item at all, not a zero-amount entry
	assert.Len(t, result.Items, 1)
	assert.Equal(t, "V-003", result.Items[0].SaleNumber)
}

func TestComputeDistribution_RemainderNeverSilentlyApplied(t *testing.T) {
	svc := NewDistributionService(NewBalanceService())

	groups := saleGroups(
		makeInstallment(1, "V-001", "0801", 100, 60),
	)

	result, err := svc.ComputeDistribution(groups, 100, DistributionModeAuto, nil)
	assert.NoError(t, err)

	assert.Equal(t, 40.0, result.TotalDistributed)
	assert.Equal(t, 60.0, result.Remainder)
	assert.Equal(t, 100.0, result.Items[0].NewAmount)
}

func TestComputeDistribution_Conservation(t *testing.T) {
	svc := NewDistributionService(NewBalanceService())

	groups := saleGroups(
		makeInstallment(1, "V-001", "0801", 123.45, 12.30),
		makeInstallment(2, "V-002", "0801", 67.89, 0),
		makeInstallment(3, "V-003", "0801", 450.00, 449.99),
	)

	for _, amount := range []float64{10, 111.15, 500, 1000} {
		result, err := svc.ComputeDistribution(groups, amount, DistributionModeAuto, nil)
		assert.NoError(t, err)
		assert.InDelta(t, amount, result.TotalDistributed+result.Remainder, 1e-9)
	}
}

func TestComputeDistribution_Idempotent(t *testing.T) {
	svc := NewDistributionService(NewBalanceService())

	groups := saleGroups(
		makeInstallment(1, "V-001", "0801", 100, 20),
		makeInstallment(2, "V-002", "0801", 300, 0),
	)

	first, err := svc.ComputeDistribution(groups, 150, DistributionModeAuto, nil)
	assert.NoError(t, err)
	second, err := svc.ComputeDistribution(groups, 150, DistributionModeAuto, nil)
	assert.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestComputeDistribution_InvalidAmount(t *testing.T) {
	svc := NewDistributionService(NewBalanceService())
	groups := saleGroups(makeInstallment(1, "V-001", "0801", 100, 0))

	for _, amount := range []float64{0, -50, math.NaN(), math.Inf(1)} {
		_, err := svc.ComputeDistribution(groups, amount, DistributionModeAuto, nil)
		assert.ErrorIs(t, err, ErrInvalidAmount)
	}
}

func TestComputeDistribution_EmptySaleSet(t *testing.T) {
	svc := NewDistributionService(NewBalanceService())

	_, err := svc.ComputeDistribution(nil, 100, DistributionModeAuto, nil)
	assert.ErrorIs(t, err, ErrEmptySaleSet)
}

func TestComputeDistribution_ManualDerivesApplied(t *testing.T) {
	svc := NewDistributionService(NewBalanceService())

	groups := saleGroups(
		makeInstallment(1, "V-001", "0801", 100, 20),
		makeInstallment(2, "V-002", "0801", 200, 0),
	)

	result, err := svc.ComputeDistribution(groups, 130, DistributionModeManual, map[string]float64{
		"V-001": 70,  // 50 applied on top of the 20 received
		"V-002": 80,  // 80 applied
	})
	assert.NoError(t, err)

	assert.Len(t, result.Items, 2)
	assert.Equal(t, 50.0, result.Items[0].AppliedAmount)
	assert.Equal(t, 70.0, result.Items[0].NewAmount)
	assert.Equal(t, 80.0, result.Items[1].AppliedAmount)
	assert.Equal(t, 130.0, result.TotalDistributed)
	assert.False(t, result.NeedsConfirmation())
}

func TestComputeDistribution_ManualUnknownSale(t *testing.T) {
	svc := NewDistributionService(NewBalanceService())
	groups := saleGroups(makeInstallment(1, "V-001", "0801", 100, 0))

	_, err := svc.ComputeDistribution(groups, 100, DistributionModeManual, map[string]float64{
		"V-999": 100,
	})
	assert.ErrorIs(t, err, ErrUnknownSale)
}

func TestComputeDistribution_ManualBelowReceivedRejected(t *testing.T) {
	svc := NewDistributionService(NewBalanceService())
	groups := saleGroups(makeInstallment(1, "V-001", "0801", 100, 50))

	_, err := svc.ComputeDistribution(groups, 100, DistributionModeManual, map[string]float64{
		"V-001": 30,
	})
	assert.ErrorIs(t, err, ErrInvalidOverride)
}

func TestComputeDistribution_ManualZeroDeltaSkipped(t *testing.T) {
	svc := NewDistributionService(NewBalanceService())
	groups := saleGroups(
		makeInstallment(1, "V-001", "0801", 100, 50),
		makeInstallment(2, "V-002", "0801", 100, 0),
	)

	result, err := svc.ComputeDistribution(groups, 60, DistributionModeManual, map[string]float64{
		"V-001": 50, // unchanged
		"V-002": 60,
	})
	assert.NoError(t, err)
	assert.Len(t, result.Items, 1)
	assert.Equal(t, "V-002", result.Items[0].SaleNumber)
}

func TestDistributionResult_NeedsConfirmation(t *testing.T) {
	svc := NewDistributionService(NewBalanceService())

	// Debt is 40 but the collector entered 100; the gap must be confirmed
	groups := saleGroups(makeInstallment(1, "V-001", "0801", 100, 60))
	result, err := svc.ComputeDistribution(groups, 100, DistributionModeAuto, nil)
	assert.NoError(t, err)

	assert.Equal(t, -60.0, result.Difference())
	assert.True(t, result.NeedsConfirmation())
}
