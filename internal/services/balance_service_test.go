package services

import (
	"testing"

	"github.com/dmejia/cobranza-api/internal/models"
	"github.com/stretchr/testify/assert"
)

func makeInstallment(id uint, sale, document string, original, received float64) models.Installment {
	return models.Installment{
		ID:             id,
		SaleNumber:     sale,
		ClientDocument: document,
		OriginalAmount: original,
		ReceivedAmount: received,
		Status:         models.InstallmentStatusFor(original, received),
	}
}

func TestGroupSales_PreservesFirstSeenOrder(t *testing.T) {
	svc := NewBalanceService()

	installments := []models.Installment{
		makeInstallment(1, "V-002", "0801", 100, 0),
		makeInstallment(2, "V-001", "0801", 50, 0),
		makeInstallment(3, "V-002", "0801", 100, 0),
		makeInstallment(4, "V-003", "0801", 75, 0),
	}

	groups := svc.GroupSales(installments)

	assert.Len(t, groups, 3)
	assert.Equal(t, "V-002", groups[0].SaleNumber)
	assert.Equal(t, "V-001", groups[1].SaleNumber)
	assert.Equal(t, "V-003", groups[2].SaleNumber)
	assert.Len(t, groups[0].Installments, 2)
}

func TestGroupSales_SameSaleNumberDifferentClient(t *testing.T) {
	svc := NewBalanceService()

	installments := []models.Installment{
		makeInstallment(1, "V-001", "0801", 100, 0),
		makeInstallment(2, "V-001", "0502", 100, 0),
	}

	groups := svc.GroupSales(installments)
	assert.Len(t, groups, 2)
	assert.Equal(t, "0801", groups[0].ClientDocument)
	assert.Equal(t, "0502", groups[1].ClientDocument)
}

func TestCalculateSaleBalance_Totals(t *testing.T) {
	svc := NewBalanceService()

	balance := svc.CalculateSaleBalance([]models.Installment{
		makeInstallment(1, "V-001", "0801", 100, 100),
		makeInstallment(2, "V-001", "0801", 100, 30),
		makeInstallment(3, "V-001", "0801", 100, 0),
	})

	assert.Equal(t, 300.0, balance.TotalValue)
	assert.Equal(t, 130.0, balance.TotalPaid)
	assert.Equal(t, 170.0, balance.RemainingBalance)
	assert.Equal(t, models.SaleStatusPartiallyPaid, balance.Status)
	assert.Len(t, balance.Installments, 3)
}

func TestCalculateSaleBalance_StatusBoundaries(t *testing.T) {
	svc := NewBalanceService()

	tests := []struct {
		name     string
		received float64
		expected string
	}{
		{"nothing paid", 0, models.SaleStatusPending},
		{"partially paid", 40, models.SaleStatusPartiallyPaid},
		{"exactly paid", 100, models.SaleStatusFullyPaid},
		{"within epsilon", 99.995, models.SaleStatusFullyPaid},
		{"just outside epsilon", 99.98, models.SaleStatusPartiallyPaid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			balance := svc.CalculateSaleBalance([]models.Installment{
				makeInstallment(1, "V-001", "0801", 100, tt.received),
			})
			assert.Equal(t, tt.expected, balance.Status)
		})
	}
}

func TestCalculateSaleBalance_EmptyInput(t *testing.T) {
	svc := NewBalanceService()

	balance := svc.CalculateSaleBalance(nil)

	assert.Equal(t, 0.0, balance.TotalValue)
	assert.Equal(t, 0.0, balance.RemainingBalance)
	assert.Equal(t, models.SaleStatusPending, balance.Status)
	assert.Empty(t, balance.Installments)
}

func TestCalculateSaleBalance_OverpaidClampsToZero(t *testing.T) {
	svc := NewBalanceService()

	balance := svc.CalculateSaleBalance([]models.Installment{
		makeInstallment(1, "V-001", "0801", 100, 120),
	})

	assert.Equal(t, 0.0, balance.RemainingBalance)
	assert.Equal(t, models.SaleStatusFullyPaid, balance.Status)
}

func TestCalculateClientBalance_AggregatesSales(t *testing.T) {
	svc := NewBalanceService()

	installments := []models.Installment{
		makeInstallment(1, "V-001", "0801", 100, 100),
		makeInstallment(2, "V-002", "0801", 200, 50),
	}
	installments[0].ClientName = "María López"

	balance := svc.CalculateClientBalance(installments)

	assert.Equal(t, "0801", balance.ClientDocument)
	assert.Equal(t, "María López", balance.ClientName)
	assert.Equal(t, 300.0, balance.TotalValue)
	assert.Equal(t, 150.0, balance.TotalPaid)
	assert.Equal(t, 150.0, balance.RemainingBalance)
	assert.Len(t, balance.Sales, 2)
}
