package services

import (
	"github.com/dmejia/cobranza-api/internal/models"
)

// BalanceService computes derived sale balances from installment state.
// Everything here is pure: sales are a grouping over installments and are
// never stored, so a balance is always consistent with the rows it was
// computed from.
type BalanceService struct{}

// NewBalanceService creates a new balance service
func NewBalanceService() *BalanceService {
	return &BalanceService{}
}

// SaleGroup is one sale's installments, keyed by (sale number, client document)
type SaleGroup struct {
	SaleNumber     string
	ClientDocument string
	Installments   []models.Installment
}

// InstallmentBalance is the per-installment breakdown inside a SaleBalance
type InstallmentBalance struct {
	InstallmentID  uint    `json:"installment_id"`
	OriginalAmount float64 `json:"original_amount"`
	PaidAmount     float64 `json:"paid_amount"`
	Remaining      float64 `json:"remaining"`
	Status         string  `json:"status"`
}

// SaleBalance holds the derived totals for one sale
type SaleBalance struct {
	SaleNumber       string               `json:"sale_number"`
	ClientDocument   string               `json:"client_document"`
	TotalValue       float64              `json:"total_value"`
	TotalPaid        float64              `json:"total_paid"`
	RemainingBalance float64              `json:"remaining_balance"`
	Status           string               `json:"status"`
	Installments     []InstallmentBalance `json:"installments"`
}

// GroupSales groups installments into sales, preserving the order in which
// each sale first appears in the input. That order is the tie-break for the
// distribution engine, so it must be stable.
func (s *BalanceService) GroupSales(installments []models.Installment) []SaleGroup {
	var groups []SaleGroup
	index := make(map[string]int)

	for _, inst := range installments {
		key := inst.SaleNumber + "\x00" + inst.ClientDocument
		if i, ok := index[key]; ok {
			groups[i].Installments = append(groups[i].Installments, inst)
			continue
		}
		index[key] = len(groups)
		groups = append(groups, SaleGroup{
			SaleNumber:     inst.SaleNumber,
			ClientDocument: inst.ClientDocument,
			Installments:   []models.Installment{inst},
		})
	}

	return groups
}

// CalculateSaleBalance computes the derived totals for one sale's
// installments. An empty input yields a zeroed pending balance rather than
// an error, so callers can render a blank sale defensively.
func (s *BalanceService) CalculateSaleBalance(installments []models.Installment) SaleBalance {
	balance := SaleBalance{
		Status:       models.SaleStatusPending,
		Installments: make([]InstallmentBalance, 0, len(installments)),
	}

	if len(installments) == 0 {
		return balance
	}

	balance.SaleNumber = installments[0].SaleNumber
	balance.ClientDocument = installments[0].ClientDocument

	for _, inst := range installments {
		balance.TotalValue += inst.OriginalAmount
		balance.TotalPaid += inst.ReceivedAmount
		balance.Installments = append(balance.Installments, InstallmentBalance{
			InstallmentID:  inst.ID,
			OriginalAmount: inst.OriginalAmount,
			PaidAmount:     inst.ReceivedAmount,
			Remaining:      inst.RemainingBalance(),
			Status:         inst.Status,
		})
	}

	balance.RemainingBalance = balance.TotalValue - balance.TotalPaid
	if balance.RemainingBalance < 0 {
		balance.RemainingBalance = 0
	}

	switch {
	case balance.RemainingBalance <= models.MoneyEpsilon:
		balance.Status = models.SaleStatusFullyPaid
	case balance.TotalPaid > 0:
		balance.Status = models.SaleStatusPartiallyPaid
	}

	return balance
}

// ClientBalance aggregates every sale of one client
type ClientBalance struct {
	ClientDocument   string        `json:"client_document"`
	ClientName       string        `json:"client_name"`
	TotalValue       float64       `json:"total_value"`
	TotalPaid        float64       `json:"total_paid"`
	RemainingBalance float64       `json:"remaining_balance"`
	Sales            []SaleBalance `json:"sales"`
}

// CalculateClientBalance groups a client's installments into sales and
// totals them up for the dashboard view.
func (s *BalanceService) CalculateClientBalance(installments []models.Installment) ClientBalance {
	balance := ClientBalance{Sales: []SaleBalance{}}
	if len(installments) > 0 {
		balance.ClientDocument = installments[0].ClientDocument
		balance.ClientName = installments[0].ClientName
	}

	for _, group := range s.GroupSales(installments) {
		sale := s.CalculateSaleBalance(group.Installments)
		balance.TotalValue += sale.TotalValue
		balance.TotalPaid += sale.TotalPaid
		balance.RemainingBalance += sale.RemainingBalance
		balance.Sales = append(balance.Sales, sale)
	}

	return balance
}
