package services

import (
	"math"
	"sort"

	"github.com/dmejia/cobranza-api/internal/models"
)

// Distribution modes
const (
	DistributionModeAuto   = "auto"
	DistributionModeManual = "manual"
)

// SaleDistributionItem is one sale's share of a payment. NewAmount is the
// sale's received total after the payment is applied.
type SaleDistributionItem struct {
	SaleNumber      string  `json:"sale_number"`
	SaleValue       float64 `json:"sale_value"`
	CurrentReceived float64 `json:"current_received"`
	PendingValue    float64 `json:"pending_value"`
	AppliedAmount   float64 `json:"applied_amount"`
	NewAmount       float64 `json:"new_amount"`
}

// DistributionResult is the computed allocation of one payment amount
// across a client's sales. Remainder is payment that exceeded the total
// outstanding debt; it is surfaced here and never silently applied.
type DistributionResult struct {
	Amount           float64                `json:"amount"`
	Mode             string                 `json:"mode"`
	Items            []SaleDistributionItem `json:"items"`
	TotalDistributed float64                `json:"total_distributed"`
	Remainder        float64                `json:"remainder"`
}

// Difference is the signed gap between what was distributed and the entered
// amount. The caller must ask for explicit confirmation when it exceeds the
// tolerance; the engine never adjusts the numbers to hide it.
func (r *DistributionResult) Difference() float64 {
	return r.TotalDistributed - r.Amount
}

// NeedsConfirmation returns true when the distributed total and the entered
// amount disagree beyond the currency tolerance.
func (r *DistributionResult) NeedsConfirmation() bool {
	return math.Abs(r.Difference()) > models.MoneyEpsilon
}

// DistributionService computes how a single payment is allocated across a
// client's sales. It is a pure function of its inputs: recomputing with the
// same sale state yields the identical result.
type DistributionService struct {
	balanceSvc *BalanceService
}

// NewDistributionService creates a new distribution service
func NewDistributionService(balanceSvc *BalanceService) *DistributionService {
	return &DistributionService{balanceSvc: balanceSvc}
}

// ComputeDistribution allocates amount across sales.
//
// Auto mode walks the sales smallest pending balance first (ties keep input
// order), settling near-complete sales before larger ones. Manual mode takes
// the caller's target received amount per sale and only derives the applied
// deltas. Either way, a mismatch between the distributed total and the
// entered amount is reported via Difference, not corrected.
func (s *DistributionService) ComputeDistribution(sales []SaleGroup, amount float64, mode string, manualOverrides map[string]float64) (*DistributionResult, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if len(sales) == 0 {
		return nil, ErrEmptySaleSet
	}

	if mode == DistributionModeManual {
		return s.computeManual(sales, amount, manualOverrides)
	}
	return s.computeAuto(sales, amount)
}

func (s *DistributionService) computeAuto(sales []SaleGroup, amount float64) (*DistributionResult, error) {
	type pendingSale struct {
		group   SaleGroup
		balance SaleBalance
	}

	pending := make([]pendingSale, 0, len(sales))
	for _, group := range sales {
		balance := s.balanceSvc.CalculateSaleBalance(group.Installments)
		// Settled sales produce no entry at all
		if balance.RemainingBalance <= models.MoneyEpsilon {
			continue
		}
		pending = append(pending, pendingSale{group: group, balance: balance})
	}

	// Smallest pending balance first; the stable sort keeps input order on
	// ties, which is the documented tie-break.
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].balance.RemainingBalance < pending[j].balance.RemainingBalance
	})

	result := &DistributionResult{
		Amount: amount,
		Mode:   DistributionModeAuto,
		Items:  []SaleDistributionItem{},
	}

	remaining := amount
	for _, sale := range pending {
		if remaining <= 0 {
			break
		}
		applied := math.Min(remaining, sale.balance.RemainingBalance)
		result.Items = append(result.Items, SaleDistributionItem{
			SaleNumber:      sale.balance.SaleNumber,
			SaleValue:       sale.balance.TotalValue,
			CurrentReceived: sale.balance.TotalPaid,
			PendingValue:    sale.balance.RemainingBalance,
			AppliedAmount:   applied,
			NewAmount:       sale.balance.TotalPaid + applied,
		})
		result.TotalDistributed += applied
		remaining -= applied
	}

	if remaining > 0 {
		result.Remainder = remaining
	}

	return result, nil
}

func (s *DistributionService) computeManual(sales []SaleGroup, amount float64, overrides map[string]float64) (*DistributionResult, error) {
	known := make(map[string]SaleBalance, len(sales))
	for _, group := range sales {
		known[group.SaleNumber] = s.balanceSvc.CalculateSaleBalance(group.Installments)
	}

	for saleNumber := range overrides {
		if _, ok := known[saleNumber]; !ok {
			return nil, ErrUnknownSale
		}
	}

	result := &DistributionResult{
		Amount: amount,
		Mode:   DistributionModeManual,
		Items:  []SaleDistributionItem{},
	}

	// Walk sales in input order so the preview is stable across recomputes
	for _, group := range sales {
		newAmount, ok := overrides[group.SaleNumber]
		if !ok {
			continue
		}
		balance := known[group.SaleNumber]
		applied := newAmount - balance.TotalPaid
		if applied < 0 {
			return nil, ErrInvalidOverride
		}
		if applied == 0 {
			continue
		}
		result.Items = append(result.Items, SaleDistributionItem{
			SaleNumber:      balance.SaleNumber,
			SaleValue:       balance.TotalValue,
			CurrentReceived: balance.TotalPaid,
			PendingValue:    balance.RemainingBalance,
			AppliedAmount:   applied,
			NewAmount:       newAmount,
		})
		result.TotalDistributed += applied
	}

	if leftover := amount - result.TotalDistributed; leftover > 0 {
		result.Remainder = leftover
	}

	return result, nil
}
