package models

import (
	"time"
)

// MoneyEpsilon is the currency rounding tolerance used for every
// "is this settled" comparison. Amounts within one cent are considered equal.
const MoneyEpsilon = 0.01

// Installment represents one scheduled debt line item for a client.
// Rows are created by the import process; this API only ever increases
// received_amount through reconciliation updates.
type Installment struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	SaleNumber     string     `gorm:"not null;index:idx_installments_sale" json:"sale_number"`
	ClientDocument string     `gorm:"not null;index:idx_installments_sale;index" json:"client_document"`
	ClientName     string     `json:"client_name"`
	OriginalAmount float64    `gorm:"type:decimal(15,2);not null" json:"original_amount"`
	ReceivedAmount float64    `gorm:"type:decimal(15,2);default:0;not null" json:"received_amount"`
	Status         string     `gorm:"default:pending;not null;index" json:"status"`
	DueDate        time.Time  `gorm:"type:date" json:"due_date"`
	ReceivedDate   *time.Time `gorm:"type:date" json:"received_date"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TableName specifies the table name for Installment
func (Installment) TableName() string {
	return "installments"
}

// Installment status constants
const (
	InstallmentStatusPending       = "pending"
	InstallmentStatusPartiallyPaid = "partially_paid"
	InstallmentStatusPaid          = "paid"
)

// Sale status constants (sales are derived groupings, never persisted)
const (
	SaleStatusPending       = "pending"
	SaleStatusPartiallyPaid = "partially_paid"
	SaleStatusFullyPaid     = "fully_paid"
)

// RemainingBalance returns the outstanding amount on this installment,
// never negative.
func (i *Installment) RemainingBalance() float64 {
	remaining := i.OriginalAmount - i.ReceivedAmount
	if remaining < 0 {
		return 0
	}
	return remaining
}

// IsSettled returns true if the installment is paid off within tolerance
func (i *Installment) IsSettled() bool {
	return i.OriginalAmount-i.ReceivedAmount <= MoneyEpsilon
}

// InstallmentStatusFor derives the status tag for a given received amount
// against an original amount. paid wins within MoneyEpsilon of the face
// value; any received amount above zero short of that is partially_paid.
func InstallmentStatusFor(originalAmount, receivedAmount float64) string {
	if originalAmount-receivedAmount <= MoneyEpsilon {
		return InstallmentStatusPaid
	}
	if receivedAmount > 0 {
		return InstallmentStatusPartiallyPaid
	}
	return InstallmentStatusPending
}

// InstallmentResponse is the JSON response format for installments
type InstallmentResponse struct {
	ID             uint       `json:"id"`
	SaleNumber     string     `json:"sale_number"`
	ClientDocument string     `json:"client_document"`
	ClientName     string     `json:"client_name"`
	OriginalAmount float64    `json:"original_amount"`
	ReceivedAmount float64    `json:"received_amount"`
	Remaining      float64    `json:"remaining"`
	Status         string     `json:"status"`
	DueDate        time.Time  `json:"due_date"`
	ReceivedDate   *time.Time `json:"received_date"`
	OverdueDays    int        `json:"overdue_days"`
}

// OverdueDays returns how many days past due the installment is, measured
// against the supplied reference time. Settled installments are never overdue.
func (i *Installment) OverdueDays(now time.Time) int {
	if i.IsSettled() || !now.After(i.DueDate) {
		return 0
	}
	return int(now.Sub(i.DueDate).Hours() / 24)
}

// ToResponse converts Installment to InstallmentResponse
func (i *Installment) ToResponse(now time.Time) InstallmentResponse {
	return InstallmentResponse{
		ID:             i.ID,
		SaleNumber:     i.SaleNumber,
		ClientDocument: i.ClientDocument,
		ClientName:     i.ClientName,
		OriginalAmount: i.OriginalAmount,
		ReceivedAmount: i.ReceivedAmount,
		Remaining:      i.RemainingBalance(),
		Status:         i.Status,
		DueDate:        i.DueDate,
		ReceivedDate:   i.ReceivedDate,
		OverdueDays:    i.OverdueDays(now),
	}
}
