package models

import (
	"strings"
	"time"
)

// Payment method constants
const (
	PaymentMethodCash     = "cash"
	PaymentMethodTransfer = "transfer"
	PaymentMethodCheck    = "check"
	PaymentMethodCard     = "card"
)

// DistributionDetail records how much of a payment landed on one
// installment, in the order the allocation was computed.
type DistributionDetail struct {
	InstallmentID     uint    `json:"installment_id"`
	SaleNumber        string  `json:"sale_number"`
	OriginalAmount    float64 `json:"original_amount"`
	AppliedAmount     float64 `json:"applied_amount"`
	InstallmentStatus string  `json:"installment_status"`
}

// PaymentRecord is the append-only audit trail for a confirmed
// distribution. It is created once and never mutated.
type PaymentRecord struct {
	ID                  uint                 `gorm:"primaryKey" json:"id"`
	SaleNumber          *string              `gorm:"index" json:"sale_number"`
	ClientDocument      string               `gorm:"not null;index" json:"client_document"`
	PaymentAmount       float64              `gorm:"type:decimal(15,2);not null" json:"payment_amount"`
	DistributedAmount   float64              `gorm:"type:decimal(15,2);not null" json:"distributed_amount"`
	UnappliedAmount     float64              `gorm:"type:decimal(15,2);default:0" json:"unapplied_amount"`
	PaymentDate         time.Time            `gorm:"type:date;not null;index" json:"payment_date"`
	PaymentMethod       string               `gorm:"default:cash" json:"payment_method"`
	Notes               *string              `gorm:"type:text" json:"notes"`
	CollectorID         uint                 `gorm:"not null;index" json:"collector_id"`
	DistributionDetails []DistributionDetail `gorm:"serializer:json" json:"distribution_details"`
	ReceiptPath         *string              `json:"-"`
	CreatedAt           time.Time            `gorm:"index" json:"created_at"`
	UpdatedAt           time.Time            `json:"updated_at"`

	// Associations
	Collector User `gorm:"foreignKey:CollectorID" json:"collector,omitempty"`
}

// TableName specifies the table name for PaymentRecord
func (PaymentRecord) TableName() string {
	return "payment_records"
}

// PaymentRecordResponse is the JSON response format for payment records
type PaymentRecordResponse struct {
	ID                  uint                 `json:"id"`
	SaleNumber          *string              `json:"sale_number"`
	ClientDocument      string               `json:"client_document"`
	PaymentAmount       float64              `json:"payment_amount"`
	DistributedAmount   float64              `json:"distributed_amount"`
	UnappliedAmount     float64              `json:"unapplied_amount"`
	PaymentDate         time.Time            `json:"payment_date"`
	PaymentMethod       string               `json:"payment_method"`
	Notes               *string              `json:"notes"`
	CollectorID         uint                 `json:"collector_id"`
	CollectorName       string               `json:"collector_name,omitempty"`
	DistributionDetails []DistributionDetail `json:"distribution_details"`
	HasReceipt          bool                 `json:"has_receipt"`
	IsPDF               bool                 `json:"is_pdf"`
	CreatedAt           time.Time            `json:"created_at"`
}

// ToResponse converts PaymentRecord to PaymentRecordResponse
func (p *PaymentRecord) ToResponse() PaymentRecordResponse {
	resp := PaymentRecordResponse{
		ID:                  p.ID,
		SaleNumber:          p.SaleNumber,
		ClientDocument:      p.ClientDocument,
		PaymentAmount:       p.PaymentAmount,
		DistributedAmount:   p.DistributedAmount,
		UnappliedAmount:     p.UnappliedAmount,
		PaymentDate:         p.PaymentDate,
		PaymentMethod:       p.PaymentMethod,
		Notes:               p.Notes,
		CollectorID:         p.CollectorID,
		DistributionDetails: p.DistributionDetails,
		HasReceipt:          p.ReceiptPath != nil && *p.ReceiptPath != "",
		IsPDF:               p.ReceiptPath != nil && strings.HasSuffix(strings.ToLower(*p.ReceiptPath), ".pdf"),
		CreatedAt:           p.CreatedAt,
	}

	if p.Collector.ID != 0 {
		resp.CollectorName = p.Collector.FullName
	}

	return resp
}
