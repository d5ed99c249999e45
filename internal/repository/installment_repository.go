package repository

import (
	"context"
	"time"

	"github.com/dmejia/cobranza-api/internal/models"
	"gorm.io/gorm"
)

// InstallmentRepository defines the interface for installment data access.
// Installments are imported by an external process; this API only reads them
// and applies reconciliation updates (received amount, status, received date).
type InstallmentRepository interface {
	FindByID(ctx context.Context, id uint) (*models.Installment, error)
	FindByClient(ctx context.Context, clientDocument string) ([]models.Installment, error)
	FindBySale(ctx context.Context, clientDocument, saleNumber string) ([]models.Installment, error)
	UpdateAmounts(ctx context.Context, id uint, newReceived float64, newStatus string, receivedDate time.Time) error
	List(ctx context.Context, query *ListQuery) ([]models.Installment, int64, error)
}

type installmentRepository struct {
	db *gorm.DB
}

// NewInstallmentRepository creates a new installment repository
func NewInstallmentRepository(db *gorm.DB) InstallmentRepository {
	return &installmentRepository{db: db}
}

func (r *installmentRepository) FindByID(ctx context.Context, id uint) (*models.Installment, error) {
	var installment models.Installment
	err := r.db.WithContext(ctx).First(&installment, id).Error
	if err != nil {
		return nil, err
	}
	return &installment, nil
}

// FindByClient returns the client's installments in stable sale order so
// distribution previews are deterministic across calls.
func (r *installmentRepository) FindByClient(ctx context.Context, clientDocument string) ([]models.Installment, error) {
	var installments []models.Installment
	err := r.db.WithContext(ctx).
		Where("client_document = ?", clientDocument).
		Order("sale_number ASC, due_date ASC, id ASC").
		Find(&installments).Error
	return installments, err
}

func (r *installmentRepository) FindBySale(ctx context.Context, clientDocument, saleNumber string) ([]models.Installment, error) {
	var installments []models.Installment
	err := r.db.WithContext(ctx).
		Where("client_document = ? AND sale_number = ?", clientDocument, saleNumber).
		Order("due_date ASC, id ASC").
		Find(&installments).Error
	return installments, err
}

// UpdateAmounts applies one reconciliation update. The three columns move
// together so a partially written row can never show a stale status.
func (r *installmentRepository) UpdateAmounts(ctx context.Context, id uint, newReceived float64, newStatus string, receivedDate time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Installment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"received_amount": newReceived,
			"status":          newStatus,
			"received_date":   receivedDate,
		}).Error
}

func (r *installmentRepository) List(ctx context.Context, query *ListQuery) ([]models.Installment, int64, error) {
	var installments []models.Installment
	var total int64

	db := r.db.WithContext(ctx).Model(&models.Installment{})

	if query.Search != "" {
		search := "%" + query.Search + "%"
		db = db.Where("client_name ILIKE ? OR client_document ILIKE ? OR sale_number ILIKE ?",
			search, search, search)
	}

	if query.Filters["status"] != "" {
		db = db.Where("status = ?", query.Filters["status"])
	}
	if query.Filters["client_document"] != "" {
		db = db.Where("client_document = ?", query.Filters["client_document"])
	}
	if query.Filters["sale_number"] != "" {
		db = db.Where("sale_number = ?", query.Filters["sale_number"])
	}
	if query.Filters["overdue"] == "true" {
		db = db.Where("status <> ? AND due_date < CURRENT_DATE", models.InstallmentStatusPaid)
	}

	db.Count(&total)

	if query.SortBy != "" {
		order := query.SortBy
		if query.SortDir == "desc" {
			order += " DESC"
		}
		db = db.Order(order)
	} else {
		db = db.Order("due_date ASC, id ASC")
	}

	if query.PerPage > 0 {
		db = db.Offset((query.Page - 1) * query.PerPage).Limit(query.PerPage)
	}

	err := db.Find(&installments).Error
	return installments, total, err
}
