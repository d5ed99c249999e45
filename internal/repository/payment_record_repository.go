package repository

import (
	"context"
	"strings"

	"github.com/dmejia/cobranza-api/internal/models"
	"gorm.io/gorm"
)

// PaymentRecordRepository defines the interface for the payment audit trail.
// Records are append-only; there is no update or delete.
type PaymentRecordRepository interface {
	Create(ctx context.Context, record *models.PaymentRecord) error
	FindByID(ctx context.Context, id uint) (*models.PaymentRecord, error)
	FindByClient(ctx context.Context, clientDocument string) ([]models.PaymentRecord, error)
	List(ctx context.Context, query *ListQuery) ([]models.PaymentRecord, int64, error)
	SetReceiptPath(ctx context.Context, id uint, path string) error
}

type paymentRecordRepository struct {
	db *gorm.DB
}

// NewPaymentRecordRepository creates a new payment record repository
func NewPaymentRecordRepository(db *gorm.DB) PaymentRecordRepository {
	return &paymentRecordRepository{db: db}
}

func (r *paymentRecordRepository) Create(ctx context.Context, record *models.PaymentRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *paymentRecordRepository) FindByID(ctx context.Context, id uint) (*models.PaymentRecord, error) {
	var record models.PaymentRecord
	err := r.db.WithContext(ctx).
		Preload("Collector").
		First(&record, id).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *paymentRecordRepository) FindByClient(ctx context.Context, clientDocument string) ([]models.PaymentRecord, error) {
	var records []models.PaymentRecord
	err := r.db.WithContext(ctx).
		Preload("Collector").
		Where("client_document = ?", clientDocument).
		Order("payment_date DESC, created_at DESC").
		Find(&records).Error
	return records, err
}

func (r *paymentRecordRepository) List(ctx context.Context, query *ListQuery) ([]models.PaymentRecord, int64, error) {
	var records []models.PaymentRecord
	var total int64

	db := r.db.WithContext(ctx).Model(&models.PaymentRecord{})

	if query.Search != "" {
		search := "%" + query.Search + "%"
		db = db.Where("client_document ILIKE ? OR sale_number ILIKE ?", search, search)
	}

	if query.Filters["collector_id"] != "" {
		db = db.Where("collector_id = ?", query.Filters["collector_id"])
	}
	if query.Filters["client_document"] != "" {
		db = db.Where("client_document = ?", query.Filters["client_document"])
	}
	if query.Filters["payment_method"] != "" {
		db = db.Where("payment_method = ?", query.Filters["payment_method"])
	}
	if query.Filters["start_date"] != "" {
		db = db.Where("payment_date >= ?", query.Filters["start_date"])
	}
	if query.Filters["end_date"] != "" {
		db = db.Where("payment_date <= ?", query.Filters["end_date"])
	}

	db.Count(&total)

	if query.SortBy != "" {
		order := query.SortBy
		if strings.ToLower(query.SortDir) == "desc" {
			order += " DESC"
		}
		db = db.Order(order)
	} else {
		db = db.Order("payment_date DESC, created_at DESC")
	}

	if query.PerPage > 0 {
		db = db.Offset((query.Page - 1) * query.PerPage).Limit(query.PerPage)
	}

	err := db.Preload("Collector").Find(&records).Error
	return records, total, err
}

func (r *paymentRecordRepository) SetReceiptPath(ctx context.Context, id uint, path string) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentRecord{}).
		Where("id = ?", id).
		Update("receipt_path", path).Error
}
