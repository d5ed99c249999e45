package repository

import (
	"context"

	"github.com/dmejia/cobranza-api/internal/models"
	"gorm.io/gorm"
)

// QueueRepository is the durable store behind the offline action queue.
// The host application owns the store (an embedded sqlite file on the
// collector device); the sync service only needs list, upsert and remove.
type QueueRepository interface {
	List(ctx context.Context) ([]models.OfflineAction, error)
	Upsert(ctx context.Context, action *models.OfflineAction) error
	Remove(ctx context.Context, id string) error
	Clear(ctx context.Context) error
	Count(ctx context.Context) (int64, error)
}

type queueRepository struct {
	db *gorm.DB
}

// NewQueueRepository creates a queue repository over the sqlite queue store
func NewQueueRepository(db *gorm.DB) QueueRepository {
	return &queueRepository{db: db}
}

// List returns queued actions oldest first, so replay preserves the order
// the collector entered them.
func (r *queueRepository) List(ctx context.Context) ([]models.OfflineAction, error) {
	var actions []models.OfflineAction
	err := r.db.WithContext(ctx).
		Order("enqueued_at ASC, id ASC").
		Find(&actions).Error
	return actions, err
}

func (r *queueRepository) Upsert(ctx context.Context, action *models.OfflineAction) error {
	return r.db.WithContext(ctx).Save(action).Error
}

func (r *queueRepository) Remove(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&models.OfflineAction{}).Error
}

func (r *queueRepository) Clear(ctx context.Context) error {
	return r.db.WithContext(ctx).
		Where("1 = 1").
		Delete(&models.OfflineAction{}).Error
}

func (r *queueRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.OfflineAction{}).
		Count(&count).Error
	return count, err
}
