package repository

import (
	"gorm.io/gorm"
)

// Repositories holds all repository instances
type Repositories struct {
	User          UserRepository
	Installment   InstallmentRepository
	PaymentRecord PaymentRecordRepository
	Notification  NotificationRepository
	RefreshToken  RefreshTokenRepository
	Queue         QueueRepository
}

// NewRepositories creates all repository instances. The queue repository
// lives on a separate store (local sqlite) from the main database.
func NewRepositories(db *gorm.DB, queueDB *gorm.DB) *Repositories {
	return &Repositories{
		User:          NewUserRepository(db),
		Installment:   NewInstallmentRepository(db),
		PaymentRecord: NewPaymentRecordRepository(db),
		Notification:  NewNotificationRepository(db),
		RefreshToken:  NewRefreshTokenRepository(db),
		Queue:         NewQueueRepository(queueDB),
	}
}
