package services

import (
	"github.com/dmejia/cobranza-api/internal/config"
	"github.com/dmejia/cobranza-api/internal/jobs"
	"github.com/dmejia/cobranza-api/internal/repository"
	"github.com/dmejia/cobranza-api/internal/storage"
	"gorm.io/gorm"
)

// Services holds all service instances
type Services struct {
	Auth           *AuthService
	User           *UserService
	Balance        *BalanceService
	Distribution   *DistributionService
	Reconciliation *ReconciliationService
	Payment        *PaymentService
	Sync           *SyncService
	Notification   *NotificationService
	Audit          *AuditService
	Job            *JobService
}

// NewServices creates all service instances
func NewServices(repos *repository.Repositories, worker *jobs.Worker, storage *storage.LocalStorage, cfg *config.Config, db *gorm.DB) *Services {
	notificationSvc := NewNotificationService(repos.Notification, repos.User)
	auditSvc := NewAuditService(db)

	balanceSvc := NewBalanceService()
	distributionSvc := NewDistributionService(balanceSvc)
	reconciliationSvc := NewReconciliationService(repos.Installment, repos.PaymentRecord)
	syncSvc := NewSyncService(repos.Queue, repos.Installment, balanceSvc, distributionSvc, reconciliationSvc, notificationSvc, cfg.SyncMaxRetries)
	imageSvc := NewReceiptImageService()

	return &Services{
		Auth:           NewAuthService(repos.User, repos.RefreshToken, cfg),
		User:           NewUserService(repos.User, worker, notificationSvc, auditSvc),
		Balance:        balanceSvc,
		Distribution:   distributionSvc,
		Reconciliation: reconciliationSvc,
		Payment:        NewPaymentService(repos.Installment, repos.PaymentRecord, balanceSvc, distributionSvc, reconciliationSvc, syncSvc, notificationSvc, auditSvc, imageSvc, storage, worker),
		Sync:           syncSvc,
		Notification:   notificationSvc,
		Audit:          auditSvc,
		Job:            NewJobService(worker),
	}
}
