package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/gzip"
	_ "github.com/joho/godotenv/autoload"

	"github.com/dmejia/cobranza-api/internal/config"
	"github.com/dmejia/cobranza-api/internal/database"
	"github.com/dmejia/cobranza-api/internal/handlers"
	"github.com/dmejia/cobranza-api/internal/jobs"
	"github.com/dmejia/cobranza-api/internal/middleware"
	"github.com/dmejia/cobranza-api/internal/repository"
	"github.com/dmejia/cobranza-api/internal/services"
	"github.com/dmejia/cobranza-api/internal/storage"
	"github.com/dmejia/cobranza-api/pkg/logger"

	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Setup(cfg.Environment)

	// Initialize Sentry when DSN is configured
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			TracesSampleRate: 0.2,
			Environment:      cfg.Environment,
		}); err != nil {
			logger.Error("Sentry initialization failed", "error", err)
		} else {
			logger.Info("Sentry initialized")
		}
	}

	// Set Gin mode
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Connect to database
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	logger.Info("Connected to database")

	// Open the durable offline queue
	queueDB, err := database.OpenQueue(cfg.QueuePath)
	if err != nil {
		logger.Error("Failed to open offline queue", "error", err)
		os.Exit(1)
	}
	logger.Info("Opened offline queue", "path", cfg.QueuePath)

	// Initialize storage
	store, err := storage.NewLocalStorage(cfg.StoragePath)
	if err != nil {
		logger.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	logger.Info("Initialized local storage")

	// Initialize repositories
	repos := repository.NewRepositories(db, queueDB)

	// Initialize background worker
	worker := jobs.NewWorker(cfg.WorkerCount)
	logger.Info("Started background worker", "goroutines", cfg.WorkerCount)

	// Initialize services
	svcs := services.NewServices(repos, worker, store, cfg, db)

	// Schedule recurring jobs
	scheduleJobs(worker, svcs, cfg)

	// Initialize handlers
	h := handlers.NewHandlers(svcs, store)

	// Setup router
	router := setupRouter(h, cfg)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	// Create context with timeout for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown HTTP server
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	// Shutdown background worker
	worker.Shutdown()
	logger.Info("Background worker stopped")

	// Flush Sentry events before exit
	if cfg.SentryDSN != "" {
		sentry.Flush(5 * time.Second)
	}

	logger.Info("Server exited gracefully")
}

func setupRouter(h *handlers.Handlers, cfg *config.Config) *gin.Engine {
	router := gin.New()

	// Global middleware
	if cfg.SentryDSN != "" {
		router.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORS(cfg.AllowedOrigins))
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Health check (public)
		v1.GET("/health", h.Health.Index)

		// Authentication (public)
		auth := v1.Group("/auth")
		{
			auth.POST("/login", h.Auth.Login)
			auth.POST("/refresh", h.Auth.Refresh)
			auth.POST("/logout", h.Auth.Logout)
		}

		// Protected routes (requires authentication)
		protected := v1.Group("")
		protected.Use(middleware.Auth(cfg.JWTSecret))
		{
			// Manager-only routes
			manager := protected.Group("")
			manager.Use(middleware.RequireManager())
			{
				// User management
				manager.GET("/users", h.User.Index)
				manager.POST("/users", h.User.Create)
				manager.DELETE("/users/:user_id", h.User.Delete)
				manager.PUT("/users/:user_id/toggle_status", h.User.ToggleStatus)

				// Queue administration: a manager may drop abandoned work
				manager.DELETE("/sync/queue", h.Sync.Clear)

				// Audit trail
				manager.GET("/audits", h.Audit.Index)

				// Worker status
				manager.GET("/jobs/status", h.Job.Status)
			}

			// Profile access: manager or the profile owner
			protected.GET("/users/:user_id", middleware.RequireManagerOrOwner(), h.User.Show)
			protected.PUT("/users/:user_id", middleware.RequireManagerOrOwner(), h.User.Update)
			protected.PATCH("/users/:user_id/change_password", h.User.ChangePassword)

			// Client views (any authenticated collector)
			clients := protected.Group("/clients/:document")
			{
				clients.GET("/balance", h.Client.Balance)
				clients.GET("/installments", h.Client.Installments)
				clients.GET("/payments", h.Client.Payments)

				// Distribution pipeline
				clients.POST("/distribution/preview", h.Payment.Preview)
				clients.POST("/distribution", h.Payment.Distribute)
			}

			// Installments across clients
			protected.GET("/installments", h.Payment.Installments)

			// Payment records
			protected.GET("/payments", h.Payment.Index)
			protected.GET("/payments/:payment_id", h.Payment.Show)
			protected.POST("/payments/:payment_id/receipt", h.Payment.UploadReceipt)
			protected.GET("/payments/:payment_id/receipt", h.Payment.DownloadReceipt)

			// Offline replay queue
			protected.GET("/sync/queue", h.Sync.Index)
			protected.POST("/sync/process", h.Sync.Process)

			// Notifications (users manage their own)
			// Static route first so "mark_all_as_read" is not matched as :notification_id
			notifications := protected.Group("/notifications")
			{
				notifications.GET("", h.Notification.Index)
				notifications.POST("/mark_all_as_read", h.Notification.MarkAllAsRead)
				notifications.PUT("/:notification_id", h.Notification.Update)
				notifications.GET("/:notification_id", h.Notification.Show)
				notifications.DELETE("/:notification_id", h.Notification.Delete)
			}
		}
	}

	return router
}

func scheduleJobs(worker *jobs.Worker, svcs *services.Services, cfg *config.Config) {
	// Drain the offline queue right after startup, then on the sync interval
	worker.ScheduleEveryImmediate(time.Duration(cfg.SyncIntervalMinutes)*time.Minute, func(ctx context.Context) error {
		logger.Info("[Job] Processing offline queue...")
		return svcs.Sync.ProcessQueue(ctx)
	})

	// Daily overdue installments summary for managers
	worker.ScheduleEvery(24*time.Hour, func(ctx context.Context) error {
		logger.Info("[Job] Checking overdue installments...")
		return svcs.Payment.NotifyOverdueInstallments(ctx)
	})

	logger.Info("Scheduled recurring jobs")
}
