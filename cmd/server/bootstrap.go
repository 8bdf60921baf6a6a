package main

import (
	"errors"

	"gorm.io/gorm"

	"github.com/opencircles/backend/internal/config"
	"github.com/opencircles/backend/internal/handlers"
	"github.com/opencircles/backend/internal/models"
	"github.com/opencircles/backend/internal/services"
	"github.com/opencircles/backend/internal/utils"
	"github.com/opencircles/backend/pkg/logger"
)

// appServices holds all initialized services and handlers needed by the application.
type appServices struct {
	auditService     *services.AuditService
	schedulerService *services.SchedulerService
	taskQueue        services.TaskQueue
	worker           *services.Worker

	authHandler      *handlers.AuthHandler
	circleHandler    *handlers.CircleHandler
	transferHandler  *handlers.TransferHandler
	dashboardHandler *handlers.DashboardHandler
	userHandler      *handlers.UserHandler
	healthHandler    *handlers.HealthHandler
}

// bootstrap initializes all application dependencies: database, services, schedulers.
func bootstrap(cfg *config.Config) *appServices {
	utils.SetJWTSecret(cfg.JWT.Secret)

	// Initialize database
	if err := models.InitDB(&cfg.Database); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Auto migrate database
	if err := models.AutoMigrate(); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}

	db := models.GetDB()

	// Seed default admin user
	if err := seedAdminUser(db); err != nil {
		logger.Warn().Err(err).Msg("Failed to seed admin user")
	}

	// Core services
	auditService := services.NewAuditService(db)
	circleService := services.NewCircleService(db, auditService)
	membershipService := services.NewMembershipService(db, circleService, auditService)
	transferService := services.NewTransferService(db, circleService, membershipService, auditService)
	dashboardService := services.NewDashboardService(db, transferService)

	// Notification pipeline: queue feeds the email processor
	emailService := services.NewEmailService(&cfg.SMTP)
	taskQueue := services.InitTaskQueue(cfg)
	if syncQueue, ok := taskQueue.(*services.SyncQueue); ok {
		syncQueue.SetProcessor(emailService.ProcessNotification)
	}

	// Start async worker if Redis is enabled
	var worker *services.Worker
	if cfg.Redis.Enabled {
		worker = services.InitWorker(&cfg.Redis)
		if worker != nil {
			worker.SetProcessor(emailService.ProcessNotification)
			worker.Start()
		}
	}

	// Recurring maintenance jobs
	schedulerService := services.NewSchedulerService(membershipService, auditService, &cfg.Audit)
	schedulerService.Start()

	return &appServices{
		auditService:     auditService,
		schedulerService: schedulerService,
		taskQueue:        taskQueue,
		worker:           worker,
		authHandler:      handlers.NewAuthHandler(db, cfg),
		circleHandler:    handlers.NewCircleHandler(circleService, membershipService),
		transferHandler:  handlers.NewTransferHandler(db, transferService),
		dashboardHandler: handlers.NewDashboardHandler(dashboardService),
		userHandler:      handlers.NewUserHandler(db),
		healthHandler:    handlers.NewHealthHandler(),
	}
}

// seedAdminUser creates the default admin account on first boot.
func seedAdminUser(db *gorm.DB) error {
	var existing models.User
	err := db.Where("username = ?", "admin").First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	hash, err := utils.HashPassword("admin123")
	if err != nil {
		return err
	}

	admin := models.User{
		Username: "admin",
		Password: hash,
		Email:    "admin@localhost",
		Nickname: "Administrator",
		Role:     "admin",
		AuthType: "local",
		IsActive: true,
	}
	if err := db.Create(&admin).Error; err != nil {
		return err
	}
	logger.Info().Msg("Default admin user created (username: admin)")
	return nil
}

// shutdown gracefully stops all services.
func (s *appServices) shutdown() {
	s.schedulerService.Stop()
	logger.Info().Msg("Schedulers stopped")

	if s.worker != nil {
		s.worker.Stop()
	}
	if s.taskQueue != nil {
		s.taskQueue.Close()
	}
}
