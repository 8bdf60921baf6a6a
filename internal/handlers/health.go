package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/opencircles/backend/internal/models"
	"github.com/opencircles/backend/internal/services"
)

// HealthHandler provides the health check endpoint.
type HealthHandler struct{}

func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// CheckHealth returns the health status of all subsystems.
func (h *HealthHandler) CheckHealth(c *gin.Context) {
	overall := "healthy"

	// Database check
	dbStatus := "ok"
	sqlDB, err := models.GetDB().DB()
	if err != nil {
		dbStatus = "error: " + err.Error()
		overall = "unhealthy"
	} else if err := sqlDB.Ping(); err != nil {
		dbStatus = "error: " + err.Error()
		overall = "unhealthy"
	}

	// Queue mode
	taskQueue := services.GetTaskQueue()
	queueMode := "sync"
	if taskQueue != nil && taskQueue.IsAsync() {
		queueMode = "async (Redis)"
	}

	// Pending transfer requests
	var pendingTransfers int64
	models.GetDB().Model(&models.TransferRequest{}).
		Where("status = ?", models.TransferStatusPending).
		Count(&pendingTransfers)

	c.JSON(200, gin.H{
		"status":  overall,
		"service": "opencircles",
		"components": gin.H{
			"database":          dbStatus,
			"queue_mode":        queueMode,
			"pending_transfers": pendingTransfers,
		},
	})
}
