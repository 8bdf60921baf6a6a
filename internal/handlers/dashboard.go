package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/opencircles/backend/internal/services"
	"github.com/opencircles/backend/pkg/response"
)

type DashboardHandler struct {
	dashboard *services.DashboardService
}

func NewDashboardHandler(dashboard *services.DashboardService) *DashboardHandler {
	return &DashboardHandler{dashboard: dashboard}
}

// GetStats returns aggregate counts for the dashboard
// GET /api/dashboard/stats
func (h *DashboardHandler) GetStats(c *gin.Context) {
	stats, err := h.dashboard.GetStats()
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, stats)
}
