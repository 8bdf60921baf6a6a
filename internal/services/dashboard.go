package services

import (
	"gorm.io/gorm"

	"github.com/opencircles/backend/internal/models"
)

// DashboardService aggregates read-only counts for reporting. It holds no
// invariants of its own.
type DashboardService struct {
	db        *gorm.DB
	transfers *TransferService
}

func NewDashboardService(db *gorm.DB, transfers *TransferService) *DashboardService {
	return &DashboardService{db: db, transfers: transfers}
}

type CircleStatusCount struct {
	Status models.CircleStatus `json:"status"`
	Count  int64               `json:"count"`
}

type DashboardStats struct {
	CirclesByStatus   []CircleStatusCount `json:"circles_by_status"`
	TotalCircles      int64               `json:"total_circles"`
	ActiveMemberships int64               `json:"active_memberships"`
	OverduePayments   int64               `json:"overdue_payments"`
	Transfers         *TransferStatistics `json:"transfers"`
}

func (s *DashboardService) GetStats() (*DashboardStats, error) {
	stats := &DashboardStats{}

	err := s.db.Model(&models.Circle{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&stats.CirclesByStatus).Error
	if err != nil {
		return nil, infraErr("circle status counts", err)
	}
	for _, row := range stats.CirclesByStatus {
		stats.TotalCircles += row.Count
	}

	err = s.db.Model(&models.Membership{}).
		Where("is_active = ?", true).
		Count(&stats.ActiveMemberships).Error
	if err != nil {
		return nil, infraErr("active membership count", err)
	}

	err = s.db.Model(&models.Membership{}).
		Where("is_active = ? AND payment_status = ?", true, models.PaymentStatusOverdue).
		Count(&stats.OverduePayments).Error
	if err != nil {
		return nil, infraErr("overdue payment count", err)
	}

	transfers, err := s.transfers.Statistics()
	if err != nil {
		return nil, err
	}
	stats.Transfers = transfers

	return stats, nil
}
