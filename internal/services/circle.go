package services

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/opencircles/backend/internal/domain"
	"github.com/opencircles/backend/internal/models"
)

// CircleService manages circle lifecycle and is the single authority for
// capacity checks. Every mutating path that depends on occupancy must go
// through canAcceptLocked inside the same transaction as its mutation.
type CircleService struct {
	db    *gorm.DB
	audit *AuditService
}

func NewCircleService(db *gorm.DB, audit *AuditService) *CircleService {
	return &CircleService{db: db, audit: audit}
}

type CreateCircleRequest struct {
	Name        string `json:"name" binding:"required,max=120"`
	CapacityMin int    `json:"capacity_min" binding:"required"`
	CapacityMax int    `json:"capacity_max" binding:"required"`
}

type CircleListRequest struct {
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
	Status   string `form:"status"`
	Name     string `form:"name"`
}

type CircleListResponse struct {
	Total    int64           `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
	Items    []models.Circle `json:"items"`
}

// CircleDetail is a circle together with its derived occupancy.
type CircleDetail struct {
	models.Circle
	CurrentMemberCount int64 `json:"current_member_count"`
}

// Create creates a new circle in the forming state with the caller as facilitator.
func (s *CircleService) Create(facilitatorID uint, req *CreateCircleRequest) (*models.Circle, error) {
	if err := models.ValidateCapacityBounds(req.CapacityMin, req.CapacityMax); err != nil {
		return nil, err
	}

	circle := &models.Circle{
		Name:          req.Name,
		FacilitatorID: facilitatorID,
		CapacityMin:   req.CapacityMin,
		CapacityMax:   req.CapacityMax,
		Status:        models.CircleStatusForming,
		IsActive:      true,
	}
	if err := s.db.Create(circle).Error; err != nil {
		return nil, infraErr("create circle", err)
	}

	s.audit.Record(&facilitatorID, "circle.create", fmt.Sprintf("circle:%d", circle.ID), map[string]interface{}{
		"name":         circle.Name,
		"capacity_min": circle.CapacityMin,
		"capacity_max": circle.CapacityMax,
	})
	return circle, nil
}

// GetByID returns a circle with its current active-member count.
func (s *CircleService) GetByID(id uint) (*CircleDetail, error) {
	var circle models.Circle
	if err := s.db.First(&circle, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: circle %d", domain.ErrNotFound, id)
		}
		return nil, infraErr("get circle", err)
	}

	count, err := s.activeMemberCount(s.db, circle.ID)
	if err != nil {
		return nil, err
	}
	return &CircleDetail{Circle: circle, CurrentMemberCount: count}, nil
}

// List returns paginated circles.
func (s *CircleService) List(req *CircleListRequest) (*CircleListResponse, error) {
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.PageSize <= 0 {
		req.PageSize = 20
	}

	query := s.db.Model(&models.Circle{})
	if req.Status != "" {
		query = query.Where("status = ?", req.Status)
	}
	if req.Name != "" {
		query = query.Where("name LIKE ?", "%"+req.Name+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, infraErr("count circles", err)
	}

	var circles []models.Circle
	offset := (req.Page - 1) * req.PageSize
	if err := query.Offset(offset).Limit(req.PageSize).Order("created_at DESC").Find(&circles).Error; err != nil {
		return nil, infraErr("list circles", err)
	}

	return &CircleListResponse{
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Items:    circles,
	}, nil
}

// TransitionStatus moves a circle along one of the allowed status edges.
// Only the facilitator (or an admin acting through the handler layer) may
// transition a circle; closing forces the active flag off.
func (s *CircleService) TransitionStatus(circleID, actorID uint, target models.CircleStatus) (*models.Circle, error) {
	var circle models.Circle

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).First(&circle, circleID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: circle %d", domain.ErrNotFound, circleID)
			}
			return infraErr("get circle", err)
		}

		if circle.FacilitatorID != actorID {
			return fmt.Errorf("%w: only the facilitator may change circle status", domain.ErrPermissionDenied)
		}

		if !circle.Status.CanTransitionTo(target) {
			return fmt.Errorf("%w: circle cannot move from %s to %s", domain.ErrInvalidStateTransition, circle.Status, target)
		}

		updates := map[string]interface{}{"status": target}
		if target == models.CircleStatusClosed {
			updates["is_active"] = false
		}
		if err := tx.Model(&circle).Updates(updates).Error; err != nil {
			return infraErr("update circle status", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(&actorID, "circle.transition", fmt.Sprintf("circle:%d", circleID), map[string]interface{}{
		"status": target,
	})
	return &circle, nil
}

// activeMemberCount counts active memberships through the given handle so the
// caller controls the transaction scope.
func (s *CircleService) activeMemberCount(tx *gorm.DB, circleID uint) (int64, error) {
	var count int64
	err := tx.Model(&models.Membership{}).
		Where("circle_id = ? AND is_active = ?", circleID, true).
		Count(&count).Error
	if err != nil {
		return 0, infraErr("count memberships", err)
	}
	return count, nil
}

// canAcceptLocked answers "can this circle take one more member right now"
// for a circle row the caller has already locked in tx. The count runs in the
// same transaction, so the answer stays valid until commit.
func (s *CircleService) canAcceptLocked(tx *gorm.DB, circle *models.Circle) (bool, error) {
	count, err := s.activeMemberCount(tx, circle.ID)
	if err != nil {
		return false, err
	}
	return circle.CanAcceptMember(count), nil
}
