package services

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/opencircles/backend/internal/domain"
	"github.com/opencircles/backend/internal/models"
)

// TransferService implements the transfer-request state machine
// (pending → approved/denied/cancelled, all terminal) and the orchestrator
// that executes an approved transfer across both circles atomically.
type TransferService struct {
	db          *gorm.DB
	circles     *CircleService
	memberships *MembershipService
	audit       *AuditService
}

func NewTransferService(db *gorm.DB, circles *CircleService, memberships *MembershipService, audit *AuditService) *TransferService {
	return &TransferService{db: db, circles: circles, memberships: memberships, audit: audit}
}

type CreateTransferRequest struct {
	TargetCircleID uint   `json:"target_circle_id" binding:"required"`
	Reason         string `json:"reason"`
}

type ReviewTransferRequest struct {
	Notes string `json:"notes"`
}

// TransferStatistics is a single consistent snapshot of request counts.
type TransferStatistics struct {
	Pending   int64 `json:"pending"`
	Approved  int64 `json:"approved"`
	Denied    int64 `json:"denied"`
	Cancelled int64 `json:"cancelled"`
	Total     int64 `json:"total"`
}

// Create files a transfer request for requester toward the target circle.
// The requester's single active membership determines the source circle.
// The capacity check here is an optimistic pre-check only; the authoritative
// one runs at execution time.
func (s *TransferService) Create(requesterID uint, req *CreateTransferRequest) (*models.TransferRequest, error) {
	if len(req.Reason) > models.TransferReasonMaxLen {
		return nil, fmt.Errorf("%w: reason exceeds %d characters", domain.ErrValidation, models.TransferReasonMaxLen)
	}

	var request *models.TransferRequest
	err := s.db.Transaction(func(tx *gorm.DB) error {
		// Locking the requester's membership row serializes concurrent
		// creates by the same requester, so the duplicate-pending count
		// below cannot run twice before either insert commits.
		var current models.Membership
		err := lockForUpdate(tx).Where("user_id = ? AND is_active = ?", requesterID, true).First(&current).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: user %d", domain.ErrNotAMember, requesterID)
		}
		if err != nil {
			return infraErr("get active membership", err)
		}

		if current.CircleID == req.TargetCircleID {
			return fmt.Errorf("%w: already a member of circle %d", domain.ErrSameCircleTransfer, req.TargetCircleID)
		}

		var pendingCount int64
		if err := tx.Model(&models.TransferRequest{}).
			Where("requester_id = ? AND target_circle_id = ? AND status = ?",
				requesterID, req.TargetCircleID, models.TransferStatusPending).
			Count(&pendingCount).Error; err != nil {
			return infraErr("count pending requests", err)
		}
		if pendingCount > 0 {
			return fmt.Errorf("%w: requester %d already has a pending request for circle %d",
				domain.ErrDuplicatePendingRequest, requesterID, req.TargetCircleID)
		}

		var target models.Circle
		err = tx.First(&target, req.TargetCircleID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: circle %d", domain.ErrNotFound, req.TargetCircleID)
		}
		if err != nil {
			return infraErr("get target circle", err)
		}

		ok, err := s.circles.canAcceptLocked(tx, &target)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: circle %d cannot accept more members", domain.ErrCapacityExceeded, target.ID)
		}

		request = &models.TransferRequest{
			RequesterID:    requesterID,
			SourceCircleID: current.CircleID,
			TargetCircleID: req.TargetCircleID,
			Reason:         req.Reason,
			Status:         models.TransferStatusPending,
		}
		if err := tx.Create(request).Error; err != nil {
			return infraErr("create transfer request", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(&requesterID, "transfer.create", fmt.Sprintf("transfer:%d", request.ID), map[string]interface{}{
		"source_circle_id": request.SourceCircleID,
		"target_circle_id": request.TargetCircleID,
	})
	return request, nil
}

// Approve moves a pending request to approved. Only the target circle's
// facilitator may review.
func (s *TransferService) Approve(requestID, reviewerID uint, notes string) (*models.TransferRequest, error) {
	return s.review(requestID, reviewerID, notes, models.TransferStatusApproved, "transfer.approve")
}

// Deny moves a pending request to denied. Only the target circle's
// facilitator may review.
func (s *TransferService) Deny(requestID, reviewerID uint, notes string) (*models.TransferRequest, error) {
	return s.review(requestID, reviewerID, notes, models.TransferStatusDenied, "transfer.deny")
}

func (s *TransferService) review(requestID, reviewerID uint, notes string, target models.TransferStatus, auditAction string) (*models.TransferRequest, error) {
	var request models.TransferRequest

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).First(&request, requestID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: transfer request %d", domain.ErrNotFound, requestID)
			}
			return infraErr("get transfer request", err)
		}

		if request.Status != models.TransferStatusPending {
			return fmt.Errorf("%w: request %d is already %s", domain.ErrInvalidStateTransition, requestID, request.Status)
		}

		var targetCircle models.Circle
		if err := tx.First(&targetCircle, request.TargetCircleID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: circle %d", domain.ErrNotFound, request.TargetCircleID)
			}
			return infraErr("get target circle", err)
		}
		if targetCircle.FacilitatorID != reviewerID {
			return fmt.Errorf("%w: only the target circle's facilitator may review", domain.ErrPermissionDenied)
		}

		now := time.Now()
		updates := map[string]interface{}{
			"status":         target,
			"reviewed_by_id": reviewerID,
			"reviewed_at":    now,
			"review_notes":   notes,
		}
		if err := tx.Model(&request).Updates(updates).Error; err != nil {
			return infraErr("update transfer request", err)
		}
		request.Status = target
		request.ReviewedByID = &reviewerID
		request.ReviewedAt = &now
		request.ReviewNotes = notes
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(&reviewerID, auditAction, fmt.Sprintf("transfer:%d", requestID), map[string]interface{}{
		"status": request.Status,
	})
	return &request, nil
}

// Cancel withdraws a pending request. Only the requester may cancel.
func (s *TransferService) Cancel(requestID, callerID uint) (*models.TransferRequest, error) {
	var request models.TransferRequest

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).First(&request, requestID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: transfer request %d", domain.ErrNotFound, requestID)
			}
			return infraErr("get transfer request", err)
		}

		if request.RequesterID != callerID {
			return fmt.Errorf("%w: only the requester may cancel", domain.ErrPermissionDenied)
		}
		if request.Status != models.TransferStatusPending {
			return fmt.Errorf("%w: request %d is already %s", domain.ErrInvalidStateTransition, requestID, request.Status)
		}

		if err := tx.Model(&request).Update("status", models.TransferStatusCancelled).Error; err != nil {
			return infraErr("cancel transfer request", err)
		}
		request.Status = models.TransferStatusCancelled
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(&callerID, "transfer.cancel", fmt.Sprintf("transfer:%d", requestID), nil)
	return &request, nil
}

// ApproveAndExecute approves a pending request and then moves the membership.
// The approval commits first and stands on its own: if the target circle has
// filled up since the request was created, the execution fails with the
// capacity error while the request stays approved and the requester stays in
// the source circle. Execution deactivates the source membership and
// activates the target membership in one transaction; both circles are
// locked in ascending ID order so two opposing transfers between the same
// pair of circles cannot deadlock.
func (s *TransferService) ApproveAndExecute(requestID, reviewerID uint, notes string) (*models.TransferRequest, error) {
	request, err := s.Approve(requestID, reviewerID, notes)
	if err != nil {
		return nil, err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		// Deterministic lock order across both circles.
		ids := []uint{request.SourceCircleID, request.TargetCircleID}
		if ids[0] > ids[1] {
			ids[0], ids[1] = ids[1], ids[0]
		}
		var locked []models.Circle
		if err := lockForUpdate(tx).Where("id IN ?", ids).Order("id ASC").Find(&locked).Error; err != nil {
			return infraErr("lock circles", err)
		}
		if len(locked) != 2 {
			return fmt.Errorf("%w: circle pair %v", domain.ErrNotFound, ids)
		}

		var target *models.Circle
		for i := range locked {
			if locked[i].ID == request.TargetCircleID {
				target = &locked[i]
			}
		}

		// Authoritative capacity re-check; the optimistic one at request
		// creation may be long stale.
		ok, err := s.circles.canAcceptLocked(tx, target)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: circle %d filled up before execution", domain.ErrCapacityExceeded, target.ID)
		}

		if _, err := s.memberships.removeMemberLocked(tx, request.SourceCircleID, request.RequesterID); err != nil {
			return err
		}
		if _, err := s.memberships.addMemberLocked(tx, request.TargetCircleID, request.RequesterID, models.PaymentStatusPending); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		// Approval stands; the membership move did not happen.
		return request, err
	}

	s.audit.Record(&reviewerID, "transfer.execute", fmt.Sprintf("transfer:%d", request.ID), map[string]interface{}{
		"requester_id":     request.RequesterID,
		"source_circle_id": request.SourceCircleID,
		"target_circle_id": request.TargetCircleID,
	})
	return request, nil
}

// ListForRequester returns the user's requests, newest first.
func (s *TransferService) ListForRequester(userID uint) ([]models.TransferRequest, error) {
	var requests []models.TransferRequest
	err := s.db.Where("requester_id = ?", userID).
		Preload("SourceCircle").Preload("TargetCircle").
		Order("created_at DESC, id DESC").
		Find(&requests).Error
	if err != nil {
		return nil, infraErr("list requests", err)
	}
	return requests, nil
}

// ListPendingForFacilitator returns pending requests targeting circles the
// user facilitates, oldest first so the review queue is fair.
func (s *TransferService) ListPendingForFacilitator(facilitatorID uint) ([]models.TransferRequest, error) {
	var requests []models.TransferRequest
	err := s.db.
		Joins("JOIN circles ON circles.id = transfer_requests.target_circle_id").
		Where("circles.facilitator_id = ? AND transfer_requests.status = ?", facilitatorID, models.TransferStatusPending).
		Preload("Requester").Preload("SourceCircle").Preload("TargetCircle").
		Order("transfer_requests.created_at ASC, transfer_requests.id ASC").
		Find(&requests).Error
	if err != nil {
		return nil, infraErr("list pending requests", err)
	}
	return requests, nil
}

// Statistics returns request counts grouped by status from one query, so the
// snapshot is consistent even while writers race.
func (s *TransferService) Statistics() (*TransferStatistics, error) {
	var rows []struct {
		Status models.TransferStatus
		Count  int64
	}
	err := s.db.Model(&models.TransferRequest{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, infraErr("transfer statistics", err)
	}

	stats := &TransferStatistics{}
	for _, row := range rows {
		switch row.Status {
		case models.TransferStatusPending:
			stats.Pending = row.Count
		case models.TransferStatusApproved:
			stats.Approved = row.Count
		case models.TransferStatusDenied:
			stats.Denied = row.Count
		case models.TransferStatusCancelled:
			stats.Cancelled = row.Count
		}
		stats.Total += row.Count
	}
	return stats, nil
}
