package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/opencircles/backend/internal/domain"
	"github.com/opencircles/backend/internal/models"
)

// MembershipService is the ledger of user↔circle memberships. It owns the
// check-then-act pair for capacity: the circle row is locked, occupancy is
// counted and the insert happens inside one transaction, so two racing adds
// against the same circle cannot both see room available. The user row is
// locked as well, which orders racing adds for the same user into different
// circles.
type MembershipService struct {
	db      *gorm.DB
	circles *CircleService
	audit   *AuditService
}

func NewMembershipService(db *gorm.DB, circles *CircleService, audit *AuditService) *MembershipService {
	return &MembershipService{db: db, circles: circles, audit: audit}
}

// AddMember adds user to circle with the given initial payment status.
// Fails with the capacity error when the circle cannot accept another member
// and with the duplicate error when the user already holds an active
// membership anywhere. A previously deactivated row for the same pair is
// reactivated rather than duplicated, keeping one row per (circle, user).
func (s *MembershipService) AddMember(circleID, userID, actorID uint, paymentStatus models.PaymentStatus) (*models.Membership, error) {
	if paymentStatus == "" {
		paymentStatus = models.PaymentStatusPending
	}
	if !paymentStatus.IsValid() {
		return nil, fmt.Errorf("%w: unknown payment status %q", domain.ErrValidation, paymentStatus)
	}

	var membership *models.Membership
	err := s.db.Transaction(func(tx *gorm.DB) error {
		m, err := s.addMemberLocked(tx, circleID, userID, paymentStatus)
		if err != nil {
			return err
		}
		membership = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(&actorID, "membership.add", fmt.Sprintf("circle:%d user:%d", circleID, userID), map[string]interface{}{
		"payment_status": paymentStatus,
	})
	return membership, nil
}

// addMemberLocked performs the capacity-gated insert inside the caller's
// transaction. The transfer orchestrator calls this directly so both sides of
// a transfer share one atomic unit of work.
func (s *MembershipService) addMemberLocked(tx *gorm.DB, circleID, userID uint, paymentStatus models.PaymentStatus) (*models.Membership, error) {
	var circle models.Circle
	if err := lockForUpdate(tx).First(&circle, circleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: circle %d", domain.ErrNotFound, circleID)
		}
		return nil, infraErr("get circle", err)
	}

	ok, err := s.circles.canAcceptLocked(tx, &circle)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: circle %d cannot accept more members", domain.ErrCapacityExceeded, circleID)
	}

	// Two concurrent adds for the same user into different circles lock
	// disjoint circle rows, so the circle lock alone cannot order them. The
	// user row is the shared point: both transactions queue here, and the
	// second one sees the first one's membership. Lock order is always
	// circle(s) first, then user.
	var user models.User
	if err := lockForUpdate(tx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user %d", domain.ErrNotFound, userID)
		}
		return nil, infraErr("get user", err)
	}

	// One active membership per user, anywhere.
	var activeElsewhere int64
	if err := tx.Model(&models.Membership{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Count(&activeElsewhere).Error; err != nil {
		return nil, infraErr("count user memberships", err)
	}
	if activeElsewhere > 0 {
		return nil, fmt.Errorf("%w: user %d already has an active membership", domain.ErrDuplicateMembership, userID)
	}

	now := time.Now()

	var existing models.Membership
	err = tx.Where("circle_id = ? AND user_id = ?", circleID, userID).First(&existing).Error
	switch {
	case err == nil:
		// Deactivated row from a previous stint: reactivate it.
		updates := map[string]interface{}{
			"is_active":      true,
			"payment_status": paymentStatus,
			"joined_at":      now,
		}
		if err := tx.Model(&models.Membership{}).
			Where("circle_id = ? AND user_id = ?", circleID, userID).
			Updates(updates).Error; err != nil {
			return nil, infraErr("reactivate membership", err)
		}
		existing.IsActive = true
		existing.PaymentStatus = paymentStatus
		existing.JoinedAt = now
		return &existing, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		membership := &models.Membership{
			CircleID:        circleID,
			UserID:          userID,
			IsActive:        true,
			PaymentStatus:   paymentStatus,
			JoinedAt:        now,
			SubscriptionRef: uuid.NewString(),
		}
		if err := tx.Create(membership).Error; err != nil {
			return nil, infraErr("create membership", err)
		}
		return membership, nil
	default:
		return nil, infraErr("get membership", err)
	}
}

// RemoveMember deactivates the user's active membership in circle. Returns
// false when no active row exists; that is an idempotent no-op, not an error.
func (s *MembershipService) RemoveMember(circleID, userID, actorID uint) (bool, error) {
	var removed bool
	err := s.db.Transaction(func(tx *gorm.DB) error {
		ok, err := s.removeMemberLocked(tx, circleID, userID)
		if err != nil {
			return err
		}
		removed = ok
		return nil
	})
	if err != nil {
		return false, err
	}

	if removed {
		s.audit.Record(&actorID, "membership.remove", fmt.Sprintf("circle:%d user:%d", circleID, userID), nil)
	}
	return removed, nil
}

// removeMemberLocked deactivates inside the caller's transaction. A current
// payment status is downgraded to paused in the same update: an inactive
// membership must never read as paid up.
func (s *MembershipService) removeMemberLocked(tx *gorm.DB, circleID, userID uint) (bool, error) {
	var membership models.Membership
	err := tx.Where("circle_id = ? AND user_id = ? AND is_active = ?", circleID, userID, true).
		First(&membership).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, infraErr("get membership", err)
	}

	updates := map[string]interface{}{"is_active": false}
	if membership.PaymentStatus == models.PaymentStatusCurrent {
		updates["payment_status"] = models.PaymentStatusPaused
	}
	if err := tx.Model(&models.Membership{}).
		Where("circle_id = ? AND user_id = ?", circleID, userID).
		Updates(updates).Error; err != nil {
		return false, infraErr("deactivate membership", err)
	}
	return true, nil
}

// SetPaymentStatus updates the payment sub-state. Setting current on an
// inactive membership violates the consistency rule and is rejected.
func (s *MembershipService) SetPaymentStatus(circleID, userID, actorID uint, status models.PaymentStatus, nextDue *time.Time) (*models.Membership, error) {
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: unknown payment status %q", domain.ErrValidation, status)
	}
	if nextDue != nil && nextDue.Before(time.Now()) {
		return nil, fmt.Errorf("%w: next_payment_due must not be in the past", domain.ErrValidation)
	}

	var membership models.Membership
	err := s.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Where("circle_id = ? AND user_id = ?", circleID, userID).First(&membership).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: membership circle:%d user:%d", domain.ErrNotFound, circleID, userID)
		}
		if err != nil {
			return infraErr("get membership", err)
		}

		if !membership.IsActive && status == models.PaymentStatusCurrent {
			return fmt.Errorf("%w: inactive membership cannot be marked current", domain.ErrValidation)
		}

		updates := map[string]interface{}{"payment_status": status}
		if nextDue != nil {
			updates["next_payment_due"] = nextDue
		}
		if err := tx.Model(&models.Membership{}).
			Where("circle_id = ? AND user_id = ?", circleID, userID).
			Updates(updates).Error; err != nil {
			return infraErr("update payment status", err)
		}
		membership.PaymentStatus = status
		if nextDue != nil {
			membership.NextPaymentDue = nextDue
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(&actorID, "membership.payment", fmt.Sprintf("circle:%d user:%d", circleID, userID), map[string]interface{}{
		"payment_status": status,
	})
	return &membership, nil
}

// ListByCircle returns a circle's memberships, active rows first.
func (s *MembershipService) ListByCircle(circleID uint, activeOnly bool) ([]models.Membership, error) {
	query := s.db.Where("circle_id = ?", circleID)
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}

	var memberships []models.Membership
	if err := query.Preload("User").Order("is_active DESC, joined_at ASC").Find(&memberships).Error; err != nil {
		return nil, infraErr("list memberships", err)
	}
	return memberships, nil
}

// ActiveMembership returns the user's single active membership, if any.
func (s *MembershipService) ActiveMembership(userID uint) (*models.Membership, error) {
	var membership models.Membership
	err := s.db.Where("user_id = ? AND is_active = ?", userID, true).First(&membership).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, infraErr("get active membership", err)
	}
	return &membership, nil
}

// SweepOverduePayments marks every current membership whose due date has
// passed as overdue. Called by the scheduler; returns the number of rows
// flipped.
func (s *MembershipService) SweepOverduePayments(now time.Time) (int64, error) {
	result := s.db.Model(&models.Membership{}).
		Where("payment_status = ? AND is_active = ? AND next_payment_due IS NOT NULL AND next_payment_due < ?",
			models.PaymentStatusCurrent, true, now).
		Update("payment_status", models.PaymentStatusOverdue)
	if result.Error != nil {
		return 0, infraErr("sweep overdue payments", result.Error)
	}
	if result.RowsAffected > 0 {
		s.audit.Record(nil, "membership.sweep_overdue", "memberships", map[string]interface{}{
			"count": result.RowsAffected,
		})
	}
	return result.RowsAffected, nil
}
