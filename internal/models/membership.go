package models

import (
	"time"
)

// PaymentStatus defines the payment sub-state of a membership.
type PaymentStatus string

const (
	// PaymentStatusPending indicates the first payment has not been made yet.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusCurrent indicates the member is paid up.
	PaymentStatusCurrent PaymentStatus = "current"
	// PaymentStatusOverdue indicates a missed payment.
	PaymentStatusOverdue PaymentStatus = "overdue"
	// PaymentStatusPaused indicates payments are suspended.
	PaymentStatusPaused PaymentStatus = "paused"
)

// IsValid reports whether s is a known payment status.
func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusCurrent, PaymentStatusOverdue, PaymentStatusPaused:
		return true
	}
	return false
}

// Membership maps a user to a circle. Exactly one row exists per
// (circle_id, user_id) pair; removal deactivates the row instead of deleting
// it so history survives for statistics and audit.
type Membership struct {
	CircleID        uint          `gorm:"primaryKey;autoIncrement:false" json:"circle_id"`
	Circle          *Circle       `gorm:"foreignKey:CircleID" json:"circle,omitempty"`
	UserID          uint          `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	User            *User         `gorm:"foreignKey:UserID" json:"user,omitempty"`
	IsActive        bool          `gorm:"default:true;index" json:"is_active"`
	PaymentStatus   PaymentStatus `gorm:"type:varchar(20);not null;default:'pending'" json:"payment_status"`
	JoinedAt        time.Time     `json:"joined_at"`
	SubscriptionRef string        `gorm:"size:64" json:"subscription_ref,omitempty"`
	NextPaymentDue  *time.Time    `json:"next_payment_due,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

func (Membership) TableName() string { return "memberships" }

// IsPaymentOverdue reports whether a current membership has slipped past its
// due date as of now.
func (m *Membership) IsPaymentOverdue(now time.Time) bool {
	if m.PaymentStatus != PaymentStatusCurrent || m.NextPaymentDue == nil {
		return false
	}
	return m.NextPaymentDue.Before(now)
}
