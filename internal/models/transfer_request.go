package models

import (
	"time"
)

// TransferStatus defines lifecycle states for circle transfer requests.
type TransferStatus string

const (
	// TransferStatusPending indicates the request is awaiting review.
	TransferStatusPending TransferStatus = "pending"
	// TransferStatusApproved indicates the target facilitator accepted the request.
	TransferStatusApproved TransferStatus = "approved"
	// TransferStatusDenied indicates the target facilitator declined the request.
	TransferStatusDenied TransferStatus = "denied"
	// TransferStatusCancelled indicates the requester withdrew the request.
	TransferStatusCancelled TransferStatus = "cancelled"
)

// IsTerminal reports whether no further transitions may leave s. Every status
// except pending is terminal.
func (s TransferStatus) IsTerminal() bool {
	return s != TransferStatusPending
}

// TransferReasonMaxLen bounds the free-text reason a requester may attach.
const TransferReasonMaxLen = 500

// TransferRequest is a member's proposal to move from their current circle to
// a different target circle, subject to the target facilitator's review.
// Requests are never deleted; approve, deny and cancel are terminal.
type TransferRequest struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	RequesterID    uint           `gorm:"not null;index" json:"requester_id"`
	Requester      *User          `gorm:"foreignKey:RequesterID" json:"requester,omitempty"`
	SourceCircleID uint           `gorm:"not null;index" json:"source_circle_id"`
	SourceCircle   *Circle        `gorm:"foreignKey:SourceCircleID" json:"source_circle,omitempty"`
	TargetCircleID uint           `gorm:"not null;index" json:"target_circle_id"`
	TargetCircle   *Circle        `gorm:"foreignKey:TargetCircleID" json:"target_circle,omitempty"`
	Reason         string         `gorm:"size:500" json:"reason"`
	Status         TransferStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	ReviewedByID   *uint          `json:"reviewed_by_id,omitempty"`
	ReviewedBy     *User          `gorm:"foreignKey:ReviewedByID" json:"reviewed_by,omitempty"`
	ReviewedAt     *time.Time     `json:"reviewed_at,omitempty"`
	ReviewNotes    string         `gorm:"type:text" json:"review_notes"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func (TransferRequest) TableName() string { return "transfer_requests" }
