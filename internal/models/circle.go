package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/opencircles/backend/internal/domain"
)

// CircleStatus defines the lifecycle state of a circle.
type CircleStatus string

const (
	// CircleStatusForming indicates a circle that is recruiting its first members.
	CircleStatusForming CircleStatus = "forming"
	// CircleStatusActive indicates a circle that is meeting regularly.
	CircleStatusActive CircleStatus = "active"
	// CircleStatusPaused indicates a circle temporarily on hold.
	CircleStatusPaused CircleStatus = "paused"
	// CircleStatusClosed indicates a permanently closed circle. Terminal.
	CircleStatusClosed CircleStatus = "closed"
)

// Circle capacity limits. Every circle holds between MinCapacity and
// MaxCapacity members inclusive.
const (
	MinCapacity = 2
	MaxCapacity = 10
)

// circleTransitions is the closed set of allowed status edges. Anything not
// listed here is an invalid transition.
var circleTransitions = map[CircleStatus][]CircleStatus{
	CircleStatusForming: {CircleStatusActive},
	CircleStatusActive:  {CircleStatusPaused, CircleStatusClosed},
	CircleStatusPaused:  {CircleStatusActive, CircleStatusClosed},
	CircleStatusClosed:  {},
}

// CanTransitionTo reports whether the status may move to target.
func (s CircleStatus) CanTransitionTo(target CircleStatus) bool {
	for _, next := range circleTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// Circle represents a capacity-bounded peer group led by one facilitator.
type Circle struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	Name          string         `gorm:"size:120;not null" json:"name"`
	FacilitatorID uint           `gorm:"not null;index" json:"facilitator_id"`
	Facilitator   *User          `gorm:"foreignKey:FacilitatorID" json:"facilitator,omitempty"`
	CapacityMin   int            `gorm:"not null" json:"capacity_min"`
	CapacityMax   int            `gorm:"not null" json:"capacity_max"`
	Status        CircleStatus   `gorm:"type:varchar(20);not null;default:'forming';index" json:"status"`
	IsActive      bool           `gorm:"default:true" json:"is_active"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Circle) TableName() string { return "circles" }

// ValidateCapacityBounds checks the [min, max] capacity pair.
func ValidateCapacityBounds(min, max int) error {
	if min < MinCapacity {
		return fmt.Errorf("%w: capacity_min must be at least %d, got %d", domain.ErrValidation, MinCapacity, min)
	}
	if max > MaxCapacity {
		return fmt.Errorf("%w: capacity_max must be at most %d, got %d", domain.ErrValidation, MaxCapacity, max)
	}
	if min > max {
		return fmt.Errorf("%w: capacity_min %d exceeds capacity_max %d", domain.ErrValidation, min, max)
	}
	return nil
}

// CanAcceptMember reports whether the circle can take one more active member
// given its current active-member count. Pure function of the arguments;
// callers must evaluate it under the same lock scope as the mutation it gates,
// since occupancy can change between check and use.
func (c *Circle) CanAcceptMember(activeMemberCount int64) bool {
	if !c.IsActive {
		return false
	}
	if c.Status != CircleStatusForming && c.Status != CircleStatusActive {
		return false
	}
	return activeMemberCount < int64(c.CapacityMax)
}
