package models

import "time"

// AuditEvent is an append-only record of a state transition: who did what to
// which entity, and when. Events are written best-effort after the transition
// commits and are never updated or deleted except by retention cleanup.
type AuditEvent struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"` // UUID
	ActorID   *uint     `gorm:"index" json:"actor_id"`
	Action    string    `gorm:"size:100;index" json:"action"`
	Subject   string    `gorm:"size:200;index" json:"subject"`
	IP        string    `gorm:"size:50" json:"ip"`
	UserAgent string    `gorm:"size:500" json:"user_agent"`
	Detail    string    `gorm:"type:text" json:"detail"` // JSON payload
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (AuditEvent) TableName() string { return "audit_events" }
