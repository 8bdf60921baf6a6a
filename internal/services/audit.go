package services

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/opencircles/backend/internal/models"
	"github.com/opencircles/backend/pkg/logger"
)

// AuditService appends audit events after state transitions. Writes are
// best-effort: a failed audit insert is logged and never surfaces to the
// caller, so it cannot block or roll back the transition it describes.
type AuditService struct {
	db *gorm.DB
}

func NewAuditService(db *gorm.DB) *AuditService {
	return &AuditService{db: db}
}

// Record appends one audit event. detail is marshaled to JSON; a nil actor
// means the system itself (schedulers, bootstrap).
func (s *AuditService) Record(actorID *uint, action, subject string, detail interface{}) {
	s.RecordHTTP(actorID, action, subject, "", "", detail)
}

// RecordHTTP is Record with request metadata attached.
func (s *AuditService) RecordHTTP(actorID *uint, action, subject, ip, userAgent string, detail interface{}) {
	if s == nil || s.db == nil {
		return
	}

	var detailStr string
	if detail != nil {
		if b, err := json.Marshal(detail); err == nil {
			detailStr = string(b)
		}
	}

	event := &models.AuditEvent{
		ID:        uuid.NewString(),
		ActorID:   actorID,
		Action:    action,
		Subject:   subject,
		IP:        ip,
		UserAgent: userAgent,
		Detail:    detailStr,
		CreatedAt: time.Now(),
	}
	if err := s.db.Create(event).Error; err != nil {
		logger.Warn().Err(err).Str("action", action).Str("subject", subject).Msg("audit write failed")
	}
}

// Cleanup deletes audit events older than retentionDays. Returns the number
// of rows removed.
func (s *AuditService) Cleanup(retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	result := s.db.Where("created_at < ?", cutoff).Delete(&models.AuditEvent{})
	if result.Error != nil {
		return 0, infraErr("audit cleanup", result.Error)
	}
	return result.RowsAffected, nil
}
