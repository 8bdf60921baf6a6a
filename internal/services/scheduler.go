package services

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/opencircles/backend/internal/config"
	"github.com/opencircles/backend/pkg/logger"
)

// SchedulerService runs the recurring maintenance jobs: the daily payment
// sweep that flips past-due current memberships to overdue, and the audit
// retention cleanup.
type SchedulerService struct {
	memberships   *MembershipService
	audit         *AuditService
	auditCfg      *config.AuditConfig
	cronScheduler *cron.Cron
}

func NewSchedulerService(memberships *MembershipService, audit *AuditService, auditCfg *config.AuditConfig) *SchedulerService {
	return &SchedulerService{
		memberships: memberships,
		audit:       audit,
		auditCfg:    auditCfg,
	}
}

func (s *SchedulerService) Start() {
	s.cronScheduler = cron.New()

	// Payment sweep shortly after midnight, cleanup in the quiet hours.
	if _, err := s.cronScheduler.AddFunc("10 0 * * *", s.runPaymentSweep); err != nil {
		logger.Errorf("[Scheduler] Failed to add payment sweep job: %v", err)
	}
	if _, err := s.cronScheduler.AddFunc("30 3 * * *", s.runAuditCleanup); err != nil {
		logger.Errorf("[Scheduler] Failed to add audit cleanup job: %v", err)
	}

	s.cronScheduler.Start()
	logger.Infof("[Scheduler] Started")
}

func (s *SchedulerService) Stop() {
	if s.cronScheduler != nil {
		s.cronScheduler.Stop()
	}
}

func (s *SchedulerService) runPaymentSweep() {
	count, err := s.memberships.SweepOverduePayments(time.Now())
	if err != nil {
		logger.Errorf("[Scheduler] Payment sweep failed: %v", err)
		return
	}
	logger.Infof("[Scheduler] Payment sweep marked %d memberships overdue", count)
}

func (s *SchedulerService) runAuditCleanup() {
	count, err := s.audit.Cleanup(s.auditCfg.RetentionDays)
	if err != nil {
		logger.Errorf("[Scheduler] Audit cleanup failed: %v", err)
		return
	}
	logger.Infof("[Scheduler] Audit cleanup removed %d events", count)
}
