package monitoring

import (
	"github.com/richardnoragon/budgetauth/internal/services"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Scheduler runs automatic database backups on a cron expression.
type Scheduler struct {
	backupSvc services.BackupServiceProvider
	spec      string
	keep      int
	cron      *cron.Cron
}

// NewScheduler creates a new scheduler instance. keep is how many backup
// files to retain after each run.
func NewScheduler(backupSvc services.BackupServiceProvider, spec string, keep int) *Scheduler {
	return &Scheduler{backupSvc: backupSvc, spec: spec, keep: keep}
}

// Start registers the backup job and begins ticking. An invalid cron
// expression is reported instead of silently disabling backups.
func (s *Scheduler) Start() error {
	c := cron.New()
	if _, err := c.AddFunc(s.spec, s.runBackup); err != nil {
		return err
	}
	c.Start()
	s.cron = c
	log.Info().Str("schedule", s.spec).Msg("Automatic backup scheduler started")
	return nil
}

// Stop halts the scheduler. Safe to call when Start never ran.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
		log.Info().Msg("Automatic backup scheduler stopped")
	}
}

func (s *Scheduler) runBackup() {
	path, err := s.backupSvc.BackupNow("")
	if err != nil {
		log.Error().Err(err).Msg("Scheduled backup failed")
		return
	}
	log.Info().Str("path", path).Msg("Scheduled backup completed")

	if _, err := s.backupSvc.PruneOld("", s.keep); err != nil {
		log.Warn().Err(err).Msg("Scheduled backup: prune failed")
	}
}
