package cron

import (
	"context"
	"log"
	"time"

	"github.com/amlguard/compliance-api/database"
	"github.com/amlguard/compliance-api/model"
	"github.com/robfig/cron/v3"
)

// UsageArchiver exports usage events before they are pruned. Satisfied by
// archive.SpacesArchiver; nil means archival is not configured and pruning
// is deferred so no audit data is lost.
type UsageArchiver interface {
	ArchiveEvents(ctx context.Context, events []model.UsageEvent, cutoff time.Time) (string, error)
}

// CronManager manages all scheduled maintenance jobs
type CronManager struct {
	cron          *cron.Cron
	store         database.Store
	archiver      UsageArchiver
	retentionDays int
}

// NewCronManager creates a new cron manager
func NewCronManager(store database.Store, archiver UsageArchiver, retentionDays int) *CronManager {
	// Create cron with seconds precision
	c := cron.New(cron.WithSeconds())

	return &CronManager{
		cron:          c,
		store:         store,
		archiver:      archiver,
		retentionDays: retentionDays,
	}
}

// Start registers and starts all cron jobs
func (m *CronManager) Start() error {
	log.Println("Starting cron jobs...")

	if err := m.registerJobs(); err != nil {
		return err
	}

	m.cron.Start()

	log.Println("Cron jobs started successfully")
	return nil
}

// Stop stops all cron jobs and waits for running ones to finish
func (m *CronManager) Stop() {
	log.Println("Stopping cron jobs...")
	ctx := m.cron.Stop()
	<-ctx.Done()
	log.Println("Cron jobs stopped")
}

// registerJobs registers all cron jobs with their schedules
func (m *CronManager) registerJobs() error {
	// Nightly at 03:00: archive and prune usage events past retention
	_, err := m.cron.AddFunc("0 0 3 * * *", func() {
		log.Println("[CRON] Starting job: retain_usage_events")
		m.RetainUsageEvents()
	})
	if err != nil {
		return err
	}

	return nil
}
