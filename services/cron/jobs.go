package cron

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
)

// archiveBatchSize bounds how many events one archive object holds
const archiveBatchSize = 5000

// RetainUsageEvents exports usage events older than the retention window to
// object storage, then prunes them from the database. When no archiver is
// configured the prune is deferred entirely: retention never discards audit
// data that was not exported first.
func (m *CronManager) RetainUsageEvents() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	cutoff := time.Now().AddDate(0, 0, -m.retentionDays)

	if m.archiver == nil {
		log.Println("[CRON] retain_usage_events: no archiver configured, skipping prune")
		return
	}

	archived := 0
	for {
		events, err := m.store.EventsBefore(ctx, cutoff, archiveBatchSize)
		if err != nil {
			log.Printf("[CRON] retain_usage_events: failed to query events: %v", err)
			return
		}
		if len(events) == 0 {
			break
		}

		key, err := m.archiver.ArchiveEvents(ctx, events, cutoff)
		if err != nil {
			// Leave the rows in place; the next run retries the export
			log.Printf("[CRON] retain_usage_events: archive failed, deferring prune: %v", err)
			return
		}
		log.Printf("[CRON] retain_usage_events: archived %d events to %s", len(events), key)
		archived += len(events)

		// Prune exactly the archived batch. Events sharing the boundary
		// timestamp but past the batch limit stay for the next iteration.
		ids := make([]uuid.UUID, len(events))
		for i := range events {
			ids[i] = events[i].ID
		}
		if _, err := m.store.PruneEvents(ctx, ids); err != nil {
			log.Printf("[CRON] retain_usage_events: prune failed: %v", err)
			return
		}

		if len(events) < archiveBatchSize {
			break
		}
	}

	if archived == 0 {
		log.Println("[CRON] retain_usage_events: no events past retention")
	} else {
		log.Printf("[CRON] retain_usage_events: completed, %d events archived and pruned", archived)
	}
}
