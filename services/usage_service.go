package services

import (
	"context"
	"log"
	"time"

	"github.com/amlguard/compliance-api/database"
	"github.com/amlguard/compliance-api/model"
	"github.com/google/uuid"
)

// UsageService records per-call usage events and computes the aggregate
// metrics shown on the dashboard. Recording is observability, not a
// correctness gate: failures are logged, never propagated to the request
// that triggered them.
type UsageService struct {
	store database.Store
}

// NewUsageService creates a new usage accounting service
func NewUsageService(store database.Store) *UsageService {
	return &UsageService{store: store}
}

// UsageStats holds the monthly aggregate for a set of keys
type UsageStats struct {
	CallCount         int64   `json:"call_count"`
	AvgResponseTimeMs float64 `json:"avg_response_time_ms"`
	SuccessRate       float64 `json:"success_rate"` // percentage
}

// Record appends one usage event and advances the key's last_used_at.
// The touch uses the event's own timestamp and only ever moves forward,
// so reordered writes cannot make last_used_at go backward.
func (s *UsageService) Record(ctx context.Context, keyID uuid.UUID, endpoint string, responseTimeMs int, statusCode int, callerIP string) {
	event := &model.UsageEvent{
		ID:        uuid.New(),
		APIKeyID:  keyID,
		Endpoint:  endpoint,
		Timestamp: time.Now(),
	}
	if responseTimeMs >= 0 {
		rt := responseTimeMs
		event.ResponseTimeMs = &rt
	}
	if statusCode > 0 {
		sc := statusCode
		event.StatusCode = &sc
	}
	if callerIP != "" {
		ip := callerIP
		event.CallerIP = &ip
	}

	if err := s.store.InsertEvent(ctx, event); err != nil {
		log.Printf("failed to record usage for key %s: %v", keyID, err)
		return
	}
	if err := s.store.TouchLastUsed(ctx, keyID, event.Timestamp); err != nil {
		log.Printf("failed to touch last_used_at for key %s: %v", keyID, err)
	}
}

// MonthlyStats computes call count, average response time and success rate
// over all events for the given keys with timestamp >= periodStart.
// Zero events yield {0, 0, 100}: no evidence of failure. Events without a
// response time are excluded from the average; events without a status
// code count as non-success.
func (s *UsageService) MonthlyStats(ctx context.Context, keyIDs []uuid.UUID, periodStart time.Time) (*UsageStats, error) {
	events, err := s.store.EventsSince(ctx, keyIDs, periodStart)
	if err != nil {
		return nil, err
	}

	stats := &UsageStats{
		CallCount:   int64(len(events)),
		SuccessRate: 100,
	}
	if len(events) == 0 {
		return stats, nil
	}

	var (
		successCount int64
		timedCount   int64
		timeSumMs    int64
	)
	for i := range events {
		if events[i].IsSuccess() {
			successCount++
		}
		if events[i].ResponseTimeMs != nil {
			timedCount++
			timeSumMs += int64(*events[i].ResponseTimeMs)
		}
	}

	stats.SuccessRate = float64(successCount) / float64(len(events)) * 100
	if timedCount > 0 {
		stats.AvgResponseTimeMs = float64(timeSumMs) / float64(timedCount)
	}

	return stats, nil
}

// StartOfMonth returns the first instant of ts's month in UTC, the default
// period start for monthly stats
func StartOfMonth(ts time.Time) time.Time {
	ts = ts.UTC()
	return time.Date(ts.Year(), ts.Month(), 1, 0, 0, 0, 0, time.UTC)
}
