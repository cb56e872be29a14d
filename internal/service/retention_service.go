package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Miguel-Alzate/modr/internal/model"
	"github.com/Miguel-Alzate/modr/internal/pkg/logger"
)

const retentionRunTimeout = 10 * time.Minute

// RetentionService periodically deletes requests older than a fixed age.
type RetentionService struct {
	cleanup *DashboardService
	days    int
	cron    *cron.Cron
	entryID cron.EntryID
	runMu   sync.Mutex // one run at a time
}

func NewRetentionService(cleanup *DashboardService, schedule string, days int) (*RetentionService, error) {
	if days <= 0 {
		return nil, fmt.Errorf("retention days must be positive, got %d", days)
	}
	s := &RetentionService{cleanup: cleanup, days: days, cron: cron.New()}
	entryID, err := s.cron.AddFunc(schedule, func() {
		if _, err := s.RunOnce(context.Background()); err != nil {
			logger.Error("scheduled retention failed", "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("retention schedule %q: %w", schedule, err)
	}
	s.entryID = entryID
	return s, nil
}

// RunOnce deletes everything older than the retention window now. A run that
// overlaps one already in progress is skipped.
func (s *RetentionService) RunOnce(ctx context.Context) (*model.CleanupResult, error) {
	if !s.runMu.TryLock() {
		logger.Warn("retention run skipped, previous run still active")
		return nil, nil
	}
	defer s.runMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, retentionRunTimeout)
	defer cancel()
	return s.cleanup.Cleanup(ctx, model.CleanupCriteria{OlderThanDays: s.days})
}

// Next reports when the schedule fires after from.
func (s *RetentionService) Next(from time.Time) time.Time {
	entry := s.cron.Entry(s.entryID)
	if entry.Schedule == nil {
		return time.Time{}
	}
	return entry.Schedule.Next(from)
}

func (s *RetentionService) Start() {
	s.cron.Start()
	logger.Info("retention scheduler started", "days", s.days)
}

// Stop halts the scheduler and waits for a running job to finish.
func (s *RetentionService) Stop() {
	<-s.cron.Stop().Done()
}
