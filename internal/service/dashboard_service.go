package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/Miguel-Alzate/modr/internal/model"
	"github.com/Miguel-Alzate/modr/internal/pkg/logger"
	"github.com/Miguel-Alzate/modr/internal/pkg/metrics"
)

type RequestReader interface {
	List(ctx context.Context, f model.RequestFilter, p model.Pagination) (*model.RequestPage, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Request, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type StatsReader interface {
	Stats(ctx context.Context, f model.RequestFilter) (*model.Stats, error)
}

type Cleaner interface {
	Preview(ctx context.Context, c model.CleanupCriteria) (*model.CleanupResult, error)
	Delete(ctx context.Context, c model.CleanupCriteria) (*model.CleanupResult, error)
}

// DashboardService backs the monitoring API.
type DashboardService struct {
	requests RequestReader
	stats    StatsReader
	cleaner  Cleaner
}

func NewDashboardService(requests RequestReader, stats StatsReader, cleaner Cleaner) *DashboardService {
	return &DashboardService{requests: requests, stats: stats, cleaner: cleaner}
}

func (s *DashboardService) ListRequests(ctx context.Context, f model.RequestFilter, p model.Pagination) (*model.RequestPage, error) {
	return s.requests.List(ctx, f, p)
}

func (s *DashboardService) GetRequest(ctx context.Context, id uuid.UUID) (*model.Request, error) {
	return s.requests.Get(ctx, id)
}

func (s *DashboardService) DeleteRequest(ctx context.Context, id uuid.UUID) error {
	if err := s.requests.Delete(ctx, id); err != nil {
		return err
	}
	metrics.CleanupDeleted.WithLabelValues("single").Inc()
	logger.Info("request deleted", "request_id", id)
	return nil
}

func (s *DashboardService) Stats(ctx context.Context, f model.RequestFilter) (*model.Stats, error) {
	return s.stats.Stats(ctx, f)
}

func (s *DashboardService) PreviewCleanup(ctx context.Context, c model.CleanupCriteria) (*model.CleanupResult, error) {
	return s.cleaner.Preview(ctx, c)
}

func (s *DashboardService) Cleanup(ctx context.Context, c model.CleanupCriteria) (*model.CleanupResult, error) {
	res, err := s.cleaner.Delete(ctx, c)
	if err != nil {
		return nil, err
	}
	metrics.CleanupDeleted.WithLabelValues(reason(c)).Add(float64(res.Requests))
	logger.Info("cleanup finished",
		"criteria", res.Criteria,
		"requests", res.Requests,
		"payloads", res.Payloads,
		"responses", res.Responses)
	return res, nil
}

func reason(c model.CleanupCriteria) string {
	switch {
	case c.OlderThanDays > 0:
		return "age"
	case c.StatusCode != 0:
		return "status"
	default:
		return "method"
	}
}
