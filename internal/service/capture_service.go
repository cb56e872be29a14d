package service

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Miguel-Alzate/modr/internal/model"
	"github.com/Miguel-Alzate/modr/internal/notifier"
	"github.com/Miguel-Alzate/modr/internal/pkg/apperrors"
	"github.com/Miguel-Alzate/modr/internal/pkg/logger"
	"github.com/Miguel-Alzate/modr/internal/pkg/metrics"
	"github.com/Miguel-Alzate/modr/internal/validation"
)

type CaptureStore interface {
	Capture(ctx context.Context, in *model.NormalizedCapture) (*model.CaptureResult, error)
}

type QueryStore interface {
	Insert(ctx context.Context, requestID uuid.UUID, queries []model.QueryInput) (int, error)
}

// CaptureService turns raw captures into stored requests and announces them.
type CaptureService struct {
	validator *validation.Validator
	store     CaptureStore
	queries   QueryStore
	notifier  notifier.Notifier
	timeout   time.Duration

	wg sync.WaitGroup
}

func NewCaptureService(v *validation.Validator, store CaptureStore, queries QueryStore, n notifier.Notifier, timeout time.Duration) *CaptureService {
	if n == nil {
		n = notifier.Nop{}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &CaptureService{
		validator: v,
		store:     store,
		queries:   queries,
		notifier:  n,
		timeout:   timeout,
	}
}

// Capture validates and stores one exchange. Validation failures are
// returned before any write happens. Query recording and notification run
// after the commit; their failures are logged only.
func (s *CaptureService) Capture(ctx context.Context, in *model.CaptureInput) (*model.CaptureResult, error) {
	norm, err := s.validator.Capture(in)
	if err != nil {
		metrics.CapturesTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	start := time.Now()
	res, err := s.store.Capture(ctx, norm)
	metrics.CaptureSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.CapturesTotal.WithLabelValues("failed").Inc()
		return nil, err
	}
	metrics.CapturesTotal.WithLabelValues("stored").Inc()

	if s.queries != nil && len(norm.Queries) > 0 {
		if _, err := s.queries.Insert(ctx, res.Request.ID, norm.Queries); err != nil {
			logger.LogError(ctx, err, "record queries failed", "request_id", res.Request.ID)
		}
	}

	notifier.Announce(ctx, s.notifier, model.NewEvent(res))
	return res, nil
}

// CaptureAsync stores in on a detached goroutine with its own deadline. It
// never blocks the caller and never panics into it.
func (s *CaptureService) CaptureAsync(in *model.CaptureInput) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				metrics.CapturesTotal.WithLabelValues("panic").Inc()
				logger.Error("capture panicked",
					"panic", fmt.Sprint(r),
					"path", in.Path,
					"stack", string(debug.Stack()))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		if _, err := s.Capture(ctx, in); err != nil {
			if apperrors.Is(err, apperrors.ErrValidation) {
				logger.Warn("capture rejected", "error", err, "method", in.Method, "path", in.Path)
				return
			}
			logger.LogError(ctx, err, "capture failed", "method", in.Method, "path", in.Path)
		}
	}()
}

// Drain waits for in-flight async captures or for ctx to end.
func (s *CaptureService) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
