package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Miguel-Alzate/modr/internal/config"
	"github.com/Miguel-Alzate/modr/internal/model"
	"github.com/Miguel-Alzate/modr/internal/pkg/apperrors"
	"github.com/Miguel-Alzate/modr/internal/repository"
	"github.com/Miguel-Alzate/modr/internal/service"
	"github.com/Miguel-Alzate/modr/internal/testutil"
	"github.com/Miguel-Alzate/modr/internal/validation"
)

type published struct {
	Topic string
	Event model.Event
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []published
}

func (r *recordingNotifier) Publish(_ context.Context, topic string, ev model.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, published{Topic: topic, Event: ev})
}

func (r *recordingNotifier) Topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Topic)
	}
	return out
}

func newCaptureService(t *testing.T) (*service.CaptureService, *recordingNotifier, *repository.RequestRepo) {
	t.Helper()
	db := testutil.NewDB(t)
	refs, err := repository.NewReferenceCache(64)
	require.NoError(t, err)
	t.Cleanup(refs.Close)

	rec := &recordingNotifier{}
	svc := service.NewCaptureService(
		validation.New(validation.DefaultRules()),
		repository.NewCaptureRepo(db, refs, config.DefaultImportantHeaders),
		repository.NewQueryRepo(db),
		rec,
		time.Second,
	)
	return svc, rec, repository.NewRequestRepo(db)
}

func TestCaptureCreatedWithoutBody(t *testing.T) {
	svc, rec, requests := newCaptureService(t)

	res, err := svc.Capture(context.Background(), &model.CaptureInput{
		Method:       "POST",
		Path:         "/api/users",
		StatusCode:   201,
		ResponseTime: 45,
	})
	require.NoError(t, err)

	got, err := requests.Get(context.Background(), res.Request.ID)
	require.NoError(t, err)
	assert.Equal(t, "POST", got.Method.Name)
	assert.Equal(t, 201, got.Status.Code)
	assert.Equal(t, int64(45), got.Duration)
	assert.Nil(t, got.Payload)
	assert.Nil(t, got.Response)
	assert.Empty(t, got.Exceptions)

	require.Equal(t, []string{model.TopicNewRequest}, rec.Topics())
	ev := rec.events[0].Event
	assert.Equal(t, res.Request.ID, ev.ID)
	assert.Equal(t, "/api/users", ev.Path)
	assert.Equal(t, 201, ev.StatusCode)
	assert.Equal(t, int64(45), ev.Duration)
}

func TestCaptureNotFoundWithError(t *testing.T) {
	svc, rec, requests := newCaptureService(t)

	res, err := svc.Capture(context.Background(), &model.CaptureInput{
		Method:       "GET",
		Path:         "/api/widgets/999",
		StatusCode:   404,
		ResponseTime: 12,
		ResponseBody: json.RawMessage(`{"message":"Widget not found"}`),
		Error:        &model.CaptureError{Message: "Widget not found"},
	})
	require.NoError(t, err)

	got, err := requests.Get(context.Background(), res.Request.ID)
	require.NoError(t, err)
	require.Len(t, got.Exceptions, 1)
	assert.Equal(t, model.ExceptionBusiness, got.Exceptions[0].Type)
	assert.Equal(t, "Widget not found", got.Exceptions[0].Message)

	assert.Equal(t, []string{model.TopicNewRequest, model.TopicErrorRequest}, rec.Topics())
}

func TestCaptureRejectsBeforeWriting(t *testing.T) {
	svc, rec, requests := newCaptureService(t)

	_, err := svc.Capture(context.Background(), &model.CaptureInput{
		Method:      "GET",
		Path:        "/x",
		StatusCode:  200,
		RequestBody: json.RawMessage(`"not json"`),
	})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))
	assert.Empty(t, rec.Topics())

	page, err := requests.List(context.Background(), model.RequestFilter{}, model.Pagination{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}

func TestCaptureStoresQueries(t *testing.T) {
	svc, _, requests := newCaptureService(t)

	res, err := svc.Capture(context.Background(), &model.CaptureInput{
		Method:     "GET",
		Path:       "/api/users",
		StatusCode: 200,
		Queries: []model.QueryInput{
			{SQL: `SELECT * FROM "users"`, DurationMs: 1.25, ExecutedAt: time.Now()},
		},
	})
	require.NoError(t, err)

	got, err := requests.Get(context.Background(), res.Request.ID)
	require.NoError(t, err)
	require.Len(t, got.Queries, 1)
	assert.Equal(t, 1.25, got.Queries[0].Duration)
}

func TestCaptureAsyncAndDrain(t *testing.T) {
	svc, rec, requests := newCaptureService(t)

	for i := 0; i < 5; i++ {
		svc.CaptureAsync(&model.CaptureInput{Method: "GET", Path: "/async", StatusCode: 200})
	}
	// a rejected capture is logged, not surfaced
	svc.CaptureAsync(&model.CaptureInput{Method: "BREW", Path: "/async", StatusCode: 200})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, svc.Drain(ctx))

	page, err := requests.List(context.Background(), model.RequestFilter{}, model.Pagination{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.Total)
	assert.Len(t, rec.Topics(), 5)
}

type panickingStore struct{}

func (panickingStore) Capture(context.Context, *model.NormalizedCapture) (*model.CaptureResult, error) {
	panic("store exploded")
}

type failingStore struct{}

func (failingStore) Capture(context.Context, *model.NormalizedCapture) (*model.CaptureResult, error) {
	return nil, apperrors.NewDatabase("capture transaction failed", errors.New("connection refused"))
}

func TestCaptureAsyncContainsPanics(t *testing.T) {
	rec := &recordingNotifier{}
	svc := service.NewCaptureService(validation.New(validation.DefaultRules()), panickingStore{}, nil, rec, time.Second)

	svc.CaptureAsync(&model.CaptureInput{Method: "GET", Path: "/boom", StatusCode: 200})
	require.NoError(t, svc.Drain(context.Background()))
	assert.Empty(t, rec.Topics())
}

func TestCaptureFailureSkipsNotification(t *testing.T) {
	rec := &recordingNotifier{}
	svc := service.NewCaptureService(validation.New(validation.DefaultRules()), failingStore{}, nil, rec, time.Second)

	_, err := svc.Capture(context.Background(), &model.CaptureInput{
		Method: "GET", Path: "/down", StatusCode: 200, UUID: uuid.NewString(),
	})
	assert.True(t, apperrors.Is(err, apperrors.ErrDatabase))
	assert.Empty(t, rec.Topics())
}
