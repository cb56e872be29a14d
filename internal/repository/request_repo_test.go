package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Miguel-Alzate/modr/internal/model"
	"github.com/Miguel-Alzate/modr/internal/pkg/apperrors"
	"github.com/Miguel-Alzate/modr/internal/repository"
	"github.com/Miguel-Alzate/modr/internal/testutil"
)

func seedCapture(t *testing.T, repo *repository.CaptureRepo, method, path string, status int, duration int64, withErr bool) *model.Request {
	t.Helper()
	in := &model.NormalizedCapture{
		Method:       method,
		Path:         path,
		StatusCode:   status,
		DurationMs:   duration,
		RequestBody:  jsonBody(`{"in":true}`),
		ResponseBody: jsonBody(`{"out":true}`),
		Headers:      map[string]string{"accept": "application/json"},
	}
	if withErr {
		in.Error = &model.CaptureError{Message: "failed"}
	}
	res, err := repo.Capture(context.Background(), in)
	require.NoError(t, err)
	return res.Request
}

func backdate(t *testing.T, db *gorm.DB, id uuid.UUID, age time.Duration) {
	t.Helper()
	at := time.Now().UTC().Add(-age)
	require.NoError(t, db.Model(&model.Request{}).Where("id = ?", id).
		Updates(map[string]any{"happened": at, "created_at": at}).Error)
}

func TestListFiltersAndPaginates(t *testing.T) {
	db := testutil.NewDB(t)
	capture := newCaptureRepo(t, db)
	for i := 0; i < 5; i++ {
		seedCapture(t, capture, "GET", "/api/users", 200, 10, false)
	}
	seedCapture(t, capture, "POST", "/api/orders", 500, 90, true)

	repo := repository.NewRequestRepo(db)
	page, err := repo.List(context.Background(), model.RequestFilter{Method: "get"}, model.Pagination{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.Total)
	assert.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "GET", page.Items[0].Method.Name)

	page, err = repo.List(context.Background(), model.RequestFilter{StatusCode: 500}, model.Pagination{Page: 1, Limit: 20})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "/api/orders", page.Items[0].Path)

	page, err = repo.List(context.Background(), model.RequestFilter{Search: "ORDERS"}, model.Pagination{Page: 1, Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)

	future := time.Now().Add(time.Hour)
	page, err = repo.List(context.Background(), model.RequestFilter{From: &future}, model.Pagination{Page: 1, Limit: 20})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
	assert.Empty(t, page.Items)
}

func TestDeleteCascades(t *testing.T) {
	db := testutil.NewDB(t)
	capture := newCaptureRepo(t, db)
	req := seedCapture(t, capture, "POST", "/api/orders", 500, 90, true)
	keep := seedCapture(t, capture, "GET", "/api/users", 200, 10, false)

	_, err := repository.NewQueryRepo(db).Insert(context.Background(), req.ID, []model.QueryInput{
		{SQL: "SELECT 1", DurationMs: 0.4, ExecutedAt: time.Now()},
	})
	require.NoError(t, err)

	repo := repository.NewRequestRepo(db)
	require.NoError(t, repo.Delete(context.Background(), req.ID))

	_, err = repo.Get(context.Background(), req.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	count := func(m any, where string, args ...any) int64 {
		var n int64
		require.NoError(t, db.Model(m).Where(where, args...).Count(&n).Error)
		return n
	}
	assert.Zero(t, count(&model.RequestHeader{}, "request_id = ?", req.ID))
	assert.Zero(t, count(&model.Exception{}, "request_id = ?", req.ID))
	assert.Zero(t, count(&model.Query{}, "request_id = ?", req.ID))
	assert.Zero(t, count(&model.Payload{}, "id = ?", *req.PayloadID))
	assert.Zero(t, count(&model.Response{}, "id = ?", *req.ResponseID))

	assert.Equal(t, int64(1), count(&model.Request{}, "id = ?", keep.ID))
	assert.Equal(t, int64(1), count(&model.Payload{}, "id = ?", *keep.PayloadID))

	err = repo.Delete(context.Background(), req.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestGetIncludesQueriesInOrder(t *testing.T) {
	db := testutil.NewDB(t)
	capture := newCaptureRepo(t, db)
	req := seedCapture(t, capture, "GET", "/api/users", 200, 10, false)

	now := time.Now()
	n, err := repository.NewQueryRepo(db).Insert(context.Background(), req.ID, []model.QueryInput{
		{SQL: "SELECT 2", DurationMs: 1, ExecutedAt: now.Add(time.Millisecond)},
		{SQL: "", DurationMs: 1, ExecutedAt: now},
		{SQL: "SELECT 1", DurationMs: 1, ExecutedAt: now},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := repository.NewRequestRepo(db).Get(context.Background(), req.ID)
	require.NoError(t, err)
	require.Len(t, got.Queries, 2)
	assert.Equal(t, "SELECT 1", got.Queries[0].SQL)
}

func TestStatsAggregates(t *testing.T) {
	db := testutil.NewDB(t)
	capture := newCaptureRepo(t, db)
	seedCapture(t, capture, "GET", "/fast", 200, 10, false)
	seedCapture(t, capture, "GET", "/fast", 200, 20, false)
	seedCapture(t, capture, "POST", "/slow", 500, 300, true)
	seedCapture(t, capture, "GET", "/missing", 404, 30, true)

	stats, err := repository.NewStatsRepo(db).Stats(context.Background(), model.RequestFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.TotalRequests)
	assert.Equal(t, int64(2), stats.ErrorRequests)
	assert.Equal(t, 50.0, stats.ErrorRate)
	assert.Equal(t, 90.0, stats.AvgDuration)
	assert.Equal(t, int64(2), stats.Exceptions)

	require.NotEmpty(t, stats.ByMethod)
	assert.Equal(t, model.CountByKey{Key: "GET", Count: 3}, stats.ByMethod[0])
	assert.Contains(t, stats.ByStatus, model.CountByKey{Key: "200", Count: 2})
	require.NotEmpty(t, stats.SlowestPaths)
	assert.Equal(t, "/slow", stats.SlowestPaths[0].Path)
	assert.Equal(t, 300.0, stats.SlowestPaths[0].AvgDuration)

	empty, err := repository.NewStatsRepo(db).Stats(context.Background(), model.RequestFilter{Method: "DELETE"})
	require.NoError(t, err)
	assert.Zero(t, empty.TotalRequests)
	assert.NotNil(t, empty.ByMethod)
}
