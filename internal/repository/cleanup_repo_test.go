package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Miguel-Alzate/modr/internal/model"
	"github.com/Miguel-Alzate/modr/internal/pkg/apperrors"
	"github.com/Miguel-Alzate/modr/internal/repository"
	"github.com/Miguel-Alzate/modr/internal/testutil"
)

func TestCleanupOlderThan(t *testing.T) {
	db := testutil.NewDB(t)
	capture := newCaptureRepo(t, db)
	old := seedCapture(t, capture, "GET", "/old", 200, 5, true)
	fresh := seedCapture(t, capture, "GET", "/fresh", 200, 5, false)
	backdate(t, db, old.ID, 40*24*time.Hour)

	repo := repository.NewCleanupRepo(db)
	criteria := model.CleanupCriteria{OlderThanDays: 30}

	preview, err := repo.Preview(context.Background(), criteria)
	require.NoError(t, err)
	assert.True(t, preview.DryRun)
	assert.Equal(t, int64(1), preview.Requests)
	assert.Equal(t, int64(1), preview.Payloads)
	assert.Equal(t, int64(1), preview.Responses)

	var stillThere int64
	db.Model(&model.Request{}).Count(&stillThere)
	assert.Equal(t, int64(2), stillThere)

	res, err := repo.Delete(context.Background(), criteria)
	require.NoError(t, err)
	assert.False(t, res.DryRun)
	assert.Equal(t, "older_than_days=30", res.Criteria)
	assert.Equal(t, int64(1), res.Requests)
	assert.Equal(t, int64(1), res.Payloads)
	assert.Equal(t, int64(1), res.Responses)

	var remaining []model.Request
	require.NoError(t, db.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, fresh.ID, remaining[0].ID)

	var exceptions int64
	db.Model(&model.Exception{}).Count(&exceptions)
	assert.Zero(t, exceptions)
}

func TestCleanupByStatusAndMethod(t *testing.T) {
	db := testutil.NewDB(t)
	capture := newCaptureRepo(t, db)
	seedCapture(t, capture, "GET", "/a", 404, 5, true)
	seedCapture(t, capture, "GET", "/b", 404, 5, true)
	seedCapture(t, capture, "DELETE", "/c", 200, 5, false)
	seedCapture(t, capture, "GET", "/d", 200, 5, false)

	repo := repository.NewCleanupRepo(db)
	res, err := repo.Delete(context.Background(), model.CleanupCriteria{StatusCode: 404})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Requests)

	res, err = repo.Delete(context.Background(), model.CleanupCriteria{Method: "delete"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Requests)
	assert.Equal(t, "method=DELETE", res.Criteria)

	var left int64
	db.Model(&model.Request{}).Count(&left)
	assert.Equal(t, int64(1), left)

	// reference rows survive cleanup
	var statuses int64
	db.Model(&model.Status{}).Where("code = ?", 404).Count(&statuses)
	assert.Equal(t, int64(1), statuses)
}

func TestCleanupWorksInBatches(t *testing.T) {
	db := testutil.NewDB(t)
	capture := newCaptureRepo(t, db)
	for i := 0; i < 7; i++ {
		seedCapture(t, capture, "GET", "/gone", 410, 5, i%2 == 0)
	}
	keep := seedCapture(t, capture, "GET", "/kept", 200, 5, false)

	repo := repository.NewCleanupRepo(db)
	repo.SetBatchSize(3)
	criteria := model.CleanupCriteria{StatusCode: 410}

	preview, err := repo.Preview(context.Background(), criteria)
	require.NoError(t, err)
	assert.Equal(t, int64(7), preview.Requests)
	assert.Equal(t, int64(7), preview.Payloads)

	res, err := repo.Delete(context.Background(), criteria)
	require.NoError(t, err)
	assert.Equal(t, int64(7), res.Requests)
	assert.Equal(t, int64(7), res.Payloads)
	assert.Equal(t, int64(7), res.Responses)

	var remaining []model.Request
	require.NoError(t, db.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, keep.ID, remaining[0].ID)

	var payloads, exceptions int64
	db.Model(&model.Payload{}).Count(&payloads)
	db.Model(&model.Exception{}).Count(&exceptions)
	assert.Equal(t, int64(1), payloads)
	assert.Zero(t, exceptions)
}

func TestCleanupSkipsRowsNewerThanRunStart(t *testing.T) {
	db := testutil.NewDB(t)
	capture := newCaptureRepo(t, db)
	req := seedCapture(t, capture, "GET", "/late", 500, 5, false)

	// a row stamped after the run started must survive even if it matches
	future := time.Now().UTC().Add(time.Hour)
	require.NoError(t, db.Model(&model.Request{}).Where("id = ?", req.ID).
		Update("created_at", future).Error)

	res, err := repository.NewCleanupRepo(db).Delete(context.Background(), model.CleanupCriteria{StatusCode: 500})
	require.NoError(t, err)
	assert.Zero(t, res.Requests)
}

func TestCleanupRequiresCriteria(t *testing.T) {
	db := testutil.NewDB(t)
	_, err := repository.NewCleanupRepo(db).Delete(context.Background(), model.CleanupCriteria{})
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidParams))
}
