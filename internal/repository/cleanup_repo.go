package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/Miguel-Alzate/modr/internal/model"
	"github.com/Miguel-Alzate/modr/internal/pkg/apperrors"
)

type CleanupRepo struct {
	db        *gorm.DB
	now       func() time.Time
	batchSize int
}

func NewCleanupRepo(db *gorm.DB) *CleanupRepo {
	return &CleanupRepo{
		db:        db,
		now:       func() time.Time { return time.Now().UTC() },
		batchSize: deleteBatchSize,
	}
}

// Preview reports what Delete would remove for c without removing anything.
func (r *CleanupRepo) Preview(ctx context.Context, c model.CleanupCriteria) (*model.CleanupResult, error) {
	runStart := r.now()
	res := &model.CleanupResult{Criteria: describeCriteria(c), Cutoff: runStart, DryRun: true}
	err := r.eachBatch(ctx, c, runStart, func(rows []requestRefs) error {
		res.Requests += int64(len(rows))
		for _, row := range rows {
			if row.PayloadID != nil {
				res.Payloads++
			}
			if row.ResponseID != nil {
				res.Responses++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Delete removes every request matching c that existed when the run
// started, along with its dependents. Rows captured while the delete runs
// are left alone. Matches are read and removed one batch at a time, each
// batch in its own transaction; a failed batch stops the run.
func (r *CleanupRepo) Delete(ctx context.Context, c model.CleanupCriteria) (*model.CleanupResult, error) {
	runStart := r.now()
	res := &model.CleanupResult{Criteria: describeCriteria(c), Cutoff: runStart}
	err := r.eachBatch(ctx, c, runStart, func(rows []requestRefs) error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			counts, err := deleteRequests(tx, rows)
			if err != nil {
				return apperrors.NewDatabase("cleanup failed", err)
			}
			res.Requests += counts.Requests
			res.Payloads += counts.Payloads
			res.Responses += counts.Responses
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// eachBatch walks the requests matching c in primary key order and hands
// them to fn at most batchSize at a time.
func (r *CleanupRepo) eachBatch(ctx context.Context, c model.CleanupCriteria, runStart time.Time, fn func([]requestRefs) error) error {
	db := r.db.WithContext(ctx)
	q := db.Model(&model.Request{}).
		Select("id", "payload_id", "response_id").
		Where("created_at <= ?", runStart)

	switch {
	case c.OlderThanDays > 0:
		cutoff := runStart.AddDate(0, 0, -c.OlderThanDays)
		q = q.Where("happened < ?", cutoff)
	case c.StatusCode != 0:
		q = q.Where("status_id IN (?)", db.Model(&model.Status{}).Select("id").Where("code = ?", c.StatusCode))
	case c.Method != "":
		q = q.Where("method_id IN (?)", db.Model(&model.Method{}).Select("id").Where("name = ?", strings.ToUpper(c.Method)))
	default:
		return apperrors.NewInvalidRequest("cleanup needs one of days, status code or method")
	}

	var page []model.Request
	err := q.FindInBatches(&page, r.batchSize, func(_ *gorm.DB, _ int) error {
		rows := make([]requestRefs, len(page))
		for i, req := range page {
			rows[i] = requestRefs{ID: req.ID, PayloadID: req.PayloadID, ResponseID: req.ResponseID}
		}
		return fn(rows)
	}).Error
	if err == nil {
		return nil
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.NewDatabase("cleanup selection failed", err)
}

func describeCriteria(c model.CleanupCriteria) string {
	switch {
	case c.OlderThanDays > 0:
		return fmt.Sprintf("older_than_days=%d", c.OlderThanDays)
	case c.StatusCode != 0:
		return fmt.Sprintf("status_code=%d", c.StatusCode)
	case c.Method != "":
		return "method=" + strings.ToUpper(c.Method)
	}
	return ""
}
