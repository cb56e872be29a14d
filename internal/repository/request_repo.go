package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Miguel-Alzate/modr/internal/model"
	"github.com/Miguel-Alzate/modr/internal/pkg/apperrors"
)

type RequestRepo struct {
	db *gorm.DB
}

func NewRequestRepo(db *gorm.DB) *RequestRepo {
	return &RequestRepo{db: db}
}

// applyFilter narrows a query rooted at the requests table.
func applyFilter(db *gorm.DB, q *gorm.DB, f model.RequestFilter) *gorm.DB {
	if f.Method != "" {
		q = q.Where("requests.method_id IN (?)",
			db.Model(&model.Method{}).Select("id").Where("name = ?", strings.ToUpper(f.Method)))
	}
	if f.StatusCode != 0 {
		q = q.Where("requests.status_id IN (?)",
			db.Model(&model.Status{}).Select("id").Where("code = ?", f.StatusCode))
	}
	if f.Search != "" {
		q = q.Where("LOWER(requests.path) LIKE ?", "%"+strings.ToLower(f.Search)+"%")
	}
	if f.From != nil {
		q = q.Where("requests.happened >= ?", f.From.UTC())
	}
	if f.To != nil {
		q = q.Where("requests.happened <= ?", f.To.UTC())
	}
	return q
}

// List returns one page of requests, newest first.
func (r *RequestRepo) List(ctx context.Context, f model.RequestFilter, p model.Pagination) (*model.RequestPage, error) {
	db := r.db.WithContext(ctx)

	var total int64
	if err := applyFilter(db, db.Model(&model.Request{}), f).Count(&total).Error; err != nil {
		return nil, apperrors.NewDatabase("count requests failed", err)
	}

	items := make([]model.Request, 0, p.Limit)
	err := applyFilter(db, db.Model(&model.Request{}), f).
		Preload("Method").
		Preload("Status").
		Order("requests.happened DESC").
		Offset(p.Offset()).
		Limit(p.Limit).
		Find(&items).Error
	if err != nil {
		return nil, apperrors.NewDatabase("list requests failed", err)
	}

	pages := 0
	if p.Limit > 0 {
		pages = int((total + int64(p.Limit) - 1) / int64(p.Limit))
	}
	return &model.RequestPage{
		Items:      items,
		Page:       p.Page,
		Limit:      p.Limit,
		Total:      total,
		TotalPages: pages,
	}, nil
}

// Get loads a request with everything captured for it.
func (r *RequestRepo) Get(ctx context.Context, id uuid.UUID) (*model.Request, error) {
	var req model.Request
	err := r.db.WithContext(ctx).
		Preload("Method").
		Preload("Status").
		Preload("Payload").
		Preload("Response").
		Preload("Headers.Header").
		Preload("Exceptions").
		Preload("Queries", func(db *gorm.DB) *gorm.DB {
			return db.Order("executed_at ASC")
		}).
		Where("id = ?", id).
		Take(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NewNotFound("request not found")
	}
	if err != nil {
		return nil, apperrors.NewDatabase("get request failed", err)
	}
	return &req, nil
}

// Delete removes a request together with its header links, exceptions,
// queries, payload and response.
func (r *RequestRepo) Delete(ctx context.Context, id uuid.UUID) error {
	var rows []requestRefs
	err := r.db.WithContext(ctx).Model(&model.Request{}).
		Select("id", "payload_id", "response_id").
		Where("id = ?", id).
		Find(&rows).Error
	if err != nil {
		return apperrors.NewDatabase("delete request failed", err)
	}
	if len(rows) == 0 {
		return apperrors.NewNotFound("request not found")
	}
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := deleteRequests(tx, rows)
		return err
	})
	if err != nil {
		return apperrors.NewDatabase("delete request failed", err)
	}
	return nil
}

type requestRefs struct {
	ID         uuid.UUID
	PayloadID  *uuid.UUID
	ResponseID *uuid.UUID
}

type deleteCounts struct {
	Requests  int64
	Payloads  int64
	Responses int64
}

const deleteBatchSize = 500

// deleteRequests removes the given requests and everything that hangs off
// them. Dependents go first so the routine does not rely on database
// cascades.
func deleteRequests(tx *gorm.DB, rows []requestRefs) (deleteCounts, error) {
	var counts deleteCounts
	for start := 0; start < len(rows); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(rows))
		batch := rows[start:end]

		ids := make([]uuid.UUID, 0, len(batch))
		var payloads, responses []uuid.UUID
		for _, row := range batch {
			ids = append(ids, row.ID)
			if row.PayloadID != nil {
				payloads = append(payloads, *row.PayloadID)
			}
			if row.ResponseID != nil {
				responses = append(responses, *row.ResponseID)
			}
		}

		if err := tx.Where("request_id IN ?", ids).Delete(&model.RequestHeader{}).Error; err != nil {
			return counts, err
		}
		if err := tx.Where("request_id IN ?", ids).Delete(&model.Exception{}).Error; err != nil {
			return counts, err
		}
		if err := tx.Where("request_id IN ?", ids).Delete(&model.Query{}).Error; err != nil {
			return counts, err
		}
		res := tx.Where("id IN ?", ids).Delete(&model.Request{})
		if res.Error != nil {
			return counts, res.Error
		}
		counts.Requests += res.RowsAffected

		if len(payloads) > 0 {
			res = tx.Where("id IN ?", payloads).Delete(&model.Payload{})
			if res.Error != nil {
				return counts, res.Error
			}
			counts.Payloads += res.RowsAffected
		}
		if len(responses) > 0 {
			res = tx.Where("id IN ?", responses).Delete(&model.Response{})
			if res.Error != nil {
				return counts, res.Error
			}
			counts.Responses += res.RowsAffected
		}
	}
	return counts, nil
}
