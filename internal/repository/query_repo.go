package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Miguel-Alzate/modr/internal/model"
	"github.com/Miguel-Alzate/modr/internal/pkg/apperrors"
)

type QueryRepo struct {
	db *gorm.DB
}

func NewQueryRepo(db *gorm.DB) *QueryRepo {
	return &QueryRepo{db: db}
}

// Insert stores the SQL statements observed while serving a captured request.
func (r *QueryRepo) Insert(ctx context.Context, requestID uuid.UUID, queries []model.QueryInput) (int, error) {
	if len(queries) == 0 {
		return 0, nil
	}
	rows := make([]model.Query, 0, len(queries))
	for _, q := range queries {
		if q.SQL == "" {
			continue
		}
		rows = append(rows, model.Query{
			RequestID:  requestID,
			SQL:        q.SQL,
			Duration:   q.DurationMs,
			ExecutedAt: q.ExecutedAt.UTC(),
		})
	}
	if len(rows) == 0 {
		return 0, nil
	}
	if err := r.db.WithContext(ctx).CreateInBatches(rows, 100).Error; err != nil {
		return 0, apperrors.NewDatabase("insert queries failed", err)
	}
	return len(rows), nil
}
