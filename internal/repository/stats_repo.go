package repository

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/Miguel-Alzate/modr/internal/model"
	"github.com/Miguel-Alzate/modr/internal/pkg/apperrors"
)

const slowestPathsLimit = 5

type StatsRepo struct {
	db *gorm.DB
}

func NewStatsRepo(db *gorm.DB) *StatsRepo {
	return &StatsRepo{db: db}
}

type labelCount struct {
	Label string
	Total int64
}

// Stats aggregates the requests matching f.
func (r *StatsRepo) Stats(ctx context.Context, f model.RequestFilter) (*model.Stats, error) {
	db := r.db.WithContext(ctx)
	base := func() *gorm.DB {
		return applyFilter(db, db.Model(&model.Request{}), f)
	}
	fail := func(err error) (*model.Stats, error) {
		return nil, apperrors.NewDatabase("stats query failed", err)
	}

	out := &model.Stats{
		ByMethod:     []model.CountByKey{},
		ByStatus:     []model.CountByKey{},
		SlowestPaths: []model.SlowPath{},
	}

	if err := base().Count(&out.TotalRequests).Error; err != nil {
		return fail(err)
	}
	if out.TotalRequests == 0 {
		return out, nil
	}

	errorStatuses := db.Model(&model.Status{}).Select("id").Where("code >= ?", 400)
	if err := base().Where("requests.status_id IN (?)", errorStatuses).Count(&out.ErrorRequests).Error; err != nil {
		return fail(err)
	}

	var avg float64
	if err := base().Select("COALESCE(AVG(requests.duration), 0)").Scan(&avg).Error; err != nil {
		return fail(err)
	}
	out.AvgDuration = decimal.NewFromFloat(avg).Round(2).InexactFloat64()
	out.ErrorRate = decimal.NewFromInt(out.ErrorRequests).
		Div(decimal.NewFromInt(out.TotalRequests)).
		Mul(decimal.NewFromInt(100)).
		Round(2).InexactFloat64()

	matching := base().Select("requests.id")
	if err := db.Model(&model.Exception{}).Where("request_id IN (?)", matching).Count(&out.Exceptions).Error; err != nil {
		return fail(err)
	}

	var byMethod []labelCount
	err := base().
		Select("methods.name AS label, COUNT(*) AS total").
		Joins("JOIN methods ON methods.id = requests.method_id").
		Group("methods.name").
		Order("total DESC").
		Scan(&byMethod).Error
	if err != nil {
		return fail(err)
	}
	for _, m := range byMethod {
		out.ByMethod = append(out.ByMethod, model.CountByKey{Key: m.Label, Count: m.Total})
	}

	var byStatus []labelCount
	err = base().
		Select("CAST(status.code AS TEXT) AS label, COUNT(*) AS total").
		Joins("JOIN status ON status.id = requests.status_id").
		Group("status.code").
		Order("total DESC").
		Scan(&byStatus).Error
	if err != nil {
		return fail(err)
	}
	for _, s := range byStatus {
		out.ByStatus = append(out.ByStatus, model.CountByKey{Key: s.Label, Count: s.Total})
	}

	err = base().
		Select("requests.path AS path, AVG(requests.duration) AS avg_duration, COUNT(*) AS count").
		Group("requests.path").
		Order("avg_duration DESC").
		Limit(slowestPathsLimit).
		Scan(&out.SlowestPaths).Error
	if err != nil {
		return fail(err)
	}
	for i := range out.SlowestPaths {
		out.SlowestPaths[i].AvgDuration = decimal.NewFromFloat(out.SlowestPaths[i].AvgDuration).Round(2).InexactFloat64()
	}

	return out, nil
}
