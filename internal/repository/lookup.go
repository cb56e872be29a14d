package repository

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// lookupOrCreate returns the row whose column equals key, inserting the one
// built by build when none exists. Concurrent callers racing on the same key
// all end up with the single committed row: the insert is a no-op on
// conflict and the loser re-reads. The insert runs under a savepoint so a
// unique violation on dialects without ON CONFLICT leaves tx usable.
func lookupOrCreate[T any](tx *gorm.DB, column string, key any, build func() *T) (*T, bool, error) {
	var found T
	err := tx.Where(column+" = ?", key).Take(&found).Error
	if err == nil {
		return &found, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	row := build()
	var inserted int64
	err = tx.Transaction(func(sp *gorm.DB) error {
		res := sp.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: column}},
			DoNothing: true,
		}).Create(row)
		inserted = res.RowsAffected
		return res.Error
	})
	if err != nil && !isUniqueViolation(err) {
		return nil, false, err
	}
	if err == nil && inserted > 0 {
		return row, true, nil
	}

	var existing T
	if err := tx.Where(column+" = ?", key).Take(&existing).Error; err != nil {
		return nil, false, err
	}
	return &existing, false, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}
