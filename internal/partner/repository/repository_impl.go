package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/memoria/internal/partner/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Partner, error) {
	var row domain.Partner
	err := db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from []domain.Status, to domain.Status, now time.Time) (int64, error) {
	if len(from) == 0 {
		return 0, nil
	}
	result := db.WithContext(ctx).Exec(
		`UPDATE partners SET status = ?, updated_at = ? WHERE id = ? AND status IN ?`,
		to,
		now,
		id,
		from,
	)
	return result.RowsAffected, result.Error
}
