package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/memoria/internal/referral/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.ReferralCode, error) {
	return r.findOne(ctx, db.Where("id = ?", id))
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, code string) (*domain.ReferralCode, error) {
	return r.findOne(ctx, db.Where("code = ?", code))
}

func (r *repo) findOne(ctx context.Context, stmt *gorm.DB) (*domain.ReferralCode, error) {
	var row domain.ReferralCode
	err := stmt.WithContext(ctx).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// Claim sets is_used only while the code is still unused.
func (r *repo) Claim(ctx context.Context, db *gorm.DB, id, orderID snowflake.ID, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE referral_codes SET is_used = ?, order_id = ?, used_at = ?
		WHERE id = ? AND is_used = ?`,
		true,
		orderID,
		now,
		id,
		false,
	)
	return result.RowsAffected, result.Error
}
