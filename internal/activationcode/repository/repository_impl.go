package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/memoria/internal/activationcode/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Exists(ctx context.Context, db *gorm.DB, code string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.ActivationCode{}).
		Where("code = ?", code).
		Limit(1).
		Count(&count).Error
	return count > 0, err
}

// InsertBatch skips rows whose code already exists and returns how many landed.
func (r *repo) InsertBatch(ctx context.Context, db *gorm.DB, codes []*domain.ActivationCode) (int64, error) {
	if len(codes) == 0 {
		return 0, nil
	}
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code"}},
			DoNothing: true,
		}).
		Create(codes)
	return result.RowsAffected, result.Error
}

func (r *repo) CountByBatch(ctx context.Context, db *gorm.DB, batchID snowflake.ID) (domain.Counts, error) {
	counts, err := r.CountByBatches(ctx, db, []snowflake.ID{batchID})
	if err != nil {
		return domain.Counts{}, err
	}
	return counts[batchID], nil
}

func (r *repo) CountByBatches(ctx context.Context, db *gorm.DB, batchIDs []snowflake.ID) (map[snowflake.ID]domain.Counts, error) {
	out := make(map[snowflake.ID]domain.Counts, len(batchIDs))
	if len(batchIDs) == 0 {
		return out, nil
	}

	var rows []struct {
		BatchID snowflake.ID
		Total   int64
		Used    int64
	}
	err := db.WithContext(ctx).Raw(
		`SELECT batch_id,
			COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN is_used THEN 1 ELSE 0 END), 0) AS used
		FROM activation_codes
		WHERE batch_id IN ?
		GROUP BY batch_id`,
		batchIDs,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.BatchID] = domain.Counts{Total: row.Total, Used: row.Used}
	}
	return out, nil
}

func (r *repo) ListByBatch(ctx context.Context, db *gorm.DB, batchID snowflake.ID) ([]*domain.ActivationCode, error) {
	var codes []*domain.ActivationCode
	err := db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("id asc").
		Find(&codes).Error
	return codes, err
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, code string) (*domain.ActivationCode, error) {
	var row domain.ActivationCode
	err := db.WithContext(ctx).Where("code = ?", code).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// MarkUsed flips unused -> used for an unexpired code; zero rows means the
// caller lost the race, the code is used, expired or unknown.
func (r *repo) MarkUsed(ctx context.Context, db *gorm.DB, code string, memorialID snowflake.ID, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE activation_codes
		SET is_used = ?, used_at = ?, memorial_id = ?
		WHERE code = ? AND is_used = ? AND (expires_at IS NULL OR expires_at > ?)`,
		true,
		now,
		memorialID,
		code,
		false,
		now,
	)
	return result.RowsAffected, result.Error
}
