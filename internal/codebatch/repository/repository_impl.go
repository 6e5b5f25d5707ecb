package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/memoria/internal/codebatch/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, batch *domain.CodeBatch) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO code_batches (
			id, partner_id, quantity, product_type, hosting_duration,
			unit_amount, total_amount, currency, status,
			requested_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		batch.ID,
		batch.PartnerID,
		batch.Quantity,
		batch.ProductType,
		batch.HostingDuration,
		batch.UnitAmount,
		batch.TotalAmount,
		batch.Currency,
		batch.Status,
		batch.RequestedAt,
		batch.CreatedAt,
		batch.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.CodeBatch, error) {
	var row domain.CodeBatch
	err := db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.CodeBatch, error) {
	var rows []*domain.CodeBatch
	stmt := db.WithContext(ctx).Model(&domain.CodeBatch{}).Where("partner_id = ?", filter.PartnerID)
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.Cursor != nil {
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			filter.Cursor.CreatedAt,
			filter.Cursor.CreatedAt,
			filter.Cursor.ID,
		)
	}
	stmt = stmt.Order("created_at desc, id desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}
	if err := stmt.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from []domain.Status, to domain.Status, fields map[string]any) (int64, error) {
	if len(from) == 0 {
		return 0, nil
	}
	updates := map[string]any{"status": to}
	for k, v := range fields {
		updates[k] = v
	}
	result := db.WithContext(ctx).
		Model(&domain.CodeBatch{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	return result.RowsAffected, result.Error
}

func (r *repo) SetErrorNote(ctx context.Context, db *gorm.DB, id snowflake.ID, note *string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE code_batches SET error_note = ?, updated_at = ? WHERE id = ?`,
		note,
		now,
		id,
	).Error
}
