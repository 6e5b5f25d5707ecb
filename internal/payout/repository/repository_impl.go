package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/memoria/internal/payout/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, payout *domain.Payout) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payouts (
			id, payout_number, partner_id, total_amount, commission_count,
			currency, payment_reference, notes, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		payout.ID,
		payout.PayoutNumber,
		payout.PartnerID,
		payout.TotalAmount,
		payout.CommissionCount,
		payout.Currency,
		payout.PaymentReference,
		payout.Notes,
		payout.Status,
		payout.CreatedAt,
	).Error
}

func (r *repo) SetTotals(ctx context.Context, db *gorm.DB, id snowflake.ID, count int, total int64, processedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payouts SET commission_count = ?, total_amount = ?, processed_at = ? WHERE id = ?`,
		count,
		total,
		processedAt,
		id,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Payout, error) {
	var row domain.Payout
	err := db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.Payout, error) {
	var rows []*domain.Payout
	stmt := db.WithContext(ctx).Model(&domain.Payout{}).Where("partner_id = ?", filter.PartnerID)
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
