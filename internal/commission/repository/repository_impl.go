package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/memoria/internal/commission/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// Insert is a no-op when the (order_id, referral_code_id) pair exists.
func (r *repo) Insert(ctx context.Context, db *gorm.DB, commission *domain.Commission) (int64, error) {
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}, {Name: "referral_code_id"}},
			DoNothing: true,
		}).
		Create(commission)
	return result.RowsAffected, result.Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Commission, error) {
	return r.findOne(ctx, db.Where("id = ?", id))
}

func (r *repo) FindByOrderReferral(ctx context.Context, db *gorm.DB, orderID, referralCodeID snowflake.ID) (*domain.Commission, error) {
	return r.findOne(ctx, db.Where("order_id = ? AND referral_code_id = ?", orderID, referralCodeID))
}

func (r *repo) findOne(ctx context.Context, stmt *gorm.DB) (*domain.Commission, error) {
	var row domain.Commission
	err := stmt.WithContext(ctx).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.Commission, error) {
	var rows []*domain.Commission
	stmt := db.WithContext(ctx).Model(&domain.Commission{})

	if filter.PartnerID != 0 {
		stmt = stmt.Where("partner_id = ?", filter.PartnerID)
	}
	if filter.PayoutID != 0 {
		stmt = stmt.Where("payout_id = ?", filter.PayoutID)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.From != nil {
		stmt = stmt.Where("created_at >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		stmt = stmt.Where("created_at < ?", filter.To.UTC())
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

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from domain.Status, to domain.Status, fields map[string]any) (int64, error) {
	updates := map[string]any{"status": to}
	for k, v := range fields {
		updates[k] = v
	}
	result := db.WithContext(ctx).
		Model(&domain.Commission{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	return result.RowsAffected, result.Error
}

// Settle is a single statement so the set of commissions it pays is exactly
// the approved rows visible when it runs.
func (r *repo) Settle(ctx context.Context, db *gorm.DB, partnerID snowflake.ID, currency string, payoutID snowflake.ID, payoutNumber string, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE commissions
		SET status = ?, payout_id = ?, payout_reference = ?, paid_at = ?, updated_at = ?
		WHERE partner_id = ? AND currency = ? AND status = ? AND payout_id IS NULL`,
		domain.StatusPaid,
		payoutID,
		payoutNumber,
		now,
		now,
		partnerID,
		currency,
		domain.StatusApproved,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) SumByPayout(ctx context.Context, db *gorm.DB, payoutID snowflake.ID) (int64, int64, error) {
	var row struct {
		Count int64
		Total int64
	}
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) AS count, COALESCE(SUM(commission_amount), 0) AS total
		FROM commissions WHERE payout_id = ?`,
		payoutID,
	).Scan(&row).Error
	return row.Count, row.Total, err
}

func (r *repo) Totals(ctx context.Context, db *gorm.DB, partnerID snowflake.ID, currency string) ([]domain.StatusTotal, error) {
	var rows []domain.StatusTotal
	err := db.WithContext(ctx).Raw(
		`SELECT status, COUNT(*) AS count, COALESCE(SUM(commission_amount), 0) AS amount
		FROM commissions WHERE partner_id = ? AND currency = ?
		GROUP BY status`,
		partnerID,
		currency,
	).Scan(&rows).Error
	return rows, err
}
