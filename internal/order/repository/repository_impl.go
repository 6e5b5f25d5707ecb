package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/memoria/internal/order/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByNumber(ctx context.Context, db *gorm.DB, number string) (*domain.Order, error) {
	return r.findOne(ctx, db.Where("order_number = ?", number))
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Order, error) {
	return r.findOne(ctx, db.Where("id = ?", id))
}

func (r *repo) findOne(ctx context.Context, stmt *gorm.DB) (*domain.Order, error) {
	var row domain.Order
	err := stmt.WithContext(ctx).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, number string, from []domain.Status, to domain.Status, fields map[string]any) (int64, error) {
	if len(from) == 0 {
		return 0, nil
	}
	updates := map[string]any{"status": to}
	for k, v := range fields {
		updates[k] = v
	}
	result := db.WithContext(ctx).
		Model(&domain.Order{}).
		Where("order_number = ? AND status IN ?", number, from).
		Updates(updates)
	return result.RowsAffected, result.Error
}

// UpdateShipment rewrites tracking data on an order that is still in transit.
func (r *repo) UpdateShipment(ctx context.Context, db *gorm.DB, number string, shipment domain.Shipment, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE orders SET tracking_number = ?, carrier = ?, updated_at = ?
		WHERE order_number = ? AND status = ?`,
		shipment.TrackingNumber,
		shipment.Carrier,
		now,
		number,
		domain.StatusShipped,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) UpdateProcessingNote(ctx context.Context, db *gorm.DB, id snowflake.ID, note *string, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE orders SET processing_note = ?, updated_at = ? WHERE id = ?`,
		note,
		now,
		id,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) SaveShippingAddress(ctx context.Context, db *gorm.DB, customerID snowflake.ID, address domain.ShippingAddress, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE customers SET shipping_address = ?, updated_at = ? WHERE id = ?`,
		datatypes.NewJSONType(address),
		now,
		customerID,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) InsertSupplierOrder(ctx context.Context, db *gorm.DB, supplierOrder *domain.SupplierOrder) (int64, error) {
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}},
			DoNothing: true,
		}).
		Create(supplierOrder)
	return result.RowsAffected, result.Error
}

func (r *repo) FindSupplierOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (*domain.SupplierOrder, error) {
	var row domain.SupplierOrder
	err := db.WithContext(ctx).Where("order_id = ?", orderID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}
