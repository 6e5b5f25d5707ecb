package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrInvalidOrderNumber    = errors.New("invalid_order_number")
	ErrOrderNotFound         = errors.New("order_not_found")
	ErrInvalidTrackingNumber = errors.New("invalid_tracking_number")
	ErrInvalidCarrier        = errors.New("invalid_carrier")
	ErrInvalidCustomer       = errors.New("invalid_customer")
	ErrInvalidAddress        = errors.New("invalid_shipping_address")
)

type Shipment struct {
	TrackingNumber string `json:"tracking_number"`
	Carrier        string `json:"carrier"`
}

// Applied reports whether a conditional transition changed the row.
type TransitionResult struct {
	Applied bool
	Order   *Order
}

type Repository interface {
	FindByNumber(ctx context.Context, db *gorm.DB, number string) (*Order, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	// UpdateStatus moves number to `to` only while its status is one of from.
	UpdateStatus(ctx context.Context, db *gorm.DB, number string, from []Status, to Status, fields map[string]any) (int64, error)
	UpdateShipment(ctx context.Context, db *gorm.DB, number string, shipment Shipment, now time.Time) (int64, error)
	SaveShippingAddress(ctx context.Context, db *gorm.DB, customerID snowflake.ID, address ShippingAddress, now time.Time) (int64, error)
	InsertSupplierOrder(ctx context.Context, db *gorm.DB, supplierOrder *SupplierOrder) (int64, error)
	FindSupplierOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (*SupplierOrder, error)
	UpdateProcessingNote(ctx context.Context, db *gorm.DB, id snowflake.ID, note *string, now time.Time) (int64, error)
}

type Service interface {
	GetByNumber(ctx context.Context, number string) (*Order, error)
	Get(ctx context.Context, id snowflake.ID) (*Order, error)

	// MarkPaid is pending -> paid keyed on the order number. A zero-row
	// update is reported with Applied=false and the current order.
	MarkPaid(ctx context.Context, number, paymentReference string, paidAt time.Time) (TransitionResult, error)
	// Expire is pending -> cancelled for abandoned checkouts.
	Expire(ctx context.Context, number string) (TransitionResult, error)

	Cancel(ctx context.Context, number string) (*Order, error)
	MarkProcessing(ctx context.Context, number string) (*Order, error)
	MarkShipped(ctx context.Context, number string, shipment Shipment) (*Order, error)
	UpdateTracking(ctx context.Context, number string, shipment Shipment) (*Order, error)
	MarkCompleted(ctx context.Context, number string) (*Order, error)

	SaveShippingAddress(ctx context.Context, customerID snowflake.ID, address ShippingAddress) error
	// EnqueueSupplierOrder creates at most one supplier order per order.
	EnqueueSupplierOrder(ctx context.Context, order *Order) (bool, error)
	// SetProcessingNote flags the order for manual follow-up. A nil note clears it.
	SetProcessingNote(ctx context.Context, id snowflake.ID, note *string) error
}
