package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/memoria/internal/catalog"
	"github.com/smallbiznis/memoria/internal/transition"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusPaid       Status = "paid"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Machine is the fulfillment lifecycle. Shipping is accepted straight from
// paid as well as from processing.
var Machine = transition.New(map[Status][]Status{
	StatusPending:    {StatusPaid, StatusCancelled},
	StatusPaid:       {StatusProcessing, StatusShipped, StatusCancelled},
	StatusProcessing: {StatusShipped},
	StatusShipped:    {StatusCompleted},
})

// Order is one customer purchase. PaidAt is set exactly when the order has
// reached paid or any later fulfillment state.
type Order struct {
	ID               snowflake.ID            `json:"id" gorm:"primaryKey"`
	OrderNumber      string                  `json:"order_number"`
	CustomerID       *snowflake.ID           `json:"customer_id,omitempty"`
	MemorialID       *snowflake.ID           `json:"memorial_id,omitempty"`
	ReferralCodeID   *snowflake.ID           `json:"referral_code_id,omitempty"`
	ProductType      catalog.ProductType     `json:"product_type"`
	HostingDuration  catalog.HostingDuration `json:"hosting_duration"`
	Quantity         int                     `json:"quantity"`
	SubtotalAmount   int64                   `json:"subtotal_amount"`
	DiscountAmount   int64                   `json:"discount_amount"`
	ShippingAmount   int64                   `json:"shipping_amount"`
	TotalAmount      int64                   `json:"total_amount"`
	Currency         string                  `json:"currency"`
	Status           Status                  `json:"status"`
	PaymentReference *string                 `json:"payment_reference,omitempty"`
	TrackingNumber   *string                 `json:"tracking_number,omitempty"`
	Carrier          *string                 `json:"carrier,omitempty"`
	PaidAt           *time.Time              `json:"paid_at,omitempty"`
	ShippedAt        *time.Time              `json:"shipped_at,omitempty"`
	CompletedAt      *time.Time              `json:"completed_at,omitempty"`
	CancelledAt      *time.Time              `json:"cancelled_at,omitempty"`
	ProcessingNote   *string                 `json:"processing_note,omitempty"`
	CreatedAt        time.Time               `json:"created_at"`
	UpdatedAt        time.Time               `json:"updated_at"`
}

func (Order) TableName() string { return "orders" }

// TotalBeforeDiscount is the base commissions are computed on.
func (o Order) TotalBeforeDiscount() int64 {
	return o.TotalAmount + o.DiscountAmount
}

type ShippingAddress struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	State      string `json:"state,omitempty"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

func (a ShippingAddress) Empty() bool {
	return a.Line1 == "" && a.City == "" && a.PostalCode == "" && a.Country == ""
}

type Customer struct {
	ID              snowflake.ID                       `json:"id" gorm:"primaryKey"`
	Email           string                             `json:"email"`
	Name            *string                            `json:"name,omitempty"`
	ShippingAddress *datatypes.JSONType[ShippingAddress] `json:"shipping_address,omitempty"`
	CreatedAt       time.Time                          `json:"created_at"`
	UpdatedAt       time.Time                          `json:"updated_at"`
}

func (Customer) TableName() string { return "customers" }

type SupplierOrderStatus string

const SupplierOrderQueued SupplierOrderStatus = "queued"

// SupplierOrder asks the manufacturer to produce the plate for one order.
type SupplierOrder struct {
	ID          snowflake.ID        `json:"id" gorm:"primaryKey"`
	OrderID     snowflake.ID        `json:"order_id"`
	OrderNumber string              `json:"order_number"`
	ProductType catalog.ProductType `json:"product_type"`
	Quantity    int                 `json:"quantity"`
	Status      SupplierOrderStatus `json:"status"`
	CreatedAt   time.Time           `json:"created_at"`
}

func (SupplierOrder) TableName() string { return "supplier_orders" }
