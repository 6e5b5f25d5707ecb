package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/smallbiznis/memoria/internal/order/domain"
	"gorm.io/datatypes"
)

// EventRecord is the receipt log of inbound gateway events. Correctness of
// the flows never depends on it; it exists for audit and replay.
type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"type:text;not null"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:text;not null"`
	EventType       string         `json:"event_type" gorm:"type:text;not null"`
	Payload         datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at"`
	ProcessingError *string        `json:"processing_error,omitempty"`
}

func (EventRecord) TableName() string { return "payment_events" }

// Metadata discriminators carried on the checkout session.
const (
	MetadataTypeOrder     = "order"
	MetadataTypeCodeBatch = "partner_code_batch"
)

// EventMeta is shared by every variant.
type EventMeta struct {
	Provider        string
	ProviderEventID string
	Type            string
	OccurredAt      time.Time
}

// Event is the closed set of gateway events the processor understands.
type Event interface {
	Meta() EventMeta
	Kind() string
}

type OrderPaymentCompleted struct {
	EventMeta
	OrderNumber      string
	PaymentReference string
	ReferralCode     string
	CustomerEmail    string
	AmountTotal      int64
	Currency         string
	Shipping         *orderdomain.ShippingAddress
}

type OrderPaymentExpired struct {
	EventMeta
	OrderNumber string
}

type CodeBatchCompleted struct {
	EventMeta
	BatchID          snowflake.ID
	PaymentReference string
}

type CodeBatchExpired struct {
	EventMeta
	BatchID snowflake.ID
}

// Unhandled is acknowledged and ignored.
type Unhandled struct {
	EventMeta
	Reason string
}

func (e EventMeta) Meta() EventMeta { return e }

func (OrderPaymentCompleted) Kind() string { return "order_payment_completed" }
func (OrderPaymentExpired) Kind() string   { return "order_payment_expired" }
func (CodeBatchCompleted) Kind() string    { return "code_batch_completed" }
func (CodeBatchExpired) Kind() string      { return "code_batch_expired" }
func (Unhandled) Kind() string             { return "unhandled" }

// Outcome summarizes what one delivery did. Retry marks warnings from steps
// that a redelivery can still complete.
type Outcome struct {
	EventID   string   `json:"event_id"`
	Kind      string   `json:"kind"`
	Applied   bool     `json:"applied"`
	Duplicate bool     `json:"duplicate,omitempty"`
	Ignored   bool     `json:"ignored,omitempty"`
	Retry     bool     `json:"retry,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
}
