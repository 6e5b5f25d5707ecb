package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

type Kind string

const (
	KindOrderConfirmation   Kind = "order.confirmation"
	KindFulfillmentRequired Kind = "order.fulfillment_required"
	KindCommissionEarned    Kind = "commission.earned"
	KindCodeBatchReady      Kind = "code_batch.ready"
	KindCodeBatchFailed     Kind = "code_batch.failed"
	KindPayoutCreated       Kind = "payout.created"
)

// Notification is one outbox row. DedupeKey makes retried producers write it once.
type Notification struct {
	ID        snowflake.ID      `gorm:"primaryKey"`
	Kind      Kind              `gorm:"type:text;not null"`
	Recipient string            `gorm:"type:text;not null"`
	DedupeKey string            `gorm:"type:text;not null;uniqueIndex:ux_notification_outbox_dedupe"`
	Payload   datatypes.JSONMap `gorm:"type:jsonb;not null"`
	Status    Status            `gorm:"type:text;not null;default:'pending'"`
	Attempts  int               `gorm:"not null;default:0"`
	LastError *string           `gorm:"type:text"`
	CreatedAt time.Time         `gorm:"not null"`
	SentAt    *time.Time
}

func (Notification) TableName() string { return "notification_outbox" }
