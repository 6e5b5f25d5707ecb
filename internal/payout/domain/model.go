package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const StatusCompleted Status = "completed"

// Payout groups one partner's approved commissions. Membership is fixed at
// creation; corrections are new records.
type Payout struct {
	ID               snowflake.ID `json:"id" gorm:"primaryKey"`
	PayoutNumber     string       `json:"payout_number"`
	PartnerID        snowflake.ID `json:"partner_id"`
	TotalAmount      int64        `json:"total_amount"`
	CommissionCount  int          `json:"commission_count"`
	Currency         string       `json:"currency"`
	PaymentReference *string      `json:"payment_reference,omitempty"`
	Notes            *string      `json:"notes,omitempty"`
	Status           Status       `json:"status"`
	CreatedAt        time.Time    `json:"created_at"`
	ProcessedAt      *time.Time   `json:"processed_at,omitempty"`
}

func (Payout) TableName() string { return "payouts" }
