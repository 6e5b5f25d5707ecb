package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/memoria/internal/transition"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
)

// Machine lists every legal edge. approved -> paid is only ever applied by
// the payout batcher through SettleTx.
var Machine = transition.New(map[Status][]Status{
	StatusPending:  {StatusApproved, StatusCancelled},
	StatusApproved: {StatusPaid},
})

func ParseStatus(raw string) (Status, error) {
	switch status := Status(raw); status {
	case StatusPending, StatusApproved, StatusPaid, StatusCancelled:
		return status, nil
	default:
		return "", ErrInvalidStatus
	}
}

// Commission is a financial audit record and is never deleted. The amount is
// computed once when the record is created.
type Commission struct {
	ID                       snowflake.ID    `json:"id" gorm:"primaryKey"`
	PartnerID                snowflake.ID    `json:"partner_id"`
	OrderID                  snowflake.ID    `json:"order_id"`
	ReferralCodeID           snowflake.ID    `json:"referral_code_id"`
	OrderTotalBeforeDiscount int64           `json:"order_total_before_discount"`
	DiscountAmount           int64           `json:"discount_amount"`
	CommissionPercent        decimal.Decimal `json:"commission_percent"`
	CommissionAmount         int64           `json:"commission_amount"`
	Currency                 string          `json:"currency"`
	Status                   Status          `json:"status"`
	EarnedAt                 time.Time       `json:"earned_at"`
	ApprovedAt               *time.Time      `json:"approved_at,omitempty"`
	PaidAt                   *time.Time      `json:"paid_at,omitempty"`
	CancelledAt              *time.Time      `json:"cancelled_at,omitempty"`
	PayoutID                 *snowflake.ID   `json:"payout_id,omitempty"`
	PayoutReference          *string         `json:"payout_reference,omitempty"`
	Notes                    *string         `json:"notes,omitempty"`
	CreatedAt                time.Time       `json:"created_at"`
	UpdatedAt                time.Time       `json:"updated_at"`
}

func (Commission) TableName() string { return "commissions" }

type StatusTotal struct {
	Status Status `json:"status"`
	Count  int64  `json:"count"`
	Amount int64  `json:"amount"`
}

type Summary struct {
	PartnerID snowflake.ID  `json:"partner_id"`
	Currency  string        `json:"currency"`
	Totals    []StatusTotal `json:"totals"`
	// Outstanding is earned but not yet paid out (pending + approved).
	Outstanding int64 `json:"outstanding"`
}
