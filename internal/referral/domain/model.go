package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrInvalidReferralCode  = errors.New("invalid_referral_code")
	ErrReferralCodeNotFound = errors.New("referral_code_not_found")
)

// ReferralCode grants a discount and credits its partner a commission.
// Once IsUsed is set, OrderID never changes.
type ReferralCode struct {
	ID                snowflake.ID    `json:"id" gorm:"primaryKey"`
	Code              string          `json:"code"`
	PartnerID         snowflake.ID    `json:"partner_id"`
	BatchID           *snowflake.ID   `json:"batch_id,omitempty"`
	DiscountPercent   decimal.Decimal `json:"discount_percent"`
	CommissionPercent decimal.Decimal `json:"commission_percent"`
	FreeShipping      bool            `json:"free_shipping"`
	IsUsed            bool            `json:"is_used"`
	OrderID           *snowflake.ID   `json:"order_id,omitempty"`
	UsedAt            *time.Time      `json:"used_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

func (ReferralCode) TableName() string { return "referral_codes" }

// ClaimResult describes what a claim attempt observed.
type ClaimResult struct {
	// Claimed is true when this call consumed the code.
	Claimed bool
	// HeldByOrder is true when the code is linked to the requesting order,
	// either by this call or an earlier delivery.
	HeldByOrder bool
	Code        *ReferralCode
}

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*ReferralCode, error)
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*ReferralCode, error)
	Claim(ctx context.Context, db *gorm.DB, id, orderID snowflake.ID, now time.Time) (int64, error)
}

type Service interface {
	Get(ctx context.Context, id snowflake.ID) (*ReferralCode, error)
	FindByCode(ctx context.Context, code string) (*ReferralCode, error)
	// ClaimTx consumes the code for orderID on the caller's transaction.
	ClaimTx(ctx context.Context, tx *gorm.DB, id, orderID snowflake.ID) (ClaimResult, error)
}
