package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/memoria/internal/catalog"
)

// ActivationCode is a single-use redemption string. The code column is
// unique in the store; that constraint, not any in-process check, is what
// guarantees two batches never share a code.
type ActivationCode struct {
	ID              snowflake.ID            `json:"id" gorm:"primaryKey"`
	Code            string                  `json:"code"`
	BatchID         snowflake.ID            `json:"batch_id"`
	PartnerID       snowflake.ID            `json:"partner_id"`
	ProductType     catalog.ProductType     `json:"product_type"`
	HostingDuration catalog.HostingDuration `json:"hosting_duration"`
	IsUsed          bool                    `json:"is_used"`
	UsedAt          *time.Time              `json:"used_at,omitempty"`
	MemorialID      *snowflake.ID           `json:"memorial_id,omitempty"`
	ExpiresAt       *time.Time              `json:"expires_at,omitempty"`
	CreatedAt       time.Time               `json:"created_at"`
}

func (ActivationCode) TableName() string { return "activation_codes" }

// Expired reports whether the code can no longer be redeemed at now.
func (c ActivationCode) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}

type Counts struct {
	Total int64 `json:"total"`
	Used  int64 `json:"used"`
}
