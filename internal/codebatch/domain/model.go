package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/memoria/internal/catalog"
	"github.com/smallbiznis/memoria/internal/transition"
)

type Status string

const (
	StatusRequested Status = "requested"
	StatusApproved  Status = "approved"
	StatusGenerated Status = "generated"
	StatusCancelled Status = "cancelled"
)

// Machine covers every edge, but approved -> generated is only driven by the
// payment event processor after codes have been issued.
var Machine = transition.New(map[Status][]Status{
	StatusRequested: {StatusApproved, StatusCancelled},
	StatusApproved:  {StatusGenerated, StatusCancelled},
})

type CodeBatch struct {
	ID               snowflake.ID            `json:"id" gorm:"primaryKey"`
	PartnerID        snowflake.ID            `json:"partner_id"`
	Quantity         int                     `json:"quantity"`
	ProductType      catalog.ProductType     `json:"product_type"`
	HostingDuration  catalog.HostingDuration `json:"hosting_duration"`
	UnitAmount       int64                   `json:"unit_amount"`
	TotalAmount      int64                   `json:"total_amount"`
	Currency         string                  `json:"currency"`
	Status           Status                  `json:"status"`
	PaymentReference *string                 `json:"payment_reference,omitempty"`
	ErrorNote        *string                 `json:"error_note,omitempty"`
	RequestedAt      time.Time               `json:"requested_at"`
	ApprovedAt       *time.Time              `json:"approved_at,omitempty"`
	GeneratedAt      *time.Time              `json:"generated_at,omitempty"`
	CancelledAt      *time.Time              `json:"cancelled_at,omitempty"`
	CreatedAt        time.Time               `json:"created_at"`
	UpdatedAt        time.Time               `json:"updated_at"`

	TotalCodes int64 `json:"total_codes" gorm:"-"`
	UsedCodes  int64 `json:"used_codes" gorm:"-"`
}

func (CodeBatch) TableName() string { return "code_batches" }
