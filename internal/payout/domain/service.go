package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/memoria/pkg/db/pagination"
	"gorm.io/gorm"
)

var (
	ErrInvalidPayout         = errors.New("invalid_payout")
	ErrPayoutNotFound        = errors.New("payout_not_found")
	ErrNoEligibleCommissions = errors.New("no_eligible_commissions")
	ErrPayoutInProgress      = errors.New("payout_in_progress")
	ErrPayoutNumberExhausted = errors.New("payout_number_exhausted")
)

type CreateRequest struct {
	PartnerID        snowflake.ID
	PaymentReference string
	Notes            string
}

type ListRequest struct {
	pagination.Pagination
	PartnerID snowflake.ID
}

type ListResponse struct {
	Payouts  []*Payout            `json:"payouts"`
	PageInfo *pagination.PageInfo `json:"page_info"`
}

type ListFilter struct {
	PartnerID snowflake.ID
	Cursor    *pagination.KeysetCursor
	Limit     int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payout *Payout) error
	SetTotals(ctx context.Context, db *gorm.DB, id snowflake.ID, count int, total int64, processedAt time.Time) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payout, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Payout, error)
}

type Service interface {
	// CreatePayout settles every commission approved at call time for the
	// partner, atomically.
	CreatePayout(ctx context.Context, req CreateRequest) (*Payout, error)
	Get(ctx context.Context, id snowflake.ID) (*Payout, error)
	ListByPartner(ctx context.Context, req ListRequest) (ListResponse, error)
	// Statement renders the payout and its commissions as a PDF.
	Statement(ctx context.Context, id snowflake.ID) ([]byte, error)
}
