package domain

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/memoria/pkg/db/pagination"
	"gorm.io/gorm"
)

// MaxBulkApprove caps the identifiers accepted by one bulk call.
const MaxBulkApprove = 500

var (
	ErrInvalidCommission     = errors.New("invalid_commission")
	ErrInvalidStatus         = errors.New("invalid_commission_status")
	ErrInvalidTimeRange      = errors.New("invalid_time_range")
	ErrCommissionNotFound    = errors.New("commission_not_found")
	ErrEmptyBulkRequest      = errors.New("empty_bulk_request")
	ErrBulkRequestTooLarge   = errors.New("bulk_request_too_large")
	ErrInvalidOrderAmount    = errors.New("invalid_order_amount")
	ErrInvalidReferralLink   = errors.New("invalid_referral_link")
	ErrInvalidSettlement     = errors.New("invalid_settlement")
)

type RecordInput struct {
	PartnerID                snowflake.ID
	OrderID                  snowflake.ID
	ReferralCodeID           snowflake.ID
	OrderTotalBeforeDiscount int64
	DiscountAmount           int64
	CommissionPercent        decimal.Decimal
	Currency                 string
	EarnedAt                 time.Time
}

type RecordResult struct {
	Commission *Commission
	// Created is false when the (order, referral code) pair already had one.
	Created bool
}

type BulkFailure struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

type BulkResult struct {
	Approved        int           `json:"approved"`
	AlreadyApproved int           `json:"already_approved"`
	Failed          int           `json:"failed"`
	Failures        []BulkFailure `json:"failures,omitempty"`
}

// SettleResult describes the commissions moved to paid by one payout.
type SettleResult struct {
	Count int
	Total int64
}

type ListRequest struct {
	pagination.Pagination
	PartnerID snowflake.ID
	Status    Status
	From      *time.Time
	To        *time.Time
}

type ListResponse struct {
	Commissions []*Commission        `json:"commissions"`
	PageInfo    *pagination.PageInfo `json:"page_info"`
}

type ListFilter struct {
	PartnerID snowflake.ID
	PayoutID  snowflake.ID
	Status    Status
	From      *time.Time
	To        *time.Time
	Cursor    *pagination.KeysetCursor
	// Limit 0 returns every match.
	Limit int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, commission *Commission) (int64, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Commission, error)
	FindByOrderReferral(ctx context.Context, db *gorm.DB, orderID, referralCodeID snowflake.ID) (*Commission, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Commission, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from Status, to Status, fields map[string]any) (int64, error)
	// Settle marks every approved commission of partner in currency as paid by payoutID.
	Settle(ctx context.Context, db *gorm.DB, partnerID snowflake.ID, currency string, payoutID snowflake.ID, payoutNumber string, now time.Time) (int64, error)
	SumByPayout(ctx context.Context, db *gorm.DB, payoutID snowflake.ID) (count int64, total int64, err error)
	Totals(ctx context.Context, db *gorm.DB, partnerID snowflake.ID, currency string) ([]StatusTotal, error)
}

type Service interface {
	// Record creates the commission for an order redeemed with a referral
	// code, or returns the existing one.
	Record(ctx context.Context, input RecordInput) (RecordResult, error)
	RecordTx(ctx context.Context, tx *gorm.DB, input RecordInput) (RecordResult, error)

	Get(ctx context.Context, id snowflake.ID) (*Commission, error)
	Approve(ctx context.Context, id snowflake.ID) (*Commission, error)
	Reject(ctx context.Context, id snowflake.ID, notes string) (*Commission, error)
	// BulkApprove approves each id independently; one failure does not
	// affect the others.
	BulkApprove(ctx context.Context, ids []string) (BulkResult, error)

	// SettleTx runs inside the payout transaction.
	SettleTx(ctx context.Context, tx *gorm.DB, partnerID snowflake.ID, currency string, payoutID snowflake.ID, payoutNumber string) (SettleResult, error)
	ListByPayout(ctx context.Context, payoutID snowflake.ID) ([]*Commission, error)

	List(ctx context.Context, req ListRequest) (ListResponse, error)
	Summary(ctx context.Context, partnerID snowflake.ID) (Summary, error)
	ExportCSV(ctx context.Context, w io.Writer, req ListRequest) error
}

// ExportFilename names a CSV download, e.g. "commissions-atelier-noord-2026-03-01.csv".
func ExportFilename(partnerName string, at time.Time) string {
	name := slug.Make(partnerName)
	if name == "" {
		name = "partner"
	}
	return "commissions-" + name + "-" + at.UTC().Format("2006-01-02") + ".csv"
}
