package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/memoria/internal/catalog"
	"github.com/smallbiznis/memoria/pkg/db/pagination"
	"gorm.io/gorm"
)

// MaxQuantity bounds a single partner request.
const MaxQuantity = 1000

var (
	ErrInvalidBatch    = errors.New("invalid_code_batch")
	ErrInvalidQuantity = errors.New("invalid_quantity")
	ErrBatchNotFound   = errors.New("code_batch_not_found")
)

type RequestInput struct {
	PartnerID       snowflake.ID
	Quantity        int
	ProductType     string
	HostingDuration string
}

type TransitionResult struct {
	Applied bool
	Batch   *CodeBatch
}

type ListRequest struct {
	pagination.Pagination
	PartnerID snowflake.ID
	Status    Status
}

type ListResponse struct {
	Batches  []*CodeBatch         `json:"batches"`
	PageInfo *pagination.PageInfo `json:"page_info"`
}

type ListFilter struct {
	PartnerID snowflake.ID
	Status    Status
	Cursor    *pagination.KeysetCursor
	Limit     int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, batch *CodeBatch) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*CodeBatch, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*CodeBatch, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from []Status, to Status, fields map[string]any) (int64, error)
	SetErrorNote(ctx context.Context, db *gorm.DB, id snowflake.ID, note *string, now time.Time) error
}

type Service interface {
	Quote(ctx context.Context, input RequestInput) (Quote, error)
	Request(ctx context.Context, input RequestInput) (*CodeBatch, error)
	Get(ctx context.Context, id snowflake.ID) (*CodeBatch, error)
	ListByPartner(ctx context.Context, req ListRequest) (ListResponse, error)

	// MarkPaid is requested -> approved. Zero-row updates report Applied=false.
	MarkPaid(ctx context.Context, id snowflake.ID, paymentReference string) (TransitionResult, error)
	// MarkGenerated is approved -> generated.
	MarkGenerated(ctx context.Context, id snowflake.ID) (TransitionResult, error)
	Cancel(ctx context.Context, id snowflake.ID) (TransitionResult, error)
	// RecordError stores a note for manual follow-up; an empty note clears it.
	RecordError(ctx context.Context, id snowflake.ID, note string) error
}

// Quote is what a request will cost before it is stored.
type Quote struct {
	ProductType     catalog.ProductType     `json:"product_type"`
	HostingDuration catalog.HostingDuration `json:"hosting_duration"`
	Quantity        int                     `json:"quantity"`
	UnitAmount      int64                   `json:"unit_amount"`
	TotalAmount     int64                   `json:"total_amount"`
	Currency        string                  `json:"currency"`
}
