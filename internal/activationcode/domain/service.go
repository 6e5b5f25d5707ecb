package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/memoria/internal/catalog"
	"gorm.io/gorm"
)

var (
	ErrInvalidQuantity = errors.New("invalid_quantity")
	ErrInvalidBatch    = errors.New("invalid_batch")
	ErrInvalidCode     = errors.New("invalid_code")
	ErrInvalidMemorial = errors.New("invalid_memorial")
	ErrCodeNotFound    = errors.New("activation_code_not_found")
	ErrCodeAlreadyUsed = errors.New("activation_code_already_used")
	ErrCodeExpired     = errors.New("activation_code_expired")
)

// Generator draws candidate codes. Implementations need not guarantee uniqueness.
type Generator interface {
	Next() (string, error)
}

// GenerateResult carries the codes found and how many could not be found
// within the attempt budget.
type GenerateResult struct {
	Codes     []string
	Shortfall int
}

type IssueRequest struct {
	BatchID         snowflake.ID
	PartnerID       snowflake.ID
	ProductType     catalog.ProductType
	HostingDuration catalog.HostingDuration
	Quantity        int
	ExpiresAt       *time.Time
}

type IssueResult struct {
	Requested int
	// Issued counts codes inserted by this call.
	Issued int
	// Total counts codes stored for the batch after this call.
	Total     int
	Shortfall int
}

type Repository interface {
	Exists(ctx context.Context, db *gorm.DB, code string) (bool, error)
	InsertBatch(ctx context.Context, db *gorm.DB, codes []*ActivationCode) (int64, error)
	CountByBatch(ctx context.Context, db *gorm.DB, batchID snowflake.ID) (Counts, error)
	CountByBatches(ctx context.Context, db *gorm.DB, batchIDs []snowflake.ID) (map[snowflake.ID]Counts, error)
	ListByBatch(ctx context.Context, db *gorm.DB, batchID snowflake.ID) ([]*ActivationCode, error)
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*ActivationCode, error)
	MarkUsed(ctx context.Context, db *gorm.DB, code string, memorialID snowflake.ID, now time.Time) (int64, error)
}

type Service interface {
	Generate(ctx context.Context, n int) (GenerateResult, error)
	Issue(ctx context.Context, req IssueRequest) (IssueResult, error)
	Redeem(ctx context.Context, code string, memorialID snowflake.ID) (*ActivationCode, error)
	CountByBatch(ctx context.Context, batchID snowflake.ID) (Counts, error)
	CountByBatches(ctx context.Context, batchIDs []snowflake.ID) (map[snowflake.ID]Counts, error)
	ListByBatch(ctx context.Context, batchID snowflake.ID) ([]*ActivationCode, error)
}
