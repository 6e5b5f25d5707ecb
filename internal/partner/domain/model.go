package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/memoria/internal/transition"
	"gorm.io/gorm"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusRejected  Status = "rejected"
)

var Machine = transition.New(map[Status][]Status{
	StatusPending:   {StatusActive, StatusRejected},
	StatusActive:    {StatusSuspended},
	StatusSuspended: {StatusActive},
})

var (
	ErrInvalidPartner  = errors.New("invalid_partner")
	ErrPartnerNotFound = errors.New("partner_not_found")
	ErrPartnerInactive = errors.New("partner_inactive")
)

type Partner struct {
	ID                snowflake.ID    `json:"id" gorm:"primaryKey"`
	Name              string          `json:"name"`
	Email             string          `json:"email"`
	Status            Status          `json:"status"`
	CommissionPercent decimal.Decimal `json:"commission_percent"`
	DiscountPercent   decimal.Decimal `json:"discount_percent"`
	FreeShipping      bool            `json:"free_shipping"`
	PayoutDetails     *string         `json:"-"`
	NotifyEmail       bool            `json:"notify_email"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

func (Partner) TableName() string { return "partners" }

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Partner, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from []Status, to Status, now time.Time) (int64, error)
}

type Service interface {
	Get(ctx context.Context, id snowflake.ID) (*Partner, error)
	// RequireActive loads the partner and fails unless it may transact.
	RequireActive(ctx context.Context, id snowflake.ID) (*Partner, error)
	Activate(ctx context.Context, id snowflake.ID) (*Partner, error)
	Suspend(ctx context.Context, id snowflake.ID) (*Partner, error)
	Reject(ctx context.Context, id snowflake.ID) (*Partner, error)
}
