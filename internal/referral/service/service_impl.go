package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/memoria/internal/clock"
	"github.com/smallbiznis/memoria/internal/referral/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Repo  domain.Repository
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	clock clock.Clock
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("referral.service"),
		repo:  p.Repo,
		clock: p.Clock,
	}
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.ReferralCode, error) {
	if id == 0 {
		return nil, domain.ErrInvalidReferralCode
	}
	code, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if code == nil {
		return nil, domain.ErrReferralCodeNotFound
	}
	return code, nil
}

func (s *Service) FindByCode(ctx context.Context, raw string) (*domain.ReferralCode, error) {
	raw = strings.ToUpper(strings.TrimSpace(raw))
	if raw == "" {
		return nil, domain.ErrInvalidReferralCode
	}
	code, err := s.repo.FindByCode(ctx, s.db, raw)
	if err != nil {
		return nil, err
	}
	if code == nil {
		return nil, domain.ErrReferralCodeNotFound
	}
	return code, nil
}

func (s *Service) ClaimTx(ctx context.Context, tx *gorm.DB, id, orderID snowflake.ID) (domain.ClaimResult, error) {
	if id == 0 || orderID == 0 {
		return domain.ClaimResult{}, domain.ErrInvalidReferralCode
	}

	affected, err := s.repo.Claim(ctx, tx, id, orderID, s.clock.Now())
	if err != nil {
		return domain.ClaimResult{}, err
	}

	code, err := s.repo.FindByID(ctx, tx, id)
	if err != nil {
		return domain.ClaimResult{}, err
	}
	if code == nil {
		return domain.ClaimResult{}, domain.ErrReferralCodeNotFound
	}

	result := domain.ClaimResult{
		Claimed:     affected == 1,
		HeldByOrder: code.OrderID != nil && *code.OrderID == orderID,
		Code:        code,
	}
	if !result.HeldByOrder {
		s.log.Info("referral code already redeemed by another order",
			zap.String("referral_code_id", id.String()),
			zap.String("order_id", orderID.String()),
		)
	}
	return result, nil
}
