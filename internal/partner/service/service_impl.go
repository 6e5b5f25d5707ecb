package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/memoria/internal/audit/domain"
	"github.com/smallbiznis/memoria/internal/clock"
	"github.com/smallbiznis/memoria/internal/partner/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Repo     domain.Repository
	Clock    clock.Clock
	AuditSvc auditdomain.Service `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	repo     domain.Repository
	clock    clock.Clock
	auditSvc auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("partner.service"),
		repo:     p.Repo,
		clock:    p.Clock,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Partner, error) {
	if id == 0 {
		return nil, domain.ErrInvalidPartner
	}
	partner, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if partner == nil {
		return nil, domain.ErrPartnerNotFound
	}
	return partner, nil
}

func (s *Service) RequireActive(ctx context.Context, id snowflake.ID) (*domain.Partner, error) {
	partner, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if partner.Status != domain.StatusActive {
		return nil, domain.ErrPartnerInactive
	}
	return partner, nil
}

func (s *Service) Activate(ctx context.Context, id snowflake.ID) (*domain.Partner, error) {
	return s.transition(ctx, id, domain.StatusActive, "partner.activated")
}

func (s *Service) Suspend(ctx context.Context, id snowflake.ID) (*domain.Partner, error) {
	return s.transition(ctx, id, domain.StatusSuspended, "partner.suspended")
}

func (s *Service) Reject(ctx context.Context, id snowflake.ID) (*domain.Partner, error) {
	return s.transition(ctx, id, domain.StatusRejected, "partner.rejected")
}

// transition applies a conditional status change. Asking for the state the
// partner is already in is a no-op.
func (s *Service) transition(ctx context.Context, id snowflake.ID, to domain.Status, action string) (*domain.Partner, error) {
	if id == 0 {
		return nil, domain.ErrInvalidPartner
	}

	affected, err := s.repo.UpdateStatus(ctx, s.db, id, domain.Machine.Sources(to), to, s.clock.Now())
	if err != nil {
		return nil, err
	}

	partner, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		if partner.Status == to {
			return partner, nil
		}
		return nil, domain.Machine.Check("partner", id.String(), partner.Status, to)
	}

	if s.auditSvc != nil {
		targetID := id.String()
		if err := s.auditSvc.AuditLog(ctx, "", nil, action, "partner", &targetID, map[string]any{
			"status": string(to),
		}); err != nil {
			s.log.Warn("failed to write partner audit log", zap.String("partner_id", targetID), zap.Error(err))
		}
	}
	return partner, nil
}
