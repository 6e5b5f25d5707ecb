package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/memoria/internal/activationcode/domain"
	"github.com/smallbiznis/memoria/internal/activationcode/generator"
	"github.com/smallbiznis/memoria/internal/clock"
	"github.com/smallbiznis/memoria/internal/config"
	obsmetrics "github.com/smallbiznis/memoria/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// maxInsertRounds bounds how often codes that lost an insert race are redrawn.
const maxInsertRounds = 3

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	Generator  domain.Generator
	Clock      clock.Clock
	Config     config.CodeConfig
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	clock      clock.Clock
	resolver   *Resolver
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	s := &Service{
		db:         p.DB,
		log:        p.Log.Named("activationcode.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		clock:      p.Clock,
		obsMetrics: p.ObsMetrics,
	}
	s.resolver = NewResolver(p.Generator, func(ctx context.Context, code string) (bool, error) {
		return s.repo.Exists(ctx, s.db, code)
	}, p.Config.AttemptBudget)
	return s
}

func (s *Service) Generate(ctx context.Context, n int) (domain.GenerateResult, error) {
	return s.resolver.Generate(ctx, n, nil)
}

// Issue tops a batch up to its requested quantity. Codes already stored for
// the batch count toward the quantity, so a retried call only fills the gap.
func (s *Service) Issue(ctx context.Context, req domain.IssueRequest) (domain.IssueResult, error) {
	if req.Quantity <= 0 {
		return domain.IssueResult{}, domain.ErrInvalidQuantity
	}
	if req.BatchID == 0 || req.PartnerID == 0 {
		return domain.IssueResult{}, domain.ErrInvalidBatch
	}

	counts, err := s.repo.CountByBatch(ctx, s.db, req.BatchID)
	if err != nil {
		return domain.IssueResult{}, err
	}

	result := domain.IssueResult{Requested: req.Quantity}
	missing := req.Quantity - int(counts.Total)
	lost := map[string]struct{}{}

	for round := 0; missing > 0 && round < maxInsertRounds; round++ {
		generated, err := s.resolver.Generate(ctx, missing, lost)
		if err != nil {
			return result, err
		}
		if len(generated.Codes) == 0 {
			break
		}

		now := s.clock.Now()
		rows := make([]*domain.ActivationCode, 0, len(generated.Codes))
		for _, code := range generated.Codes {
			rows = append(rows, &domain.ActivationCode{
				ID:              s.genID.Generate(),
				Code:            code,
				BatchID:         req.BatchID,
				PartnerID:       req.PartnerID,
				ProductType:     req.ProductType,
				HostingDuration: req.HostingDuration,
				ExpiresAt:       req.ExpiresAt,
				CreatedAt:       now,
			})
		}

		inserted, err := s.repo.InsertBatch(ctx, s.db, rows)
		if err != nil {
			return result, err
		}
		result.Issued += int(inserted)
		missing -= int(inserted)

		if lostRace := len(rows) - int(inserted); lostRace > 0 {
			s.log.Info("activation codes lost insert race, regenerating",
				zap.String("batch_id", req.BatchID.String()),
				zap.Int("count", lostRace),
			)
			// Remember the drawn codes so the next round never re-proposes them.
			for _, code := range generated.Codes {
				lost[code] = struct{}{}
			}
		}
	}

	result.Total = int(counts.Total) + result.Issued
	if missing > 0 {
		result.Shortfall = missing
		s.log.Warn("activation code shortfall",
			zap.String("batch_id", req.BatchID.String()),
			zap.String("partner_id", req.PartnerID.String()),
			zap.Int("requested", req.Quantity),
			zap.Int("shortfall", missing),
		)
	}
	s.obsMetrics.RecordCodesGenerated(ctx, string(req.ProductType), result.Issued, result.Shortfall)
	return result, nil
}

// Redeem marks a code used for memorialID. It succeeds exactly once per code.
func (s *Service) Redeem(ctx context.Context, code string, memorialID snowflake.ID) (*domain.ActivationCode, error) {
	code = generator.Normalize(code)
	if code == "" {
		return nil, domain.ErrInvalidCode
	}
	if memorialID == 0 {
		return nil, domain.ErrInvalidMemorial
	}

	now := s.clock.Now()
	affected, err := s.repo.MarkUsed(ctx, s.db, code, memorialID, now)
	if err != nil {
		return nil, err
	}

	row, err := s.repo.FindByCode(ctx, s.db, code)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, domain.ErrCodeNotFound
	}
	if affected == 1 {
		return row, nil
	}
	if row.IsUsed {
		return nil, domain.ErrCodeAlreadyUsed
	}
	if row.Expired(now) {
		return nil, domain.ErrCodeExpired
	}
	return nil, domain.ErrCodeAlreadyUsed
}

func (s *Service) CountByBatch(ctx context.Context, batchID snowflake.ID) (domain.Counts, error) {
	return s.repo.CountByBatch(ctx, s.db, batchID)
}

func (s *Service) CountByBatches(ctx context.Context, batchIDs []snowflake.ID) (map[snowflake.ID]domain.Counts, error) {
	return s.repo.CountByBatches(ctx, s.db, batchIDs)
}

func (s *Service) ListByBatch(ctx context.Context, batchID snowflake.ID) ([]*domain.ActivationCode, error) {
	return s.repo.ListByBatch(ctx, s.db, batchID)
}
