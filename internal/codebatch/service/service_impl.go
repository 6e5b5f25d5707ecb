package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	activationcodedomain "github.com/smallbiznis/memoria/internal/activationcode/domain"
	auditdomain "github.com/smallbiznis/memoria/internal/audit/domain"
	"github.com/smallbiznis/memoria/internal/catalog"
	"github.com/smallbiznis/memoria/internal/clock"
	"github.com/smallbiznis/memoria/internal/codebatch/domain"
	"github.com/smallbiznis/memoria/internal/config"
	partnerdomain "github.com/smallbiznis/memoria/internal/partner/domain"
	"github.com/smallbiznis/memoria/internal/pricing"
	"github.com/smallbiznis/memoria/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	Clock      clock.Clock
	Pricing    *config.PricingHolder
	PartnerSvc partnerdomain.Service
	CodeSvc    activationcodedomain.Service
	AuditSvc   auditdomain.Service `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	clock      clock.Clock
	pricing    *config.PricingHolder
	partnerSvc partnerdomain.Service
	codeSvc    activationcodedomain.Service
	auditSvc   auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("codebatch.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		clock:      p.Clock,
		pricing:    p.Pricing,
		partnerSvc: p.PartnerSvc,
		codeSvc:    p.CodeSvc,
		auditSvc:   p.AuditSvc,
	}
}

func (s *Service) Quote(ctx context.Context, input domain.RequestInput) (domain.Quote, error) {
	if input.Quantity <= 0 || input.Quantity > domain.MaxQuantity {
		return domain.Quote{}, domain.ErrInvalidQuantity
	}
	productType, err := catalog.ParseProductType(input.ProductType)
	if err != nil {
		return domain.Quote{}, err
	}
	duration, err := catalog.ParseHostingDuration(input.HostingDuration)
	if err != nil {
		return domain.Quote{}, err
	}

	price, err := pricing.Resolve(
		s.clock.Now(),
		pricing.Key{ProductType: productType, HostingDuration: duration},
		s.pricing.Overrides(),
		s.pricing.Defaults(),
	)
	if err != nil {
		return domain.Quote{}, err
	}
	total, err := pricing.Quote(price, input.Quantity)
	if err != nil {
		return domain.Quote{}, domain.ErrInvalidQuantity
	}
	return domain.Quote{
		ProductType:     productType,
		HostingDuration: duration,
		Quantity:        input.Quantity,
		UnitAmount:      price.UnitAmount,
		TotalAmount:     total,
		Currency:        price.Currency,
	}, nil
}

func (s *Service) Request(ctx context.Context, input domain.RequestInput) (*domain.CodeBatch, error) {
	if input.PartnerID == 0 {
		return nil, partnerdomain.ErrInvalidPartner
	}
	quote, err := s.Quote(ctx, input)
	if err != nil {
		return nil, err
	}
	if _, err := s.partnerSvc.RequireActive(ctx, input.PartnerID); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	batch := &domain.CodeBatch{
		ID:              s.genID.Generate(),
		PartnerID:       input.PartnerID,
		Quantity:        quote.Quantity,
		ProductType:     quote.ProductType,
		HostingDuration: quote.HostingDuration,
		UnitAmount:      quote.UnitAmount,
		TotalAmount:     quote.TotalAmount,
		Currency:        quote.Currency,
		Status:          domain.StatusRequested,
		RequestedAt:     now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Insert(ctx, s.db, batch); err != nil {
		return nil, err
	}

	s.audit(ctx, "code_batch.requested", batch, map[string]any{
		"quantity":     batch.Quantity,
		"total_amount": batch.TotalAmount,
		"currency":     batch.Currency,
	})
	return batch, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.CodeBatch, error) {
	batch, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	counts, err := s.codeSvc.CountByBatch(ctx, id)
	if err != nil {
		return nil, err
	}
	batch.TotalCodes = counts.Total
	batch.UsedCodes = counts.Used
	return batch, nil
}

func (s *Service) ListByPartner(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	if req.PartnerID == 0 {
		return domain.ListResponse{}, partnerdomain.ErrInvalidPartner
	}
	cursor, err := pagination.DecodeKeyset(req.PageToken)
	if err != nil {
		return domain.ListResponse{}, err
	}

	limit := req.Limit()
	items, err := s.repo.List(ctx, s.db, domain.ListFilter{
		PartnerID: req.PartnerID,
		Status:    req.Status,
		Cursor:    cursor,
		Limit:     limit,
	})
	if err != nil {
		return domain.ListResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, int32(limit), func(item *domain.CodeBatch) string {
		return pagination.EncodeKeyset(item.ID, item.CreatedAt)
	})
	if len(items) > limit {
		items = items[:limit]
	}

	ids := make([]snowflake.ID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	counts, err := s.codeSvc.CountByBatches(ctx, ids)
	if err != nil {
		return domain.ListResponse{}, err
	}
	for _, item := range items {
		c := counts[item.ID]
		item.TotalCodes = c.Total
		item.UsedCodes = c.Used
	}

	return domain.ListResponse{Batches: items, PageInfo: pageInfo}, nil
}

func (s *Service) MarkPaid(ctx context.Context, id snowflake.ID, paymentReference string) (domain.TransitionResult, error) {
	now := s.clock.Now()
	fields := map[string]any{
		"approved_at": now,
		"updated_at":  now,
	}
	if ref := strings.TrimSpace(paymentReference); ref != "" {
		fields["payment_reference"] = ref
	}
	return s.conditional(ctx, id, []domain.Status{domain.StatusRequested}, domain.StatusApproved, fields)
}

func (s *Service) MarkGenerated(ctx context.Context, id snowflake.ID) (domain.TransitionResult, error) {
	now := s.clock.Now()
	return s.conditional(ctx, id, []domain.Status{domain.StatusApproved}, domain.StatusGenerated, map[string]any{
		"generated_at": now,
		"error_note":   nil,
		"updated_at":   now,
	})
}

func (s *Service) Cancel(ctx context.Context, id snowflake.ID) (domain.TransitionResult, error) {
	now := s.clock.Now()
	return s.conditional(ctx, id, domain.Machine.Sources(domain.StatusCancelled), domain.StatusCancelled, map[string]any{
		"cancelled_at": now,
		"updated_at":   now,
	})
}

func (s *Service) conditional(ctx context.Context, id snowflake.ID, from []domain.Status, to domain.Status, fields map[string]any) (domain.TransitionResult, error) {
	if id == 0 {
		return domain.TransitionResult{}, domain.ErrInvalidBatch
	}
	affected, err := s.repo.UpdateStatus(ctx, s.db, id, from, to, fields)
	if err != nil {
		return domain.TransitionResult{}, err
	}
	batch, err := s.load(ctx, id)
	if err != nil {
		return domain.TransitionResult{}, err
	}
	if affected == 1 {
		s.audit(ctx, "code_batch."+string(to), batch, map[string]any{"status": string(to)})
	}
	return domain.TransitionResult{Applied: affected == 1, Batch: batch}, nil
}

func (s *Service) RecordError(ctx context.Context, id snowflake.ID, note string) error {
	if id == 0 {
		return domain.ErrInvalidBatch
	}
	var value *string
	if note = strings.TrimSpace(note); note != "" {
		value = &note
	}
	return s.repo.SetErrorNote(ctx, s.db, id, value, s.clock.Now())
}

func (s *Service) load(ctx context.Context, id snowflake.ID) (*domain.CodeBatch, error) {
	if id == 0 {
		return nil, domain.ErrInvalidBatch
	}
	batch, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, domain.ErrBatchNotFound
	}
	return batch, nil
}

func (s *Service) audit(ctx context.Context, action string, batch *domain.CodeBatch, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	targetID := batch.ID.String()
	metadata["partner_id"] = batch.PartnerID.String()
	if err := s.auditSvc.AuditLog(ctx, "", nil, action, "code_batch", &targetID, metadata); err != nil {
		s.log.Warn("failed to write code batch audit log", zap.String("batch_id", targetID), zap.Error(err))
	}
}
