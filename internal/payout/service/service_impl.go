package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/memoria/internal/audit/domain"
	"github.com/smallbiznis/memoria/internal/clock"
	commissiondomain "github.com/smallbiznis/memoria/internal/commission/domain"
	"github.com/smallbiznis/memoria/internal/config"
	ledgerdomain "github.com/smallbiznis/memoria/internal/ledger/domain"
	"github.com/smallbiznis/memoria/internal/money"
	notificationdomain "github.com/smallbiznis/memoria/internal/notification/domain"
	obsmetrics "github.com/smallbiznis/memoria/internal/observability/metrics"
	partnerdomain "github.com/smallbiznis/memoria/internal/partner/domain"
	"github.com/smallbiznis/memoria/internal/payout/domain"
	"github.com/smallbiznis/memoria/internal/providers/pdf"
	"github.com/smallbiznis/memoria/internal/ratelimit"
	"github.com/smallbiznis/memoria/pkg/db"
	"github.com/smallbiznis/memoria/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxNumberAttempts = 5

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Repo          domain.Repository
	Clock         clock.Clock
	Config        config.Config
	CommissionSvc commissiondomain.Service
	PartnerSvc    partnerdomain.Service
	LedgerSvc     ledgerdomain.Service
	PDF           pdf.Provider        `optional:"true"`
	Guard         *ratelimit.Guard    `optional:"true"`
	AuditSvc      auditdomain.Service `optional:"true"`
	Notifier      notificationdomain.Service `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics `optional:"true"`
	Number        NumberFunc          `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	repo          domain.Repository
	clock         clock.Clock
	currency      string
	commissionSvc commissiondomain.Service
	partnerSvc    partnerdomain.Service
	ledgerSvc     ledgerdomain.Service
	pdf           pdf.Provider
	guard         *ratelimit.Guard
	auditSvc      auditdomain.Service
	notifier      notificationdomain.Service
	obsMetrics    *obsmetrics.Metrics
	nextNumber    NumberFunc
}

func NewService(p Params) domain.Service {
	currency := strings.ToUpper(strings.TrimSpace(p.Config.SettlementCurrency))
	if currency == "" {
		currency = "EUR"
	}
	number := p.Number
	if number == nil {
		number = RandomNumber
	}
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("payout.service"),
		genID:         p.GenID,
		repo:          p.Repo,
		clock:         p.Clock,
		currency:      currency,
		commissionSvc: p.CommissionSvc,
		partnerSvc:    p.PartnerSvc,
		ledgerSvc:     p.LedgerSvc,
		pdf:           p.PDF,
		guard:         p.Guard,
		auditSvc:      p.AuditSvc,
		notifier:      p.Notifier,
		obsMetrics:    p.ObsMetrics,
		nextNumber:    number,
	}
}

func (s *Service) CreatePayout(ctx context.Context, req domain.CreateRequest) (*domain.Payout, error) {
	if req.PartnerID == 0 {
		return nil, domain.ErrInvalidPayout
	}
	partner, err := s.partnerSvc.Get(ctx, req.PartnerID)
	if err != nil {
		return nil, err
	}

	var payout *domain.Payout
	err = s.guard.WithPayoutLock(ctx, partner.ID, func(ctx context.Context) error {
		var err error
		payout, err = s.create(ctx, partner.ID, req)
		return err
	})
	if errors.Is(err, ratelimit.ErrLockHeld) {
		return nil, domain.ErrPayoutInProgress
	}
	if err != nil {
		return nil, err
	}

	s.obsMetrics.RecordPayout(ctx, payout.Currency, payout.TotalAmount)
	s.log.Info("payout created",
		zap.String("payout_number", payout.PayoutNumber),
		zap.String("partner_id", partner.ID.String()),
		zap.Int("commission_count", payout.CommissionCount),
		zap.Int64("total_amount", payout.TotalAmount),
	)
	s.notifyPartner(ctx, partner, payout)
	return payout, nil
}

// notifyPartner is best effort; the payout is already committed.
func (s *Service) notifyPartner(ctx context.Context, partner *partnerdomain.Partner, payout *domain.Payout) {
	if s.notifier == nil || !partner.NotifyEmail || partner.Email == "" {
		return
	}
	_, err := s.notifier.Enqueue(ctx, notificationdomain.Message{
		Kind:      notificationdomain.KindPayoutCreated,
		Recipient: partner.Email,
		DedupeKey: "payout.created:" + payout.ID.String(),
		Payload: map[string]any{
			"payout_number":    payout.PayoutNumber,
			"amount":           money.FormatMinor(payout.TotalAmount, payout.Currency),
			"commission_count": payout.CommissionCount,
		},
	})
	if err != nil {
		s.log.Warn("payout notification failed",
			zap.String("payout_number", payout.PayoutNumber),
			zap.String("partner_id", partner.ID.String()),
			zap.Error(err),
		)
	}
}

// create retries only when the generated payout number collides.
func (s *Service) create(ctx context.Context, partnerID snowflake.ID, req domain.CreateRequest) (*domain.Payout, error) {
	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		now := s.clock.Now()
		number, err := s.nextNumber(now)
		if err != nil {
			return nil, err
		}

		payout := &domain.Payout{
			ID:               s.genID.Generate(),
			PayoutNumber:     number,
			PartnerID:        partnerID,
			Currency:         s.currency,
			PaymentReference: optionalString(req.PaymentReference),
			Notes:            optionalString(req.Notes),
			Status:           domain.StatusCompleted,
			CreatedAt:        now,
		}

		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return s.createTx(ctx, tx, payout, now)
		})
		if err == nil {
			return payout, nil
		}
		if db.IsUniqueViolation(err, "ux_payouts_number", "payouts.payout_number") {
			s.log.Warn("payout number collision, retrying", zap.String("payout_number", number))
			continue
		}
		return nil, err
	}
	return nil, domain.ErrPayoutNumberExhausted
}

func (s *Service) createTx(ctx context.Context, tx *gorm.DB, payout *domain.Payout, now time.Time) error {
	if err := s.repo.Insert(ctx, tx, payout); err != nil {
		return err
	}

	settled, err := s.commissionSvc.SettleTx(ctx, tx, payout.PartnerID, payout.Currency, payout.ID, payout.PayoutNumber)
	if err != nil {
		return err
	}
	if settled.Count == 0 {
		return domain.ErrNoEligibleCommissions
	}

	payout.CommissionCount = settled.Count
	payout.TotalAmount = settled.Total
	payout.ProcessedAt = &now
	if err := s.repo.SetTotals(ctx, tx, payout.ID, settled.Count, settled.Total, now); err != nil {
		return err
	}

	if settled.Total > 0 {
		if _, err := s.ledgerSvc.CreateEntryTx(ctx, tx, ledgerdomain.EntryInput{
			SourceType: ledgerdomain.SourceTypePayout,
			SourceID:   payout.ID,
			Currency:   payout.Currency,
			OccurredAt: now,
			Postings: ledgerdomain.Transfer(
				ledgerdomain.AccountCodeCommissionPayable,
				ledgerdomain.AccountCodeCash,
				settled.Total,
			),
		}); err != nil {
			return err
		}
	}

	if s.auditSvc != nil {
		targetID := payout.ID.String()
		if err := s.auditSvc.AuditLogTx(ctx, tx, "", nil, "payout.created", "payout", &targetID, map[string]any{
			"payout_number":     payout.PayoutNumber,
			"partner_id":        payout.PartnerID.String(),
			"total_amount":      payout.TotalAmount,
			"commission_count":  payout.CommissionCount,
			"payment_reference": deref(payout.PaymentReference),
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Payout, error) {
	if id == 0 {
		return nil, domain.ErrInvalidPayout
	}
	payout, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if payout == nil {
		return nil, domain.ErrPayoutNotFound
	}
	return payout, nil
}

func (s *Service) ListByPartner(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	if req.PartnerID == 0 {
		return domain.ListResponse{}, domain.ErrInvalidPayout
	}
	cursor, err := pagination.DecodeKeyset(req.PageToken)
	if err != nil {
		return domain.ListResponse{}, err
	}

	limit := req.Limit()
	items, err := s.repo.List(ctx, s.db, domain.ListFilter{
		PartnerID: req.PartnerID,
		Cursor:    cursor,
		Limit:     limit,
	})
	if err != nil {
		return domain.ListResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, int32(limit), func(item *domain.Payout) string {
		return pagination.EncodeKeyset(item.ID, item.CreatedAt)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return domain.ListResponse{Payouts: items, PageInfo: pageInfo}, nil
}

func (s *Service) Statement(ctx context.Context, id snowflake.ID) ([]byte, error) {
	if s.pdf == nil {
		return nil, errors.New("pdf provider not configured")
	}
	payout, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	partner, err := s.partnerSvc.Get(ctx, payout.PartnerID)
	if err != nil {
		return nil, err
	}
	commissions, err := s.commissionSvc.ListByPayout(ctx, payout.ID)
	if err != nil {
		return nil, err
	}

	data := pdf.StatementData{
		PayoutNumber:     payout.PayoutNumber,
		PartnerName:      partner.Name,
		PartnerEmail:     partner.Email,
		IssuedAt:         payout.CreatedAt.UTC().Format("2006-01-02"),
		PaymentReference: deref(payout.PaymentReference),
		Notes:            deref(payout.Notes),
		Total:            money.FormatMinor(payout.TotalAmount, payout.Currency),
		CommissionCount:  payout.CommissionCount,
	}
	for _, c := range commissions {
		data.Lines = append(data.Lines, pdf.StatementLine{
			CommissionID: c.ID.String(),
			OrderID:      c.OrderID.String(),
			EarnedAt:     c.EarnedAt.UTC().Format("2006-01-02"),
			OrderTotal:   money.ToMajor(c.OrderTotalBeforeDiscount).StringFixed(2),
			Percent:      c.CommissionPercent.String(),
			Amount:       money.ToMajor(c.CommissionAmount).StringFixed(2),
		})
	}
	return s.pdf.GenerateStatement(ctx, data)
}

func optionalString(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
