package service

import (
	"context"
	"encoding/csv"
	"io"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/memoria/internal/audit/domain"
	"github.com/smallbiznis/memoria/internal/clock"
	"github.com/smallbiznis/memoria/internal/commission/domain"
	"github.com/smallbiznis/memoria/internal/config"
	ledgerdomain "github.com/smallbiznis/memoria/internal/ledger/domain"
	"github.com/smallbiznis/memoria/internal/money"
	obsmetrics "github.com/smallbiznis/memoria/internal/observability/metrics"
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
	Config     config.Config
	LedgerSvc  ledgerdomain.Service
	AuditSvc   auditdomain.Service `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	clock      clock.Clock
	currency   string
	ledgerSvc  ledgerdomain.Service
	auditSvc   auditdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	currency := strings.ToUpper(strings.TrimSpace(p.Config.SettlementCurrency))
	if currency == "" {
		currency = "EUR"
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("commission.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		clock:      p.Clock,
		currency:   currency,
		ledgerSvc:  p.LedgerSvc,
		auditSvc:   p.AuditSvc,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Record(ctx context.Context, input domain.RecordInput) (domain.RecordResult, error) {
	var result domain.RecordResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = s.RecordTx(ctx, tx, input)
		return err
	})
	return result, err
}

func (s *Service) RecordTx(ctx context.Context, tx *gorm.DB, input domain.RecordInput) (domain.RecordResult, error) {
	if input.PartnerID == 0 || input.OrderID == 0 || input.ReferralCodeID == 0 {
		return domain.RecordResult{}, domain.ErrInvalidReferralLink
	}
	if input.OrderTotalBeforeDiscount < 0 || input.DiscountAmount < 0 {
		return domain.RecordResult{}, domain.ErrInvalidOrderAmount
	}
	if err := money.ValidatePercent(input.CommissionPercent); err != nil {
		return domain.RecordResult{}, err
	}
	currency, err := money.NormalizeCurrency(input.Currency)
	if err != nil {
		return domain.RecordResult{}, err
	}

	now := s.clock.Now()
	earnedAt := input.EarnedAt
	if earnedAt.IsZero() {
		earnedAt = now
	}

	commission := &domain.Commission{
		ID:                       s.genID.Generate(),
		PartnerID:                input.PartnerID,
		OrderID:                  input.OrderID,
		ReferralCodeID:           input.ReferralCodeID,
		OrderTotalBeforeDiscount: input.OrderTotalBeforeDiscount,
		DiscountAmount:           input.DiscountAmount,
		CommissionPercent:        input.CommissionPercent,
		CommissionAmount:         money.Percent(input.OrderTotalBeforeDiscount, input.CommissionPercent),
		Currency:                 currency,
		Status:                   domain.StatusPending,
		EarnedAt:                 earnedAt.UTC(),
		CreatedAt:                now,
		UpdatedAt:                now,
	}

	affected, err := s.repo.Insert(ctx, tx, commission)
	if err != nil {
		return domain.RecordResult{}, err
	}
	if affected == 0 {
		existing, err := s.repo.FindByOrderReferral(ctx, tx, input.OrderID, input.ReferralCodeID)
		if err != nil {
			return domain.RecordResult{}, err
		}
		if existing == nil {
			return domain.RecordResult{}, domain.ErrCommissionNotFound
		}
		return domain.RecordResult{Commission: existing, Created: false}, nil
	}

	if commission.CommissionAmount > 0 {
		if _, err := s.ledgerSvc.CreateEntryTx(ctx, tx, ledgerdomain.EntryInput{
			SourceType: ledgerdomain.SourceTypeCommission,
			SourceID:   commission.ID,
			Currency:   commission.Currency,
			OccurredAt: commission.EarnedAt,
			Postings: ledgerdomain.Transfer(
				ledgerdomain.AccountCodeCommissionExpense,
				ledgerdomain.AccountCodeCommissionPayable,
				commission.CommissionAmount,
			),
		}); err != nil {
			return domain.RecordResult{}, err
		}
	}

	if s.auditSvc != nil {
		targetID := commission.ID.String()
		if err := s.auditSvc.AuditLogTx(ctx, tx, string(auditdomain.ActorTypeSystem), nil, "commission.recorded", "commission", &targetID, map[string]any{
			"partner_id":        commission.PartnerID.String(),
			"order_id":          commission.OrderID.String(),
			"commission_amount": commission.CommissionAmount,
			"currency":          commission.Currency,
		}); err != nil {
			return domain.RecordResult{}, err
		}
	}

	s.obsMetrics.RecordCommission(ctx)
	return domain.RecordResult{Commission: commission, Created: true}, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Commission, error) {
	if id == 0 {
		return nil, domain.ErrInvalidCommission
	}
	commission, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if commission == nil {
		return nil, domain.ErrCommissionNotFound
	}
	return commission, nil
}

func (s *Service) Approve(ctx context.Context, id snowflake.ID) (*domain.Commission, error) {
	commission, _, err := s.approve(ctx, id)
	return commission, err
}

// approve reports applied=false when the commission was already approved.
func (s *Service) approve(ctx context.Context, id snowflake.ID) (*domain.Commission, bool, error) {
	now := s.clock.Now()
	commission, applied, err := s.transition(ctx, id, domain.StatusPending, domain.StatusApproved, map[string]any{
		"approved_at": now,
		"updated_at":  now,
	})
	if err != nil {
		return nil, false, err
	}
	if applied {
		s.audit(ctx, "commission.approved", commission, nil)
		s.obsMetrics.RecordCommissionTransition(ctx, string(domain.StatusApproved), 1)
	}
	return commission, applied, nil
}

func (s *Service) Reject(ctx context.Context, id snowflake.ID, notes string) (*domain.Commission, error) {
	now := s.clock.Now()
	fields := map[string]any{
		"cancelled_at": now,
		"updated_at":   now,
	}
	if notes = strings.TrimSpace(notes); notes != "" {
		fields["notes"] = notes
	}
	commission, applied, err := s.transition(ctx, id, domain.StatusPending, domain.StatusCancelled, fields)
	if err != nil {
		return nil, err
	}
	if applied {
		s.audit(ctx, "commission.rejected", commission, map[string]any{"notes": notes})
		s.obsMetrics.RecordCommissionTransition(ctx, string(domain.StatusCancelled), 1)
	}
	return commission, nil
}

// transition is conditional on from. Repeating a transition whose target is
// already reached is a no-op; any other mismatch is a conflict.
func (s *Service) transition(ctx context.Context, id snowflake.ID, from, to domain.Status, fields map[string]any) (*domain.Commission, bool, error) {
	if id == 0 {
		return nil, false, domain.ErrInvalidCommission
	}
	affected, err := s.repo.UpdateStatus(ctx, s.db, id, from, to, fields)
	if err != nil {
		return nil, false, err
	}
	commission, err := s.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if affected == 1 {
		return commission, true, nil
	}
	if commission.Status == to {
		return commission, false, nil
	}
	return nil, false, domain.Machine.Check("commission", id.String(), commission.Status, to)
}

func (s *Service) BulkApprove(ctx context.Context, ids []string) (domain.BulkResult, error) {
	if len(ids) == 0 {
		return domain.BulkResult{}, domain.ErrEmptyBulkRequest
	}
	if len(ids) > domain.MaxBulkApprove {
		return domain.BulkResult{}, domain.ErrBulkRequestTooLarge
	}

	var result domain.BulkResult
	seen := make(map[string]struct{}, len(ids))
	for _, raw := range ids {
		raw = strings.TrimSpace(raw)
		if _, dup := seen[raw]; dup {
			continue
		}
		seen[raw] = struct{}{}

		id, err := snowflake.ParseString(raw)
		if err != nil || id == 0 {
			result.Failed++
			result.Failures = append(result.Failures, domain.BulkFailure{ID: raw, Error: domain.ErrInvalidCommission.Error()})
			continue
		}

		_, applied, err := s.approve(ctx, id)
		switch {
		case err != nil:
			result.Failed++
			result.Failures = append(result.Failures, domain.BulkFailure{ID: raw, Error: err.Error()})
		case applied:
			result.Approved++
		default:
			result.AlreadyApproved++
		}
	}

	s.log.Info("bulk approve finished",
		zap.Int("requested", len(ids)),
		zap.Int("approved", result.Approved),
		zap.Int("already_approved", result.AlreadyApproved),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

func (s *Service) SettleTx(ctx context.Context, tx *gorm.DB, partnerID snowflake.ID, currency string, payoutID snowflake.ID, payoutNumber string) (domain.SettleResult, error) {
	if partnerID == 0 || payoutID == 0 || strings.TrimSpace(payoutNumber) == "" {
		return domain.SettleResult{}, domain.ErrInvalidSettlement
	}
	currency, err := money.NormalizeCurrency(currency)
	if err != nil {
		return domain.SettleResult{}, err
	}

	affected, err := s.repo.Settle(ctx, tx, partnerID, currency, payoutID, payoutNumber, s.clock.Now())
	if err != nil {
		return domain.SettleResult{}, err
	}
	if affected == 0 {
		return domain.SettleResult{}, nil
	}

	count, total, err := s.repo.SumByPayout(ctx, tx, payoutID)
	if err != nil {
		return domain.SettleResult{}, err
	}
	s.obsMetrics.RecordCommissionTransition(ctx, string(domain.StatusPaid), int(count))
	return domain.SettleResult{Count: int(count), Total: total}, nil
}

func (s *Service) ListByPayout(ctx context.Context, payoutID snowflake.ID) ([]*domain.Commission, error) {
	if payoutID == 0 {
		return nil, domain.ErrInvalidSettlement
	}
	return s.repo.List(ctx, s.db, domain.ListFilter{PayoutID: payoutID})
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	if req.From != nil && req.To != nil && req.From.After(*req.To) {
		return domain.ListResponse{}, domain.ErrInvalidTimeRange
	}
	cursor, err := pagination.DecodeKeyset(req.PageToken)
	if err != nil {
		return domain.ListResponse{}, err
	}

	limit := req.Limit()
	items, err := s.repo.List(ctx, s.db, domain.ListFilter{
		PartnerID: req.PartnerID,
		Status:    req.Status,
		From:      req.From,
		To:        req.To,
		Cursor:    cursor,
		Limit:     limit,
	})
	if err != nil {
		return domain.ListResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, int32(limit), func(item *domain.Commission) string {
		return pagination.EncodeKeyset(item.ID, item.CreatedAt)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return domain.ListResponse{Commissions: items, PageInfo: pageInfo}, nil
}

func (s *Service) Summary(ctx context.Context, partnerID snowflake.ID) (domain.Summary, error) {
	if partnerID == 0 {
		return domain.Summary{}, domain.ErrInvalidCommission
	}
	rows, err := s.repo.Totals(ctx, s.db, partnerID, s.currency)
	if err != nil {
		return domain.Summary{}, err
	}

	byStatus := make(map[domain.Status]domain.StatusTotal, len(rows))
	for _, row := range rows {
		byStatus[row.Status] = row
	}

	summary := domain.Summary{PartnerID: partnerID, Currency: s.currency}
	for _, status := range []domain.Status{domain.StatusPending, domain.StatusApproved, domain.StatusPaid, domain.StatusCancelled} {
		total := byStatus[status]
		total.Status = status
		summary.Totals = append(summary.Totals, total)
	}
	summary.Outstanding = money.Sum(byStatus[domain.StatusPending].Amount, byStatus[domain.StatusApproved].Amount)
	return summary, nil
}

var csvHeader = []string{
	"commission_id",
	"order_id",
	"status",
	"order_total_before_discount",
	"discount_amount",
	"commission_percent",
	"commission_amount",
	"currency",
	"earned_at",
	"approved_at",
	"paid_at",
	"payout_reference",
}

// ExportCSV writes every commission matching req, ignoring pagination.
func (s *Service) ExportCSV(ctx context.Context, w io.Writer, req domain.ListRequest) error {
	if req.PartnerID == 0 {
		return domain.ErrInvalidCommission
	}
	if req.From != nil && req.To != nil && req.From.After(*req.To) {
		return domain.ErrInvalidTimeRange
	}
	items, err := s.repo.List(ctx, s.db, domain.ListFilter{
		PartnerID: req.PartnerID,
		Status:    req.Status,
		From:      req.From,
		To:        req.To,
	})
	if err != nil {
		return err
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return err
	}
	for _, item := range items {
		record := []string{
			item.ID.String(),
			item.OrderID.String(),
			string(item.Status),
			money.ToMajor(item.OrderTotalBeforeDiscount).StringFixed(2),
			money.ToMajor(item.DiscountAmount).StringFixed(2),
			item.CommissionPercent.String(),
			money.ToMajor(item.CommissionAmount).StringFixed(2),
			item.Currency,
			formatTime(&item.EarnedAt),
			formatTime(item.ApprovedAt),
			formatTime(item.PaidAt),
			stringValue(item.PayoutReference),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}

	s.log.Debug("commission export written",
		zap.String("partner_id", req.PartnerID.String()),
		zap.Int("rows", len(items)),
	)
	return nil
}

func (s *Service) audit(ctx context.Context, action string, commission *domain.Commission, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["partner_id"] = commission.PartnerID.String()
	metadata["status"] = string(commission.Status)
	targetID := commission.ID.String()
	if err := s.auditSvc.AuditLog(ctx, "", nil, action, "commission", &targetID, metadata); err != nil {
		s.log.Warn("failed to write commission audit log", zap.String("commission_id", targetID), zap.Error(err))
	}
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func stringValue(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
