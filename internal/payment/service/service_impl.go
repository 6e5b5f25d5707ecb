package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	activationcodedomain "github.com/smallbiznis/memoria/internal/activationcode/domain"
	codebatchdomain "github.com/smallbiznis/memoria/internal/codebatch/domain"
	commissiondomain "github.com/smallbiznis/memoria/internal/commission/domain"
	"github.com/smallbiznis/memoria/internal/config"
	ledgerdomain "github.com/smallbiznis/memoria/internal/ledger/domain"
	"github.com/smallbiznis/memoria/internal/money"
	notificationdomain "github.com/smallbiznis/memoria/internal/notification/domain"
	orderdomain "github.com/smallbiznis/memoria/internal/order/domain"
	partnerdomain "github.com/smallbiznis/memoria/internal/partner/domain"
	paymentdomain "github.com/smallbiznis/memoria/internal/payment/domain"
	"github.com/smallbiznis/memoria/internal/ratelimit"
	referraldomain "github.com/smallbiznis/memoria/internal/referral/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	Config        config.Config
	OrderSvc      orderdomain.Service
	ReferralSvc   referraldomain.Service
	CommissionSvc commissiondomain.Service
	CodeBatchSvc  codebatchdomain.Service
	CodeSvc       activationcodedomain.Service
	PartnerSvc    partnerdomain.Service
	LedgerSvc     ledgerdomain.Service
	Notifier      notificationdomain.Service `optional:"true"`
	Guard         *ratelimit.Guard           `optional:"true"`
}

// Service applies verified gateway events. Step one of each flow decides
// whether the event is acknowledged; later steps only collect warnings.
type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	adminEmail    string
	orderSvc      orderdomain.Service
	referralSvc   referraldomain.Service
	commissionSvc commissiondomain.Service
	codeBatchSvc  codebatchdomain.Service
	codeSvc       activationcodedomain.Service
	partnerSvc    partnerdomain.Service
	ledgerSvc     ledgerdomain.Service
	notifier      notificationdomain.Service
	guard         *ratelimit.Guard
}

func NewService(p Params) *Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("payment.service"),
		adminEmail:    p.Config.Notification.AdminEmail,
		orderSvc:      p.OrderSvc,
		referralSvc:   p.ReferralSvc,
		commissionSvc: p.CommissionSvc,
		codeBatchSvc:  p.CodeBatchSvc,
		codeSvc:       p.CodeSvc,
		partnerSvc:    p.PartnerSvc,
		ledgerSvc:     p.LedgerSvc,
		notifier:      p.Notifier,
		guard:         p.Guard,
	}
}

func (s *Service) Handle(ctx context.Context, event paymentdomain.Event) (paymentdomain.Outcome, error) {
	outcome := paymentdomain.Outcome{EventID: event.Meta().ProviderEventID, Kind: event.Kind()}

	switch ev := event.(type) {
	case paymentdomain.OrderPaymentCompleted:
		return s.settleOrder(ctx, ev, outcome)
	case paymentdomain.OrderPaymentExpired:
		return s.expireOrder(ctx, ev, outcome)
	case paymentdomain.CodeBatchCompleted:
		return s.settleCodeBatch(ctx, ev, outcome)
	case paymentdomain.CodeBatchExpired:
		return s.expireCodeBatch(ctx, ev, outcome)
	case paymentdomain.Unhandled:
		s.log.Debug("ignoring payment event",
			zap.String("event_id", outcome.EventID),
			zap.String("event_type", ev.Type),
			zap.String("reason", ev.Reason),
		)
		outcome.Ignored = true
		return outcome, nil
	default:
		return outcome, paymentdomain.ErrInvalidEvent
	}
}

func (s *Service) settleOrder(ctx context.Context, ev paymentdomain.OrderPaymentCompleted, outcome paymentdomain.Outcome) (paymentdomain.Outcome, error) {
	res, err := s.orderSvc.MarkPaid(ctx, ev.OrderNumber, ev.PaymentReference, ev.OccurredAt)
	if err != nil {
		if errors.Is(err, orderdomain.ErrOrderNotFound) {
			s.log.Warn("payment for unknown order", zap.String("order_number", ev.OrderNumber), zap.String("event_id", outcome.EventID))
			outcome.Ignored = true
			outcome.Warnings = append(outcome.Warnings, "order_not_found")
			return outcome, nil
		}
		return outcome, err
	}
	order := res.Order
	outcome.Applied = res.Applied
	if order.PaidAt == nil {
		s.log.Warn("payment for order that can no longer be paid",
			zap.String("order_number", order.OrderNumber),
			zap.String("status", string(order.Status)),
		)
		outcome.Ignored = true
		outcome.Warnings = append(outcome.Warnings, "order_not_payable:"+string(order.Status))
		return outcome, nil
	}

	log := s.log.With(zap.String("order_number", order.OrderNumber), zap.String("order_id", order.ID.String()))
	var failed []string
	warn := func(step string, err error) {
		log.Error("order payment step failed", zap.String("step", step), zap.Error(err))
		failed = append(failed, step+": "+err.Error())
	}

	if order.TotalAmount > 0 {
		if _, err := s.ledgerSvc.CreateEntry(ctx, ledgerdomain.EntryInput{
			SourceType: ledgerdomain.SourceTypeOrderPayment,
			SourceID:   order.ID,
			Currency:   order.Currency,
			OccurredAt: *order.PaidAt,
			Postings:   ledgerdomain.Transfer(ledgerdomain.AccountCodeCash, ledgerdomain.AccountCodeRevenueOrders, order.TotalAmount),
		}); err != nil {
			warn("ledger", err)
		}
	}

	commission, err := s.recordCommission(ctx, ev, order)
	if err != nil {
		warn("commission", err)
	}

	if ev.Shipping != nil && order.CustomerID != nil {
		if err := s.orderSvc.SaveShippingAddress(ctx, *order.CustomerID, *ev.Shipping); err != nil {
			warn("shipping_address", err)
		}
	}

	manufactured := order.ProductType.RequiresManufacturing()
	if manufactured {
		if _, err := s.orderSvc.EnqueueSupplierOrder(ctx, order); err != nil {
			warn("supplier_order", err)
		}
	}

	amount := money.FormatMinor(order.TotalAmount, order.Currency)
	s.notify(ctx, notificationdomain.Message{
		Kind:      notificationdomain.KindOrderConfirmation,
		Recipient: ev.CustomerEmail,
		DedupeKey: "order.confirmation:" + order.OrderNumber,
		Payload:   map[string]any{"order_number": order.OrderNumber, "total": amount},
	})
	if manufactured {
		s.notify(ctx, notificationdomain.Message{
			Kind:      notificationdomain.KindFulfillmentRequired,
			Recipient: s.adminEmail,
			DedupeKey: "order.fulfillment_required:" + order.OrderNumber,
			Payload: map[string]any{
				"order_number": order.OrderNumber,
				"product_type": string(order.ProductType),
				"quantity":     order.Quantity,
			},
		})
	}
	if commission != nil {
		s.notifyCommission(ctx, commission, order.OrderNumber)
	}

	if len(failed) > 0 {
		outcome.Retry = true
		outcome.Warnings = append(outcome.Warnings, failed...)
	}
	s.recordOrderNote(ctx, order, failed)
	return outcome, nil
}

// recordOrderNote keeps failed follow-up steps visible on the order until a
// redelivery completes them.
func (s *Service) recordOrderNote(ctx context.Context, order *orderdomain.Order, failed []string) {
	var note *string
	if len(failed) > 0 {
		joined := "payment follow-up incomplete: " + strings.Join(failed, "; ")
		note = &joined
	} else if order.ProcessingNote == nil {
		return
	}
	if err := s.orderSvc.SetProcessingNote(ctx, order.ID, note); err != nil {
		s.log.Error("record order processing note failed",
			zap.String("order_number", order.OrderNumber),
			zap.Error(err),
		)
	}
}

// recordCommission claims the referral and records the commission in one
// transaction. A code held by another order records nothing.
func (s *Service) recordCommission(ctx context.Context, ev paymentdomain.OrderPaymentCompleted, order *orderdomain.Order) (*commissiondomain.Commission, error) {
	var (
		code *referraldomain.ReferralCode
		err  error
	)
	switch {
	case ev.ReferralCode != "":
		code, err = s.referralSvc.FindByCode(ctx, ev.ReferralCode)
	case order.ReferralCodeID != nil:
		code, err = s.referralSvc.Get(ctx, *order.ReferralCodeID)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var recorded *commissiondomain.Commission
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		claim, err := s.referralSvc.ClaimTx(ctx, tx, code.ID, order.ID)
		if err != nil {
			return err
		}
		if !claim.HeldByOrder {
			return nil
		}
		res, err := s.commissionSvc.RecordTx(ctx, tx, commissiondomain.RecordInput{
			PartnerID:                code.PartnerID,
			OrderID:                  order.ID,
			ReferralCodeID:           code.ID,
			OrderTotalBeforeDiscount: order.TotalBeforeDiscount(),
			DiscountAmount:           order.DiscountAmount,
			CommissionPercent:        code.CommissionPercent,
			Currency:                 order.Currency,
			EarnedAt:                 *order.PaidAt,
		})
		if err != nil {
			return err
		}
		recorded = res.Commission
		return nil
	})
	if err != nil {
		return nil, err
	}
	return recorded, nil
}

func (s *Service) notifyCommission(ctx context.Context, commission *commissiondomain.Commission, orderNumber string) {
	partner, err := s.partnerSvc.Get(ctx, commission.PartnerID)
	if err != nil {
		s.log.Warn("commission notice skipped", zap.String("commission_id", commission.ID.String()), zap.Error(err))
		return
	}
	if !partner.NotifyEmail {
		return
	}
	s.notify(ctx, notificationdomain.Message{
		Kind:      notificationdomain.KindCommissionEarned,
		Recipient: partner.Email,
		DedupeKey: "commission.earned:" + commission.ID.String(),
		Payload: map[string]any{
			"order_number": orderNumber,
			"amount":       money.FormatMinor(commission.CommissionAmount, commission.Currency),
		},
	})
}

func (s *Service) expireOrder(ctx context.Context, ev paymentdomain.OrderPaymentExpired, outcome paymentdomain.Outcome) (paymentdomain.Outcome, error) {
	res, err := s.orderSvc.Expire(ctx, ev.OrderNumber)
	if err != nil {
		if errors.Is(err, orderdomain.ErrOrderNotFound) {
			outcome.Ignored = true
			return outcome, nil
		}
		return outcome, err
	}
	outcome.Applied = res.Applied
	return outcome, nil
}

func (s *Service) settleCodeBatch(ctx context.Context, ev paymentdomain.CodeBatchCompleted, outcome paymentdomain.Outcome) (paymentdomain.Outcome, error) {
	res, err := s.codeBatchSvc.MarkPaid(ctx, ev.BatchID, ev.PaymentReference)
	if err != nil {
		if errors.Is(err, codebatchdomain.ErrBatchNotFound) {
			s.log.Warn("payment for unknown code batch", zap.String("batch_id", ev.BatchID.String()))
			outcome.Ignored = true
			outcome.Warnings = append(outcome.Warnings, "batch_not_found")
			return outcome, nil
		}
		return outcome, err
	}
	batch := res.Batch
	outcome.Applied = res.Applied

	switch batch.Status {
	case codebatchdomain.StatusApproved:
	case codebatchdomain.StatusGenerated:
		return outcome, nil
	default:
		s.log.Warn("payment for code batch that can no longer be paid",
			zap.String("batch_id", batch.ID.String()),
			zap.String("status", string(batch.Status)),
		)
		outcome.Ignored = true
		outcome.Warnings = append(outcome.Warnings, "batch_not_payable:"+string(batch.Status))
		return outcome, nil
	}

	log := s.log.With(zap.String("batch_id", batch.ID.String()), zap.String("partner_id", batch.PartnerID.String()))

	if batch.TotalAmount > 0 {
		if _, err := s.ledgerSvc.CreateEntry(ctx, ledgerdomain.EntryInput{
			SourceType: ledgerdomain.SourceTypeCodeBatchPayment,
			SourceID:   batch.ID,
			Currency:   batch.Currency,
			OccurredAt: ev.OccurredAt,
			Postings:   ledgerdomain.Transfer(ledgerdomain.AccountCodeCash, ledgerdomain.AccountCodeRevenueCodes, batch.TotalAmount),
		}); err != nil {
			log.Error("code batch ledger entry failed", zap.Error(err))
			outcome.Retry = true
			outcome.Warnings = append(outcome.Warnings, "ledger: "+err.Error())
		}
	}

	err = s.guard.WithGenerationLock(ctx, batch.ID, func(ctx context.Context) error {
		return s.generate(ctx, batch)
	})
	switch {
	case errors.Is(err, ratelimit.ErrLockHeld):
		log.Info("code generation already running for batch")
		outcome.Retry = true
		outcome.Warnings = append(outcome.Warnings, "generation_in_progress")
	case err != nil:
		outcome.Retry = true
		outcome.Warnings = append(outcome.Warnings, "generation: "+err.Error())
	}
	return outcome, nil
}

// generate issues the missing codes. Failures and shortfalls stay visible
// on the batch as an error note and leave it approved; a redelivery of the
// payment event tops it up.
func (s *Service) generate(ctx context.Context, batch *codebatchdomain.CodeBatch) error {
	log := s.log.With(zap.String("batch_id", batch.ID.String()), zap.String("partner_id", batch.PartnerID.String()))

	issued, err := s.codeSvc.Issue(ctx, activationcodedomain.IssueRequest{
		BatchID:         batch.ID,
		PartnerID:       batch.PartnerID,
		ProductType:     batch.ProductType,
		HostingDuration: batch.HostingDuration,
		Quantity:        batch.Quantity,
	})
	if err != nil {
		log.Error("activation code generation failed", zap.Int("issued", issued.Issued), zap.Error(err))
		s.recordBatchError(ctx, batch, issued.Total, fmt.Sprintf("code generation failed after %d of %d codes: %v", issued.Total, batch.Quantity, err))
		return err
	}
	if issued.Total < batch.Quantity {
		log.Warn("activation code shortfall", zap.Int("total", issued.Total), zap.Int("shortfall", issued.Shortfall))
		s.recordBatchError(ctx, batch, issued.Total, fmt.Sprintf("generated %d of %d codes, shortfall %d", issued.Total, batch.Quantity, batch.Quantity-issued.Total))
		return fmt.Errorf("shortfall of %d codes", batch.Quantity-issued.Total)
	}

	if _, err := s.codeBatchSvc.MarkGenerated(ctx, batch.ID); err != nil {
		log.Error("mark code batch generated failed", zap.Error(err))
		return err
	}

	if partner, err := s.partnerSvc.Get(ctx, batch.PartnerID); err == nil && partner.NotifyEmail {
		s.notify(ctx, notificationdomain.Message{
			Kind:      notificationdomain.KindCodeBatchReady,
			Recipient: partner.Email,
			DedupeKey: "code_batch.ready:" + batch.ID.String(),
			Payload: map[string]any{
				"batch_id":     batch.ID.String(),
				"quantity":     batch.Quantity,
				"product_type": string(batch.ProductType),
			},
		})
	}
	return nil
}

func (s *Service) recordBatchError(ctx context.Context, batch *codebatchdomain.CodeBatch, total int, note string) {
	if err := s.codeBatchSvc.RecordError(ctx, batch.ID, note); err != nil {
		s.log.Error("record code batch error note failed",
			zap.String("batch_id", batch.ID.String()),
			zap.String("note", note),
			zap.Error(err),
		)
	}
	s.notify(ctx, notificationdomain.Message{
		Kind:      notificationdomain.KindCodeBatchFailed,
		Recipient: s.adminEmail,
		DedupeKey: fmt.Sprintf("code_batch.failed:%s:%d", batch.ID, total),
		Payload:   map[string]any{"batch_id": batch.ID.String(), "note": note},
	})
}

func (s *Service) expireCodeBatch(ctx context.Context, ev paymentdomain.CodeBatchExpired, outcome paymentdomain.Outcome) (paymentdomain.Outcome, error) {
	res, err := s.codeBatchSvc.Cancel(ctx, ev.BatchID)
	if err != nil {
		if errors.Is(err, codebatchdomain.ErrBatchNotFound) {
			outcome.Ignored = true
			return outcome, nil
		}
		return outcome, err
	}
	outcome.Applied = res.Applied
	return outcome, nil
}

// notify is fire-and-forget; an empty recipient means nobody is configured.
func (s *Service) notify(ctx context.Context, msg notificationdomain.Message) {
	if s.notifier == nil || msg.Recipient == "" {
		return
	}
	if _, err := s.notifier.Enqueue(ctx, msg); err != nil {
		s.log.Warn("notification enqueue failed",
			zap.String("kind", string(msg.Kind)),
			zap.String("dedupe_key", msg.DedupeKey),
			zap.Error(err),
		)
	}
}

var _ paymentdomain.Handler = (*Service)(nil)
