package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/memoria/internal/audit/domain"
	"github.com/smallbiznis/memoria/internal/clock"
	"github.com/smallbiznis/memoria/internal/order/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     domain.Repository
	Clock    clock.Clock
	AuditSvc auditdomain.Service `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     domain.Repository
	clock    clock.Clock
	auditSvc auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("order.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		clock:    p.Clock,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) GetByNumber(ctx context.Context, number string) (*domain.Order, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, domain.ErrInvalidOrderNumber
	}
	order, err := s.repo.FindByNumber(ctx, s.db, number)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	return order, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Order, error) {
	if id == 0 {
		return nil, domain.ErrOrderNotFound
	}
	order, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	return order, nil
}

func (s *Service) MarkPaid(ctx context.Context, number, paymentReference string, paidAt time.Time) (domain.TransitionResult, error) {
	if paidAt.IsZero() {
		paidAt = s.clock.Now()
	}
	fields := map[string]any{
		"paid_at":    paidAt.UTC(),
		"updated_at": s.clock.Now(),
	}
	if ref := strings.TrimSpace(paymentReference); ref != "" {
		fields["payment_reference"] = ref
	}
	return s.conditional(ctx, number, domain.StatusPending, domain.StatusPaid, fields)
}

func (s *Service) Expire(ctx context.Context, number string) (domain.TransitionResult, error) {
	now := s.clock.Now()
	return s.conditional(ctx, number, domain.StatusPending, domain.StatusCancelled, map[string]any{
		"cancelled_at": now,
		"updated_at":   now,
	})
}

// conditional is the webhook path: a lost race is not an error, the caller
// decides what the current state means.
func (s *Service) conditional(ctx context.Context, number string, from, to domain.Status, fields map[string]any) (domain.TransitionResult, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return domain.TransitionResult{}, domain.ErrInvalidOrderNumber
	}

	affected, err := s.repo.UpdateStatus(ctx, s.db, number, []domain.Status{from}, to, fields)
	if err != nil {
		return domain.TransitionResult{}, err
	}
	order, err := s.GetByNumber(ctx, number)
	if err != nil {
		return domain.TransitionResult{}, err
	}
	return domain.TransitionResult{Applied: affected == 1, Order: order}, nil
}

func (s *Service) Cancel(ctx context.Context, number string) (*domain.Order, error) {
	now := s.clock.Now()
	return s.transition(ctx, number, domain.StatusCancelled, map[string]any{
		"cancelled_at": now,
		"updated_at":   now,
	})
}

func (s *Service) MarkProcessing(ctx context.Context, number string) (*domain.Order, error) {
	return s.transition(ctx, number, domain.StatusProcessing, map[string]any{
		"updated_at": s.clock.Now(),
	})
}

func (s *Service) MarkShipped(ctx context.Context, number string, shipment domain.Shipment) (*domain.Order, error) {
	shipment, err := normalizeShipment(shipment)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	return s.transition(ctx, number, domain.StatusShipped, map[string]any{
		"tracking_number": shipment.TrackingNumber,
		"carrier":         shipment.Carrier,
		"shipped_at":      now,
		"updated_at":      now,
	})
}

func (s *Service) UpdateTracking(ctx context.Context, number string, shipment domain.Shipment) (*domain.Order, error) {
	shipment, err := normalizeShipment(shipment)
	if err != nil {
		return nil, err
	}
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, domain.ErrInvalidOrderNumber
	}

	affected, err := s.repo.UpdateShipment(ctx, s.db, number, shipment, s.clock.Now())
	if err != nil {
		return nil, err
	}
	order, err := s.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, domain.Machine.Check("order", number, order.Status, domain.StatusShipped)
	}
	s.audit(ctx, "order.tracking_updated", order, map[string]any{
		"tracking_number": shipment.TrackingNumber,
		"carrier":         shipment.Carrier,
	})
	return order, nil
}

func (s *Service) MarkCompleted(ctx context.Context, number string) (*domain.Order, error) {
	now := s.clock.Now()
	return s.transition(ctx, number, domain.StatusCompleted, map[string]any{
		"completed_at": now,
		"updated_at":   now,
	})
}

// transition is the admin path. Every edge must exist in Machine, including
// repeats of the current status.
func (s *Service) transition(ctx context.Context, number string, to domain.Status, fields map[string]any) (*domain.Order, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return nil, domain.ErrInvalidOrderNumber
	}

	affected, err := s.repo.UpdateStatus(ctx, s.db, number, domain.Machine.Sources(to), to, fields)
	if err != nil {
		return nil, err
	}
	order, err := s.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, domain.Machine.Check("order", number, order.Status, to)
	}

	s.audit(ctx, "order."+string(to), order, map[string]any{"status": string(to)})
	return order, nil
}

func (s *Service) SaveShippingAddress(ctx context.Context, customerID snowflake.ID, address domain.ShippingAddress) error {
	if customerID == 0 {
		return domain.ErrInvalidCustomer
	}
	if address.Empty() {
		return domain.ErrInvalidAddress
	}
	affected, err := s.repo.SaveShippingAddress(ctx, s.db, customerID, address, s.clock.Now())
	if err != nil {
		return err
	}
	if affected == 0 {
		s.log.Warn("shipping address for unknown customer", zap.String("customer_id", customerID.String()))
	}
	return nil
}

func (s *Service) SetProcessingNote(ctx context.Context, id snowflake.ID, note *string) error {
	if id == 0 {
		return domain.ErrOrderNotFound
	}
	affected, err := s.repo.UpdateProcessingNote(ctx, s.db, id, note, s.clock.Now())
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (s *Service) EnqueueSupplierOrder(ctx context.Context, order *domain.Order) (bool, error) {
	if order == nil || order.ID == 0 {
		return false, domain.ErrOrderNotFound
	}
	quantity := order.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	affected, err := s.repo.InsertSupplierOrder(ctx, s.db, &domain.SupplierOrder{
		ID:          s.genID.Generate(),
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		ProductType: order.ProductType,
		Quantity:    quantity,
		Status:      domain.SupplierOrderQueued,
		CreatedAt:   s.clock.Now(),
	})
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (s *Service) audit(ctx context.Context, action string, order *domain.Order, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	targetID := order.ID.String()
	metadata["order_number"] = order.OrderNumber
	if err := s.auditSvc.AuditLog(ctx, "", nil, action, "order", &targetID, metadata); err != nil {
		s.log.Warn("failed to write order audit log", zap.String("order_number", order.OrderNumber), zap.Error(err))
	}
}

func normalizeShipment(shipment domain.Shipment) (domain.Shipment, error) {
	shipment.TrackingNumber = strings.TrimSpace(shipment.TrackingNumber)
	shipment.Carrier = strings.TrimSpace(shipment.Carrier)
	if shipment.TrackingNumber == "" {
		return shipment, domain.ErrInvalidTrackingNumber
	}
	if shipment.Carrier == "" {
		return shipment, domain.ErrInvalidCarrier
	}
	return shipment, nil
}
