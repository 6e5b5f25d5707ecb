package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/memoria/internal/clock"
	"github.com/smallbiznis/memoria/internal/notification/domain"
	obsmetrics "github.com/smallbiznis/memoria/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	queueSize     = 256
	sweepInterval = time.Minute
	sweepBatch    = 100
	// Rows younger than this are assumed to still be in the queue.
	sweepMinAge = 30 * time.Second
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Sender     domain.Sender
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	sender     domain.Sender
	obsMetrics *obsmetrics.Metrics
	queue      chan snowflake.ID
}

func NewService(p Params) *Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("notification.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		sender:     p.Sender,
		obsMetrics: p.ObsMetrics,
		queue:      make(chan snowflake.ID, queueSize),
	}
}

// Enqueue never blocks on delivery. A full queue leaves the row pending for the sweeper.
func (s *Service) Enqueue(ctx context.Context, msg domain.Message) (bool, error) {
	msg.DedupeKey = strings.TrimSpace(msg.DedupeKey)
	msg.Recipient = strings.TrimSpace(msg.Recipient)
	if msg.Kind == "" || msg.DedupeKey == "" || msg.Recipient == "" {
		return false, domain.ErrInvalidMessage
	}

	payload := datatypes.JSONMap{}
	for k, v := range msg.Payload {
		payload[k] = v
	}
	row := &domain.Notification{
		ID:        s.genID.Generate(),
		Kind:      msg.Kind,
		Recipient: msg.Recipient,
		DedupeKey: msg.DedupeKey,
		Payload:   payload,
		Status:    domain.StatusPending,
		CreatedAt: s.clock.Now(),
	}

	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "dedupe_key"}},
			DoNothing: true,
		}).
		Create(row)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		s.obsMetrics.RecordNotification(ctx, string(msg.Kind), "duplicate")
		return false, nil
	}

	select {
	case s.queue <- row.ID:
	default:
		s.log.Warn("notification queue full, leaving for sweep", zap.String("notification_id", row.ID.String()))
	}
	return true, nil
}

// Deliver makes a single attempt. Only a pending, never-attempted row is sent.
func (s *Service) Deliver(ctx context.Context, id snowflake.ID) error {
	claim := s.db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("id = ? AND status = ? AND attempts = 0", id, domain.StatusPending).
		Update("attempts", gorm.Expr("attempts + 1"))
	if claim.Error != nil {
		return claim.Error
	}
	if claim.RowsAffected == 0 {
		return nil
	}

	var n domain.Notification
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&n).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrNotificationNotFound
		}
		return err
	}

	sendErr := s.sender.Send(ctx, &n)
	now := s.clock.Now()
	updates := map[string]any{"status": domain.StatusSent, "sent_at": now, "last_error": nil}
	outcome := "sent"
	if sendErr != nil {
		msg := sendErr.Error()
		updates = map[string]any{"status": domain.StatusFailed, "last_error": msg}
		outcome = "failed"
	}
	if err := s.db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("id = ?", id).
		Updates(updates).Error; err != nil {
		return err
	}
	s.obsMetrics.RecordNotification(ctx, string(n.Kind), outcome)

	if sendErr != nil {
		s.log.Warn("notification delivery failed",
			zap.String("notification_id", id.String()),
			zap.String("kind", string(n.Kind)),
			zap.String("recipient", n.Recipient),
			zap.Error(sendErr),
		)
	}
	return sendErr
}

// RunForever drains the queue and periodically picks up rows the queue dropped.
func (s *Service) RunForever(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case id := <-s.queue:
			_ = s.Deliver(ctx, id)
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.log.Warn("notification sweep failed", zap.Error(err))
			}
		}
	}
}

func (s *Service) Sweep(ctx context.Context) error {
	var ids []snowflake.ID
	err := s.db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("status = ? AND attempts = 0 AND created_at < ?", domain.StatusPending, s.clock.Now().Add(-sweepMinAge)).
		Order("created_at asc").
		Limit(sweepBatch).
		Pluck("id", &ids).Error
	if err != nil {
		return err
	}
	for _, id := range ids {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_ = s.Deliver(ctx, id)
	}
	return nil
}
