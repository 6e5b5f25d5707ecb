package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/memoria/internal/clock"
	"github.com/smallbiznis/memoria/internal/config"
	obsmetrics "github.com/smallbiznis/memoria/internal/observability/metrics"
	"github.com/smallbiznis/memoria/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/memoria/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Cfg        config.Config
	Repo       paymentdomain.Repository
	Adapters   *adapters.Registry
	Handler    paymentdomain.Handler
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// Processor is the inbound edge for gateway webhooks. Nothing is written
// before the signature verifies.
type Processor struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	cfg        config.WebhookConfig
	repo       paymentdomain.Repository
	adapters   *adapters.Registry
	handler    paymentdomain.Handler
	obsMetrics *obsmetrics.Metrics
}

func NewProcessor(p Params) *Processor {
	return &Processor{
		db:         p.DB,
		log:        p.Log.Named("payment.webhook"),
		genID:      p.GenID,
		clock:      p.Clock,
		cfg:        p.Cfg.Webhook,
		repo:       p.Repo,
		adapters:   p.Adapters,
		handler:    p.Handler,
		obsMetrics: p.ObsMetrics,
	}
}

func (p *Processor) Ingest(ctx context.Context, provider string, payload []byte, headers http.Header) (paymentdomain.Outcome, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return paymentdomain.Outcome{}, paymentdomain.ErrInvalidProvider
	}
	adapter, err := p.adapters.Resolve(provider, paymentdomain.AdapterConfig{
		Secret:    p.cfg.SigningSecret,
		Tolerance: p.cfg.ToleranceWindow,
		Now:       p.clock.Now,
	})
	if err != nil {
		return paymentdomain.Outcome{}, err
	}

	if err := adapter.Verify(ctx, payload, headers); err != nil {
		p.log.Warn("payment webhook rejected", zap.String("provider", provider), zap.Error(err))
		p.obsMetrics.RecordPaymentEvent(ctx, provider, "", "rejected")
		return paymentdomain.Outcome{}, err
	}
	if !json.Valid(payload) {
		return paymentdomain.Outcome{}, paymentdomain.ErrInvalidPayload
	}

	event, err := adapter.Parse(ctx, payload)
	if err != nil {
		p.log.Warn("payment webhook payload invalid", zap.String("provider", provider), zap.Error(err))
		p.obsMetrics.RecordPaymentEvent(ctx, provider, "", "invalid")
		return paymentdomain.Outcome{}, err
	}
	meta := event.Meta()

	stored, duplicate, err := p.receive(ctx, provider, meta, payload)
	if err != nil {
		return paymentdomain.Outcome{}, err
	}
	if duplicate {
		p.obsMetrics.RecordPaymentEvent(ctx, provider, meta.Type, "duplicate")
		return paymentdomain.Outcome{EventID: meta.ProviderEventID, Kind: event.Kind(), Duplicate: true}, nil
	}

	outcome, err := p.handler.Handle(ctx, event)
	if err != nil {
		p.log.Error("payment event processing failed",
			zap.String("provider", provider),
			zap.String("event_id", meta.ProviderEventID),
			zap.String("kind", event.Kind()),
			zap.Error(err),
		)
		if markErr := p.repo.MarkFailed(ctx, p.db, stored.ID, err.Error()); markErr != nil {
			p.log.Warn("record payment event failure", zap.Error(markErr))
		}
		p.obsMetrics.RecordPaymentEvent(ctx, provider, meta.Type, "failed")
		return outcome, err
	}

	var note *string
	if len(outcome.Warnings) > 0 {
		joined := strings.Join(outcome.Warnings, "; ")
		note = &joined
	}
	if outcome.Retry {
		// processed_at stays NULL so a redelivery reruns the unfinished steps.
		if err := p.repo.MarkFailed(ctx, p.db, stored.ID, strings.Join(outcome.Warnings, "; ")); err != nil {
			p.log.Warn("record payment event warnings", zap.String("event_id", meta.ProviderEventID), zap.Error(err))
		}
	} else if err := p.repo.MarkProcessed(ctx, p.db, stored.ID, p.clock.Now(), note); err != nil {
		p.log.Warn("mark payment event processed", zap.String("event_id", meta.ProviderEventID), zap.Error(err))
	}

	result := "applied"
	switch {
	case outcome.Retry:
		result = "partial"
	case outcome.Ignored:
		result = "ignored"
	case !outcome.Applied:
		result = "noop"
	}
	p.obsMetrics.RecordPaymentEvent(ctx, provider, meta.Type, result)
	return outcome, nil
}

// receive writes the receipt row. A row that was already processed makes the
// delivery a duplicate; an unprocessed one, failed or partial, is retried.
func (p *Processor) receive(ctx context.Context, provider string, meta paymentdomain.EventMeta, payload []byte) (*paymentdomain.EventRecord, bool, error) {
	record := &paymentdomain.EventRecord{
		ID:              p.genID.Generate(),
		Provider:        provider,
		ProviderEventID: meta.ProviderEventID,
		EventType:       meta.Type,
		Payload:         datatypes.JSON(payload),
		ReceivedAt:      p.clock.Now(),
	}
	inserted, err := p.repo.InsertEvent(ctx, p.db, record)
	if err != nil {
		return nil, false, err
	}
	if inserted {
		return record, false, nil
	}

	existing, err := p.repo.FindEvent(ctx, p.db, provider, meta.ProviderEventID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, errors.New("payment event vanished after conflict")
	}
	return existing, existing.ProcessedAt != nil, nil
}
