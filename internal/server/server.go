package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/memoria/internal/activationcode"
	activationcodedomain "github.com/smallbiznis/memoria/internal/activationcode/domain"
	"github.com/smallbiznis/memoria/internal/audit"
	auditdomain "github.com/smallbiznis/memoria/internal/audit/domain"
	"github.com/smallbiznis/memoria/internal/authorization"
	"github.com/smallbiznis/memoria/internal/clock"
	"github.com/smallbiznis/memoria/internal/codebatch"
	codebatchdomain "github.com/smallbiznis/memoria/internal/codebatch/domain"
	"github.com/smallbiznis/memoria/internal/commission"
	commissiondomain "github.com/smallbiznis/memoria/internal/commission/domain"
	"github.com/smallbiznis/memoria/internal/config"
	"github.com/smallbiznis/memoria/internal/ledger"
	"github.com/smallbiznis/memoria/internal/notification"
	"github.com/smallbiznis/memoria/internal/observability"
	obslogger "github.com/smallbiznis/memoria/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/memoria/internal/observability/metrics"
	obstracing "github.com/smallbiznis/memoria/internal/observability/tracing"
	"github.com/smallbiznis/memoria/internal/order"
	orderdomain "github.com/smallbiznis/memoria/internal/order/domain"
	"github.com/smallbiznis/memoria/internal/partner"
	partnerdomain "github.com/smallbiznis/memoria/internal/partner/domain"
	"github.com/smallbiznis/memoria/internal/payment"
	paymentdomain "github.com/smallbiznis/memoria/internal/payment/domain"
	"github.com/smallbiznis/memoria/internal/payment/webhook"
	"github.com/smallbiznis/memoria/internal/payout"
	payoutdomain "github.com/smallbiznis/memoria/internal/payout/domain"
	"github.com/smallbiznis/memoria/internal/providers/pdf"
	"github.com/smallbiznis/memoria/internal/ratelimit"
	"github.com/smallbiznis/memoria/internal/referral"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	authorization.Module,
	audit.Module,
	ledger.Module,
	pdf.Module,
	notification.Module,
	ratelimit.Module,
	partner.Module,
	referral.Module,
	order.Module,
	commission.Module,
	activationcode.Module,
	codebatch.Module,
	payout.Module,
	payment.Module,
	fx.Provide(func(p *webhook.Processor) WebhookIngester { return p }),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	addr := cfg.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", addr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

// WebhookIngester is the payment event entry point.
type WebhookIngester interface {
	Ingest(ctx context.Context, provider string, payload []byte, headers http.Header) (paymentdomain.Outcome, error)
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	clock         clock.Clock
	authzSvc      authorization.Service
	auditSvc      auditdomain.Service
	partnerSvc    partnerdomain.Service
	orderSvc      orderdomain.Service
	commissionSvc commissiondomain.Service
	payoutSvc     payoutdomain.Service
	codeBatchSvc  codebatchdomain.Service
	codeSvc       activationcodedomain.Service
	webhooks      WebhookIngester
	guard         *ratelimit.Guard
	obsMetrics    *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	Clock         clock.Clock
	AuthzSvc      authorization.Service
	AuditSvc      auditdomain.Service
	PartnerSvc    partnerdomain.Service
	OrderSvc      orderdomain.Service
	CommissionSvc commissiondomain.Service
	PayoutSvc     payoutdomain.Service
	CodeBatchSvc  codebatchdomain.Service
	CodeSvc       activationcodedomain.Service
	Webhooks      WebhookIngester
	Guard         *ratelimit.Guard    `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		clock:         p.Clock,
		authzSvc:      p.AuthzSvc,
		auditSvc:      p.AuditSvc,
		partnerSvc:    p.PartnerSvc,
		orderSvc:      p.OrderSvc,
		commissionSvc: p.CommissionSvc,
		payoutSvc:     p.PayoutSvc,
		codeBatchSvc:  p.CodeBatchSvc,
		codeSvc:       p.CodeSvc,
		webhooks:      p.Webhooks,
		guard:         p.Guard,
		obsMetrics:    p.ObsMetrics,
	}

	svc.registerWebhookRoutes()
	svc.registerAdminRoutes()
	svc.registerPartnerRoutes()
	svc.registerInternalRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/webhooks/:provider", s.HandlePaymentWebhook)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin")
	admin.Use(s.Identity(authorization.RoleAdmin))

	// -------- Commissions --------
	admin.GET("/commissions", s.authorize(authorization.ObjectCommission, authorization.ActionCommissionView), s.ListCommissions)
	admin.POST("/commissions/bulk-approve", s.authorize(authorization.ObjectCommission, authorization.ActionCommissionApprove), s.BulkApproveCommissions)
	admin.POST("/commissions/:id/approve", s.authorize(authorization.ObjectCommission, authorization.ActionCommissionApprove), s.ApproveCommission)
	admin.POST("/commissions/:id/reject", s.authorize(authorization.ObjectCommission, authorization.ActionCommissionReject), s.RejectCommission)

	// -------- Partners --------
	admin.POST("/partners/:id/activate", s.authorize(authorization.ObjectPartner, authorization.ActionPartnerManage), s.ActivatePartner)
	admin.POST("/partners/:id/suspend", s.authorize(authorization.ObjectPartner, authorization.ActionPartnerManage), s.SuspendPartner)
	admin.POST("/partners/:id/reject", s.authorize(authorization.ObjectPartner, authorization.ActionPartnerManage), s.RejectPartner)

	// -------- Payouts --------
	admin.POST("/partners/:id/payouts", s.authorize(authorization.ObjectPayout, authorization.ActionPayoutCreate), s.CreatePayout)
	admin.GET("/partners/:id/payouts", s.authorize(authorization.ObjectPayout, authorization.ActionPayoutView), s.ListPartnerPayouts)
	admin.GET("/payouts/:id/statement.pdf", s.authorize(authorization.ObjectPayout, authorization.ActionPayoutView), s.DownloadPayoutStatement)

	// -------- Orders --------
	admin.POST("/orders/:number/processing", s.authorize(authorization.ObjectOrder, authorization.ActionOrderFulfill), s.MarkOrderProcessing)
	admin.POST("/orders/:number/ship", s.authorize(authorization.ObjectOrder, authorization.ActionOrderFulfill), s.ShipOrder)
	admin.POST("/orders/:number/tracking", s.authorize(authorization.ObjectOrder, authorization.ActionOrderFulfill), s.UpdateOrderTracking)
	admin.POST("/orders/:number/complete", s.authorize(authorization.ObjectOrder, authorization.ActionOrderFulfill), s.CompleteOrder)
	admin.POST("/orders/:number/cancel", s.authorize(authorization.ObjectOrder, authorization.ActionOrderCancel), s.CancelOrder)

	// -------- Code batches --------
	admin.GET("/partners/:id/code-batches", s.authorize(authorization.ObjectCodeBatch, authorization.ActionCodeBatchView), s.ListPartnerCodeBatches)

	admin.GET("/audit-logs", s.authorize(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)
}

func (s *Server) registerPartnerRoutes() {
	partner := s.engine.Group("/partner")
	partner.Use(s.Identity(authorization.RolePartner))

	// -------- Commissions --------
	partner.GET("/commissions", s.authorize(authorization.ObjectCommission, authorization.ActionCommissionView), s.ListCommissions)
	partner.GET("/commissions/summary", s.authorize(authorization.ObjectCommission, authorization.ActionCommissionView), s.CommissionSummary)
	partner.GET("/commissions/export.csv", s.authorize(authorization.ObjectCommission, authorization.ActionCommissionExport), s.ExportCommissions)

	// -------- Payouts --------
	partner.GET("/payouts", s.authorize(authorization.ObjectPayout, authorization.ActionPayoutView), s.ListPartnerPayouts)
	partner.GET("/payouts/:id/statement.pdf", s.authorize(authorization.ObjectPayout, authorization.ActionPayoutView), s.DownloadPayoutStatement)

	// -------- Code batches --------
	partner.GET("/code-batches", s.authorize(authorization.ObjectCodeBatch, authorization.ActionCodeBatchView), s.ListPartnerCodeBatches)
	partner.GET("/code-batches/quote", s.authorize(authorization.ObjectCodeBatch, authorization.ActionCodeBatchRequest), s.QuoteCodeBatch)
	partner.POST("/code-batches", s.authorize(authorization.ObjectCodeBatch, authorization.ActionCodeBatchRequest), s.CodeBatchRateLimit(), s.RequestCodeBatch)
	partner.GET("/code-batches/:id/codes", s.authorize(authorization.ObjectCodeBatch, authorization.ActionCodeBatchView), s.ListBatchCodes)
}

// registerInternalRoutes serves collaborators inside the platform, such as
// the memorial service redeeming a code.
func (s *Server) registerInternalRoutes() {
	internal := s.engine.Group("/internal")
	internal.Use(s.Identity(authorization.RoleSystem))

	internal.POST("/activation-codes/:code/redeem", s.authorize(authorization.ObjectActivationCode, authorization.ActionActivationCodeRedeem), s.RedeemActivationCode)
}
