package payment

import (
	"github.com/smallbiznis/memoria/internal/config"
	"github.com/smallbiznis/memoria/internal/payment/adapters"
	"github.com/smallbiznis/memoria/internal/payment/adapters/stripe"
	paymentdomain "github.com/smallbiznis/memoria/internal/payment/domain"
	"github.com/smallbiznis/memoria/internal/payment/repository"
	paymentservice "github.com/smallbiznis/memoria/internal/payment/service"
	"github.com/smallbiznis/memoria/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func(cfg config.Config) *adapters.Registry {
		return adapters.NewRegistry(cfg.Webhook.Provider, stripe.NewFactory())
	}),
	fx.Provide(paymentservice.NewService),
	fx.Provide(func(s *paymentservice.Service) paymentdomain.Handler { return s }),
	fx.Provide(webhook.NewProcessor),
)
