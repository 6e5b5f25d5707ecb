package notification

import (
	"context"

	"github.com/smallbiznis/memoria/internal/notification/domain"
	"github.com/smallbiznis/memoria/internal/notification/service"
	"github.com/smallbiznis/memoria/internal/providers/email"
	"go.uber.org/fx"
)

var Module = fx.Module("notification",
	email.Module,
	fx.Provide(service.NewSender),
	fx.Provide(service.NewService),
	fx.Provide(func(s *service.Service) domain.Service { return s }),
	fx.Invoke(runDispatcher),
)

func runDispatcher(lc fx.Lifecycle, svc *service.Service) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go svc.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})
			return nil
		},
	})
}
