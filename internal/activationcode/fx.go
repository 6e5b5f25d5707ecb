package activationcode

import (
	"github.com/smallbiznis/memoria/internal/activationcode/domain"
	"github.com/smallbiznis/memoria/internal/activationcode/generator"
	"github.com/smallbiznis/memoria/internal/activationcode/repository"
	"github.com/smallbiznis/memoria/internal/activationcode/service"
	"github.com/smallbiznis/memoria/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("activationcode.service",
	fx.Provide(func(cfg config.Config) config.CodeConfig { return cfg.Codes }),
	fx.Provide(func(cfg config.CodeConfig) (domain.Generator, error) {
		return generator.NewRandom(generator.Shape{
			Prefix:    cfg.Prefix,
			Length:    cfg.Length,
			GroupSize: cfg.GroupSize,
		})
	}),
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
