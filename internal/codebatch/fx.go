package codebatch

import (
	"github.com/smallbiznis/memoria/internal/codebatch/repository"
	"github.com/smallbiznis/memoria/internal/codebatch/service"
	"go.uber.org/fx"
)

var Module = fx.Module("codebatch.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
