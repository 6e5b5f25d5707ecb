package pdf

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("providers.pdf",
	fx.Provide(New),
)

type Provider interface {
	GenerateStatement(ctx context.Context, data StatementData) ([]byte, error)
}

func New() Provider {
	return &MarotoProvider{}
}
