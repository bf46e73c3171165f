package membership

import "go.uber.org/fx"

func NewProvider() Provider {
	return &NoOpProvider{}
}

var Module = fx.Module("membership",
	fx.Provide(NewProvider),
)
