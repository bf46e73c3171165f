package eviction

import (
	"github.com/duekeeper/duekeeper/internal/eviction/service"
	"go.uber.org/fx"
)

var Module = fx.Module("eviction.service",
	fx.Provide(service.NewService),
)
