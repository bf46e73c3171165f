package collection

import (
	"github.com/duekeeper/duekeeper/internal/collection/service"
	"go.uber.org/fx"
)

var Module = fx.Module("collection.service",
	fx.Provide(service.NewService),
)
