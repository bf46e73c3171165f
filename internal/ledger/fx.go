package ledger

import (
	"github.com/duekeeper/duekeeper/internal/ledger/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ledger.service",
	fx.Provide(service.NewService),
)
