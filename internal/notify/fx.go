package notify

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func NewNotifier(log *zap.Logger) Notifier {
	return NewLogNotifier(log)
}

var Module = fx.Module("notify",
	fx.Provide(NewNotifier),
)
