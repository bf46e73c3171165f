package notify

import (
	"context"

	"go.uber.org/zap"
)

// Destination names where a notice goes. Group destinations reach every
// member; direct destinations reach one subscriber.
type Destination struct {
	GroupID      int64
	SubscriberID int64
}

// Notifier delivers human-facing notices. Delivery failures are the
// implementation's problem to log; callers never treat them as fatal.
type Notifier interface {
	Notify(ctx context.Context, dest Destination, text string) error
}

// LogNotifier writes every notice to the service log. It stands in for a
// real chat or email channel until one is wired.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log.Named("notify")}
}

func (n *LogNotifier) Notify(_ context.Context, dest Destination, text string) error {
	n.log.Info("notice.sent",
		zap.Int64("group_id", dest.GroupID),
		zap.Int64("subscriber_id", dest.SubscriberID),
		zap.String("text", text),
	)
	return nil
}
