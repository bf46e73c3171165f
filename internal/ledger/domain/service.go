package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/duekeeper/duekeeper/internal/period"
	"gorm.io/gorm"
)

// InsufficientFundsError reports exactly how much is missing so the command
// layer can tell the member what to top up.
type InsufficientFundsError struct {
	Required  int64
	Available int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient_funds: need %d, have %d (short %d)", e.Required, e.Available, e.Shortfall())
}

func (e *InsufficientFundsError) Shortfall() int64 {
	return e.Required - e.Available
}

type RecordPaymentRequest struct {
	GroupID      int64
	SubscriberID int64
	Amount       int64
	Method       PaymentMethod
	Period       period.Period
	OccurredAt   time.Time
	Metadata     map[string]any
}

type RecordTerminalRequest struct {
	GroupID      int64
	SubscriberID int64
	Method       PaymentMethod
	Period       period.Period
	DaysOverdue  int
	OccurredAt   time.Time
	Reason       string
}

type Service interface {
	// WithTrx returns a view of the service bound to tx so callers can fold
	// ledger writes into their own transaction.
	WithTrx(tx *gorm.DB) Service

	// HasPaid reports whether a dues payment was recorded against the
	// period, matched by the event's own period columns so a late payment
	// settles its period and nothing else. Credits and terminal events
	// never count.
	HasPaid(ctx context.Context, groupID, subscriberID int64, p period.Period) (bool, error)

	// RecordPayment appends one event and debits the subscriber's dedicated
	// balance as a single storage transaction: both happen or neither does.
	RecordPayment(ctx context.Context, req RecordPaymentRequest) (*PaymentEvent, error)

	// RecordCredit appends an admin-credit event. The balance mutation is the
	// caller's (already applied atomically); this is bookkeeping only.
	RecordCredit(ctx context.Context, groupID, subscriberID, amount int64, occurredAt time.Time, metadata map[string]any) (*PaymentEvent, error)

	// RecordTerminal appends the final zero-amount event for an eviction
	// inside the caller's transaction.
	RecordTerminal(ctx context.Context, req RecordTerminalRequest) (*PaymentEvent, error)

	ListBySubscriber(ctx context.Context, groupID, subscriberID int64, limit int) ([]PaymentEvent, error)
}
