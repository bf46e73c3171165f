package domain

import (
	"context"
	"errors"

	ledgerdomain "github.com/duekeeper/duekeeper/internal/ledger/domain"
	"github.com/duekeeper/duekeeper/internal/period"
	policydomain "github.com/duekeeper/duekeeper/internal/policy/domain"
	subscriberdomain "github.com/duekeeper/duekeeper/internal/subscriber/domain"
)

var (
	// ErrAlreadyPaid means the period already has a dues payment; PayNow
	// treats a second attempt as an idempotent no-op surfaced to the caller.
	ErrAlreadyPaid = errors.New("already_paid")

	// ErrTransferFailed means the wallet was debited, the dedicated credit
	// failed, and the wallet was refunded. No funds were lost.
	ErrTransferFailed = errors.New("transfer_failed")

	ErrInvalidAmount = errors.New("invalid_amount")
)

type CollectionResult struct {
	Collected  bool
	NewBalance int64
	Event      *ledgerdomain.PaymentEvent
}

type PayNowResult struct {
	NewBalance int64
	Period     period.Period
	Event      *ledgerdomain.PaymentEvent
}

type TransferInResult struct {
	WalletBalance    int64
	DedicatedBalance int64
}

// Summary is what the command layer renders for "my dues status".
type Summary struct {
	Subscriber subscriberdomain.Subscriber
	Policy     policydomain.BillingPolicy
	Period     period.Period
	Paid       bool
}

type Service interface {
	// AttemptCollection charges the dedicated balance for the period when
	// the policy allows auto-collect and the balance covers the fee. An
	// underfunded account is a normal outcome, not an error.
	AttemptCollection(ctx context.Context, sub subscriberdomain.Subscriber, p period.Period, policy policydomain.BillingPolicy) (*CollectionResult, error)

	// PayNow charges the current period on the member's request. Fails with
	// ErrAlreadyPaid or InsufficientFundsError carrying the exact shortfall.
	PayNow(ctx context.Context, groupID, subscriberID int64) (*PayNowResult, error)

	// TransferIn moves amount from the external wallet into the dedicated
	// balance. On any credit failure the wallet is refunded before the error
	// is returned.
	TransferIn(ctx context.Context, groupID, subscriberID, amount int64) (*TransferInResult, error)

	// AdminCredit tops up the dedicated balance and records the credit event.
	AdminCredit(ctx context.Context, groupID, subscriberID, amount int64, note string) (*subscriberdomain.Subscriber, error)

	Summary(ctx context.Context, groupID, subscriberID int64) (*Summary, error)
}
