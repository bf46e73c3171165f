package domain

import (
	"context"
	"errors"

	ledgerdomain "github.com/duekeeper/duekeeper/internal/ledger/domain"
	"github.com/duekeeper/duekeeper/internal/period"
)

// ErrMembershipRemovalFailed means the group platform refused or failed the
// removal. Local dues records are kept; nothing was deleted.
var ErrMembershipRemovalFailed = errors.New("membership_removal_failed")

type EvictRequest struct {
	GroupID      int64
	SubscriberID int64
	// Method is MethodEviction for scheduler-driven removals and
	// MethodManualEviction for admin-triggered ones.
	Method      ledgerdomain.PaymentMethod
	Period      period.Period
	DaysOverdue int
	Reason      string
}

type Service interface {
	// Evict removes the subscriber from the group, then deletes the local
	// account and appends the terminal ledger event in one transaction.
	// Membership removal runs first: if the platform does not confirm it,
	// local records stay untouched.
	Evict(ctx context.Context, req EvictRequest) error
}
