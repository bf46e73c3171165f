package domain

import (
	"context"
	"errors"
)

type UpsertPolicyRequest struct {
	GroupID            int64
	CycleKind          CycleKind
	DueDayOfMonth      int
	DueWeekday         int
	FeeAmount          int64
	GracePeriodDays    *int
	ReminderOffsetDays []int
	AutoCollect        bool
	AutoEvict          bool
}

type Service interface {
	Upsert(ctx context.Context, req UpsertPolicyRequest) (*BillingPolicy, error)
	Get(ctx context.Context, groupID int64) (*BillingPolicy, error)
	ListEnabled(ctx context.Context) ([]BillingPolicy, error)
	Disable(ctx context.Context, groupID int64) error
}

var (
	ErrPolicyNotFound        = errors.New("policy_not_found")
	ErrInvalidFee            = errors.New("invalid_fee_amount")
	ErrInvalidGracePeriod    = errors.New("invalid_grace_period")
	ErrInvalidCycleKind      = errors.New("invalid_cycle_kind")
	ErrInvalidDueWeekday     = errors.New("invalid_due_weekday")
	ErrInvalidReminderOffset = errors.New("invalid_reminder_offset")
)
