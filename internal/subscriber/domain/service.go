package domain

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

type Service interface {
	// WithTrx returns a view of the service bound to tx so callers can fold
	// account writes into their own transaction.
	WithTrx(tx *gorm.DB) Service

	// Enroll registers a member in a group's dues roster. Enrolling twice is
	// a no-op returning the existing account.
	Enroll(ctx context.Context, groupID, subscriberID int64) (*Subscriber, error)
	Get(ctx context.Context, groupID, subscriberID int64) (*Subscriber, error)
	ListByGroup(ctx context.Context, groupID int64) ([]Subscriber, error)
	// Credit atomically adds amount to the dedicated balance.
	Credit(ctx context.Context, groupID, subscriberID, amount int64) (*Subscriber, error)
	Remove(ctx context.Context, groupID, subscriberID int64) error
}

var (
	ErrNotEnrolled   = errors.New("not_enrolled")
	ErrInvalidAmount = errors.New("invalid_amount")
)
