// Package domain contains the append-only payment event ledger. Events are
// immutable once written; they are the sole source of truth for whether a
// subscriber has paid a period.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// PaymentMethod classifies a ledger event.
type PaymentMethod string

const (
	MethodManual      PaymentMethod = "manual"
	MethodAutoCollect PaymentMethod = "auto_collect"
	MethodAdminCredit PaymentMethod = "admin_credit"

	// Terminal entries written when a subscriber is evicted.
	MethodEviction       PaymentMethod = "eviction"
	MethodManualEviction PaymentMethod = "manual_eviction"
)

// duesMethods are the methods that satisfy a period's dues. Credits and
// terminal entries share the table but never count as payment.
var duesMethods = []PaymentMethod{MethodManual, MethodAutoCollect}

// DuesMethods returns the methods that mark a period as paid.
func DuesMethods() []PaymentMethod {
	out := make([]PaymentMethod, len(duesMethods))
	copy(out, duesMethods)
	return out
}

// PaymentEvent is one immutable ledger row.
type PaymentEvent struct {
	ID           snowflake.ID `gorm:"primaryKey"`
	SubscriberID int64        `gorm:"not null;index:ix_payment_events_account,priority:2"`
	GroupID      int64        `gorm:"not null;index:ix_payment_events_account,priority:1;index:ix_payment_events_group_time,priority:1"`

	Amount int64         `gorm:"not null"`
	Method PaymentMethod `gorm:"type:text;not null"`

	PeriodStart time.Time `gorm:"not null"`
	PeriodEnd   time.Time `gorm:"not null"`
	DaysLate    int       `gorm:"not null;default:0"`

	Metadata   datatypes.JSONMap `gorm:"type:jsonb"`
	OccurredAt time.Time         `gorm:"not null;index:ix_payment_events_group_time,priority:2"`
}

// TableName sets the database table name.
func (PaymentEvent) TableName() string { return "payment_events" }
