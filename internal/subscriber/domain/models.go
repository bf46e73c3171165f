// Package domain contains the per-group subscriber account model.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Subscriber is one member's dues account inside one group. DedicatedBalance
// holds funds ring-fenced for dues, separate from the member's primary
// wallet; it never goes negative.
type Subscriber struct {
	ID           snowflake.ID `gorm:"primaryKey"`
	SubscriberID int64        `gorm:"not null;uniqueIndex:ux_subscriber_group,priority:1"`
	GroupID      int64        `gorm:"not null;uniqueIndex:ux_subscriber_group,priority:2;index"`

	DedicatedBalance int64 `gorm:"not null;default:0"`

	JoinedAt          time.Time  `gorm:"not null"`
	LastPaidAt        *time.Time `gorm:""`
	LastPaidPeriodKey string     `gorm:"type:text;not null;default:''"`
	TotalPaid         int64      `gorm:"not null;default:0"`
	PaymentCount      int        `gorm:"not null;default:0"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Subscriber) TableName() string { return "subscribers" }
