// Package domain contains the per-group dues configuration model.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

// CycleKind is the billing cadence for a group.
type CycleKind string

const (
	CycleKindMonthly CycleKind = "monthly"
	CycleKindWeekly  CycleKind = "weekly"
)

// BillingPolicy describes how dues are charged for one group.
type BillingPolicy struct {
	GroupID   int64     `gorm:"primaryKey;autoIncrement:false"`
	CycleKind CycleKind `gorm:"type:text;not null;default:'monthly'"`

	// DueDayOfMonth is clamped to [1,28] so every month has the due day.
	DueDayOfMonth int `gorm:"not null;default:1"`
	// DueWeekday is ISO: 1=Monday .. 7=Sunday. Used when CycleKind is weekly.
	DueWeekday int `gorm:"not null;default:1"`

	FeeAmount          int64                    `gorm:"not null"`
	GracePeriodDays    int                      `gorm:"not null;default:0"`
	ReminderOffsetDays datatypes.JSONSlice[int] `gorm:"not null"`

	AutoCollect bool `gorm:"not null;default:false"`
	AutoEvict   bool `gorm:"not null;default:false"`
	Enabled     bool `gorm:"not null;default:true"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (BillingPolicy) TableName() string { return "billing_policies" }

// Offsets returns the reminder offsets as a plain slice.
func (p BillingPolicy) Offsets() []int {
	out := make([]int, 0, len(p.ReminderOffsetDays))
	for _, v := range p.ReminderOffsetDays {
		out = append(out, v)
	}
	return out
}
