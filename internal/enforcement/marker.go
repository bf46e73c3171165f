package enforcement

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/duekeeper/duekeeper/pkg/db"
)

// ReminderMarker pins a dispatched notice to (group, subscriber, period,
// offset). The unique index makes the insert the claim: whichever tick gets
// the row in sends the notice, every later tick hits the duplicate key and
// skips. Positive offsets are pre-due reminders, negative ones overdue
// notices keyed by days past due.
type ReminderMarker struct {
	ID           snowflake.ID `gorm:"primaryKey"`
	GroupID      int64        `gorm:"not null;uniqueIndex:ux_reminder_marker,priority:1"`
	SubscriberID int64        `gorm:"not null;uniqueIndex:ux_reminder_marker,priority:2"`
	PeriodKey    string       `gorm:"type:text;not null;uniqueIndex:ux_reminder_marker,priority:3"`
	OffsetDays   int          `gorm:"not null;uniqueIndex:ux_reminder_marker,priority:4"`
	SentAt       time.Time    `gorm:"not null"`
}

// TableName sets the database table name.
func (ReminderMarker) TableName() string { return "reminder_markers" }

// claimMarker records the notice and reports whether this tick owns it.
func (s *Scheduler) claimMarker(ctx context.Context, groupID, subscriberID int64, periodKey string, offsetDays int) (bool, error) {
	marker := &ReminderMarker{
		ID:           s.genID.Generate(),
		GroupID:      groupID,
		SubscriberID: subscriberID,
		PeriodKey:    periodKey,
		OffsetDays:   offsetDays,
		SentAt:       s.clock.Now(),
	}
	if err := s.db.WithContext(ctx).Create(marker).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
