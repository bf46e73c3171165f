// Package migration creates the schema on startup so local and self-hosted
// deployments work out of the box.
package migration

import (
	"errors"

	"github.com/duekeeper/duekeeper/internal/enforcement"
	ledgerdomain "github.com/duekeeper/duekeeper/internal/ledger/domain"
	policydomain "github.com/duekeeper/duekeeper/internal/policy/domain"
	subscriberdomain "github.com/duekeeper/duekeeper/internal/subscriber/domain"
	"gorm.io/gorm"
)

func Run(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	return conn.AutoMigrate(
		&policydomain.BillingPolicy{},
		&subscriberdomain.Subscriber{},
		&ledgerdomain.PaymentEvent{},
		&enforcement.ReminderMarker{},
	)
}
