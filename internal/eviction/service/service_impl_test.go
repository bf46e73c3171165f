package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/duekeeper/duekeeper/internal/clock"
	evictiondomain "github.com/duekeeper/duekeeper/internal/eviction/domain"
	ledgerdomain "github.com/duekeeper/duekeeper/internal/ledger/domain"
	ledgerservice "github.com/duekeeper/duekeeper/internal/ledger/service"
	"github.com/duekeeper/duekeeper/internal/period"
	policydomain "github.com/duekeeper/duekeeper/internal/policy/domain"
	subscriberdomain "github.com/duekeeper/duekeeper/internal/subscriber/domain"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type stubMembership struct {
	removed   [][2]int64
	removeErr error
}

func (m *stubMembership) RemoveMember(_ context.Context, groupID, subscriberID int64) error {
	if m.removeErr != nil {
		return m.removeErr
	}
	m.removed = append(m.removed, [2]int64{groupID, subscriberID})
	return nil
}

func (m *stubMembership) ListMembers(_ context.Context, _ int64) ([]int64, error) {
	return nil, nil
}

func setupEviction(t *testing.T, provider *stubMembership) (*gorm.DB, evictiondomain.Service) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&subscriberdomain.Subscriber{},
		&ledgerdomain.PaymentEvent{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2025, time.February, 5, 23, 59, 59, 0, time.UTC))
	ledger := ledgerservice.NewService(ledgerservice.ServiceParam{
		DB: db, Log: zap.NewNop(), GenID: node, Clock: fake,
	})

	svc := NewService(ServiceParam{
		DB:         db,
		Log:        zap.NewNop(),
		Membership: provider,
		Ledger:     ledger,
	})
	return db, svc
}

func seedSubscriber(t *testing.T, db *gorm.DB, groupID, subscriberID int64) {
	t.Helper()
	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	require.NoError(t, db.Create(&subscriberdomain.Subscriber{
		ID:           node.Generate(),
		SubscriberID: subscriberID,
		GroupID:      groupID,
		JoinedAt:     time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC),
	}).Error)
}

func overduePeriod() period.Period {
	// monthly policy, due day 1, evaluated four days past the due instant
	policy := policydomain.BillingPolicy{
		CycleKind:     policydomain.CycleKindMonthly,
		DueDayOfMonth: 1,
	}
	return period.Compute(policy, time.Date(2025, time.February, 5, 23, 59, 59, 0, time.UTC))
}

func TestEvictRemovesAccountAndWritesTerminalEvent(t *testing.T) {
	provider := &stubMembership{}
	db, svc := setupEviction(t, provider)
	seedSubscriber(t, db, 10, 1001)

	p := overduePeriod()
	require.True(t, p.Overdue)
	require.Equal(t, 4, p.DaysOverdue)

	err := svc.Evict(context.Background(), evictiondomain.EvictRequest{
		GroupID:      10,
		SubscriberID: 1001,
		Method:       ledgerdomain.MethodEviction,
		Period:       p,
		DaysOverdue:  p.DaysOverdue,
		Reason:       "unpaid past grace",
	})
	require.NoError(t, err)
	require.Len(t, provider.removed, 1)

	var subCount int64
	require.NoError(t, db.Model(&subscriberdomain.Subscriber{}).Count(&subCount).Error)
	assert.Equal(t, int64(0), subCount)

	var events []ledgerdomain.PaymentEvent
	require.NoError(t, db.Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, ledgerdomain.MethodEviction, events[0].Method)
	assert.Equal(t, int64(0), events[0].Amount)
	assert.Equal(t, 4, events[0].DaysLate)
}

func TestEvictKeepsRecordsWhenRemovalFails(t *testing.T) {
	provider := &stubMembership{removeErr: errors.New("platform timeout")}
	db, svc := setupEviction(t, provider)
	seedSubscriber(t, db, 10, 1001)

	err := svc.Evict(context.Background(), evictiondomain.EvictRequest{
		GroupID:      10,
		SubscriberID: 1001,
		Method:       ledgerdomain.MethodEviction,
		Period:       overduePeriod(),
		DaysOverdue:  4,
		Reason:       "unpaid past grace",
	})
	assert.ErrorIs(t, err, evictiondomain.ErrMembershipRemovalFailed)

	var subCount, eventCount int64
	require.NoError(t, db.Model(&subscriberdomain.Subscriber{}).Count(&subCount).Error)
	require.NoError(t, db.Model(&ledgerdomain.PaymentEvent{}).Count(&eventCount).Error)
	assert.Equal(t, int64(1), subCount)
	assert.Equal(t, int64(0), eventCount)
}

func TestEvictUnknownSubscriberSkipsRemoval(t *testing.T) {
	provider := &stubMembership{}
	_, svc := setupEviction(t, provider)

	err := svc.Evict(context.Background(), evictiondomain.EvictRequest{
		GroupID:      10,
		SubscriberID: 9999,
		Method:       ledgerdomain.MethodManualEviction,
		Period:       overduePeriod(),
	})
	assert.ErrorIs(t, err, subscriberdomain.ErrNotEnrolled)
	assert.Empty(t, provider.removed)
}
