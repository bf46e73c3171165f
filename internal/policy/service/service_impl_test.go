package service

import (
	"context"
	"testing"
	"time"

	"github.com/duekeeper/duekeeper/internal/clock"
	policydomain "github.com/duekeeper/duekeeper/internal/policy/domain"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newService(t *testing.T) (policydomain.Service, *clock.FakeClock, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&policydomain.BillingPolicy{}))

	fake := clock.NewFakeClock(time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC))
	svc, err := NewService(ServiceParam{DB: db, Log: zap.NewNop(), Clock: fake})
	require.NoError(t, err)
	return svc, fake, db
}

func TestUpsertAppliesDefaults(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	policy, err := svc.Upsert(ctx, policydomain.UpsertPolicyRequest{
		GroupID:   10,
		FeeAmount: 50000,
	})
	require.NoError(t, err)

	assert.Equal(t, policydomain.CycleKindMonthly, policy.CycleKind)
	assert.Equal(t, 1, policy.DueDayOfMonth)
	assert.Equal(t, 3, policy.GracePeriodDays)
	assert.Equal(t, []int{7, 3, 1}, policy.Offsets())
	assert.True(t, policy.Enabled)
}

func TestUpsertClampsDueDay(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	policy, err := svc.Upsert(ctx, policydomain.UpsertPolicyRequest{
		GroupID:       10,
		FeeAmount:     50000,
		DueDayOfMonth: 31,
	})
	require.NoError(t, err)
	assert.Equal(t, 28, policy.DueDayOfMonth)
}

func TestUpsertRejectsInvalidRequests(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	grace := -1

	cases := []struct {
		name string
		req  policydomain.UpsertPolicyRequest
		want error
	}{
		{
			name: "zero fee",
			req:  policydomain.UpsertPolicyRequest{GroupID: 10},
			want: policydomain.ErrInvalidFee,
		},
		{
			name: "negative grace",
			req:  policydomain.UpsertPolicyRequest{GroupID: 10, FeeAmount: 100, GracePeriodDays: &grace},
			want: policydomain.ErrInvalidGracePeriod,
		},
		{
			name: "unknown cycle",
			req:  policydomain.UpsertPolicyRequest{GroupID: 10, FeeAmount: 100, CycleKind: "daily"},
			want: policydomain.ErrInvalidCycleKind,
		},
		{
			name: "weekday out of range",
			req:  policydomain.UpsertPolicyRequest{GroupID: 10, FeeAmount: 100, DueWeekday: 8},
			want: policydomain.ErrInvalidDueWeekday,
		},
		{
			name: "non positive offset",
			req:  policydomain.UpsertPolicyRequest{GroupID: 10, FeeAmount: 100, ReminderOffsetDays: []int{3, 0}},
			want: policydomain.ErrInvalidReminderOffset,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Upsert(ctx, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestUpsertReplacesExistingPolicy(t *testing.T) {
	svc, fake, _ := newService(t)
	ctx := context.Background()

	first, err := svc.Upsert(ctx, policydomain.UpsertPolicyRequest{
		GroupID:   10,
		FeeAmount: 50000,
	})
	require.NoError(t, err)

	fake.Advance(time.Hour)
	second, err := svc.Upsert(ctx, policydomain.UpsertPolicyRequest{
		GroupID:     10,
		FeeAmount:   75000,
		AutoCollect: true,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(75000), second.FeeAmount)
	assert.True(t, second.AutoCollect)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt))

	got, err := svc.Get(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(75000), got.FeeAmount)
}

func TestGetServesFromCacheAfterFirstRead(t *testing.T) {
	svc, _, db := newService(t)
	ctx := context.Background()

	_, err := svc.Upsert(ctx, policydomain.UpsertPolicyRequest{GroupID: 10, FeeAmount: 50000})
	require.NoError(t, err)

	_, err = svc.Get(ctx, 10)
	require.NoError(t, err)

	// Mutate storage behind the service. The cached copy keeps serving until
	// the next write invalidates it.
	require.NoError(t, db.Exec(`UPDATE billing_policies SET fee_amount = 1 WHERE group_id = 10`).Error)

	got, err := svc.Get(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(50000), got.FeeAmount)

	require.NoError(t, svc.Disable(ctx, 10))
	fresh, err := svc.Get(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), fresh.FeeAmount)
	assert.False(t, fresh.Enabled)
}

func TestGetUnknownGroup(t *testing.T) {
	svc, _, _ := newService(t)

	_, err := svc.Get(context.Background(), 404)
	assert.ErrorIs(t, err, policydomain.ErrPolicyNotFound)
}

func TestListEnabledSkipsDisabledGroups(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	for _, groupID := range []int64{30, 10, 20} {
		_, err := svc.Upsert(ctx, policydomain.UpsertPolicyRequest{GroupID: groupID, FeeAmount: 50000})
		require.NoError(t, err)
	}
	require.NoError(t, svc.Disable(ctx, 20))

	enabled, err := svc.ListEnabled(ctx)
	require.NoError(t, err)
	require.Len(t, enabled, 2)
	assert.Equal(t, int64(10), enabled[0].GroupID)
	assert.Equal(t, int64(30), enabled[1].GroupID)
}

func TestDisableUnknownGroup(t *testing.T) {
	svc, _, _ := newService(t)

	err := svc.Disable(context.Background(), 404)
	assert.ErrorIs(t, err, policydomain.ErrPolicyNotFound)
}
