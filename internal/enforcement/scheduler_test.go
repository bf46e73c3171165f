package enforcement

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/duekeeper/duekeeper/internal/clock"
	collectionservice "github.com/duekeeper/duekeeper/internal/collection/service"
	evictionservice "github.com/duekeeper/duekeeper/internal/eviction/service"
	ledgerdomain "github.com/duekeeper/duekeeper/internal/ledger/domain"
	ledgerservice "github.com/duekeeper/duekeeper/internal/ledger/service"
	"github.com/duekeeper/duekeeper/internal/notify"
	"github.com/duekeeper/duekeeper/internal/period"
	policydomain "github.com/duekeeper/duekeeper/internal/policy/domain"
	policyservice "github.com/duekeeper/duekeeper/internal/policy/service"
	subscriberdomain "github.com/duekeeper/duekeeper/internal/subscriber/domain"
	subscriberservice "github.com/duekeeper/duekeeper/internal/subscriber/service"
	"github.com/duekeeper/duekeeper/internal/wallet"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type stubMembership struct {
	removed [][2]int64
	failFor map[int64]error
}

func (m *stubMembership) RemoveMember(_ context.Context, groupID, subscriberID int64) error {
	if err, ok := m.failFor[subscriberID]; ok {
		return err
	}
	m.removed = append(m.removed, [2]int64{groupID, subscriberID})
	return nil
}

func (m *stubMembership) ListMembers(_ context.Context, _ int64) ([]int64, error) {
	return nil, nil
}

type harness struct {
	db          *gorm.DB
	clock       *clock.FakeClock
	recorder    *notify.Recorder
	membership  *stubMembership
	policies    policydomain.Service
	subscribers subscriberdomain.Service
	ledger      ledgerdomain.Service
	sched       *Scheduler
}

func newHarness(t *testing.T, now time.Time, cfg Config) *harness {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&policydomain.BillingPolicy{},
		&subscriberdomain.Subscriber{},
		&ledgerdomain.PaymentEvent{},
		&ReminderMarker{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zap.NewNop()
	fake := clock.NewFakeClock(now)
	recorder := notify.NewRecorder()
	member := &stubMembership{failFor: map[int64]error{}}

	policies, err := policyservice.NewService(policyservice.ServiceParam{DB: db, Log: log, Clock: fake})
	require.NoError(t, err)
	subscribers := subscriberservice.NewService(subscriberservice.ServiceParam{DB: db, Log: log, GenID: node, Clock: fake})
	ledger := ledgerservice.NewService(ledgerservice.ServiceParam{DB: db, Log: log, GenID: node, Clock: fake})
	collection := collectionservice.NewService(collectionservice.ServiceParam{
		DB: db, Log: log, Clock: fake, Policies: policies, Subscribers: subscribers, Ledger: ledger, Wallet: wallet.NewMemoryWallet(),
	})
	eviction := evictionservice.NewService(evictionservice.ServiceParam{
		DB: db, Log: log, Membership: member, Ledger: ledger,
	})

	cfg.Notify = true
	sched, err := New(Params{
		DB:            db,
		Log:           log,
		GenID:         node,
		Clock:         fake,
		PolicySvc:     policies,
		SubscriberSvc: subscribers,
		LedgerSvc:     ledger,
		CollectionSvc: collection,
		EvictionSvc:   eviction,
		Notifier:      recorder,
		Config:        cfg,
	})
	require.NoError(t, err)

	return &harness{
		db:          db,
		clock:       fake,
		recorder:    recorder,
		membership:  member,
		policies:    policies,
		subscribers: subscribers,
		ledger:      ledger,
		sched:       sched,
	}
}

func (h *harness) seedPolicy(t *testing.T, groupID int64, dueDay int, fee int64, grace int, offsets []int, autoCollect, autoEvict bool) {
	t.Helper()
	_, err := h.policies.Upsert(context.Background(), policydomain.UpsertPolicyRequest{
		GroupID:            groupID,
		CycleKind:          policydomain.CycleKindMonthly,
		DueDayOfMonth:      dueDay,
		FeeAmount:          fee,
		GracePeriodDays:    &grace,
		ReminderOffsetDays: offsets,
		AutoCollect:        autoCollect,
		AutoEvict:          autoEvict,
	})
	require.NoError(t, err)
}

func (h *harness) seedSubscriber(t *testing.T, groupID, subscriberID, balance int64) {
	t.Helper()
	ctx := context.Background()
	_, err := h.subscribers.Enroll(ctx, groupID, subscriberID)
	require.NoError(t, err)
	if balance > 0 {
		_, err = h.subscribers.Credit(ctx, groupID, subscriberID, balance)
		require.NoError(t, err)
	}
}

func noticesContaining(recorder *notify.Recorder, substr string) int {
	n := 0
	for _, text := range recorder.Texts() {
		if strings.Contains(text, substr) {
			n++
		}
	}
	return n
}

// Three days before the due date with offsets [7,3,1], exactly the offset-3
// reminder fires, and a second tick the same day does not repeat it.
func TestReminderFiresOncePerOffset(t *testing.T) {
	now := time.Date(2025, time.February, 25, 12, 0, 0, 0, time.UTC)
	h := newHarness(t, now, Config{})
	h.seedPolicy(t, 10, 28, 50000, 3, []int{7, 3, 1}, false, false)
	h.seedSubscriber(t, 10, 1001, 0)

	require.NoError(t, h.sched.RunOnce(context.Background()))
	require.Len(t, h.recorder.Notices, 1)
	assert.Contains(t, h.recorder.Notices[0].Text, "due in 3 day(s)")
	assert.Equal(t, int64(1001), h.recorder.Notices[0].Dest.SubscriberID)

	// sub-daily re-tick, marker already claimed
	h.clock.Advance(time.Hour)
	require.NoError(t, h.sched.RunOnce(context.Background()))
	assert.Len(t, h.recorder.Notices, 1)

	// next offset fires on its own day
	h.clock.Advance(48 * time.Hour)
	require.NoError(t, h.sched.RunOnce(context.Background()))
	require.Len(t, h.recorder.Notices, 2)
	assert.Contains(t, h.recorder.Notices[1].Text, "due in 1 day(s)")
}

func TestPaidSubscriberIsSkipped(t *testing.T) {
	now := time.Date(2025, time.February, 25, 12, 0, 0, 0, time.UTC)
	h := newHarness(t, now, Config{})
	h.seedPolicy(t, 10, 28, 50000, 3, []int{3}, true, true)
	h.seedSubscriber(t, 10, 1001, 100000)

	p := periodFor(t, h, 10)
	_, err := h.ledger.RecordPayment(context.Background(), ledgerdomain.RecordPaymentRequest{
		GroupID:      10,
		SubscriberID: 1001,
		Amount:       50000,
		Method:       ledgerdomain.MethodManual,
		Period:       p,
	})
	require.NoError(t, err)

	require.NoError(t, h.sched.RunOnce(context.Background()))
	assert.Empty(t, h.recorder.Notices)
}

func TestOverdueAutoCollects(t *testing.T) {
	// due day 1, one day past due
	now := time.Date(2025, time.February, 3, 8, 0, 0, 0, time.UTC)
	h := newHarness(t, now, Config{})
	h.seedPolicy(t, 10, 1, 50000, 3, []int{3}, true, true)
	h.seedSubscriber(t, 10, 1001, 60000)

	require.NoError(t, h.sched.RunOnce(context.Background()))

	require.Equal(t, 1, noticesContaining(h.recorder, "collected"))
	sub, err := h.subscribers.Get(context.Background(), 10, 1001)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), sub.DedicatedBalance)
	assert.Empty(t, h.membership.removed)
}

// An unpaid zero-balance subscriber four days past a three-day grace window
// is evicted with a terminal event carrying the overdue day count.
func TestEvictionPastGrace(t *testing.T) {
	now := time.Date(2025, time.February, 6, 12, 0, 0, 0, time.UTC)
	h := newHarness(t, now, Config{})
	h.seedPolicy(t, 10, 1, 50000, 3, []int{3}, true, true)
	h.seedSubscriber(t, 10, 1001, 0)

	require.NoError(t, h.sched.RunOnce(context.Background()))

	require.Len(t, h.membership.removed, 1)
	assert.Equal(t, [2]int64{10, 1001}, h.membership.removed[0])

	_, err := h.subscribers.Get(context.Background(), 10, 1001)
	assert.ErrorIs(t, err, subscriberdomain.ErrNotEnrolled)

	var events []ledgerdomain.PaymentEvent
	require.NoError(t, h.db.Where("method = ?", ledgerdomain.MethodEviction).Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, 4, events[0].DaysLate)
	assert.Equal(t, int64(0), events[0].Amount)

	require.Equal(t, 1, noticesContaining(h.recorder, "removed"))
}

func TestOverdueNoticeWithinGraceOncePerDay(t *testing.T) {
	// two days past due, grace three days, no balance, eviction off
	now := time.Date(2025, time.February, 4, 9, 0, 0, 0, time.UTC)
	h := newHarness(t, now, Config{})
	h.seedPolicy(t, 10, 1, 50000, 3, []int{3}, true, false)
	h.seedSubscriber(t, 10, 1001, 0)

	require.NoError(t, h.sched.RunOnce(context.Background()))
	require.Equal(t, 1, noticesContaining(h.recorder, "overdue by 2 day(s)"))
	require.Equal(t, 1, noticesContaining(h.recorder, "1 day(s) of grace remaining"))

	// same overdue day, no repeat
	h.clock.Advance(2 * time.Hour)
	require.NoError(t, h.sched.RunOnce(context.Background()))
	assert.Equal(t, 1, noticesContaining(h.recorder, "overdue by 2 day(s)"))

	// next day escalates the count once
	h.clock.Advance(24 * time.Hour)
	require.NoError(t, h.sched.RunOnce(context.Background()))
	assert.Equal(t, 1, noticesContaining(h.recorder, "overdue by 3 day(s)"))
}

// One subscriber's failing eviction must not stop the rest of the group or
// other groups from being processed in the same tick.
func TestTickIsolatesPerSubscriberFailures(t *testing.T) {
	now := time.Date(2025, time.February, 6, 12, 0, 0, 0, time.UTC)
	h := newHarness(t, now, Config{})
	h.seedPolicy(t, 10, 1, 50000, 3, []int{3}, true, true)
	h.seedSubscriber(t, 10, 1001, 0)
	h.seedSubscriber(t, 10, 1002, 80000)
	h.seedPolicy(t, 20, 1, 30000, 3, []int{3}, true, false)
	h.seedSubscriber(t, 20, 2001, 40000)

	h.membership.failFor[1001] = errors.New("platform refused")

	err := h.sched.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "membership_removal_failed")

	// 1001 survived the failed eviction
	_, err = h.subscribers.Get(context.Background(), 10, 1001)
	require.NoError(t, err)

	// 1002 and group 20 were still collected
	sub, err := h.subscribers.Get(context.Background(), 10, 1002)
	require.NoError(t, err)
	assert.Equal(t, int64(30000), sub.DedicatedBalance)
	other, err := h.subscribers.Get(context.Background(), 20, 2001)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), other.DedicatedBalance)
}

func TestBatchModeFlushesGroupTogether(t *testing.T) {
	now := time.Date(2025, time.February, 3, 8, 0, 0, 0, time.UTC)
	h := newHarness(t, now, Config{BatchMode: true})
	h.seedPolicy(t, 10, 1, 50000, 3, []int{3}, true, false)
	h.seedSubscriber(t, 10, 1001, 60000)
	h.seedSubscriber(t, 10, 1002, 70000)
	h.seedSubscriber(t, 10, 1003, 0)

	require.NoError(t, h.sched.RunOnce(context.Background()))

	assert.Equal(t, 2, noticesContaining(h.recorder, "collected"))
	assert.Equal(t, 1, noticesContaining(h.recorder, "overdue"))

	var count int64
	require.NoError(t, h.db.Model(&ledgerdomain.PaymentEvent{}).
		Where("method = ?", ledgerdomain.MethodAutoCollect).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestRunLoopLagTracksInjectedClock(t *testing.T) {
	now := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	h := newHarness(t, now, DefaultConfig())

	nextRun := now.Add(time.Minute)
	assert.Equal(t, -time.Minute, h.sched.runLoopLag(nextRun))

	h.clock.Advance(3 * time.Minute)
	assert.Equal(t, 2*time.Minute, h.sched.runLoopLag(nextRun))
}

func TestDisabledJobListSkipsEnforcement(t *testing.T) {
	now := time.Date(2025, time.February, 3, 8, 0, 0, 0, time.UTC)
	h := newHarness(t, now, Config{EnabledJobs: []string{"other_job"}})
	h.seedPolicy(t, 10, 1, 50000, 3, []int{3}, true, true)
	h.seedSubscriber(t, 10, 1001, 60000)

	require.NoError(t, h.sched.RunOnce(context.Background()))
	assert.Empty(t, h.recorder.Notices)
}

func periodFor(t *testing.T, h *harness, groupID int64) period.Period {
	t.Helper()
	policy, err := h.policies.Get(context.Background(), groupID)
	require.NoError(t, err)
	return period.Compute(*policy, h.clock.Now())
}
