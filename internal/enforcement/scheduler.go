// Package enforcement drives the periodic dues tick: reminders before the
// due date, auto-collection and overdue notices after it, eviction once the
// grace period runs out. State per (group, subscriber, period) is re-derived
// from the ledger on every tick, never stored, so it cannot drift when a
// policy changes mid-cycle.
package enforcement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/duekeeper/duekeeper/internal/clock"
	collectiondomain "github.com/duekeeper/duekeeper/internal/collection/domain"
	evictiondomain "github.com/duekeeper/duekeeper/internal/eviction/domain"
	ledgerdomain "github.com/duekeeper/duekeeper/internal/ledger/domain"
	"github.com/duekeeper/duekeeper/internal/notify"
	obsmetrics "github.com/duekeeper/duekeeper/internal/observability/metrics"
	"github.com/duekeeper/duekeeper/internal/period"
	policydomain "github.com/duekeeper/duekeeper/internal/policy/domain"
	subscriberdomain "github.com/duekeeper/duekeeper/internal/subscriber/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const jobEnforceDues = "enforce_dues"

const jobTimeout = 5 * time.Minute

var ErrInvalidConfig = errors.New("enforcement scheduler missing dependencies")

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	PolicySvc     policydomain.Service
	SubscriberSvc subscriberdomain.Service
	LedgerSvc     ledgerdomain.Service
	CollectionSvc collectiondomain.Service
	EvictionSvc   evictiondomain.Service
	Notifier      notify.Notifier
	Config        Config `optional:"true"`
}

type Scheduler struct {
	db            *gorm.DB
	log           *zap.Logger
	cfg           Config
	genID         *snowflake.Node
	clock         clock.Clock
	policySvc     policydomain.Service
	subscriberSvc subscriberdomain.Service
	ledgerSvc     ledgerdomain.Service
	collectionSvc collectiondomain.Service
	evictionSvc   evictiondomain.Service
	notifier      notify.Notifier
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Clock == nil ||
		p.PolicySvc == nil || p.SubscriberSvc == nil || p.LedgerSvc == nil ||
		p.CollectionSvc == nil || p.EvictionSvc == nil || p.Notifier == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:            p.DB,
		log:           p.Log.Named("enforcement").With(zap.String("component", "scheduler")),
		cfg:           p.Config.withDefaults(),
		genID:         p.GenID,
		clock:         p.Clock,
		policySvc:     p.PolicySvc,
		subscriberSvc: p.SubscriberSvc,
		ledgerSvc:     p.LedgerSvc,
		collectionSvc: p.CollectionSvc,
		evictionSvc:   p.EvictionSvc,
		notifier:      p.Notifier,
	}, nil
}

func (s *Scheduler) runJob(parent context.Context, name string, timeout time.Duration, fn func(ctx context.Context) error) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name, s.cfg.BatchSize)
	if owner {
		s.logJobStart(run)
	}
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(run)
	}
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		schedMetrics.IncJobTimeout(name)
		schedMetrics.IncJobError(name, err)
		s.log.Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	schedMetrics.IncJobError(name, err)
	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error
	if s.isJobEnabled(jobEnforceDues) {
		err = errors.Join(err, s.runJob(parent, jobEnforceDues, jobTimeout, s.EnforceDuesJob))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.TickInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		if lag := s.runLoopLag(nextRun); lag > 0 {
			schedMetrics.ObserveRunLoopLag(lag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.TickInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// runLoopLag reports how far past the planned tick the loop is running,
// measured on the injected clock.
func (s *Scheduler) runLoopLag(nextRun time.Time) time.Duration {
	return s.clock.Now().Sub(nextRun)
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// EnforceDuesJob walks every enabled group once. A failing group is logged
// and joined into the tick's error; the remaining groups still run.
func (s *Scheduler) EnforceDuesJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, jobEnforceDues, s.cfg.BatchSize)
	if owner {
		s.logJobStart(run)
		defer s.logJobFinish(run)
	}

	policies, err := s.policySvc.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("list enabled policies: %w", err)
	}

	var errs error
	for _, policy := range policies {
		if err := s.processGroup(ctx, run, policy); err != nil {
			s.logEnforcementError(run, "group enforcement failed", policy.GroupID, err)
			errs = errors.Join(errs, fmt.Errorf("group %d: %w", policy.GroupID, err))
		}
	}
	return errs
}

func (s *Scheduler) processGroup(parent context.Context, run *jobRun, policy policydomain.BillingPolicy) error {
	ctx, cancel := context.WithTimeout(parent, s.cfg.GroupTimeout)
	defer cancel()

	// one period per group per tick; every subscriber is judged against it
	p := period.Compute(policy, s.clock.Now())

	subscribers, err := s.subscriberSvc.ListByGroup(ctx, policy.GroupID)
	if err != nil {
		return fmt.Errorf("list subscribers: %w", err)
	}

	var pending []subscriberdomain.Subscriber
	var errs error
	for _, sub := range subscribers {
		overdueWork, err := s.evaluateSubscriber(ctx, policy, p, sub)
		if err != nil {
			run.IncError()
			errs = errors.Join(errs, fmt.Errorf("subscriber %d: %w", sub.SubscriberID, err))
			continue
		}
		if overdueWork {
			if s.cfg.BatchMode {
				pending = append(pending, sub)
			} else if err := s.enforceOverdue(ctx, policy, p, sub); err != nil {
				run.IncError()
				errs = errors.Join(errs, fmt.Errorf("subscriber %d: %w", sub.SubscriberID, err))
				continue
			}
		}
		run.AddProcessed(1)
	}

	if len(pending) > 0 {
		errs = errors.Join(errs, s.flushGroupBatch(ctx, run, policy, p, pending))
	}

	obsmetrics.Scheduler().AddBatchProcessed(jobEnforceDues, "subscribers", len(subscribers))
	return errs
}

// evaluateSubscriber resolves paid state and handles the pre-due reminder
// window. It reports whether overdue enforcement is still needed.
func (s *Scheduler) evaluateSubscriber(ctx context.Context, policy policydomain.BillingPolicy, p period.Period, sub subscriberdomain.Subscriber) (bool, error) {
	paid, err := s.ledgerSvc.HasPaid(ctx, policy.GroupID, sub.SubscriberID, p)
	if err != nil {
		return false, err
	}
	if paid {
		return false, nil
	}
	if !p.Overdue {
		return false, s.maybeRemind(ctx, policy, p, sub)
	}
	return true, nil
}

func (s *Scheduler) maybeRemind(ctx context.Context, policy policydomain.BillingPolicy, p period.Period, sub subscriberdomain.Subscriber) error {
	for _, offset := range policy.Offsets() {
		if p.DaysUntilDue != offset {
			continue
		}
		claimed, err := s.claimMarker(ctx, policy.GroupID, sub.SubscriberID, p.Key(), offset)
		if err != nil {
			return err
		}
		if !claimed {
			return nil
		}
		obsmetrics.Dues().IncReminderSent(offset)
		s.sendNotice(ctx, notify.Destination{GroupID: policy.GroupID, SubscriberID: sub.SubscriberID},
			fmt.Sprintf("Dues of %d are due in %d day(s), on %s.", policy.FeeAmount, offset, p.DueAt.Format("2006-01-02")))
		return nil
	}
	return nil
}

// enforceOverdue runs the escalation ladder for one unpaid overdue
// subscriber: collect, else notice, else evict once the grace window closes.
func (s *Scheduler) enforceOverdue(ctx context.Context, policy policydomain.BillingPolicy, p period.Period, sub subscriberdomain.Subscriber) error {
	duesMetrics := obsmetrics.Dues()

	res, err := s.collectionSvc.AttemptCollection(ctx, sub, p, policy)
	if err != nil {
		return err
	}
	if res.Collected {
		duesMetrics.IncCollection(obsmetrics.CollectionResultCollected)
		duesMetrics.IncPaymentRecorded(string(ledgerdomain.MethodAutoCollect))
		s.sendNotice(ctx, notify.Destination{GroupID: policy.GroupID, SubscriberID: sub.SubscriberID},
			fmt.Sprintf("Dues of %d collected from your dedicated balance. Remaining: %d.", policy.FeeAmount, res.NewBalance))
		return nil
	}
	duesMetrics.IncCollection(obsmetrics.CollectionResultInsufficient)

	graceLeft := policy.GracePeriodDays - p.DaysOverdue
	if graceLeft < 0 {
		graceLeft = 0
	}

	// one overdue notice per day, claimed through the marker table with the
	// overdue day count as a negative offset
	claimed, err := s.claimMarker(ctx, policy.GroupID, sub.SubscriberID, p.Key(), -p.DaysOverdue)
	if err != nil {
		return err
	}
	if claimed {
		duesMetrics.IncOverdueNotice()
		s.sendNotice(ctx, notify.Destination{GroupID: policy.GroupID, SubscriberID: sub.SubscriberID},
			fmt.Sprintf("Dues of %d are overdue by %d day(s). %d day(s) of grace remaining.", policy.FeeAmount, p.DaysOverdue, graceLeft))
	}

	if !policy.AutoEvict {
		return nil
	}
	graceDeadline := p.DueAt.AddDate(0, 0, policy.GracePeriodDays)
	if !s.clock.Now().After(graceDeadline) {
		return nil
	}

	err = s.evictionSvc.Evict(ctx, evictiondomain.EvictRequest{
		GroupID:      policy.GroupID,
		SubscriberID: sub.SubscriberID,
		Method:       ledgerdomain.MethodEviction,
		Period:       p,
		DaysOverdue:  p.DaysOverdue,
		Reason:       "unpaid past grace period",
	})
	if err != nil {
		return err
	}
	duesMetrics.IncEviction(string(ledgerdomain.MethodEviction))
	s.sendNotice(ctx, notify.Destination{GroupID: policy.GroupID},
		fmt.Sprintf("Member %d was removed for dues unpaid %d day(s) past the due date.", sub.SubscriberID, p.DaysOverdue))
	return nil
}

// flushGroupBatch applies the queued overdue work for a group in one sweep.
func (s *Scheduler) flushGroupBatch(ctx context.Context, run *jobRun, policy policydomain.BillingPolicy, p period.Period, pending []subscriberdomain.Subscriber) error {
	s.log.Info("scheduler.batch.flush",
		zap.Int64("group_id", policy.GroupID),
		zap.Int("pending", len(pending)),
	)
	var errs error
	for _, sub := range pending {
		if err := s.enforceOverdue(ctx, policy, p, sub); err != nil {
			run.IncError()
			errs = errors.Join(errs, fmt.Errorf("subscriber %d: %w", sub.SubscriberID, err))
		}
	}
	return errs
}

// sendNotice is fire-and-forget: delivery problems are logged, never fatal.
func (s *Scheduler) sendNotice(ctx context.Context, dest notify.Destination, text string) {
	if !s.cfg.Notify {
		return
	}
	if err := s.notifier.Notify(ctx, dest, text); err != nil {
		s.log.Warn("notice delivery failed",
			zap.Int64("group_id", dest.GroupID),
			zap.Int64("subscriber_id", dest.SubscriberID),
			zap.Error(err),
		)
	}
}
