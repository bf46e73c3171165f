package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/duekeeper/duekeeper/internal/clock"
	ledgerdomain "github.com/duekeeper/duekeeper/internal/ledger/domain"
	"github.com/duekeeper/duekeeper/internal/period"
	subscriberdomain "github.com/duekeeper/duekeeper/internal/subscriber/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func NewService(p ServiceParam) ledgerdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("ledger.service"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) WithTrx(tx *gorm.DB) ledgerdomain.Service {
	return &Service{db: tx, log: s.log, genID: s.genID, clock: s.clock}
}

func (s *Service) HasPaid(ctx context.Context, groupID, subscriberID int64, p period.Period) (bool, error) {
	// A payment settles exactly the period it was recorded against. Matching
	// on occurred_at would let a late payment for the previous period also
	// settle the one its timestamp happens to fall in.
	var count int64
	err := s.db.WithContext(ctx).Raw(
		`SELECT COUNT(1)
		 FROM payment_events
		 WHERE group_id = ? AND subscriber_id = ?
		   AND method IN ?
		   AND period_start = ? AND period_end = ?`,
		groupID,
		subscriberID,
		ledgerdomain.DuesMethods(),
		p.Start,
		p.End,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// RecordPayment is the module's core write: the balance decrement and the
// event append commit together or not at all. The decrement is a guarded
// single statement, so an interleaved manual payment cannot drive the
// dedicated balance negative.
func (s *Service) RecordPayment(ctx context.Context, req ledgerdomain.RecordPaymentRequest) (*ledgerdomain.PaymentEvent, error) {
	occurredAt := req.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.clock.Now()
	}

	event := &ledgerdomain.PaymentEvent{
		ID:           s.genID.Generate(),
		SubscriberID: req.SubscriberID,
		GroupID:      req.GroupID,
		Amount:       req.Amount,
		Method:       req.Method,
		PeriodStart:  req.Period.Start,
		PeriodEnd:    req.Period.End,
		DaysLate:     req.Period.DaysOverdue,
		Metadata:     datatypes.JSONMap(req.Metadata),
		OccurredAt:   occurredAt,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Exec(
			`UPDATE subscribers
			 SET dedicated_balance = dedicated_balance - ?,
			     last_paid_at = ?,
			     last_paid_period_key = ?,
			     total_paid = total_paid + ?,
			     payment_count = payment_count + 1,
			     updated_at = ?
			 WHERE group_id = ? AND subscriber_id = ?
			   AND dedicated_balance >= ?`,
			req.Amount,
			occurredAt,
			req.Period.Key(),
			req.Amount,
			occurredAt,
			req.GroupID,
			req.SubscriberID,
			req.Amount,
		)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return s.classifyRejected(ctx, tx, req)
		}
		return tx.Create(event).Error
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("payment recorded",
		zap.Int64("group_id", req.GroupID),
		zap.Int64("subscriber_id", req.SubscriberID),
		zap.Int64("amount", req.Amount),
		zap.String("method", string(req.Method)),
		zap.String("period_key", req.Period.Key()),
	)
	return event, nil
}

// classifyRejected tells a missing account apart from an underfunded one
// after the guarded update matched no row.
func (s *Service) classifyRejected(ctx context.Context, tx *gorm.DB, req ledgerdomain.RecordPaymentRequest) error {
	var balances []int64
	err := tx.WithContext(ctx).Raw(
		`SELECT dedicated_balance FROM subscribers WHERE group_id = ? AND subscriber_id = ?`,
		req.GroupID,
		req.SubscriberID,
	).Scan(&balances).Error
	if err != nil {
		return err
	}
	if len(balances) == 0 {
		return subscriberdomain.ErrNotEnrolled
	}
	return &ledgerdomain.InsufficientFundsError{Required: req.Amount, Available: balances[0]}
}

func (s *Service) RecordCredit(ctx context.Context, groupID, subscriberID, amount int64, occurredAt time.Time, metadata map[string]any) (*ledgerdomain.PaymentEvent, error) {
	if occurredAt.IsZero() {
		occurredAt = s.clock.Now()
	}
	event := &ledgerdomain.PaymentEvent{
		ID:           s.genID.Generate(),
		SubscriberID: subscriberID,
		GroupID:      groupID,
		Amount:       amount,
		Method:       ledgerdomain.MethodAdminCredit,
		Metadata:     datatypes.JSONMap(metadata),
		OccurredAt:   occurredAt,
	}
	if err := s.db.WithContext(ctx).Create(event).Error; err != nil {
		return nil, err
	}
	return event, nil
}

func (s *Service) RecordTerminal(ctx context.Context, req ledgerdomain.RecordTerminalRequest) (*ledgerdomain.PaymentEvent, error) {
	occurredAt := req.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.clock.Now()
	}
	event := &ledgerdomain.PaymentEvent{
		ID:           s.genID.Generate(),
		SubscriberID: req.SubscriberID,
		GroupID:      req.GroupID,
		Amount:       0,
		Method:       req.Method,
		PeriodStart:  req.Period.Start,
		PeriodEnd:    req.Period.End,
		DaysLate:     req.DaysOverdue,
		Metadata:     datatypes.JSONMap{"reason": req.Reason},
		OccurredAt:   occurredAt,
	}
	if err := s.db.WithContext(ctx).Create(event).Error; err != nil {
		return nil, err
	}
	return event, nil
}

func (s *Service) ListBySubscriber(ctx context.Context, groupID, subscriberID int64, limit int) ([]ledgerdomain.PaymentEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var events []ledgerdomain.PaymentEvent
	err := s.db.WithContext(ctx).
		Where("group_id = ? AND subscriber_id = ?", groupID, subscriberID).
		Order("occurred_at DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}
