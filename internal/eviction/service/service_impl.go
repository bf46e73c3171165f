package service

import (
	"context"
	"errors"
	"fmt"

	evictiondomain "github.com/duekeeper/duekeeper/internal/eviction/domain"
	ledgerdomain "github.com/duekeeper/duekeeper/internal/ledger/domain"
	"github.com/duekeeper/duekeeper/internal/membership"
	subscriberdomain "github.com/duekeeper/duekeeper/internal/subscriber/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Membership membership.Provider
	Ledger     ledgerdomain.Service
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	membership membership.Provider
	ledger     ledgerdomain.Service
}

func NewService(p ServiceParam) evictiondomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("eviction.service"),
		membership: p.Membership,
		ledger:     p.Ledger,
	}
}

func (s *Service) Evict(ctx context.Context, req evictiondomain.EvictRequest) error {
	var sub subscriberdomain.Subscriber
	err := s.db.WithContext(ctx).
		Where("group_id = ? AND subscriber_id = ?", req.GroupID, req.SubscriberID).
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return subscriberdomain.ErrNotEnrolled
	}
	if err != nil {
		return err
	}

	// the platform removal must be confirmed before anything local is
	// deleted; a record without a member is recoverable, the reverse is not
	if err := s.membership.RemoveMember(ctx, req.GroupID, req.SubscriberID); err != nil {
		s.log.Error("membership removal failed",
			zap.Int64("group_id", req.GroupID),
			zap.Int64("subscriber_id", req.SubscriberID),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %v", evictiondomain.ErrMembershipRemovalFailed, err)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("group_id = ? AND subscriber_id = ?", req.GroupID, req.SubscriberID).
			Delete(&subscriberdomain.Subscriber{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return subscriberdomain.ErrNotEnrolled
		}
		_, err := s.ledger.WithTrx(tx).RecordTerminal(ctx, ledgerdomain.RecordTerminalRequest{
			GroupID:      req.GroupID,
			SubscriberID: req.SubscriberID,
			Method:       req.Method,
			Period:       req.Period,
			DaysOverdue:  req.DaysOverdue,
			Reason:       req.Reason,
		})
		return err
	})
	if err != nil {
		return err
	}

	s.log.Info("subscriber evicted",
		zap.Int64("group_id", req.GroupID),
		zap.Int64("subscriber_id", req.SubscriberID),
		zap.String("method", string(req.Method)),
		zap.Int("days_overdue", req.DaysOverdue),
		zap.String("reason", req.Reason),
		zap.Int64("forfeited_balance", sub.DedicatedBalance),
	)
	return nil
}
