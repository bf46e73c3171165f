package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/duekeeper/duekeeper/internal/clock"
	subscriberdomain "github.com/duekeeper/duekeeper/internal/subscriber/domain"
	"github.com/duekeeper/duekeeper/pkg/db"
	"github.com/duekeeper/duekeeper/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
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

	subscriberrepo repository.Repository[subscriberdomain.Subscriber]
}

func NewService(p ServiceParam) subscriberdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("subscriber.service"),
		genID: p.GenID,
		clock: p.Clock,

		subscriberrepo: repository.ProvideStore[subscriberdomain.Subscriber](p.DB),
	}
}

func (s *Service) WithTrx(tx *gorm.DB) subscriberdomain.Service {
	return &Service{
		db:    tx,
		log:   s.log,
		genID: s.genID,
		clock: s.clock,

		subscriberrepo: repository.ProvideStore[subscriberdomain.Subscriber](tx),
	}
}

func (s *Service) Enroll(ctx context.Context, groupID, subscriberID int64) (*subscriberdomain.Subscriber, error) {
	now := s.clock.Now()
	subscriber := &subscriberdomain.Subscriber{
		ID:           s.genID.Generate(),
		SubscriberID: subscriberID,
		GroupID:      groupID,
		JoinedAt:     now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.subscriberrepo.Create(ctx, subscriber); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return s.Get(ctx, groupID, subscriberID)
		}
		return nil, err
	}

	s.log.Info("subscriber enrolled",
		zap.Int64("group_id", groupID),
		zap.Int64("subscriber_id", subscriberID),
	)
	return subscriber, nil
}

func (s *Service) Get(ctx context.Context, groupID, subscriberID int64) (*subscriberdomain.Subscriber, error) {
	subscriber, err := s.subscriberrepo.FindOne(ctx, &subscriberdomain.Subscriber{
		GroupID:      groupID,
		SubscriberID: subscriberID,
	})
	if err != nil {
		return nil, err
	}
	if subscriber == nil {
		return nil, subscriberdomain.ErrNotEnrolled
	}
	return subscriber, nil
}

func (s *Service) ListByGroup(ctx context.Context, groupID int64) ([]subscriberdomain.Subscriber, error) {
	var subscribers []subscriberdomain.Subscriber
	err := s.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("subscriber_id").
		Find(&subscribers).Error
	if err != nil {
		return nil, err
	}
	return subscribers, nil
}

func (s *Service) Credit(ctx context.Context, groupID, subscriberID, amount int64) (*subscriberdomain.Subscriber, error) {
	if amount <= 0 {
		return nil, subscriberdomain.ErrInvalidAmount
	}

	// Single-statement increment keeps concurrent credits from losing updates.
	res := s.db.WithContext(ctx).Exec(
		`UPDATE subscribers
		 SET dedicated_balance = dedicated_balance + ?, updated_at = ?
		 WHERE group_id = ? AND subscriber_id = ?`,
		amount,
		s.clock.Now(),
		groupID,
		subscriberID,
	)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, subscriberdomain.ErrNotEnrolled
	}

	return s.Get(ctx, groupID, subscriberID)
}

func (s *Service) Remove(ctx context.Context, groupID, subscriberID int64) error {
	res := s.db.WithContext(ctx).
		Where("group_id = ? AND subscriber_id = ?", groupID, subscriberID).
		Delete(&subscriberdomain.Subscriber{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return subscriberdomain.ErrNotEnrolled
	}
	return nil
}
