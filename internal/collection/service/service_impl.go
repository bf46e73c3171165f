package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/duekeeper/duekeeper/internal/clock"
	collectiondomain "github.com/duekeeper/duekeeper/internal/collection/domain"
	ledgerdomain "github.com/duekeeper/duekeeper/internal/ledger/domain"
	obsmetrics "github.com/duekeeper/duekeeper/internal/observability/metrics"
	"github.com/duekeeper/duekeeper/internal/period"
	policydomain "github.com/duekeeper/duekeeper/internal/policy/domain"
	subscriberdomain "github.com/duekeeper/duekeeper/internal/subscriber/domain"
	"github.com/duekeeper/duekeeper/internal/wallet"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	Policies    policydomain.Service
	Subscribers subscriberdomain.Service
	Ledger      ledgerdomain.Service
	Wallet      wallet.Wallet
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	policies    policydomain.Service
	subscribers subscriberdomain.Service
	ledger      ledgerdomain.Service
	wallet      wallet.Wallet
}

func NewService(p ServiceParam) collectiondomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("collection.service"),
		clock:       p.Clock,
		policies:    p.Policies,
		subscribers: p.Subscribers,
		ledger:      p.Ledger,
		wallet:      p.Wallet,
	}
}

func (s *Service) AttemptCollection(ctx context.Context, sub subscriberdomain.Subscriber, p period.Period, policy policydomain.BillingPolicy) (*collectiondomain.CollectionResult, error) {
	if !policy.AutoCollect {
		return &collectiondomain.CollectionResult{Collected: false, NewBalance: sub.DedicatedBalance}, nil
	}
	if sub.DedicatedBalance < policy.FeeAmount {
		return &collectiondomain.CollectionResult{Collected: false, NewBalance: sub.DedicatedBalance}, nil
	}

	event, err := s.ledger.RecordPayment(ctx, ledgerdomain.RecordPaymentRequest{
		GroupID:      sub.GroupID,
		SubscriberID: sub.SubscriberID,
		Amount:       policy.FeeAmount,
		Method:       ledgerdomain.MethodAutoCollect,
		Period:       p,
		Metadata:     map[string]any{"trigger": "auto_collect"},
	})
	if err != nil {
		// a concurrent spend can drain the balance between the read above
		// and the guarded decrement; that is a failed collection, not a fault
		var insufficient *ledgerdomain.InsufficientFundsError
		if errors.As(err, &insufficient) {
			return &collectiondomain.CollectionResult{Collected: false, NewBalance: insufficient.Available}, nil
		}
		return nil, err
	}

	return &collectiondomain.CollectionResult{
		Collected:  true,
		NewBalance: sub.DedicatedBalance - policy.FeeAmount,
		Event:      event,
	}, nil
}

func (s *Service) PayNow(ctx context.Context, groupID, subscriberID int64) (*collectiondomain.PayNowResult, error) {
	policy, err := s.policies.Get(ctx, groupID)
	if err != nil {
		return nil, err
	}
	p := period.Compute(*policy, s.clock.Now())

	paid, err := s.ledger.HasPaid(ctx, groupID, subscriberID, p)
	if err != nil {
		return nil, err
	}
	if paid {
		return nil, collectiondomain.ErrAlreadyPaid
	}

	event, err := s.ledger.RecordPayment(ctx, ledgerdomain.RecordPaymentRequest{
		GroupID:      groupID,
		SubscriberID: subscriberID,
		Amount:       policy.FeeAmount,
		Method:       ledgerdomain.MethodManual,
		Period:       p,
		Metadata:     map[string]any{"trigger": "pay_now"},
	})
	if err != nil {
		return nil, err
	}

	sub, err := s.subscribers.Get(ctx, groupID, subscriberID)
	if err != nil {
		return nil, err
	}
	return &collectiondomain.PayNowResult{
		NewBalance: sub.DedicatedBalance,
		Period:     p,
		Event:      event,
	}, nil
}

// TransferIn debits the wallet first and credits the dedicated balance only
// after the debit is confirmed. The two stores share no transaction, so a
// failed credit is compensated by refunding the wallet before returning.
func (s *Service) TransferIn(ctx context.Context, groupID, subscriberID, amount int64) (*collectiondomain.TransferInResult, error) {
	if amount <= 0 {
		return nil, collectiondomain.ErrInvalidAmount
	}
	// fail fast before touching the wallet
	if _, err := s.subscribers.Get(ctx, groupID, subscriberID); err != nil {
		return nil, err
	}

	ref := uuid.NewString()
	if err := s.wallet.Debit(ctx, subscriberID, amount, ref); err != nil {
		obsmetrics.Dues().IncTransfer(obsmetrics.TransferOutcomeDebitKO)
		return nil, err
	}

	sub, err := s.subscribers.Credit(ctx, groupID, subscriberID, amount)
	if err != nil {
		if refundErr := s.wallet.Credit(ctx, subscriberID, amount, ref); refundErr != nil {
			s.log.Error("transfer refund failed, funds stranded in neither store",
				zap.Int64("group_id", groupID),
				zap.Int64("subscriber_id", subscriberID),
				zap.Int64("amount", amount),
				zap.String("ref", ref),
				zap.Error(refundErr),
			)
			obsmetrics.Dues().IncTransfer(obsmetrics.TransferOutcomeStranded)
			return nil, errors.Join(collectiondomain.ErrTransferFailed, err, refundErr)
		}
		obsmetrics.Dues().IncTransfer(obsmetrics.TransferOutcomeRefunded)
		s.log.Warn("transfer credit failed, wallet refunded",
			zap.Int64("group_id", groupID),
			zap.Int64("subscriber_id", subscriberID),
			zap.Int64("amount", amount),
			zap.String("ref", ref),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", collectiondomain.ErrTransferFailed, err)
	}

	obsmetrics.Dues().IncTransfer(obsmetrics.TransferOutcomeOK)

	walletBalance, err := s.wallet.Balance(ctx, subscriberID)
	if err != nil {
		return nil, err
	}

	s.log.Info("transfer in",
		zap.Int64("group_id", groupID),
		zap.Int64("subscriber_id", subscriberID),
		zap.Int64("amount", amount),
		zap.Int64("dedicated_balance", sub.DedicatedBalance),
		zap.String("ref", ref),
	)
	return &collectiondomain.TransferInResult{
		WalletBalance:    walletBalance,
		DedicatedBalance: sub.DedicatedBalance,
	}, nil
}

// AdminCredit applies the balance increment and the credit event in one
// storage transaction: a top-up never lands without its ledger row.
func (s *Service) AdminCredit(ctx context.Context, groupID, subscriberID, amount int64, note string) (*subscriberdomain.Subscriber, error) {
	if amount <= 0 {
		return nil, collectiondomain.ErrInvalidAmount
	}
	var sub *subscriberdomain.Subscriber
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		sub, err = s.subscribers.WithTrx(tx).Credit(ctx, groupID, subscriberID, amount)
		if err != nil {
			return err
		}
		_, err = s.ledger.WithTrx(tx).RecordCredit(ctx, groupID, subscriberID, amount, s.clock.Now(), map[string]any{"note": note})
		return err
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *Service) Summary(ctx context.Context, groupID, subscriberID int64) (*collectiondomain.Summary, error) {
	policy, err := s.policies.Get(ctx, groupID)
	if err != nil {
		return nil, err
	}
	sub, err := s.subscribers.Get(ctx, groupID, subscriberID)
	if err != nil {
		return nil, err
	}
	p := period.Compute(*policy, s.clock.Now())
	paid, err := s.ledger.HasPaid(ctx, groupID, subscriberID, p)
	if err != nil {
		return nil, err
	}
	return &collectiondomain.Summary{
		Subscriber: *sub,
		Policy:     *policy,
		Period:     p,
		Paid:       paid,
	}, nil
}
