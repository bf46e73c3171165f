package service

import (
	"context"
	"sort"

	"github.com/duekeeper/duekeeper/internal/clock"
	"github.com/duekeeper/duekeeper/internal/config"
	policydomain "github.com/duekeeper/duekeeper/internal/policy/domain"
	"github.com/duekeeper/duekeeper/pkg/repository"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const policyCacheSize = 1024

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Defaults *config.DuesDefaultsHolder `optional:"true"`
}

// Service manages per-group billing policies behind a read-through cache.
// The cache is keyed by group id and invalidated on every write, so a policy
// edit is visible to the next enforcement tick.
type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	defaults *config.DuesDefaultsHolder

	policyrepo repository.Repository[policydomain.BillingPolicy]
	cache      *lru.Cache[int64, policydomain.BillingPolicy]
}

func NewService(p ServiceParam) (policydomain.Service, error) {
	cache, err := lru.New[int64, policydomain.BillingPolicy](policyCacheSize)
	if err != nil {
		return nil, err
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("policy.service"),
		clock:    p.Clock,
		defaults: p.Defaults,

		policyrepo: repository.ProvideStore[policydomain.BillingPolicy](p.DB),
		cache:      cache,
	}, nil
}

func (s *Service) Upsert(ctx context.Context, req policydomain.UpsertPolicyRequest) (*policydomain.BillingPolicy, error) {
	policy, err := s.buildPolicy(req)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing policydomain.BillingPolicy
		res := tx.Where("group_id = ?", policy.GroupID).Limit(1).Find(&existing)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			policy.CreatedAt = s.clock.Now()
			policy.UpdatedAt = policy.CreatedAt
			return tx.Create(policy).Error
		}
		policy.CreatedAt = existing.CreatedAt
		policy.UpdatedAt = s.clock.Now()
		return tx.Save(policy).Error
	})
	if err != nil {
		return nil, err
	}

	// Invalidate, not overwrite: the next read repopulates from storage.
	s.cache.Remove(policy.GroupID)
	s.log.Info("policy upserted",
		zap.Int64("group_id", policy.GroupID),
		zap.String("cycle_kind", string(policy.CycleKind)),
		zap.Int64("fee_amount", policy.FeeAmount),
	)
	return policy, nil
}

func (s *Service) Get(ctx context.Context, groupID int64) (*policydomain.BillingPolicy, error) {
	if cached, ok := s.cache.Get(groupID); ok {
		out := cached
		return &out, nil
	}

	policy, err := s.policyrepo.FindOne(ctx, &policydomain.BillingPolicy{GroupID: groupID})
	if err != nil {
		return nil, err
	}
	if policy == nil {
		return nil, policydomain.ErrPolicyNotFound
	}

	s.cache.Add(groupID, *policy)
	return policy, nil
}

func (s *Service) ListEnabled(ctx context.Context) ([]policydomain.BillingPolicy, error) {
	var policies []policydomain.BillingPolicy
	err := s.db.WithContext(ctx).
		Where("enabled = ?", true).
		Order("group_id").
		Find(&policies).Error
	if err != nil {
		return nil, err
	}
	return policies, nil
}

func (s *Service) Disable(ctx context.Context, groupID int64) error {
	res := s.db.WithContext(ctx).Model(&policydomain.BillingPolicy{}).
		Where("group_id = ?", groupID).
		Updates(map[string]any{"enabled": false, "updated_at": s.clock.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return policydomain.ErrPolicyNotFound
	}
	s.cache.Remove(groupID)
	return nil
}

func (s *Service) buildPolicy(req policydomain.UpsertPolicyRequest) (*policydomain.BillingPolicy, error) {
	if req.FeeAmount <= 0 {
		return nil, policydomain.ErrInvalidFee
	}

	kind := req.CycleKind
	if kind == "" {
		kind = policydomain.CycleKindMonthly
	}
	switch kind {
	case policydomain.CycleKindMonthly, policydomain.CycleKindWeekly:
	default:
		return nil, policydomain.ErrInvalidCycleKind
	}

	defaults := config.DefaultDuesDefaults()
	if s.defaults != nil {
		defaults = s.defaults.Get()
	}

	grace := defaults.GracePeriodDays
	if req.GracePeriodDays != nil {
		grace = *req.GracePeriodDays
	}
	if grace < 0 {
		return nil, policydomain.ErrInvalidGracePeriod
	}

	dueDay := req.DueDayOfMonth
	if dueDay == 0 {
		dueDay = defaults.DueDayOfMonth
	}
	dueDay = clampDueDay(dueDay)

	weekday := req.DueWeekday
	if weekday == 0 {
		weekday = 1
	}
	if weekday < 1 || weekday > 7 {
		return nil, policydomain.ErrInvalidDueWeekday
	}

	offsets := req.ReminderOffsetDays
	if offsets == nil {
		offsets = defaults.ReminderOffsetDays
	}
	for _, offset := range offsets {
		if offset <= 0 {
			return nil, policydomain.ErrInvalidReminderOffset
		}
	}
	offsets = dedupeOffsets(offsets)

	return &policydomain.BillingPolicy{
		GroupID:            req.GroupID,
		CycleKind:          kind,
		DueDayOfMonth:      dueDay,
		DueWeekday:         weekday,
		FeeAmount:          req.FeeAmount,
		GracePeriodDays:    grace,
		ReminderOffsetDays: datatypes.NewJSONSlice(offsets),
		AutoCollect:        req.AutoCollect,
		AutoEvict:          req.AutoEvict,
		Enabled:            true,
	}, nil
}

// clampDueDay keeps the monthly due day inside [1,28] so short months never
// produce an invalid date.
func clampDueDay(day int) int {
	if day < 1 {
		return 1
	}
	if day > 28 {
		return 28
	}
	return day
}

func dedupeOffsets(offsets []int) []int {
	seen := make(map[int]struct{}, len(offsets))
	out := make([]int, 0, len(offsets))
	for _, v := range offsets {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out
}
