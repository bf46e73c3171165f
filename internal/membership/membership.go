package membership

import "context"

// Provider is the group-membership system an eviction has to go through.
// RemoveMember must succeed before any local dues state is deleted; if the
// platform refuses the removal, the subscriber stays.
type Provider interface {
	RemoveMember(ctx context.Context, groupID, subscriberID int64) error
	ListMembers(ctx context.Context, groupID int64) ([]int64, error)
}

type NoOpProvider struct{}

func (p *NoOpProvider) RemoveMember(ctx context.Context, groupID, subscriberID int64) error {
	return nil
}

func (p *NoOpProvider) ListMembers(ctx context.Context, groupID int64) ([]int64, error) {
	return nil, nil
}
