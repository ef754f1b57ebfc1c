package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-pushsync/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type SubscriptionStore struct {
	db   *bun.DB
	repo repository.Repository[*subscriptionRecord]
}

func NewSubscriptionStore(db *bun.DB) (*SubscriptionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*subscriptionRecord](db, subscriptionHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid subscription repository wiring: %w", err)
		}
	}
	return &SubscriptionStore{db: db, repo: repo}, nil
}

func (s *SubscriptionStore) Create(ctx context.Context, in core.CreateSubscriptionInput) (core.Subscription, error) {
	if s == nil || s.db == nil {
		return core.Subscription{}, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	in.ResourceID = strings.TrimSpace(in.ResourceID)
	in.Owner = in.Owner.Normalize()
	in.ProviderID = strings.TrimSpace(in.ProviderID)
	in.TargetID = strings.TrimSpace(in.TargetID)
	in.ChannelID = strings.TrimSpace(in.ChannelID)
	if in.ResourceID == "" {
		return core.Subscription{}, fmt.Errorf("sqlstore: resource id is required")
	}
	if err := in.Owner.Validate(); err != nil {
		return core.Subscription{}, err
	}
	if in.ProviderID == "" || in.TargetID == "" {
		return core.Subscription{}, fmt.Errorf("sqlstore: provider id and target id are required")
	}

	record := newSubscriptionRecord(in, time.Now().UTC())
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return core.Subscription{}, err
	}
	return record.toDomain(), nil
}

func (s *SubscriptionStore) FindByResourceID(ctx context.Context, resourceID string) (core.Subscription, error) {
	if s == nil || s.repo == nil {
		return core.Subscription{}, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	resourceID = strings.TrimSpace(resourceID)
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("resource_id", "=", resourceID),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.Subscription{}, err
	}
	if len(records) == 0 {
		return core.Subscription{}, fmt.Errorf("%w: %s", core.ErrSubscriptionNotFound, resourceID)
	}
	return records[0].toDomain(), nil
}

func (s *SubscriptionStore) FindByOwner(ctx context.Context, owner core.OwnerRef) ([]core.Subscription, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	owner = owner.Normalize()
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("user_id", "=", owner.UserID),
		repository.SelectBy("dashboard_id", "=", owner.DashboardID),
		repository.OrderBy("provider_id ASC, target_id ASC"),
	)
	if err != nil {
		return nil, err
	}
	return toDomainSubscriptions(records), nil
}

func (s *SubscriptionStore) FindExpiringWithin(ctx context.Context, window time.Duration) ([]core.Subscription, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	cutoff := time.Now().UTC().Add(window)
	records, _, err := s.repo.List(ctx,
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where("?TableAlias.expires_at IS NOT NULL").
				Where("?TableAlias.expires_at <= ?", cutoff)
		}),
		repository.OrderBy("expires_at ASC"),
	)
	if err != nil {
		return nil, err
	}
	return toDomainSubscriptions(records), nil
}

func (s *SubscriptionStore) DeleteByResourceID(ctx context.Context, resourceID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: subscription store is not configured")
	}
	// Idempotent: a provider may notify after its registration was retired.
	_, err := s.db.NewDelete().
		Model((*subscriptionRecord)(nil)).
		Where("resource_id = ?", strings.TrimSpace(resourceID)).
		Exec(ctx)
	return err
}

func (s *SubscriptionStore) DeleteForOwner(ctx context.Context, owner core.OwnerRef, providerID string) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	owner = owner.Normalize()
	query := s.db.NewDelete().
		Model((*subscriptionRecord)(nil)).
		Where("user_id = ?", owner.UserID).
		Where("dashboard_id = ?", owner.DashboardID)
	if providerID = strings.TrimSpace(providerID); providerID != "" {
		query = query.Where("provider_id = ?", providerID)
	}
	result, err := query.Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return int(affected), nil
}

func (s *SubscriptionStore) Update(ctx context.Context, resourceID string, in core.UpdateSubscriptionInput) (core.Subscription, error) {
	if s == nil || s.db == nil {
		return core.Subscription{}, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	existing, err := s.FindByResourceID(ctx, resourceID)
	if err != nil {
		return core.Subscription{}, err
	}

	now := time.Now().UTC()
	query := s.db.NewUpdate().
		Model((*subscriptionRecord)(nil)).
		Set("updated_at = ?", now).
		Where("resource_id = ?", existing.ResourceID)
	if in.ExpiresAt != nil {
		query = query.Set("expires_at = ?", in.ExpiresAt.UTC())
		existing.ExpiresAt = in.ExpiresAt.UTC()
	}
	if in.ChannelID != nil {
		channelID := strings.TrimSpace(*in.ChannelID)
		query = query.Set("channel_id = ?", channelID)
		existing.ChannelID = channelID
	}
	if _, err := query.Exec(ctx); err != nil {
		return core.Subscription{}, err
	}
	existing.UpdatedAt = now
	return existing, nil
}

func toDomainSubscriptions(records []*subscriptionRecord) []core.Subscription {
	out := make([]core.Subscription, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out
}
