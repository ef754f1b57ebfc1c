package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-pushsync/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const subscriptionCacheKeyPrefix = "go-pushsync::subscription::v1"

// CachedSubscriptionStore fronts resource-id lookups with a read-through
// cache. Every inbound notification resolves its subscription by resource id,
// so that one read dominates store traffic; writes invalidate the affected
// keys and pass through.
type CachedSubscriptionStore struct {
	base  core.SubscriptionStore
	cache repositorycache.CacheService
}

func NewCachedSubscriptionStore(
	base core.SubscriptionStore,
	cacheService repositorycache.CacheService,
) (*CachedSubscriptionStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base subscription store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: subscription cache service is required")
	}
	return &CachedSubscriptionStore{base: base, cache: cacheService}, nil
}

// SubscriptionCacheKey returns the deterministic cache key for resource-id
// lookups: go-pushsync::subscription::v1::<resource_id> with the segment
// URL-path escaped.
func SubscriptionCacheKey(resourceID string) (string, error) {
	resourceID = strings.TrimSpace(resourceID)
	if resourceID == "" {
		return "", fmt.Errorf("sqlstore: resource id is required")
	}
	return subscriptionCacheKeyPrefix + "::" + url.PathEscape(resourceID), nil
}

func (s *CachedSubscriptionStore) FindByResourceID(ctx context.Context, resourceID string) (core.Subscription, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Subscription{}, fmt.Errorf("sqlstore: cached subscription store is not configured")
	}
	cacheKey, err := SubscriptionCacheKey(resourceID)
	if err != nil {
		return core.Subscription{}, err
	}
	return repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.Subscription, error) {
		return s.base.FindByResourceID(ctx, resourceID)
	})
}

func (s *CachedSubscriptionStore) Create(ctx context.Context, in core.CreateSubscriptionInput) (core.Subscription, error) {
	if s == nil || s.base == nil {
		return core.Subscription{}, fmt.Errorf("sqlstore: cached subscription store is not configured")
	}
	created, err := s.base.Create(ctx, in)
	if err != nil {
		return core.Subscription{}, err
	}
	s.invalidate(ctx, created.ResourceID)
	return created, nil
}

func (s *CachedSubscriptionStore) FindByOwner(ctx context.Context, owner core.OwnerRef) ([]core.Subscription, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached subscription store is not configured")
	}
	return s.base.FindByOwner(ctx, owner)
}

func (s *CachedSubscriptionStore) FindExpiringWithin(ctx context.Context, window time.Duration) ([]core.Subscription, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached subscription store is not configured")
	}
	return s.base.FindExpiringWithin(ctx, window)
}

func (s *CachedSubscriptionStore) DeleteByResourceID(ctx context.Context, resourceID string) error {
	if s == nil || s.base == nil {
		return fmt.Errorf("sqlstore: cached subscription store is not configured")
	}
	if err := s.base.DeleteByResourceID(ctx, resourceID); err != nil {
		return err
	}
	s.invalidate(ctx, resourceID)
	return nil
}

func (s *CachedSubscriptionStore) DeleteForOwner(ctx context.Context, owner core.OwnerRef, providerID string) (int, error) {
	if s == nil || s.base == nil {
		return 0, fmt.Errorf("sqlstore: cached subscription store is not configured")
	}
	// Owner-wide deletes have no per-key view of what was removed; resolve
	// the keys first so the cache cannot serve deleted rows.
	owned, err := s.base.FindByOwner(ctx, owner)
	if err != nil {
		return 0, err
	}
	removed, err := s.base.DeleteForOwner(ctx, owner, providerID)
	if err != nil {
		return 0, err
	}
	for _, subscription := range owned {
		if providerID != "" && subscription.ProviderID != strings.TrimSpace(providerID) {
			continue
		}
		s.invalidate(ctx, subscription.ResourceID)
	}
	return removed, nil
}

func (s *CachedSubscriptionStore) Update(ctx context.Context, resourceID string, in core.UpdateSubscriptionInput) (core.Subscription, error) {
	if s == nil || s.base == nil {
		return core.Subscription{}, fmt.Errorf("sqlstore: cached subscription store is not configured")
	}
	updated, err := s.base.Update(ctx, resourceID, in)
	if err != nil {
		return core.Subscription{}, err
	}
	s.invalidate(ctx, resourceID)
	return updated, nil
}

func (s *CachedSubscriptionStore) invalidate(ctx context.Context, resourceID string) {
	if s.cache == nil {
		return
	}
	cacheKey, err := SubscriptionCacheKey(resourceID)
	if err != nil {
		return
	}
	_ = s.cache.Delete(ctx, cacheKey)
}

var _ core.SubscriptionStore = (*CachedSubscriptionStore)(nil)
