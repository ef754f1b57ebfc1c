package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	// JobIDSubscriptionRenew identifies one enqueued (owner, provider) renewal
	// batch produced by the sweep.
	JobIDSubscriptionRenew = "pushsync.subscription.renew"
	// JobIDOwnerCleanup identifies a deferred full teardown for one owner.
	JobIDOwnerCleanup = "pushsync.owner.cleanup"
)

type SweepOutcome struct {
	Owner      OwnerRef
	ProviderID string
	Enqueued   bool
	Err        error
}

type SweepSummary struct {
	Scanned  int
	Renewed  int
	Enqueued int
	Failed   int
	Branches []SweepOutcome
}

// RenewExpiring scans for subscriptions whose hard ceiling falls inside the
// lead window and renews them grouped by (owner, provider). With a job
// enqueuer configured each group becomes one queued job so a slow provider
// cannot stall the sweep; otherwise groups renew inline. A failing group never
// stops the remaining groups.
func (s *Service) RenewExpiring(ctx context.Context, window time.Duration) (SweepSummary, error) {
	startedAt := time.Now().UTC()
	if s == nil || s.subscriptionStore == nil {
		return SweepSummary{}, s.mapError(NewValidationError("core: subscription store is not configured"))
	}
	if window <= 0 {
		window = s.config.Renewal.LeadWindow
	}
	if window <= 0 {
		window = DefaultRenewalLeadWindow
	}

	expiring, err := s.subscriptionStore.FindExpiringWithin(ctx, window)
	if err != nil {
		return SweepSummary{}, s.mapError(err)
	}

	summary := SweepSummary{Scanned: len(expiring)}
	for _, group := range groupByOwnerProvider(expiring) {
		outcome := SweepOutcome{Owner: group.owner, ProviderID: group.providerID}
		if s.jobEnqueuer != nil {
			outcome.Enqueued = true
			outcome.Err = s.enqueueRenewal(ctx, group.owner, group.providerID)
		} else {
			outcome.Err = s.RenewOwnerSubscriptions(ctx, group.owner, group.providerID)
		}
		switch {
		case outcome.Err != nil:
			summary.Failed++
		case outcome.Enqueued:
			summary.Enqueued++
		default:
			summary.Renewed++
		}
		summary.Branches = append(summary.Branches, outcome)
	}

	s.observeOperation(ctx, startedAt, "renewal_sweep", nil, map[string]any{
		"scanned":  summary.Scanned,
		"renewed":  summary.Renewed,
		"enqueued": summary.Enqueued,
		"failed":   summary.Failed,
	})
	return summary, nil
}

func (s *Service) enqueueRenewal(ctx context.Context, owner OwnerRef, providerID string) error {
	return s.jobEnqueuer.Enqueue(ctx, &JobExecutionMessage{
		JobID: JobIDSubscriptionRenew,
		Parameters: map[string]any{
			"user_id":      owner.UserID,
			"dashboard_id": owner.DashboardID,
			"provider_id":  providerID,
		},
		IdempotencyKey: JobIDSubscriptionRenew + "::" + RefreshLockKey(owner, providerID),
		DedupPolicy:    "drop",
	})
}

// ProcessJobMessage executes one message produced by the sweep or a deferred
// cleanup. Worker adapters hand deliveries here after decoding.
func (s *Service) ProcessJobMessage(ctx context.Context, msg *JobExecutionMessage) error {
	if msg == nil {
		return s.mapError(NewValidationError("core: job message is required"))
	}
	owner := OwnerRef{
		UserID:      stringParam(msg.Parameters, "user_id"),
		DashboardID: stringParam(msg.Parameters, "dashboard_id"),
	}
	switch strings.TrimSpace(msg.JobID) {
	case JobIDSubscriptionRenew:
		return s.RenewOwnerSubscriptions(ctx, owner, stringParam(msg.Parameters, "provider_id"))
	case JobIDOwnerCleanup:
		_, err := s.CleanupOwner(ctx, owner)
		return err
	default:
		return s.mapError(NewValidationError(fmt.Sprintf("core: unknown job id %q", msg.JobID)))
	}
}

func stringParam(params map[string]any, key string) string {
	if len(params) == 0 {
		return ""
	}
	value, ok := params[key]
	if !ok {
		return ""
	}
	text, _ := value.(string)
	return strings.TrimSpace(text)
}

type ownerProviderGroup struct {
	owner      OwnerRef
	providerID string
}

func groupByOwnerProvider(subscriptions []Subscription) []ownerProviderGroup {
	seen := map[string]ownerProviderGroup{}
	for _, subscription := range subscriptions {
		group := ownerProviderGroup{
			owner:      subscription.Owner().Normalize(),
			providerID: strings.TrimSpace(subscription.ProviderID),
		}
		seen[RefreshLockKey(group.owner, group.providerID)] = group
	}
	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	groups := make([]ownerProviderGroup, 0, len(keys))
	for _, key := range keys {
		groups = append(groups, seen[key])
	}
	return groups
}
