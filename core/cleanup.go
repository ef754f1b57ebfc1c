package core

import (
	"context"
	"sync"
	"time"
)

type CleanupOutcome struct {
	ProviderID           string
	SubscriptionsRemoved int
	CredentialRemoved    bool
	Err                  error
}

type CleanupSummary struct {
	Owner    OwnerRef
	Branches []CleanupOutcome
}

func (s CleanupSummary) Failed() int {
	failed := 0
	for _, branch := range s.Branches {
		if branch.Err != nil {
			failed++
		}
	}
	return failed
}

// CleanupOwner tears down everything one (user, dashboard) pair holds: for
// each provider the owner has a credential with, best-effort cancel every
// registration, delete the local subscriptions, delete the credential.
// Provider branches run concurrently and independently; one provider's outage
// never leaves another provider's state behind. Local deletion always wins
// over a failed remote cancel.
func (s *Service) CleanupOwner(ctx context.Context, owner OwnerRef) (CleanupSummary, error) {
	startedAt := time.Now().UTC()
	owner = owner.Normalize()
	if err := owner.Validate(); err != nil {
		return CleanupSummary{}, s.mapError(err)
	}
	if s.credentialStore == nil || s.subscriptionStore == nil {
		return CleanupSummary{}, s.mapError(NewValidationError("core: stores are not configured"))
	}

	credentials, err := s.credentialStore.FindAllForDashboard(ctx, owner)
	if err != nil {
		return CleanupSummary{}, s.mapError(err)
	}

	summary := CleanupSummary{
		Owner:    owner,
		Branches: make([]CleanupOutcome, len(credentials)),
	}
	var wg sync.WaitGroup
	for i, credential := range credentials {
		wg.Add(1)
		go func(index int, credential Credential) {
			defer wg.Done()
			summary.Branches[index] = s.cleanupProviderBranch(ctx, owner, credential)
		}(i, credential)
	}
	wg.Wait()

	// Orphaned subscriptions with no backing credential still count against
	// the owner; sweep them so cleanup always converges to zero rows.
	if removed, orphanErr := s.subscriptionStore.DeleteForOwner(ctx, owner, ""); orphanErr != nil {
		s.logWarn(ctx, "orphan subscription sweep failed", map[string]any{
			"user_id":      owner.UserID,
			"dashboard_id": owner.DashboardID,
			"error":        errString(orphanErr),
		})
	} else if removed > 0 {
		summary.Branches = append(summary.Branches, CleanupOutcome{
			SubscriptionsRemoved: removed,
		})
	}

	s.observeOperation(ctx, startedAt, "owner_cleanup", nil, map[string]any{
		"user_id":      owner.UserID,
		"dashboard_id": owner.DashboardID,
		"providers":    len(credentials),
		"failed":       summary.Failed(),
	})
	return summary, nil
}

func (s *Service) cleanupProviderBranch(ctx context.Context, owner OwnerRef, credential Credential) CleanupOutcome {
	outcome := CleanupOutcome{ProviderID: credential.ProviderID}

	provider, providerErr := s.resolveProvider(credential.ProviderID)
	if providerErr == nil {
		owned, findErr := s.subscriptionStore.FindByOwner(ctx, owner)
		if findErr != nil {
			s.logWarn(ctx, "cleanup subscription listing failed", map[string]any{
				"provider_id": credential.ProviderID,
				"error":       errString(findErr),
			})
		}
		for _, subscription := range owned {
			if subscription.ProviderID != credential.ProviderID {
				continue
			}
			// The stored secret may be stale; the cancel is best effort either
			// way, so no refresh round trip during teardown.
			s.cancelOnProvider(ctx, provider, credential.AccessSecret, subscription)
		}
	}

	removed, err := s.subscriptionStore.DeleteForOwner(ctx, owner, credential.ProviderID)
	if err != nil {
		outcome.Err = err
		return outcome
	}
	outcome.SubscriptionsRemoved = removed

	if err := s.credentialStore.Delete(ctx, owner, credential.ProviderID); err != nil {
		outcome.Err = err
		return outcome
	}
	outcome.CredentialRemoved = true
	return outcome
}

// EnqueueOwnerCleanup defers the teardown to the job queue when configured,
// so logout handlers do not block on provider round trips.
func (s *Service) EnqueueOwnerCleanup(ctx context.Context, owner OwnerRef) error {
	owner = owner.Normalize()
	if err := owner.Validate(); err != nil {
		return s.mapError(err)
	}
	if s.jobEnqueuer == nil {
		_, err := s.CleanupOwner(ctx, owner)
		return err
	}
	return s.mapError(s.jobEnqueuer.Enqueue(ctx, &JobExecutionMessage{
		JobID: JobIDOwnerCleanup,
		Parameters: map[string]any{
			"user_id":      owner.UserID,
			"dashboard_id": owner.DashboardID,
		},
		IdempotencyKey: JobIDOwnerCleanup + "::" + owner.String(),
		DedupPolicy:    "drop",
	}))
}
