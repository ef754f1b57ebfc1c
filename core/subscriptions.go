package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type SubscribeRequest struct {
	Owner      OwnerRef
	ProviderID string
	TargetID   string
}

func (r SubscribeRequest) Validate() error {
	if err := r.Owner.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(r.ProviderID) == "" {
		return fmt.Errorf("core: provider id is required")
	}
	if strings.TrimSpace(r.TargetID) == "" {
		return fmt.Errorf("core: target id is required")
	}
	return nil
}

// Subscribe establishes the single active push registration for
// (owner, provider, target). Any prior registration for the same tuple is
// retired first: best-effort provider cancel, unconditional local delete.
// The provider create runs with a guaranteed-fresh access secret and the
// owner's correlation token baked into the registration.
func (s *Service) Subscribe(ctx context.Context, req SubscribeRequest) (Subscription, error) {
	startedAt := time.Now().UTC()
	req.Owner = req.Owner.Normalize()
	req.ProviderID = strings.TrimSpace(req.ProviderID)
	req.TargetID = strings.TrimSpace(req.TargetID)
	if err := req.Validate(); err != nil {
		return Subscription{}, s.mapError(NewValidationError(err.Error()))
	}
	if s.subscriptionStore == nil {
		return Subscription{}, s.mapError(NewValidationError("core: subscription store is not configured"))
	}
	provider, err := s.resolveProvider(req.ProviderID)
	if err != nil {
		return Subscription{}, err
	}

	access, err := s.EnsureFreshAccess(ctx, req.Owner, provider.ID())
	if err != nil {
		return Subscription{}, err
	}

	if err := s.retireExisting(ctx, provider, req.Owner, req.TargetID, access); err != nil {
		return Subscription{}, s.mapError(err)
	}

	subscription, err := s.createSubscription(ctx, provider, req.Owner, req.TargetID, access)
	fields := ownerFields(req.Owner, provider.ID())
	fields["target_id"] = req.TargetID
	if err == nil {
		fields["resource_id"] = subscription.ResourceID
	}
	s.observeOperation(ctx, startedAt, "subscription_create", err, fields)
	if err != nil {
		return Subscription{}, s.mapError(err)
	}
	return subscription, nil
}

// RenewSubscription replaces one known registration in place: retire the old
// provider-side object, create a successor for the same target, persist the
// successor. The new resource id supersedes the old one.
func (s *Service) RenewSubscription(ctx context.Context, resourceID string) (Subscription, error) {
	startedAt := time.Now().UTC()
	resourceID = strings.TrimSpace(resourceID)
	if resourceID == "" {
		return Subscription{}, s.mapError(NewValidationError("core: resource id is required"))
	}
	if s.subscriptionStore == nil {
		return Subscription{}, s.mapError(NewValidationError("core: subscription store is not configured"))
	}
	existing, err := s.subscriptionStore.FindByResourceID(ctx, resourceID)
	if err != nil {
		return Subscription{}, s.mapError(err)
	}
	provider, err := s.resolveProvider(existing.ProviderID)
	if err != nil {
		return Subscription{}, err
	}
	owner := existing.Owner()

	access, err := s.EnsureFreshAccess(ctx, owner, provider.ID())
	if err != nil {
		return Subscription{}, err
	}

	s.retireSubscription(ctx, provider, access, existing)
	renewed, err := s.createSubscription(ctx, provider, owner, existing.TargetID, access)
	fields := ownerFields(owner, provider.ID())
	fields["target_id"] = existing.TargetID
	fields["retired_resource_id"] = existing.ResourceID
	s.observeOperation(ctx, startedAt, "subscription_renew", err, fields)
	if err != nil {
		return Subscription{}, s.mapError(err)
	}
	return renewed, nil
}

// Unsubscribe retires one registration. The provider cancel is best effort;
// the local record is removed regardless so a dead registration cannot pin
// local state.
func (s *Service) Unsubscribe(ctx context.Context, resourceID string) error {
	startedAt := time.Now().UTC()
	resourceID = strings.TrimSpace(resourceID)
	if resourceID == "" {
		return s.mapError(NewValidationError("core: resource id is required"))
	}
	if s.subscriptionStore == nil {
		return s.mapError(NewValidationError("core: subscription store is not configured"))
	}
	existing, err := s.subscriptionStore.FindByResourceID(ctx, resourceID)
	if err != nil {
		if IsCredentialNotFound(err) || isNotFoundErr(err) {
			// Idempotent: nothing to retire.
			return nil
		}
		return s.mapError(err)
	}
	provider, providerErr := s.resolveProvider(existing.ProviderID)
	if providerErr == nil {
		if access, accessErr := s.EnsureFreshAccess(ctx, existing.Owner(), provider.ID()); accessErr == nil {
			s.cancelOnProvider(ctx, provider, access, existing)
		} else {
			s.logWarn(ctx, "unsubscribe proceeding without provider cancel", map[string]any{
				"resource_id": existing.ResourceID,
				"provider_id": existing.ProviderID,
				"error":       errString(accessErr),
			})
		}
	}
	err = s.subscriptionStore.DeleteByResourceID(ctx, existing.ResourceID)
	s.observeOperation(ctx, startedAt, "subscription_cancel", err, map[string]any{
		"resource_id": existing.ResourceID,
		"provider_id": existing.ProviderID,
	})
	return s.mapError(err)
}

// RenewOwnerSubscriptions refreshes every registration an owner holds with one
// provider. Used after credential rotation and by the renewal sweep.
func (s *Service) RenewOwnerSubscriptions(ctx context.Context, owner OwnerRef, providerID string) error {
	owner = owner.Normalize()
	if err := owner.Validate(); err != nil {
		return s.mapError(err)
	}
	provider, err := s.resolveProvider(providerID)
	if err != nil {
		return err
	}
	access, err := s.EnsureFreshAccess(ctx, owner, provider.ID())
	if err != nil {
		return err
	}
	return s.mapError(s.renewOwnerSubscriptionsWithSecret(ctx, provider, owner, access))
}

func (s *Service) renewOwnerSubscriptionsWithSecret(ctx context.Context, provider Provider, owner OwnerRef, access string) error {
	if s.subscriptionStore == nil {
		return nil
	}
	owned, err := s.subscriptionStore.FindByOwner(ctx, owner)
	if err != nil {
		return err
	}
	var firstErr error
	for _, subscription := range owned {
		if subscription.ProviderID != provider.ID() {
			continue
		}
		s.retireSubscription(ctx, provider, access, subscription)
		if _, createErr := s.createSubscription(ctx, provider, owner, subscription.TargetID, access); createErr != nil {
			if firstErr == nil {
				firstErr = createErr
			}
			s.logWarn(ctx, "subscription renewal failed", map[string]any{
				"user_id":     owner.UserID,
				"provider_id": provider.ID(),
				"target_id":   subscription.TargetID,
				"error":       errString(createErr),
			})
		}
	}
	return firstErr
}

func (s *Service) createSubscription(ctx context.Context, provider Provider, owner OwnerRef, targetID string, access string) (Subscription, error) {
	token, err := EncodeCorrelationToken(owner)
	if err != nil {
		return Subscription{}, NewValidationError(err.Error())
	}
	callbackURL := s.config.CallbackURL(provider.ID())
	if callbackURL == "" {
		return Subscription{}, NewValidationError("core: webhook callback base url is not configured")
	}

	installationID := ""
	if credential, findErr := s.credentialStore.Find(ctx, owner, provider.ID()); findErr == nil {
		installationID = credential.InstallationID
	}

	created, err := provider.Subscribe(ctx, SubscribeCall{
		AccessSecret:     access,
		TargetID:         targetID,
		CallbackURL:      callbackURL,
		CorrelationToken: token,
		InstallationID:   installationID,
		Lifetime:         provider.Descriptor().MaxSubscriptionLifetime,
	})
	if err != nil {
		return Subscription{}, err
	}
	return s.subscriptionStore.Create(ctx, CreateSubscriptionInput{
		ResourceID: created.ResourceID,
		Owner:      owner,
		ProviderID: provider.ID(),
		TargetID:   targetID,
		ChannelID:  created.ChannelID,
		ExpiresAt:  created.ExpiresAt,
	})
}

// retireExisting tears down any prior registrations for the same
// (owner, provider, target) tuple so at most one survives a re-subscribe.
func (s *Service) retireExisting(ctx context.Context, provider Provider, owner OwnerRef, targetID string, access string) error {
	owned, err := s.subscriptionStore.FindByOwner(ctx, owner)
	if err != nil {
		return err
	}
	for _, subscription := range owned {
		if subscription.ProviderID != provider.ID() || subscription.TargetID != targetID {
			continue
		}
		s.retireSubscription(ctx, provider, access, subscription)
	}
	return nil
}

func (s *Service) retireSubscription(ctx context.Context, provider Provider, access string, subscription Subscription) {
	s.cancelOnProvider(ctx, provider, access, subscription)
	if err := s.subscriptionStore.DeleteByResourceID(ctx, subscription.ResourceID); err != nil {
		s.logWarn(ctx, "retired subscription delete failed", map[string]any{
			"resource_id": subscription.ResourceID,
			"provider_id": subscription.ProviderID,
			"error":       errString(err),
		})
	}
}

func (s *Service) cancelOnProvider(ctx context.Context, provider Provider, access string, subscription Subscription) {
	installationID := ""
	if credential, err := s.credentialStore.Find(ctx, subscription.Owner(), provider.ID()); err == nil {
		installationID = credential.InstallationID
	}
	err := provider.Cancel(ctx, CancelCall{
		AccessSecret:   access,
		ResourceID:     subscription.ResourceID,
		ChannelID:      subscription.ChannelID,
		TargetID:       subscription.TargetID,
		InstallationID: installationID,
	})
	if err != nil {
		// The registration may already be gone on the provider side. The local
		// delete proceeds either way.
		s.logWarn(ctx, "provider cancel failed", map[string]any{
			"resource_id": subscription.ResourceID,
			"provider_id": provider.ID(),
			"error":       errString(err),
		})
	}
}
