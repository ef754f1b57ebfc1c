package core

import (
	"context"
	"time"
)

// EnsureFreshAccess returns a provider access secret that is valid for at
// least the provider's buffer window. When the stored credential is inside
// the window it is rotated against the provider's refresh endpoint first.
//
// This is the only place that deletes local state based on error class: a
// rejected refresh secret purges the credential and every subscription it
// backs. Transient provider failures propagate and leave state untouched.
func (s *Service) EnsureFreshAccess(ctx context.Context, owner OwnerRef, providerID string) (string, error) {
	if s == nil || s.credentialStore == nil {
		return "", s.mapError(NewValidationError("core: credential store is not configured"))
	}
	owner = owner.Normalize()
	if err := owner.Validate(); err != nil {
		return "", s.mapError(err)
	}
	provider, err := s.resolveProvider(providerID)
	if err != nil {
		return "", err
	}

	credential, err := s.credentialStore.Find(ctx, owner, provider.ID())
	if err != nil {
		return "", s.mapError(err)
	}

	now := time.Now().UTC()
	buffer := provider.Descriptor().RefreshBufferWindow
	if now.Before(credential.RefreshDeadline(buffer)) {
		return credential.AccessSecret, nil
	}
	return s.refreshCredential(ctx, provider, credential)
}

func (s *Service) refreshCredential(ctx context.Context, provider Provider, credential Credential) (string, error) {
	startedAt := time.Now().UTC()
	owner := credential.Owner()
	fields := ownerFields(owner, provider.ID())

	if s.refreshLocker != nil {
		handle, lockErr := s.refreshLocker.Acquire(ctx, RefreshLockKey(owner, provider.ID()), DefaultRefreshLockTTL)
		if lockErr != nil {
			// Another flight holds the lock. Most providers tolerate a
			// redundant refresh, so losing the race only costs a round trip:
			// hand back whatever is stored and let the winner rotate it.
			s.logWarn(ctx, "credential refresh lock contended", fields)
			stored, findErr := s.credentialStore.Find(ctx, owner, provider.ID())
			if findErr != nil {
				return "", s.mapError(findErr)
			}
			return stored.AccessSecret, nil
		}
		defer func() {
			_ = handle.Unlock(ctx)
		}()

		// The winner of a contended lock may already have rotated the record.
		stored, findErr := s.credentialStore.Find(ctx, owner, provider.ID())
		if findErr != nil {
			return "", s.mapError(findErr)
		}
		credential = stored
		buffer := provider.Descriptor().RefreshBufferWindow
		if time.Now().UTC().Before(credential.RefreshDeadline(buffer)) {
			return credential.AccessSecret, nil
		}
	}

	token, err := provider.Refresh(ctx, RefreshTokenRequest{
		RefreshSecret:  credential.RefreshSecret,
		InstallationID: credential.InstallationID,
	})
	if err != nil {
		if IsReauthenticationRequired(err) {
			purgeErr := s.purgeRejectedCredential(ctx, owner, provider.ID())
			if purgeErr != nil {
				s.logError(ctx, "purge after refresh rejection failed", map[string]any{
					"user_id":      owner.UserID,
					"dashboard_id": owner.DashboardID,
					"provider_id":  provider.ID(),
					"error":        errString(purgeErr),
				})
			}
			s.observeOperation(ctx, startedAt, "credential_refresh", err, fields)
			return "", s.mapError(err)
		}
		s.observeOperation(ctx, startedAt, "credential_refresh", err, fields)
		return "", s.mapError(err)
	}

	rotated, err := s.credentialStore.Rotate(ctx, RotateCredentialInput{
		ID:            credential.ID,
		AccessSecret:  token.AccessSecret,
		ExpiresAt:     token.ExpiresAt,
		RefreshSecret: token.RefreshSecret,
	})
	if err != nil {
		return "", s.mapError(err)
	}

	// Some providers drop push registrations when the token rotates, so every
	// rotation renews the owner's subscriptions with the fresh secret. A
	// renewal failure must not cost the caller its valid access secret.
	if renewErr := s.renewOwnerSubscriptionsWithSecret(ctx, provider, owner, rotated.AccessSecret); renewErr != nil {
		s.logWarn(ctx, "post-rotation subscription renewal failed", map[string]any{
			"user_id":      owner.UserID,
			"dashboard_id": owner.DashboardID,
			"provider_id":  provider.ID(),
			"error":        errString(renewErr),
		})
	}

	s.observeOperation(ctx, startedAt, "credential_refresh", nil, fields)
	return rotated.AccessSecret, nil
}

// purgeRejectedCredential removes the credential and cascade-deletes its
// subscriptions after the provider rejected the refresh secret outright.
// Provider-side registrations are unreachable without a valid token; they
// expire on the provider's own ceiling.
func (s *Service) purgeRejectedCredential(ctx context.Context, owner OwnerRef, providerID string) error {
	if s.subscriptionStore != nil {
		if _, err := s.subscriptionStore.DeleteForOwner(ctx, owner, providerID); err != nil {
			return err
		}
	}
	return s.credentialStore.Delete(ctx, owner, providerID)
}
