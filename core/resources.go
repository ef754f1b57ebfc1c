package core

import (
	"context"
	"strings"
	"time"
)

// FetchResource pulls the current state of a watched target from the provider
// on behalf of the owner. Notification payloads are thin for most providers,
// so consumers fetch after being poked.
func (s *Service) FetchResource(ctx context.Context, owner OwnerRef, providerID string, targetID string, resourceID string) (map[string]any, error) {
	startedAt := time.Now().UTC()
	owner = owner.Normalize()
	if err := owner.Validate(); err != nil {
		return nil, s.mapError(err)
	}
	targetID = strings.TrimSpace(targetID)
	if targetID == "" {
		return nil, s.mapError(NewValidationError("core: target id is required"))
	}
	provider, err := s.resolveProvider(providerID)
	if err != nil {
		return nil, err
	}
	access, err := s.EnsureFreshAccess(ctx, owner, provider.ID())
	if err != nil {
		return nil, err
	}

	installationID := ""
	if credential, findErr := s.credentialStore.Find(ctx, owner, provider.ID()); findErr == nil {
		installationID = credential.InstallationID
	}

	payload, err := provider.FetchResource(ctx, FetchResourceCall{
		AccessSecret:   access,
		TargetID:       targetID,
		ResourceID:     strings.TrimSpace(resourceID),
		InstallationID: installationID,
	})
	fields := ownerFields(owner, provider.ID())
	fields["target_id"] = targetID
	s.observeOperation(ctx, startedAt, "resource_fetch", err, fields)
	if err != nil {
		return nil, s.mapError(err)
	}
	return copyAnyMap(payload), nil
}
