package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type CompleteAuthorizationRequest struct {
	Owner       OwnerRef
	ProviderID  string
	Code        string
	RedirectURI string
}

func (r CompleteAuthorizationRequest) Validate() error {
	if err := r.Owner.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(r.ProviderID) == "" {
		return fmt.Errorf("core: provider id is required")
	}
	if strings.TrimSpace(r.Code) == "" {
		return fmt.Errorf("core: authorization code is required")
	}
	return nil
}

// CompleteAuthorization finishes an OAuth consent flow: exchanges the
// authorization code at the provider and stores the resulting secret pair for
// the owner. Re-authorizing an existing (owner, provider) pair overwrites the
// previous credential.
func (s *Service) CompleteAuthorization(ctx context.Context, req CompleteAuthorizationRequest) (Credential, error) {
	startedAt := time.Now().UTC()
	req.Owner = req.Owner.Normalize()
	req.ProviderID = strings.TrimSpace(req.ProviderID)
	req.Code = strings.TrimSpace(req.Code)
	if err := req.Validate(); err != nil {
		return Credential{}, s.mapError(NewValidationError(err.Error()))
	}
	if s.credentialStore == nil {
		return Credential{}, s.mapError(NewValidationError("core: credential store is not configured"))
	}
	provider, err := s.resolveProvider(req.ProviderID)
	if err != nil {
		return Credential{}, err
	}

	token, err := provider.ExchangeCode(ctx, ExchangeCodeRequest{
		Code:        req.Code,
		RedirectURI: strings.TrimSpace(req.RedirectURI),
	})
	fields := ownerFields(req.Owner, provider.ID())
	if err != nil {
		s.observeOperation(ctx, startedAt, "authorization_complete", err, fields)
		return Credential{}, s.mapError(err)
	}

	credential, err := s.SaveCredential(ctx, SaveCredentialInput{
		Owner:          req.Owner,
		ProviderID:     provider.ID(),
		AccessSecret:   token.AccessSecret,
		RefreshSecret:  token.RefreshSecret,
		ExpiresAt:      token.ExpiresAt,
		InstallationID: token.InstallationID,
	})
	s.observeOperation(ctx, startedAt, "authorization_complete", err, fields)
	return credential, err
}

// SaveCredential stores a secret pair obtained out of band, for hosts that run
// their own consent flow and only hand the finished tokens to the manager.
func (s *Service) SaveCredential(ctx context.Context, in SaveCredentialInput) (Credential, error) {
	in.Owner = in.Owner.Normalize()
	in.ProviderID = strings.TrimSpace(in.ProviderID)
	if err := in.Owner.Validate(); err != nil {
		return Credential{}, s.mapError(err)
	}
	if in.ProviderID == "" {
		return Credential{}, s.mapError(NewValidationError("core: provider id is required"))
	}
	if strings.TrimSpace(in.AccessSecret) == "" {
		return Credential{}, s.mapError(NewValidationError("core: access secret is required"))
	}
	if s.credentialStore == nil {
		return Credential{}, s.mapError(NewValidationError("core: credential store is not configured"))
	}
	credential, err := s.credentialStore.Save(ctx, in)
	if err != nil {
		return Credential{}, s.mapError(err)
	}
	return credential, nil
}

// Credential returns the owner's stored credential with decrypted secrets.
func (s *Service) Credential(ctx context.Context, owner OwnerRef, providerID string) (Credential, error) {
	owner = owner.Normalize()
	if err := owner.Validate(); err != nil {
		return Credential{}, s.mapError(err)
	}
	if s.credentialStore == nil {
		return Credential{}, s.mapError(NewValidationError("core: credential store is not configured"))
	}
	credential, err := s.credentialStore.Find(ctx, owner, strings.TrimSpace(providerID))
	if err != nil {
		return Credential{}, s.mapError(err)
	}
	return credential, nil
}
