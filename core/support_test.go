package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

type memCredentialStore struct {
	mu      sync.Mutex
	records map[string]Credential
	nextID  int
}

func newMemCredentialStore() *memCredentialStore {
	return &memCredentialStore{records: map[string]Credential{}}
}

func credentialKey(owner OwnerRef, providerID string) string {
	return owner.UserID + "/" + owner.DashboardID + "/" + providerID
}

func (s *memCredentialStore) Save(_ context.Context, in SaveCredentialInput) (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	now := time.Now().UTC()
	credential := Credential{
		ID:             fmt.Sprintf("cred-%d", s.nextID),
		UserID:         in.Owner.UserID,
		DashboardID:    in.Owner.DashboardID,
		ProviderID:     in.ProviderID,
		AccessSecret:   in.AccessSecret,
		RefreshSecret:  in.RefreshSecret,
		ExpiresAt:      in.ExpiresAt,
		InstallationID: in.InstallationID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.records[credentialKey(in.Owner, in.ProviderID)] = credential
	return credential, nil
}

func (s *memCredentialStore) Find(_ context.Context, owner OwnerRef, providerID string) (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	credential, ok := s.records[credentialKey(owner, providerID)]
	if !ok {
		return Credential{}, NewCredentialNotFoundError("credential not found for " + owner.String())
	}
	return credential, nil
}

func (s *memCredentialStore) FindAllForDashboard(_ context.Context, owner OwnerRef) ([]Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Credential
	for _, credential := range s.records {
		if credential.UserID == owner.UserID && credential.DashboardID == owner.DashboardID {
			out = append(out, credential)
		}
	}
	return out, nil
}

func (s *memCredentialStore) Rotate(_ context.Context, in RotateCredentialInput) (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, credential := range s.records {
		if credential.ID != in.ID {
			continue
		}
		credential.AccessSecret = in.AccessSecret
		credential.ExpiresAt = in.ExpiresAt
		if strings.TrimSpace(in.RefreshSecret) != "" {
			credential.RefreshSecret = in.RefreshSecret
		}
		credential.UpdatedAt = time.Now().UTC()
		s.records[key] = credential
		return credential, nil
	}
	return Credential{}, NewCredentialNotFoundError("credential not found for rotate")
}

func (s *memCredentialStore) Delete(_ context.Context, owner OwnerRef, providerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, credentialKey(owner, providerID))
	return nil
}

func (s *memCredentialStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

type memSubscriptionStore struct {
	mu      sync.Mutex
	records map[string]Subscription
}

func newMemSubscriptionStore() *memSubscriptionStore {
	return &memSubscriptionStore{records: map[string]Subscription{}}
}

func (s *memSubscriptionStore) Create(_ context.Context, in CreateSubscriptionInput) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	subscription := Subscription{
		ResourceID:  in.ResourceID,
		UserID:      in.Owner.UserID,
		DashboardID: in.Owner.DashboardID,
		ProviderID:  in.ProviderID,
		TargetID:    in.TargetID,
		ChannelID:   in.ChannelID,
		ExpiresAt:   in.ExpiresAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.records[in.ResourceID] = subscription
	return subscription, nil
}

func (s *memSubscriptionStore) FindByResourceID(_ context.Context, resourceID string) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subscription, ok := s.records[resourceID]
	if !ok {
		return Subscription{}, fmt.Errorf("%w: %s", ErrSubscriptionNotFound, resourceID)
	}
	return subscription, nil
}

func (s *memSubscriptionStore) FindByOwner(_ context.Context, owner OwnerRef) ([]Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Subscription
	for _, subscription := range s.records {
		if subscription.UserID == owner.UserID && subscription.DashboardID == owner.DashboardID {
			out = append(out, subscription)
		}
	}
	return out, nil
}

func (s *memSubscriptionStore) FindExpiringWithin(_ context.Context, window time.Duration) ([]Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().UTC().Add(window)
	var out []Subscription
	for _, subscription := range s.records {
		if subscription.ExpiresAt.Before(cutoff) {
			out = append(out, subscription)
		}
	}
	return out, nil
}

func (s *memSubscriptionStore) DeleteByResourceID(_ context.Context, resourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, resourceID)
	return nil
}

func (s *memSubscriptionStore) DeleteForOwner(_ context.Context, owner OwnerRef, providerID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, subscription := range s.records {
		if subscription.UserID != owner.UserID || subscription.DashboardID != owner.DashboardID {
			continue
		}
		if providerID != "" && subscription.ProviderID != providerID {
			continue
		}
		delete(s.records, key)
		removed++
	}
	return removed, nil
}

func (s *memSubscriptionStore) Update(_ context.Context, resourceID string, in UpdateSubscriptionInput) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subscription, ok := s.records[resourceID]
	if !ok {
		return Subscription{}, fmt.Errorf("%w: %s", ErrSubscriptionNotFound, resourceID)
	}
	if in.ExpiresAt != nil {
		subscription.ExpiresAt = *in.ExpiresAt
	}
	if in.ChannelID != nil {
		subscription.ChannelID = *in.ChannelID
	}
	subscription.UpdatedAt = time.Now().UTC()
	s.records[resourceID] = subscription
	return subscription, nil
}

func (s *memSubscriptionStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

type fakeProvider struct {
	mu         sync.Mutex
	id         string
	descriptor ProviderDescriptor

	exchangeToken ProviderToken
	exchangeErr   error

	refreshToken ProviderToken
	refreshErr   error
	refreshCalls int

	subscribeErr   error
	subscribeCalls []SubscribeCall
	subscribeSeq   int

	cancelErr   error
	cancelCalls []CancelCall

	fetchPayload map[string]any
	fetchErr     error
}

func newFakeProvider(id string) *fakeProvider {
	return &fakeProvider{
		id: id,
		descriptor: ProviderDescriptor{
			ID:                      id,
			TokenURL:                "https://" + id + ".example.com/token",
			MaxSubscriptionLifetime: 24 * time.Hour,
			RefreshBufferWindow:     2 * time.Hour,
		},
	}
}

func (p *fakeProvider) ID() string { return p.id }

func (p *fakeProvider) Descriptor() ProviderDescriptor {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.descriptor
}

func (p *fakeProvider) ExchangeCode(_ context.Context, _ ExchangeCodeRequest) (ProviderToken, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exchangeErr != nil {
		return ProviderToken{}, p.exchangeErr
	}
	return p.exchangeToken, nil
}

func (p *fakeProvider) Refresh(_ context.Context, _ RefreshTokenRequest) (ProviderToken, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshCalls++
	if p.refreshErr != nil {
		return ProviderToken{}, p.refreshErr
	}
	return p.refreshToken, nil
}

func (p *fakeProvider) Subscribe(_ context.Context, call SubscribeCall) (ProviderSubscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribeCalls = append(p.subscribeCalls, call)
	if p.subscribeErr != nil {
		return ProviderSubscription{}, p.subscribeErr
	}
	p.subscribeSeq++
	return ProviderSubscription{
		ResourceID: fmt.Sprintf("%s-res-%d", p.id, p.subscribeSeq),
		ChannelID:  fmt.Sprintf("%s-chan-%d", p.id, p.subscribeSeq),
		ExpiresAt:  time.Now().UTC().Add(24 * time.Hour),
	}, nil
}

func (p *fakeProvider) Cancel(_ context.Context, call CancelCall) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelCalls = append(p.cancelCalls, call)
	return p.cancelErr
}

func (p *fakeProvider) FetchResource(_ context.Context, _ FetchResourceCall) (map[string]any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fetchErr != nil {
		return nil, p.fetchErr
	}
	return p.fetchPayload, nil
}

func (p *fakeProvider) refreshCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refreshCalls
}

func (p *fakeProvider) cancelCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cancelCalls)
}

type testServiceFixture struct {
	service       *Service
	credentials   *memCredentialStore
	subscriptions *memSubscriptionStore
	provider      *fakeProvider
}

func newTestService(t testingT, providers ...*fakeProvider) testServiceFixture {
	t.Helper()
	credentials := newMemCredentialStore()
	subscriptions := newMemSubscriptionStore()
	if len(providers) == 0 {
		providers = []*fakeProvider{newFakeProvider("calendar")}
	}
	options := []Option{
		WithCredentialStore(credentials),
		WithSubscriptionStore(subscriptions),
	}
	service, err := NewService(Config{
		Webhook: WebhookConfig{CallbackBaseURL: "https://push.example.com"},
	}, options...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	for _, provider := range providers {
		if err := service.Registry().Register(provider); err != nil {
			t.Fatalf("register provider %s: %v", provider.ID(), err)
		}
	}
	return testServiceFixture{
		service:       service,
		credentials:   credentials,
		subscriptions: subscriptions,
		provider:      providers[0],
	}
}

type testingT interface {
	Helper()
	Fatalf(format string, args ...any)
}

func seedCredential(t testingT, store *memCredentialStore, owner OwnerRef, providerID string, expiresIn time.Duration) Credential {
	t.Helper()
	credential, err := store.Save(context.Background(), SaveCredentialInput{
		Owner:         owner,
		ProviderID:    providerID,
		AccessSecret:  "access-" + providerID,
		RefreshSecret: "refresh-" + providerID,
		ExpiresAt:     time.Now().UTC().Add(expiresIn),
	})
	if err != nil {
		t.Fatalf("seed credential: %v", err)
	}
	return credential
}
