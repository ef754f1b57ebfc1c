package pushsync

import (
	"context"
	"testing"

	"github.com/goliatone/go-pushsync/command"
	"github.com/goliatone/go-pushsync/core"
)

type facadeStubService struct {
	subscribeCalls []core.SubscribeRequest
	cleanupCalls   []core.OwnerRef
}

func (s *facadeStubService) CompleteAuthorization(context.Context, core.CompleteAuthorizationRequest) (core.Credential, error) {
	return core.Credential{}, nil
}

func (s *facadeStubService) Subscribe(_ context.Context, req core.SubscribeRequest) (core.Subscription, error) {
	s.subscribeCalls = append(s.subscribeCalls, req)
	return core.Subscription{ResourceID: "res-1"}, nil
}

func (s *facadeStubService) RenewSubscription(context.Context, string) (core.Subscription, error) {
	return core.Subscription{}, nil
}

func (s *facadeStubService) Unsubscribe(context.Context, string) error { return nil }

func (s *facadeStubService) RenewOwnerSubscriptions(context.Context, core.OwnerRef, string) error {
	return nil
}

func (s *facadeStubService) CleanupOwner(_ context.Context, owner core.OwnerRef) (core.CleanupSummary, error) {
	s.cleanupCalls = append(s.cleanupCalls, owner)
	return core.CleanupSummary{Owner: owner}, nil
}

func TestNewFacadeRequiresService(t *testing.T) {
	if _, err := NewFacade(nil); err == nil {
		t.Fatalf("expected rejection of nil service")
	}
}

func TestFacadeCommandsShareService(t *testing.T) {
	service := &facadeStubService{}
	facade, err := NewFacade(service)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}
	if facade.Service() != service {
		t.Fatalf("expected facade to expose the wired service")
	}

	commands := facade.Commands()
	if commands.CompleteAuthorization == nil || commands.Subscribe == nil ||
		commands.RenewSubscription == nil || commands.CancelSubscription == nil ||
		commands.RenewOwner == nil || commands.CleanupOwner == nil {
		t.Fatalf("expected every command wrapper populated, got %#v", commands)
	}

	owner := core.OwnerRef{UserID: "user-1", DashboardID: "dash-1"}
	err = commands.Subscribe.Execute(context.Background(), command.SubscribeMessage{
		Request: core.SubscribeRequest{Owner: owner, ProviderID: "google", TargetID: "primary"},
	})
	if err != nil {
		t.Fatalf("subscribe through facade: %v", err)
	}
	if len(service.subscribeCalls) != 1 {
		t.Fatalf("subscribe calls = %d", len(service.subscribeCalls))
	}

	if err := commands.CleanupOwner.Execute(context.Background(), command.CleanupOwnerMessage{Owner: owner}); err != nil {
		t.Fatalf("cleanup through facade: %v", err)
	}
	if len(service.cleanupCalls) != 1 || service.cleanupCalls[0] != owner {
		t.Fatalf("cleanup calls = %v", service.cleanupCalls)
	}
}
