package command

import (
	"context"
	"fmt"
	"testing"

	"github.com/goliatone/go-pushsync/core"
)

type fakeLifecycleService struct {
	completeCalls  []core.CompleteAuthorizationRequest
	subscribeCalls []core.SubscribeRequest
	renewCalls     []string
	cancelCalls    []string
	renewOwner     []string
	cleanupCalls   []core.OwnerRef

	err error
}

func (s *fakeLifecycleService) CompleteAuthorization(_ context.Context, req core.CompleteAuthorizationRequest) (core.Credential, error) {
	s.completeCalls = append(s.completeCalls, req)
	return core.Credential{ID: "cred-1", ProviderID: req.ProviderID}, s.err
}

func (s *fakeLifecycleService) Subscribe(_ context.Context, req core.SubscribeRequest) (core.Subscription, error) {
	s.subscribeCalls = append(s.subscribeCalls, req)
	return core.Subscription{ResourceID: "res-1", ProviderID: req.ProviderID}, s.err
}

func (s *fakeLifecycleService) RenewSubscription(_ context.Context, resourceID string) (core.Subscription, error) {
	s.renewCalls = append(s.renewCalls, resourceID)
	return core.Subscription{ResourceID: resourceID}, s.err
}

func (s *fakeLifecycleService) Unsubscribe(_ context.Context, resourceID string) error {
	s.cancelCalls = append(s.cancelCalls, resourceID)
	return s.err
}

func (s *fakeLifecycleService) RenewOwnerSubscriptions(_ context.Context, owner core.OwnerRef, providerID string) error {
	s.renewOwner = append(s.renewOwner, core.RefreshLockKey(owner, providerID))
	return s.err
}

func (s *fakeLifecycleService) CleanupOwner(_ context.Context, owner core.OwnerRef) (core.CleanupSummary, error) {
	s.cleanupCalls = append(s.cleanupCalls, owner)
	return core.CleanupSummary{Owner: owner}, s.err
}

var testOwner = core.OwnerRef{UserID: "user-1", DashboardID: "dash-1"}

func TestCompleteAuthorizationCommand(t *testing.T) {
	service := &fakeLifecycleService{}
	cmd := NewCompleteAuthorizationCommand(service)

	err := cmd.Execute(context.Background(), CompleteAuthorizationMessage{
		Request: core.CompleteAuthorizationRequest{
			Owner:      testOwner,
			ProviderID: "google",
			Code:       "auth-code-1",
		},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(service.completeCalls) != 1 {
		t.Fatalf("service called %d times", len(service.completeCalls))
	}

	if err := cmd.Execute(context.Background(), CompleteAuthorizationMessage{}); err == nil {
		t.Fatalf("expected validation rejection")
	}
	if len(service.completeCalls) != 1 {
		t.Fatalf("invalid message reached the service")
	}
}

func TestSubscribeCommand(t *testing.T) {
	service := &fakeLifecycleService{}
	cmd := NewSubscribeCommand(service)

	err := cmd.Execute(context.Background(), SubscribeMessage{
		Request: core.SubscribeRequest{
			Owner:      testOwner,
			ProviderID: "google",
			TargetID:   "primary",
		},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(service.subscribeCalls) != 1 {
		t.Fatalf("service called %d times", len(service.subscribeCalls))
	}
}

func TestRenewAndCancelCommands(t *testing.T) {
	service := &fakeLifecycleService{}

	if err := NewRenewSubscriptionCommand(service).Execute(context.Background(), RenewSubscriptionMessage{ResourceID: "res-1"}); err != nil {
		t.Fatalf("renew: %v", err)
	}
	if err := NewCancelSubscriptionCommand(service).Execute(context.Background(), CancelSubscriptionMessage{ResourceID: "res-2"}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if len(service.renewCalls) != 1 || service.renewCalls[0] != "res-1" {
		t.Fatalf("renew calls = %v", service.renewCalls)
	}
	if len(service.cancelCalls) != 1 || service.cancelCalls[0] != "res-2" {
		t.Fatalf("cancel calls = %v", service.cancelCalls)
	}

	if err := NewRenewSubscriptionCommand(service).Execute(context.Background(), RenewSubscriptionMessage{}); err == nil {
		t.Fatalf("expected validation rejection for empty resource id")
	}
}

func TestOwnerCommands(t *testing.T) {
	service := &fakeLifecycleService{}

	err := NewRenewOwnerCommand(service).Execute(context.Background(), RenewOwnerMessage{
		Owner:      testOwner,
		ProviderID: "google",
	})
	if err != nil {
		t.Fatalf("renew owner: %v", err)
	}
	if len(service.renewOwner) != 1 {
		t.Fatalf("renew owner calls = %v", service.renewOwner)
	}

	if err := NewCleanupOwnerCommand(service).Execute(context.Background(), CleanupOwnerMessage{Owner: testOwner}); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if len(service.cleanupCalls) != 1 || service.cleanupCalls[0] != testOwner {
		t.Fatalf("cleanup calls = %v", service.cleanupCalls)
	}

	if err := NewRenewOwnerCommand(service).Execute(context.Background(), RenewOwnerMessage{Owner: testOwner}); err == nil {
		t.Fatalf("expected validation rejection for missing provider id")
	}
}

func TestCommands_PropagateServiceErrors(t *testing.T) {
	service := &fakeLifecycleService{err: fmt.Errorf("downstream unavailable")}
	err := NewSubscribeCommand(service).Execute(context.Background(), SubscribeMessage{
		Request: core.SubscribeRequest{
			Owner:      testOwner,
			ProviderID: "google",
			TargetID:   "primary",
		},
	})
	if err == nil {
		t.Fatalf("expected propagated error")
	}
}

func TestCommands_RequireService(t *testing.T) {
	if err := (&SubscribeCommand{}).Execute(context.Background(), SubscribeMessage{}); err == nil {
		t.Fatalf("expected dependency error")
	}
	if err := (&CleanupOwnerCommand{}).Execute(context.Background(), CleanupOwnerMessage{}); err == nil {
		t.Fatalf("expected dependency error")
	}
}
