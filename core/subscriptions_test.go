package core

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestSubscribeCreatesRegistrationWithCorrelationToken(t *testing.T) {
	fixture := newTestService(t)
	owner := OwnerRef{UserID: "user-1", DashboardID: "dash-1"}
	seedCredential(t, fixture.credentials, owner, "calendar", 6*time.Hour)

	subscription, err := fixture.service.Subscribe(context.Background(), SubscribeRequest{
		Owner:      owner,
		ProviderID: "calendar",
		TargetID:   "primary",
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if subscription.ResourceID == "" {
		t.Fatal("subscription missing resource id")
	}
	if subscription.TargetID != "primary" || subscription.ProviderID != "calendar" {
		t.Errorf("subscription fields wrong: %+v", subscription)
	}

	if len(fixture.provider.subscribeCalls) != 1 {
		t.Fatalf("subscribe calls = %d, want 1", len(fixture.provider.subscribeCalls))
	}
	call := fixture.provider.subscribeCalls[0]
	if call.CallbackURL != "https://push.example.com/webhooks/calendar" {
		t.Errorf("callback url = %q", call.CallbackURL)
	}
	decoded, err := DecodeCorrelationToken(call.CorrelationToken)
	if err != nil {
		t.Fatalf("decode correlation token: %v", err)
	}
	if decoded != owner {
		t.Errorf("correlation owner = %+v, want %+v", decoded, owner)
	}
	if call.Lifetime != 24*time.Hour {
		t.Errorf("lifetime = %v, want provider ceiling", call.Lifetime)
	}
}

func TestSubscribeTwiceLeavesSingleActiveRegistration(t *testing.T) {
	fixture := newTestService(t)
	owner := OwnerRef{UserID: "user-1", DashboardID: "dash-1"}
	seedCredential(t, fixture.credentials, owner, "calendar", 6*time.Hour)

	first, err := fixture.service.Subscribe(context.Background(), SubscribeRequest{
		Owner: owner, ProviderID: "calendar", TargetID: "primary",
	})
	if err != nil {
		t.Fatalf("first Subscribe: %v", err)
	}
	second, err := fixture.service.Subscribe(context.Background(), SubscribeRequest{
		Owner: owner, ProviderID: "calendar", TargetID: "primary",
	})
	if err != nil {
		t.Fatalf("second Subscribe: %v", err)
	}

	if fixture.subscriptions.count() != 1 {
		t.Fatalf("subscriptions = %d, want 1", fixture.subscriptions.count())
	}
	if first.ResourceID == second.ResourceID {
		t.Errorf("resource id reused across re-subscribe")
	}
	if fixture.provider.cancelCount() != 1 {
		t.Errorf("cancel calls = %d, want 1 for the retired first registration", fixture.provider.cancelCount())
	}
	if len(fixture.provider.cancelCalls) == 1 && fixture.provider.cancelCalls[0].ResourceID != first.ResourceID {
		t.Errorf("cancelled %q, want %q", fixture.provider.cancelCalls[0].ResourceID, first.ResourceID)
	}
}

func TestSubscribeDifferentTargetsCoexist(t *testing.T) {
	fixture := newTestService(t)
	owner := OwnerRef{UserID: "user-1", DashboardID: "dash-1"}
	seedCredential(t, fixture.credentials, owner, "calendar", 6*time.Hour)

	for _, target := range []string{"primary", "team"} {
		if _, err := fixture.service.Subscribe(context.Background(), SubscribeRequest{
			Owner: owner, ProviderID: "calendar", TargetID: target,
		}); err != nil {
			t.Fatalf("Subscribe %s: %v", target, err)
		}
	}
	if fixture.subscriptions.count() != 2 {
		t.Errorf("subscriptions = %d, want 2 distinct targets", fixture.subscriptions.count())
	}
	if fixture.provider.cancelCount() != 0 {
		t.Errorf("cancel calls = %d, want 0", fixture.provider.cancelCount())
	}
}

func TestSubscribeProviderRejectionPropagates(t *testing.T) {
	fixture := newTestService(t)
	owner := OwnerRef{UserID: "user-1", DashboardID: "dash-1"}
	seedCredential(t, fixture.credentials, owner, "calendar", 6*time.Hour)
	fixture.provider.subscribeErr = NewSubscriptionError("watch rejected: push not enabled")

	_, err := fixture.service.Subscribe(context.Background(), SubscribeRequest{
		Owner: owner, ProviderID: "calendar", TargetID: "primary",
	})
	if !IsSubscriptionError(err) {
		t.Fatalf("error = %v, want subscription error", err)
	}
	if fixture.subscriptions.count() != 0 {
		t.Errorf("subscriptions = %d, want 0 after rejected create", fixture.subscriptions.count())
	}
}

func TestSubscribeValidation(t *testing.T) {
	fixture := newTestService(t)
	cases := []struct {
		name string
		req  SubscribeRequest
	}{
		{"missing owner", SubscribeRequest{ProviderID: "calendar", TargetID: "primary"}},
		{"missing dashboard", SubscribeRequest{Owner: OwnerRef{UserID: "user-1"}, ProviderID: "calendar", TargetID: "primary"}},
		{"missing target", SubscribeRequest{Owner: OwnerRef{UserID: "user-1", DashboardID: "dash-1"}, ProviderID: "calendar"}},
		{"whitespace target", SubscribeRequest{Owner: OwnerRef{UserID: "user-1", DashboardID: "dash-1"}, ProviderID: "calendar", TargetID: "   "}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := fixture.service.Subscribe(context.Background(), tc.req); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestSubscribeUnknownProvider(t *testing.T) {
	fixture := newTestService(t)
	owner := OwnerRef{UserID: "user-1", DashboardID: "dash-1"}

	_, err := fixture.service.Subscribe(context.Background(), SubscribeRequest{
		Owner: owner, ProviderID: "nope", TargetID: "primary",
	})
	if err == nil || !strings.Contains(err.Error(), "not registered") {
		t.Fatalf("error = %v, want provider not registered", err)
	}
}

func TestRenewSubscriptionReplacesResourceID(t *testing.T) {
	fixture := newTestService(t)
	owner := OwnerRef{UserID: "user-1", DashboardID: "dash-1"}
	seedCredential(t, fixture.credentials, owner, "calendar", 6*time.Hour)

	original, err := fixture.service.Subscribe(context.Background(), SubscribeRequest{
		Owner: owner, ProviderID: "calendar", TargetID: "primary",
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	renewed, err := fixture.service.RenewSubscription(context.Background(), original.ResourceID)
	if err != nil {
		t.Fatalf("RenewSubscription: %v", err)
	}
	if renewed.ResourceID == original.ResourceID {
		t.Errorf("resource id unchanged after renewal")
	}
	if renewed.TargetID != original.TargetID {
		t.Errorf("target id = %q, want %q", renewed.TargetID, original.TargetID)
	}
	if fixture.subscriptions.count() != 1 {
		t.Errorf("subscriptions = %d, want 1", fixture.subscriptions.count())
	}
	if _, err := fixture.subscriptions.FindByResourceID(context.Background(), original.ResourceID); err == nil {
		t.Errorf("old resource id still resolvable")
	}
}

func TestUnsubscribeRemovesLocalStateEvenWhenProviderCancelFails(t *testing.T) {
	fixture := newTestService(t)
	owner := OwnerRef{UserID: "user-1", DashboardID: "dash-1"}
	seedCredential(t, fixture.credentials, owner, "calendar", 6*time.Hour)

	subscription, err := fixture.service.Subscribe(context.Background(), SubscribeRequest{
		Owner: owner, ProviderID: "calendar", TargetID: "primary",
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	fixture.provider.cancelErr = NewProviderTransientError("cancel endpoint down")

	if err := fixture.service.Unsubscribe(context.Background(), subscription.ResourceID); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	if fixture.subscriptions.count() != 0 {
		t.Errorf("subscriptions = %d, want 0 despite failed provider cancel", fixture.subscriptions.count())
	}
}

func TestUnsubscribeUnknownResourceIsIdempotent(t *testing.T) {
	fixture := newTestService(t)
	if err := fixture.service.Unsubscribe(context.Background(), "never-existed"); err != nil {
		t.Fatalf("Unsubscribe absent resource: %v", err)
	}
}
