package query

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-pushsync/core"
)

type fakeCredentialReader struct {
	lastOwner    core.OwnerRef
	lastProvider string
	credential   core.Credential
	err          error
}

func (r *fakeCredentialReader) Credential(_ context.Context, owner core.OwnerRef, providerID string) (core.Credential, error) {
	r.lastOwner = owner
	r.lastProvider = providerID
	return r.credential, r.err
}

type fakeSubscriptionReader struct {
	byResource map[string]core.Subscription
	byOwner    map[string][]core.Subscription
	expiring   []core.Subscription
	lastWindow time.Duration
}

func (r *fakeSubscriptionReader) FindByResourceID(_ context.Context, resourceID string) (core.Subscription, error) {
	subscription, ok := r.byResource[resourceID]
	if !ok {
		return core.Subscription{}, core.ErrSubscriptionNotFound
	}
	return subscription, nil
}

func (r *fakeSubscriptionReader) FindByOwner(_ context.Context, owner core.OwnerRef) ([]core.Subscription, error) {
	return r.byOwner[owner.String()], nil
}

func (r *fakeSubscriptionReader) FindExpiringWithin(_ context.Context, window time.Duration) ([]core.Subscription, error) {
	r.lastWindow = window
	return r.expiring, nil
}

var queryOwner = core.OwnerRef{UserID: "user-1", DashboardID: "dash-1"}

func TestGetCredentialQuery(t *testing.T) {
	reader := &fakeCredentialReader{credential: core.Credential{ID: "cred-1", ProviderID: "google"}}
	q := NewGetCredentialQuery(reader)

	credential, err := q.Query(context.Background(), GetCredentialMessage{
		Owner:      queryOwner,
		ProviderID: "google",
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if credential.ID != "cred-1" {
		t.Fatalf("credential = %#v", credential)
	}
	if reader.lastOwner != queryOwner || reader.lastProvider != "google" {
		t.Fatalf("reader called with %v %q", reader.lastOwner, reader.lastProvider)
	}

	if _, err := q.Query(context.Background(), GetCredentialMessage{Owner: queryOwner}); err == nil {
		t.Fatalf("expected validation rejection for empty provider id")
	}
	if _, err := (&GetCredentialQuery{}).Query(context.Background(), GetCredentialMessage{}); err == nil {
		t.Fatalf("expected dependency error")
	}
}

func TestSubscriptionQueries(t *testing.T) {
	subscription := core.Subscription{
		ResourceID:  "res-1",
		UserID:      queryOwner.UserID,
		DashboardID: queryOwner.DashboardID,
		ProviderID:  "google",
	}
	reader := &fakeSubscriptionReader{
		byResource: map[string]core.Subscription{"res-1": subscription},
		byOwner:    map[string][]core.Subscription{queryOwner.String(): {subscription}},
		expiring:   []core.Subscription{subscription},
	}

	t.Run("get by resource id", func(t *testing.T) {
		got, err := NewGetSubscriptionQuery(reader).Query(context.Background(), GetSubscriptionMessage{ResourceID: "res-1"})
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		if got.ResourceID != "res-1" {
			t.Fatalf("subscription = %#v", got)
		}

		_, err = NewGetSubscriptionQuery(reader).Query(context.Background(), GetSubscriptionMessage{})
		if err == nil {
			t.Fatalf("expected validation rejection for empty resource id")
		}
	})

	t.Run("list by owner", func(t *testing.T) {
		got, err := NewListOwnerSubscriptionsQuery(reader).Query(context.Background(), ListOwnerSubscriptionsMessage{Owner: queryOwner})
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		if len(got) != 1 || got[0].ResourceID != "res-1" {
			t.Fatalf("subscriptions = %#v", got)
		}
	})

	t.Run("list expiring", func(t *testing.T) {
		got, err := NewListExpiringSubscriptionsQuery(reader).Query(context.Background(), ListExpiringSubscriptionsMessage{Window: time.Hour})
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		if len(got) != 1 || reader.lastWindow != time.Hour {
			t.Fatalf("subscriptions = %#v window = %v", got, reader.lastWindow)
		}

		_, err = NewListExpiringSubscriptionsQuery(reader).Query(context.Background(), ListExpiringSubscriptionsMessage{})
		if err == nil {
			t.Fatalf("expected validation rejection for zero window")
		}
	})
}
