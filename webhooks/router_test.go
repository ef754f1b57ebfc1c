package webhooks

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-pushsync/core"
)

type memSubscriptionStore struct {
	mu            sync.Mutex
	subscriptions map[string]core.Subscription
}

func newMemSubscriptionStore() *memSubscriptionStore {
	return &memSubscriptionStore{subscriptions: map[string]core.Subscription{}}
}

func (s *memSubscriptionStore) put(subscription core.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions[subscription.ResourceID] = subscription
}

func (s *memSubscriptionStore) Create(_ context.Context, in core.CreateSubscriptionInput) (core.Subscription, error) {
	subscription := core.Subscription{
		ResourceID:  in.ResourceID,
		UserID:      in.Owner.UserID,
		DashboardID: in.Owner.DashboardID,
		ProviderID:  in.ProviderID,
		TargetID:    in.TargetID,
		ChannelID:   in.ChannelID,
		ExpiresAt:   in.ExpiresAt,
	}
	s.put(subscription)
	return subscription, nil
}

func (s *memSubscriptionStore) FindByResourceID(_ context.Context, resourceID string) (core.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subscription, ok := s.subscriptions[resourceID]
	if !ok {
		return core.Subscription{}, fmt.Errorf("%w: %s", core.ErrSubscriptionNotFound, resourceID)
	}
	return subscription, nil
}

func (s *memSubscriptionStore) FindByOwner(_ context.Context, owner core.OwnerRef) ([]core.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Subscription
	for _, subscription := range s.subscriptions {
		if subscription.UserID == owner.UserID && subscription.DashboardID == owner.DashboardID {
			out = append(out, subscription)
		}
	}
	return out, nil
}

func (s *memSubscriptionStore) FindExpiringWithin(_ context.Context, _ time.Duration) ([]core.Subscription, error) {
	return nil, nil
}

func (s *memSubscriptionStore) DeleteByResourceID(_ context.Context, resourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscriptions, resourceID)
	return nil
}

func (s *memSubscriptionStore) DeleteForOwner(_ context.Context, owner core.OwnerRef, providerID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, subscription := range s.subscriptions {
		if subscription.UserID != owner.UserID || subscription.DashboardID != owner.DashboardID {
			continue
		}
		if providerID != "" && subscription.ProviderID != providerID {
			continue
		}
		delete(s.subscriptions, key)
		removed++
	}
	return removed, nil
}

func (s *memSubscriptionStore) Update(_ context.Context, resourceID string, in core.UpdateSubscriptionInput) (core.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	subscription, ok := s.subscriptions[resourceID]
	if !ok {
		return core.Subscription{}, fmt.Errorf("%w: %s", core.ErrSubscriptionNotFound, resourceID)
	}
	if in.ExpiresAt != nil {
		subscription.ExpiresAt = *in.ExpiresAt
	}
	if in.ChannelID != nil {
		subscription.ChannelID = *in.ChannelID
	}
	s.subscriptions[resourceID] = subscription
	return subscription, nil
}

type routedEvent struct {
	UserID      string
	DashboardID string
	EventName   string
	Payload     map[string]any
}

type captureEventRouter struct {
	mu     sync.Mutex
	events []routedEvent
	reach  int
}

func (r *captureEventRouter) Route(_ context.Context, userID string, dashboardID string, eventName string, payload map[string]any) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, routedEvent{
		UserID:      userID,
		DashboardID: dashboardID,
		EventName:   eventName,
		Payload:     payload,
	})
	if r.reach > 0 {
		return r.reach
	}
	return 1
}

func (r *captureEventRouter) routed() []routedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]routedEvent(nil), r.events...)
}

type scriptedNormalizer struct {
	providerID   string
	notification core.Notification
	err          error
}

func (n *scriptedNormalizer) ProviderID() string { return n.providerID }

func (n *scriptedNormalizer) Normalize(core.InboundRequest) (core.Notification, error) {
	return n.notification, n.err
}

func mustToken(t *testing.T, owner core.OwnerRef) string {
	t.Helper()
	token, err := core.EncodeCorrelationToken(owner)
	if err != nil {
		t.Fatalf("encode token: %v", err)
	}
	return token
}

func newTestRouter(t *testing.T, store core.SubscriptionStore, events core.EventRouter, normalizers ...core.WebhookNormalizer) *Router {
	t.Helper()
	router, err := NewRouter(store, events)
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	for _, normalizer := range normalizers {
		if err := router.RegisterNormalizer(normalizer); err != nil {
			t.Fatalf("register normalizer: %v", err)
		}
	}
	return router
}

func TestHandle_UnknownProviderIs404(t *testing.T) {
	router := newTestRouter(t, newMemSubscriptionStore(), &captureEventRouter{})
	result := router.Handle(context.Background(), core.InboundRequest{ProviderID: "nope"})
	if result.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", result.StatusCode)
	}
}

func TestHandle_HandshakeAnsweredWithoutRouting(t *testing.T) {
	events := &captureEventRouter{}
	router := newTestRouter(t, newMemSubscriptionStore(), events, &scriptedNormalizer{
		providerID: "msgraph",
		notification: core.Notification{
			Kind: core.NotificationKindHandshake,
			Response: core.InboundResult{
				Accepted:    true,
				StatusCode:  http.StatusOK,
				Body:        []byte("validate-me"),
				ContentType: "text/plain",
			},
		},
	})

	result := router.Handle(context.Background(), core.InboundRequest{ProviderID: "msgraph"})
	if result.StatusCode != http.StatusOK || string(result.Body) != "validate-me" {
		t.Fatalf("result = %+v", result)
	}
	if len(events.routed()) != 0 {
		t.Fatalf("handshake routed %d events", len(events.routed()))
	}
}

func TestHandle_EventRoutedWhenStoredSubscriptionConfirmsToken(t *testing.T) {
	owner := core.OwnerRef{UserID: "user-1", DashboardID: "dash-1"}
	token := mustToken(t, owner)

	store := newMemSubscriptionStore()
	store.put(core.Subscription{
		ResourceID:  "res-1",
		UserID:      owner.UserID,
		DashboardID: owner.DashboardID,
		ProviderID:  "google",
		ChannelID:   token + ".uuid-1",
	})

	events := &captureEventRouter{reach: 2}
	router := newTestRouter(t, store, events, &scriptedNormalizer{
		providerID: "google",
		notification: core.Notification{
			Kind: core.NotificationKindEvent,
			Events: []core.ChangeEvent{{
				ResourceID:       "res-1",
				ChannelID:        token + ".uuid-1",
				CorrelationToken: token,
				EventName:        "calendar.changed",
				Payload:          map[string]any{"resource_id": "res-1"},
			}},
		},
	})

	result := router.Handle(context.Background(), core.InboundRequest{ProviderID: "google"})
	if !result.Accepted || result.StatusCode != http.StatusOK {
		t.Fatalf("result = %+v", result)
	}
	if result.Metadata["routed"] != 2 || result.Metadata["dropped"] != 0 {
		t.Fatalf("metadata = %v", result.Metadata)
	}

	routed := events.routed()
	if len(routed) != 1 {
		t.Fatalf("routed %d events", len(routed))
	}
	if routed[0].UserID != "user-1" || routed[0].DashboardID != "dash-1" {
		t.Fatalf("routed to %+v", routed[0])
	}
	if routed[0].EventName != "calendar.changed" {
		t.Fatalf("event name = %q", routed[0].EventName)
	}
}

func TestHandle_TokenOwnerMismatchDropsEvent(t *testing.T) {
	owner := core.OwnerRef{UserID: "user-1", DashboardID: "dash-1"}
	intruder := core.OwnerRef{UserID: "user-9", DashboardID: "dash-9"}

	store := newMemSubscriptionStore()
	store.put(core.Subscription{
		ResourceID:  "res-1",
		UserID:      owner.UserID,
		DashboardID: owner.DashboardID,
		ProviderID:  "google",
		ChannelID:   "channel-1",
	})

	events := &captureEventRouter{}
	router := newTestRouter(t, store, events, &scriptedNormalizer{
		providerID: "google",
		notification: core.Notification{
			Kind: core.NotificationKindEvent,
			Events: []core.ChangeEvent{{
				ResourceID:       "res-1",
				CorrelationToken: mustToken(t, intruder),
				EventName:        "calendar.changed",
			}},
		},
	})

	result := router.Handle(context.Background(), core.InboundRequest{ProviderID: "google"})
	if result.StatusCode != http.StatusOK {
		t.Fatalf("mismatch must still ack, got %d", result.StatusCode)
	}
	if result.Metadata["dropped"] != 1 {
		t.Fatalf("metadata = %v", result.Metadata)
	}
	if len(events.routed()) != 0 {
		t.Fatalf("forged token reached %d connections", len(events.routed()))
	}
}

func TestHandle_TokenAloneIsNotEnough(t *testing.T) {
	// A decodable token naming an owner with no matching subscription rows
	// must not route anything.
	events := &captureEventRouter{}
	router := newTestRouter(t, newMemSubscriptionStore(), events, &scriptedNormalizer{
		providerID: "google",
		notification: core.Notification{
			Kind: core.NotificationKindEvent,
			Events: []core.ChangeEvent{{
				ResourceID:       "res-unknown",
				CorrelationToken: mustToken(t, core.OwnerRef{UserID: "user-1", DashboardID: "dash-1"}),
				EventName:        "calendar.changed",
			}},
		},
	})

	result := router.Handle(context.Background(), core.InboundRequest{ProviderID: "google"})
	if result.Metadata["dropped"] != 1 || len(events.routed()) != 0 {
		t.Fatalf("unattributed event was routed: %+v", result.Metadata)
	}
}

func TestHandle_ChannelMatchAttributesEventWithoutResourceRow(t *testing.T) {
	// SmartThings events carry the subscription name, not the provider
	// subscription id; attribution falls back to the owner's rows.
	owner := core.OwnerRef{UserID: "user-1", DashboardID: "dash-1"}
	token := mustToken(t, owner)

	store := newMemSubscriptionStore()
	store.put(core.Subscription{
		ResourceID:  "st-sub-1",
		UserID:      owner.UserID,
		DashboardID: owner.DashboardID,
		ProviderID:  "smartthings",
		ChannelID:   token,
	})

	events := &captureEventRouter{}
	router := newTestRouter(t, store, events, &scriptedNormalizer{
		providerID: "smartthings",
		notification: core.Notification{
			Kind: core.NotificationKindEvent,
			Events: []core.ChangeEvent{{
				ResourceID:       "evt-1",
				ChannelID:        token,
				CorrelationToken: token,
				EventName:        "smartthings.device_event",
			}},
		},
	})

	router.Handle(context.Background(), core.InboundRequest{ProviderID: "smartthings"})
	routed := events.routed()
	if len(routed) != 1 || routed[0].UserID != "user-1" {
		t.Fatalf("routed = %+v", routed)
	}
}

func TestHandle_MalformedNotificationAckedAndDropped(t *testing.T) {
	events := &captureEventRouter{}
	router := newTestRouter(t, newMemSubscriptionStore(), events, &scriptedNormalizer{
		providerID: "google",
		err:        fmt.Errorf("google: notification is missing channel or resource headers"),
	})

	result := router.Handle(context.Background(), core.InboundRequest{ProviderID: "google"})
	if result.StatusCode != http.StatusOK {
		t.Fatalf("malformed input must still ack, got %d", result.StatusCode)
	}
	if result.Accepted {
		t.Fatalf("malformed input must not count as accepted")
	}
	if len(events.routed()) != 0 {
		t.Fatalf("malformed input was routed")
	}
}

func TestHandle_BurstCoalescesDuplicateEvents(t *testing.T) {
	owner := core.OwnerRef{UserID: "user-1", DashboardID: "dash-1"}
	token := mustToken(t, owner)

	store := newMemSubscriptionStore()
	store.put(core.Subscription{
		ResourceID:  "res-1",
		UserID:      owner.UserID,
		DashboardID: owner.DashboardID,
		ProviderID:  "google",
		ChannelID:   token + ".uuid-1",
	})

	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	burst := NewCoalescingBurstController(BurstOptions{
		Window: 2 * time.Second,
		Now:    func() time.Time { return current },
	})

	events := &captureEventRouter{}
	normalizer := &scriptedNormalizer{
		providerID: "google",
		notification: core.Notification{
			Kind: core.NotificationKindEvent,
			Events: []core.ChangeEvent{{
				ResourceID:       "res-1",
				ChannelID:        token + ".uuid-1",
				CorrelationToken: token,
				EventName:        "calendar.changed",
			}},
		},
	}
	router, err := NewRouter(store, events, WithBurstController(burst))
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	if err := router.RegisterNormalizer(normalizer); err != nil {
		t.Fatalf("register normalizer: %v", err)
	}

	router.Handle(context.Background(), core.InboundRequest{ProviderID: "google"})
	router.Handle(context.Background(), core.InboundRequest{ProviderID: "google"})
	if got := len(events.routed()); got != 1 {
		t.Fatalf("burst delivered %d times, want 1", got)
	}

	current = current.Add(3 * time.Second)
	router.Handle(context.Background(), core.InboundRequest{ProviderID: "google"})
	if got := len(events.routed()); got != 2 {
		t.Fatalf("post-window delivery count = %d, want 2", got)
	}
}

func TestRegisterNormalizer_RejectsDuplicates(t *testing.T) {
	router := newTestRouter(t, newMemSubscriptionStore(), &captureEventRouter{})
	normalizer := &scriptedNormalizer{providerID: "google"}
	if err := router.RegisterNormalizer(normalizer); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := router.RegisterNormalizer(normalizer); err == nil {
		t.Fatalf("expected duplicate rejection")
	}
	if err := router.RegisterNormalizer(nil); err == nil {
		t.Fatalf("expected nil rejection")
	}
}
