package webhooks

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-pushsync/core"
)

// Router is the single inbound surface for provider notifications. It picks
// the normalizer for the provider, answers handshakes in-band, resolves
// event ownership, and fans events out to live connections.
//
// Providers disable subscriptions whose callbacks fail, so the router
// acknowledges whenever it safely can: events it cannot attribute are
// dropped and acked, never bounced.
type Router struct {
	mu          sync.RWMutex
	normalizers map[string]core.WebhookNormalizer

	subscriptions core.SubscriptionStore
	events        core.EventRouter
	burst         BurstController
	logger        core.Logger
	now           func() time.Time
}

type RouterOption func(*Router)

func WithBurstController(burst BurstController) RouterOption {
	return func(r *Router) {
		if burst != nil {
			r.burst = burst
		}
	}
}

func WithLogger(logger core.Logger) RouterOption {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithNow(now func() time.Time) RouterOption {
	return func(r *Router) {
		if now != nil {
			r.now = now
		}
	}
}

func NewRouter(subscriptions core.SubscriptionStore, events core.EventRouter, opts ...RouterOption) (*Router, error) {
	if subscriptions == nil {
		return nil, fmt.Errorf("webhooks: subscription store is required")
	}
	if events == nil {
		return nil, fmt.Errorf("webhooks: event router is required")
	}

	router := &Router{
		normalizers:   map[string]core.WebhookNormalizer{},
		subscriptions: subscriptions,
		events:        events,
		logger:        glog.Ensure(nil),
		now:           time.Now,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(router)
	}
	return router, nil
}

// RegisterNormalizer wires one provider's wire dialect into the router.
func (r *Router) RegisterNormalizer(normalizer core.WebhookNormalizer) error {
	if r == nil {
		return fmt.Errorf("webhooks: router is not configured")
	}
	if normalizer == nil {
		return fmt.Errorf("webhooks: normalizer is required")
	}
	providerID := strings.TrimSpace(strings.ToLower(normalizer.ProviderID()))
	if providerID == "" {
		return fmt.Errorf("webhooks: normalizer provider id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.normalizers[providerID]; exists {
		return fmt.Errorf("webhooks: normalizer for %q already registered", providerID)
	}
	r.normalizers[providerID] = normalizer
	return nil
}

func (r *Router) normalizer(providerID string) (core.WebhookNormalizer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	normalizer, ok := r.normalizers[strings.TrimSpace(strings.ToLower(providerID))]
	return normalizer, ok
}

// Handle processes one inbound notification end to end and returns what the
// HTTP surface should answer.
func (r *Router) Handle(ctx context.Context, req core.InboundRequest) core.InboundResult {
	if r == nil {
		return core.InboundResult{StatusCode: http.StatusServiceUnavailable}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	startedAt := r.now()

	providerID := strings.TrimSpace(strings.ToLower(req.ProviderID))
	if providerID == "" {
		return core.InboundResult{
			StatusCode: http.StatusNotFound,
			Metadata:   map[string]any{"reason": "provider id missing"},
		}
	}
	req.ProviderID = providerID

	normalizer, ok := r.normalizer(providerID)
	if !ok {
		return core.InboundResult{
			StatusCode: http.StatusNotFound,
			Metadata:   map[string]any{"provider_id": providerID, "reason": "unknown provider"},
		}
	}

	notification, err := normalizer.Normalize(req)
	if err != nil {
		// Malformed payloads are dropped but acked; bouncing them only
		// makes the provider retry the same bytes.
		r.logger.Warn(
			"webhook notification dropped",
			"provider_id", providerID,
			"reason", "normalize failed",
			"error", err.Error(),
		)
		return core.InboundResult{
			StatusCode: http.StatusOK,
			Metadata:   map[string]any{"provider_id": providerID, "dropped": true},
		}
	}

	if notification.Kind == core.NotificationKindHandshake {
		response := notification.Response
		if response.StatusCode == 0 {
			response.StatusCode = http.StatusOK
		}
		r.logger.Info(
			"webhook handshake answered",
			"provider_id", providerID,
			"status_code", response.StatusCode,
			"duration_ms", time.Since(startedAt).Milliseconds(),
		)
		return response
	}

	routed, dropped := r.routeEvents(ctx, providerID, notification.Events)
	r.logger.Info(
		"webhook notification processed",
		"provider_id", providerID,
		"events", len(notification.Events),
		"routed", routed,
		"dropped", dropped,
		"duration_ms", time.Since(startedAt).Milliseconds(),
	)

	return core.InboundResult{
		Accepted:   true,
		StatusCode: http.StatusOK,
		Metadata: map[string]any{
			"provider_id": providerID,
			"events":      len(notification.Events),
			"routed":      routed,
			"dropped":     dropped,
		},
	}
}

func (r *Router) routeEvents(ctx context.Context, providerID string, events []core.ChangeEvent) (routed int, dropped int) {
	for _, event := range events {
		owner, ok := r.resolveOwner(ctx, providerID, event)
		if !ok {
			dropped++
			continue
		}
		if r.burst != nil {
			if decision := r.burst.Allow(providerID, event); !decision.Allow {
				dropped++
				continue
			}
		}
		payload := event.Payload
		if payload == nil {
			payload = map[string]any{}
		}
		routed += r.events.Route(ctx, owner.UserID, owner.DashboardID, event.EventName, payload)
	}
	return routed, dropped
}

// resolveOwner attributes one event to a tenant. The correlation token is
// attacker-writable input, so it never stands alone: either the stored
// subscription row confirms the token, or the event is dropped.
func (r *Router) resolveOwner(ctx context.Context, providerID string, event core.ChangeEvent) (core.OwnerRef, bool) {
	tokenOwner, tokenErr := core.DecodeCorrelationToken(event.CorrelationToken)

	if resourceID := strings.TrimSpace(event.ResourceID); resourceID != "" {
		subscription, err := r.subscriptions.FindByResourceID(ctx, resourceID)
		if err == nil {
			storedOwner := subscription.Owner()
			if tokenErr == nil && !sameOwner(tokenOwner, storedOwner) {
				r.dropEvent(providerID, event, "correlation token does not match stored subscription")
				return core.OwnerRef{}, false
			}
			return storedOwner, true
		}
	}

	if tokenErr != nil {
		r.dropEvent(providerID, event, "no stored subscription and no decodable correlation token")
		return core.OwnerRef{}, false
	}

	// Fall back to the owner's subscription list: the token names a tenant,
	// the stored rows must corroborate it before anything is delivered.
	subscriptions, err := r.subscriptions.FindByOwner(ctx, tokenOwner)
	if err != nil || len(subscriptions) == 0 {
		r.dropEvent(providerID, event, "correlation token names an owner with no subscriptions")
		return core.OwnerRef{}, false
	}
	for _, subscription := range subscriptions {
		if subscription.ProviderID != providerID {
			continue
		}
		if matchesEvent(subscription, event) {
			return tokenOwner, true
		}
	}
	r.dropEvent(providerID, event, "no owned subscription matches the event")
	return core.OwnerRef{}, false
}

func matchesEvent(subscription core.Subscription, event core.ChangeEvent) bool {
	if event.ResourceID != "" && subscription.ResourceID == event.ResourceID {
		return true
	}
	if event.ChannelID != "" && subscription.ChannelID == event.ChannelID {
		return true
	}
	if event.CorrelationToken != "" && subscription.ChannelID == event.CorrelationToken {
		return true
	}
	return false
}

func sameOwner(a core.OwnerRef, b core.OwnerRef) bool {
	return a.UserID == b.UserID && a.DashboardID == b.DashboardID
}

func (r *Router) dropEvent(providerID string, event core.ChangeEvent, reason string) {
	r.logger.Warn(
		"webhook event dropped",
		"provider_id", providerID,
		"resource_id", event.ResourceID,
		"channel_id", event.ChannelID,
		"event", event.EventName,
		"reason", reason,
	)
}
