// Package google implements the Google Calendar push provider: watch
// channels created through the events.watch endpoint, stopped through
// channels.stop.
package google

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-pushsync/core"
	"github.com/goliatone/go-pushsync/providers"
)

const (
	ProviderID = "google"

	defaultAuthURL    = "https://accounts.google.com/o/oauth2/v2/auth"
	defaultTokenURL   = "https://oauth2.googleapis.com/token"
	defaultAPIBaseURL = "https://www.googleapis.com/calendar/v3"

	// Calendar caps watch channels well below this; the descriptor value
	// wins when it is shorter.
	defaultSubscriptionLifetime = 7 * 24 * time.Hour
	defaultRefreshBuffer        = 10 * time.Minute
)

type Provider struct {
	client *providers.Client
}

func New(descriptor core.ProviderDescriptor, opts ...providers.ClientOption) (*Provider, error) {
	descriptor = applyDefaults(descriptor)
	client, err := providers.NewClient(descriptor, opts...)
	if err != nil {
		return nil, err
	}
	return &Provider{client: client}, nil
}

func applyDefaults(descriptor core.ProviderDescriptor) core.ProviderDescriptor {
	if strings.TrimSpace(descriptor.ID) == "" {
		descriptor.ID = ProviderID
	}
	if strings.TrimSpace(descriptor.AuthURL) == "" {
		descriptor.AuthURL = defaultAuthURL
	}
	if strings.TrimSpace(descriptor.TokenURL) == "" {
		descriptor.TokenURL = defaultTokenURL
	}
	if strings.TrimSpace(descriptor.APIBaseURL) == "" {
		descriptor.APIBaseURL = defaultAPIBaseURL
	}
	if descriptor.MaxSubscriptionLifetime <= 0 {
		descriptor.MaxSubscriptionLifetime = defaultSubscriptionLifetime
	}
	if descriptor.RefreshBufferWindow <= 0 {
		descriptor.RefreshBufferWindow = defaultRefreshBuffer
	}
	return descriptor
}

func (p *Provider) ID() string {
	return p.client.Descriptor().ID
}

func (p *Provider) Descriptor() core.ProviderDescriptor {
	return p.client.Descriptor()
}

func (p *Provider) ExchangeCode(ctx context.Context, req core.ExchangeCodeRequest) (core.ProviderToken, error) {
	return p.client.ExchangeCode(ctx, req)
}

func (p *Provider) Refresh(ctx context.Context, req core.RefreshTokenRequest) (core.ProviderToken, error) {
	return p.client.RefreshToken(ctx, req)
}

type watchRequest struct {
	ID      string            `json:"id"`
	Type    string            `json:"type"`
	Address string            `json:"address"`
	Params  map[string]string `json:"params,omitempty"`
}

type watchResponse struct {
	ResourceID string `json:"resourceId"`
	Expiration string `json:"expiration"`
}

// Subscribe opens a watch channel on the target calendar. The channel id
// carries the correlation token as its dotted prefix; notifications echo it
// back in X-Goog-Channel-Id, which is the only tenant signal Calendar sends.
func (p *Provider) Subscribe(ctx context.Context, call core.SubscribeCall) (core.ProviderSubscription, error) {
	targetID := strings.TrimSpace(call.TargetID)
	if targetID == "" {
		return core.ProviderSubscription{}, core.NewValidationError("calendar target id is required")
	}
	if strings.TrimSpace(call.CallbackURL) == "" {
		return core.ProviderSubscription{}, core.NewValidationError("callback url is required")
	}
	if strings.TrimSpace(call.CorrelationToken) == "" {
		return core.ProviderSubscription{}, core.NewValidationError("correlation token is required")
	}

	channelID := call.CorrelationToken + "." + uuid.NewString()
	body := watchRequest{
		ID:      channelID,
		Type:    "web_hook",
		Address: call.CallbackURL,
	}
	if call.Lifetime > 0 {
		body.Params = map[string]string{
			"ttl": strconv.FormatInt(int64(call.Lifetime/time.Second), 10),
		}
	}

	response, err := p.client.DoJSON(
		ctx,
		http.MethodPost,
		p.client.APIURL("calendars", targetID, "events", "watch"),
		call.AccessSecret,
		body,
	)
	if err != nil {
		return core.ProviderSubscription{}, err
	}
	if err := p.client.ClassifySubscriptionFailure("watch", response); err != nil {
		return core.ProviderSubscription{}, err
	}

	var payload watchResponse
	if err := response.DecodeJSON(&payload); err != nil {
		return core.ProviderSubscription{}, core.NewSubscriptionError(
			fmt.Sprintf("provider %s watch response decode failed: %v", p.ID(), err),
		)
	}
	if strings.TrimSpace(payload.ResourceID) == "" {
		return core.ProviderSubscription{}, core.NewSubscriptionError(
			fmt.Sprintf("provider %s watch response is missing a resource id", p.ID()),
		)
	}

	return core.ProviderSubscription{
		ResourceID: payload.ResourceID,
		ChannelID:  channelID,
		ExpiresAt:  p.resolveExpiration(payload.Expiration, call.Lifetime),
	}, nil
}

// Cancel stops a watch channel. Calendar answers 404 for channels that are
// already gone; that counts as cancelled.
func (p *Provider) Cancel(ctx context.Context, call core.CancelCall) error {
	if strings.TrimSpace(call.ChannelID) == "" || strings.TrimSpace(call.ResourceID) == "" {
		return core.NewValidationError("channel id and resource id are required to stop a watch")
	}

	response, err := p.client.DoJSON(
		ctx,
		http.MethodPost,
		p.client.APIURL("channels", "stop"),
		call.AccessSecret,
		map[string]string{
			"id":         call.ChannelID,
			"resourceId": call.ResourceID,
		},
	)
	if err != nil {
		return err
	}
	if response.StatusCode == http.StatusNotFound {
		return nil
	}
	return p.client.ClassifySubscriptionFailure("channels.stop", response)
}

// FetchResource reads one event from the target calendar.
func (p *Provider) FetchResource(ctx context.Context, call core.FetchResourceCall) (map[string]any, error) {
	targetID := strings.TrimSpace(call.TargetID)
	resourceID := strings.TrimSpace(call.ResourceID)
	if targetID == "" || resourceID == "" {
		return nil, core.NewValidationError("calendar target id and resource id are required")
	}

	response, err := p.client.DoJSON(
		ctx,
		http.MethodGet,
		p.client.APIURL("calendars", targetID, "events", resourceID),
		call.AccessSecret,
		nil,
	)
	if err != nil {
		return nil, err
	}
	if err := p.client.ClassifySubscriptionFailure("events.get", response); err != nil {
		return nil, err
	}

	var payload map[string]any
	if err := response.DecodeJSON(&payload); err != nil {
		return nil, core.NewSubscriptionError(
			fmt.Sprintf("provider %s event decode failed: %v", p.ID(), err),
		)
	}
	return payload, nil
}

// Calendar reports expiration as epoch milliseconds in a string.
func (p *Provider) resolveExpiration(expiration string, lifetime time.Duration) time.Time {
	if millis, err := strconv.ParseInt(strings.TrimSpace(expiration), 10, 64); err == nil && millis > 0 {
		return time.UnixMilli(millis).UTC()
	}
	if lifetime <= 0 {
		lifetime = p.client.Descriptor().MaxSubscriptionLifetime
	}
	return p.client.Now().UTC().Add(lifetime)
}

var _ core.Provider = (*Provider)(nil)
