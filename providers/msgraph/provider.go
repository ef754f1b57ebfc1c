// Package msgraph implements the Microsoft Graph change-notification
// provider. Graph subscriptions carry the correlation token in clientState
// and must answer the validationToken handshake before any events flow.
package msgraph

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-pushsync/core"
	"github.com/goliatone/go-pushsync/providers"
)

const (
	ProviderID = "msgraph"

	defaultAuthURL    = "https://login.microsoftonline.com/common/oauth2/v2.0/authorize"
	defaultTokenURL   = "https://login.microsoftonline.com/common/oauth2/v2.0/token"
	defaultAPIBaseURL = "https://graph.microsoft.com/v1.0"

	// Graph caps most resources at three days.
	defaultSubscriptionLifetime = 71 * time.Hour
	defaultRefreshBuffer        = 10 * time.Minute

	defaultChangeTypes = "created,updated,deleted"
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

type subscriptionRequest struct {
	ChangeType         string `json:"changeType"`
	NotificationURL    string `json:"notificationUrl"`
	Resource           string `json:"resource"`
	ExpirationDateTime string `json:"expirationDateTime"`
	ClientState        string `json:"clientState"`
}

type subscriptionResponse struct {
	ID                 string `json:"id"`
	ExpirationDateTime string `json:"expirationDateTime"`
}

// Subscribe creates a Graph subscription on the target resource path, for
// example "me/events". The subscription id doubles as resource id and
// channel id: Graph has no separate channel concept.
func (p *Provider) Subscribe(ctx context.Context, call core.SubscribeCall) (core.ProviderSubscription, error) {
	resource := strings.Trim(strings.TrimSpace(call.TargetID), "/")
	if resource == "" {
		return core.ProviderSubscription{}, core.NewValidationError("graph resource path is required")
	}
	if strings.TrimSpace(call.CallbackURL) == "" {
		return core.ProviderSubscription{}, core.NewValidationError("callback url is required")
	}
	if strings.TrimSpace(call.CorrelationToken) == "" {
		return core.ProviderSubscription{}, core.NewValidationError("correlation token is required")
	}

	lifetime := call.Lifetime
	if lifetime <= 0 {
		lifetime = p.client.Descriptor().MaxSubscriptionLifetime
	}
	expiresAt := p.client.Now().UTC().Add(lifetime)

	response, err := p.client.DoJSON(
		ctx,
		http.MethodPost,
		p.client.APIURL("subscriptions"),
		call.AccessSecret,
		subscriptionRequest{
			ChangeType:         defaultChangeTypes,
			NotificationURL:    call.CallbackURL,
			Resource:           resource,
			ExpirationDateTime: expiresAt.Format(time.RFC3339),
			ClientState:        call.CorrelationToken,
		},
	)
	if err != nil {
		return core.ProviderSubscription{}, err
	}
	if err := p.client.ClassifySubscriptionFailure("subscriptions.create", response); err != nil {
		return core.ProviderSubscription{}, err
	}

	var payload subscriptionResponse
	if err := response.DecodeJSON(&payload); err != nil {
		return core.ProviderSubscription{}, core.NewSubscriptionError(
			fmt.Sprintf("provider %s subscription response decode failed: %v", p.ID(), err),
		)
	}
	if strings.TrimSpace(payload.ID) == "" {
		return core.ProviderSubscription{}, core.NewSubscriptionError(
			fmt.Sprintf("provider %s subscription response is missing an id", p.ID()),
		)
	}

	if parsed, parseErr := time.Parse(time.RFC3339, payload.ExpirationDateTime); parseErr == nil {
		expiresAt = parsed.UTC()
	}

	return core.ProviderSubscription{
		ResourceID: payload.ID,
		ChannelID:  payload.ID,
		ExpiresAt:  expiresAt,
	}, nil
}

// Cancel deletes the subscription. A 404 means it already lapsed.
func (p *Provider) Cancel(ctx context.Context, call core.CancelCall) error {
	subscriptionID := strings.TrimSpace(call.ResourceID)
	if subscriptionID == "" {
		return core.NewValidationError("graph subscription id is required")
	}

	response, err := p.client.DoJSON(
		ctx,
		http.MethodDelete,
		p.client.APIURL("subscriptions", subscriptionID),
		call.AccessSecret,
		nil,
	)
	if err != nil {
		return err
	}
	if response.StatusCode == http.StatusNotFound {
		return nil
	}
	return p.client.ClassifySubscriptionFailure("subscriptions.delete", response)
}

// FetchResource reads the resource path a notification named, for example
// "Users/abc/Events/def".
func (p *Provider) FetchResource(ctx context.Context, call core.FetchResourceCall) (map[string]any, error) {
	resource := strings.Trim(strings.TrimSpace(call.ResourceID), "/")
	if resource == "" {
		return nil, core.NewValidationError("graph resource path is required")
	}

	response, err := p.client.DoJSON(
		ctx,
		http.MethodGet,
		p.client.APIURL(resource),
		call.AccessSecret,
		nil,
	)
	if err != nil {
		return nil, err
	}
	if err := p.client.ClassifySubscriptionFailure("resource.get", response); err != nil {
		return nil, err
	}

	var payload map[string]any
	if err := response.DecodeJSON(&payload); err != nil {
		return nil, core.NewSubscriptionError(
			fmt.Sprintf("provider %s resource decode failed: %v", p.ID(), err),
		)
	}
	return payload, nil
}

var _ core.Provider = (*Provider)(nil)
