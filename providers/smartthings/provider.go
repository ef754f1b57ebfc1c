// Package smartthings implements the SmartThings device-event provider.
// Subscriptions hang off an installed app, so every API call needs the
// installation id captured during authorization.
package smartthings

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
	ProviderID = "smartthings"

	defaultAuthURL    = "https://api.smartthings.com/oauth/authorize"
	defaultTokenURL   = "https://auth-global.api.smartthings.com/oauth/token"
	defaultAPIBaseURL = "https://api.smartthings.com/v1"

	// SmartThings subscriptions do not lapse on their own; the lifetime only
	// drives local renewal bookkeeping.
	defaultSubscriptionLifetime = 30 * 24 * time.Hour
	defaultRefreshBuffer        = 5 * time.Minute
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

type deviceSubscriptionRequest struct {
	SourceType string             `json:"sourceType"`
	Device     deviceSubscription `json:"device"`
}

type deviceSubscription struct {
	DeviceID         string `json:"deviceId"`
	ComponentID      string `json:"componentId"`
	Capability       string `json:"capability"`
	StateChangeOnly  bool   `json:"stateChangeOnly"`
	SubscriptionName string `json:"subscriptionName,omitempty"`
}

type deviceSubscriptionResponse struct {
	ID string `json:"id"`
}

// Subscribe registers a device subscription under the installed app. The
// correlation token is stored as the subscription name so inbound events can
// be traced back to their tenant.
func (p *Provider) Subscribe(ctx context.Context, call core.SubscribeCall) (core.ProviderSubscription, error) {
	deviceID := strings.TrimSpace(call.TargetID)
	installationID := strings.TrimSpace(call.InstallationID)
	if deviceID == "" {
		return core.ProviderSubscription{}, core.NewValidationError("device id is required")
	}
	if installationID == "" {
		return core.ProviderSubscription{}, core.NewValidationError("smartthings installation id is required")
	}
	if strings.TrimSpace(call.CorrelationToken) == "" {
		return core.ProviderSubscription{}, core.NewValidationError("correlation token is required")
	}

	response, err := p.client.DoJSON(
		ctx,
		http.MethodPost,
		p.client.APIURL("installedapps", installationID, "subscriptions"),
		call.AccessSecret,
		deviceSubscriptionRequest{
			SourceType: "DEVICE",
			Device: deviceSubscription{
				DeviceID:         deviceID,
				ComponentID:      "*",
				Capability:       "*",
				StateChangeOnly:  true,
				SubscriptionName: call.CorrelationToken,
			},
		},
	)
	if err != nil {
		return core.ProviderSubscription{}, err
	}
	if err := p.client.ClassifySubscriptionFailure("subscriptions.create", response); err != nil {
		return core.ProviderSubscription{}, err
	}

	var payload deviceSubscriptionResponse
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

	lifetime := call.Lifetime
	if lifetime <= 0 {
		lifetime = p.client.Descriptor().MaxSubscriptionLifetime
	}

	return core.ProviderSubscription{
		ResourceID: payload.ID,
		ChannelID:  call.CorrelationToken,
		ExpiresAt:  p.client.Now().UTC().Add(lifetime),
	}, nil
}

// Cancel removes the subscription from the installed app. 404 counts as
// already removed.
func (p *Provider) Cancel(ctx context.Context, call core.CancelCall) error {
	subscriptionID := strings.TrimSpace(call.ResourceID)
	installationID := strings.TrimSpace(call.InstallationID)
	if subscriptionID == "" {
		return core.NewValidationError("smartthings subscription id is required")
	}
	if installationID == "" {
		return core.NewValidationError("smartthings installation id is required")
	}

	response, err := p.client.DoJSON(
		ctx,
		http.MethodDelete,
		p.client.APIURL("installedapps", installationID, "subscriptions", subscriptionID),
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

// FetchResource reads the full status of the target device.
func (p *Provider) FetchResource(ctx context.Context, call core.FetchResourceCall) (map[string]any, error) {
	deviceID := strings.TrimSpace(call.TargetID)
	if deviceID == "" {
		return nil, core.NewValidationError("device id is required")
	}

	response, err := p.client.DoJSON(
		ctx,
		http.MethodGet,
		p.client.APIURL("devices", deviceID, "status"),
		call.AccessSecret,
		nil,
	)
	if err != nil {
		return nil, err
	}
	if err := p.client.ClassifySubscriptionFailure("devices.status", response); err != nil {
		return nil, err
	}

	var payload map[string]any
	if err := response.DecodeJSON(&payload); err != nil {
		return nil, core.NewSubscriptionError(
			fmt.Sprintf("provider %s device status decode failed: %v", p.ID(), err),
		)
	}
	return payload, nil
}

var _ core.Provider = (*Provider)(nil)
