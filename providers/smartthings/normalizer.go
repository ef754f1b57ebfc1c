package smartthings

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/goliatone/go-pushsync/core"
)

const (
	lifecycleConfirmation = "CONFIRMATION"
	lifecyclePing         = "PING"
	lifecycleEvent        = "EVENT"

	EventDeviceEvent = "smartthings.device_event"
)

type lifecycleEnvelope struct {
	Lifecycle        string            `json:"lifecycle"`
	ConfirmationData *confirmationData `json:"confirmationData"`
	PingData         *pingData         `json:"pingData"`
	EventData        *eventData        `json:"eventData"`
}

type confirmationData struct {
	AppID           string `json:"appId"`
	ConfirmationURL string `json:"confirmationUrl"`
}

type pingData struct {
	Challenge string `json:"challenge"`
}

type eventData struct {
	InstalledApp installedApp    `json:"installedApp"`
	Events       []lifecycleItem `json:"events"`
}

type installedApp struct {
	InstalledAppID string `json:"installedAppId"`
}

type lifecycleItem struct {
	EventType   string       `json:"eventType"`
	DeviceEvent *deviceEvent `json:"deviceEvent"`
}

type deviceEvent struct {
	SubscriptionName string `json:"subscriptionName"`
	EventID          string `json:"eventId"`
	DeviceID         string `json:"deviceId"`
	ComponentID      string `json:"componentId"`
	Capability       string `json:"capability"`
	Attribute        string `json:"attribute"`
	Value            any    `json:"value"`
	StateChange      bool   `json:"stateChange"`
}

// Normalizer translates SmartThings lifecycle messages. CONFIRMATION and
// PING are handshakes that must be answered in-band; EVENT carries device
// events whose subscriptionName is the correlation token.
type Normalizer struct {
	providerID string
}

func NewNormalizer() *Normalizer {
	return &Normalizer{providerID: ProviderID}
}

func (n *Normalizer) ProviderID() string {
	if n == nil {
		return ""
	}
	return n.providerID
}

func (n *Normalizer) Normalize(req core.InboundRequest) (core.Notification, error) {
	var envelope lifecycleEnvelope
	if err := json.Unmarshal(req.Body, &envelope); err != nil {
		return core.Notification{}, fmt.Errorf("smartthings: decode lifecycle message: %w", err)
	}

	switch strings.ToUpper(strings.TrimSpace(envelope.Lifecycle)) {
	case lifecycleConfirmation:
		return n.confirmationResponse(envelope.ConfirmationData)
	case lifecyclePing:
		return n.pingResponse(envelope.PingData)
	case lifecycleEvent:
		return n.eventNotification(envelope.EventData)
	default:
		return core.Notification{}, fmt.Errorf("smartthings: unsupported lifecycle %q", envelope.Lifecycle)
	}
}

func (n *Normalizer) confirmationResponse(data *confirmationData) (core.Notification, error) {
	if data == nil || strings.TrimSpace(data.ConfirmationURL) == "" {
		return core.Notification{}, fmt.Errorf("smartthings: confirmation message is missing a confirmation url")
	}
	body, err := json.Marshal(map[string]string{"targetUrl": data.ConfirmationURL})
	if err != nil {
		return core.Notification{}, fmt.Errorf("smartthings: encode confirmation response: %w", err)
	}
	return core.Notification{
		Kind: core.NotificationKindHandshake,
		Response: core.InboundResult{
			Accepted:    true,
			StatusCode:  http.StatusOK,
			Body:        body,
			ContentType: "application/json",
			Metadata:    map[string]any{"confirmation_url": data.ConfirmationURL},
		},
	}, nil
}

func (n *Normalizer) pingResponse(data *pingData) (core.Notification, error) {
	if data == nil || strings.TrimSpace(data.Challenge) == "" {
		return core.Notification{}, fmt.Errorf("smartthings: ping message is missing a challenge")
	}
	body, err := json.Marshal(map[string]any{"pingData": map[string]string{"challenge": data.Challenge}})
	if err != nil {
		return core.Notification{}, fmt.Errorf("smartthings: encode ping response: %w", err)
	}
	return core.Notification{
		Kind: core.NotificationKindHandshake,
		Response: core.InboundResult{
			Accepted:    true,
			StatusCode:  http.StatusOK,
			Body:        body,
			ContentType: "application/json",
		},
	}, nil
}

func (n *Normalizer) eventNotification(data *eventData) (core.Notification, error) {
	if data == nil || len(data.Events) == 0 {
		return core.Notification{}, fmt.Errorf("smartthings: event message carries no events")
	}

	events := make([]core.ChangeEvent, 0, len(data.Events))
	for _, item := range data.Events {
		if item.DeviceEvent == nil {
			continue
		}
		event := item.DeviceEvent
		payload := map[string]any{
			"device_id":        event.DeviceID,
			"component_id":     event.ComponentID,
			"capability":       event.Capability,
			"attribute":        event.Attribute,
			"value":            event.Value,
			"state_change":     event.StateChange,
			"installed_app_id": data.InstalledApp.InstalledAppID,
		}
		if event.EventID != "" {
			payload["event_id"] = event.EventID
		}
		events = append(events, core.ChangeEvent{
			ResourceID:       event.EventID,
			ChannelID:        event.SubscriptionName,
			CorrelationToken: event.SubscriptionName,
			EventName:        EventDeviceEvent,
			Payload:          payload,
		})
	}
	if len(events) == 0 {
		return core.Notification{}, fmt.Errorf("smartthings: event message has no device events")
	}

	return core.Notification{
		Kind:   core.NotificationKindEvent,
		Events: events,
	}, nil
}

var _ core.WebhookNormalizer = (*Normalizer)(nil)
