package msgraph

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/goliatone/go-pushsync/core"
	"github.com/goliatone/go-pushsync/providers"
)

const (
	validationTokenParam = "validationToken"

	EventResourceChanged = "graph.resource_changed"
)

type notificationEnvelope struct {
	Value []notificationItem `json:"value"`
}

type notificationItem struct {
	SubscriptionID string         `json:"subscriptionId"`
	ClientState    string         `json:"clientState"`
	ChangeType     string         `json:"changeType"`
	Resource       string         `json:"resource"`
	ResourceData   map[string]any `json:"resourceData"`
}

// Normalizer translates Graph change notifications. The validation handshake
// must echo the raw token back as text/plain within ten seconds or Graph
// abandons the subscription.
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
	if token := providers.QueryValue(req.Query, validationTokenParam); token != "" {
		return core.Notification{
			Kind: core.NotificationKindHandshake,
			Response: core.InboundResult{
				Accepted:    true,
				StatusCode:  http.StatusOK,
				Body:        []byte(token),
				ContentType: "text/plain",
			},
		}, nil
	}

	var envelope notificationEnvelope
	if err := json.Unmarshal(req.Body, &envelope); err != nil {
		return core.Notification{}, fmt.Errorf("msgraph: decode notification batch: %w", err)
	}
	if len(envelope.Value) == 0 {
		return core.Notification{}, fmt.Errorf("msgraph: notification batch is empty")
	}

	events := make([]core.ChangeEvent, 0, len(envelope.Value))
	for _, item := range envelope.Value {
		if item.SubscriptionID == "" {
			continue
		}
		payload := map[string]any{
			"subscription_id": item.SubscriptionID,
			"change_type":     item.ChangeType,
			"resource":        item.Resource,
		}
		if len(item.ResourceData) > 0 {
			payload["resource_data"] = item.ResourceData
		}
		events = append(events, core.ChangeEvent{
			ResourceID:       item.SubscriptionID,
			ChannelID:        item.SubscriptionID,
			CorrelationToken: item.ClientState,
			EventName:        EventResourceChanged,
			Payload:          payload,
		})
	}
	if len(events) == 0 {
		return core.Notification{}, fmt.Errorf("msgraph: notification batch has no subscription ids")
	}

	return core.Notification{
		Kind:   core.NotificationKindEvent,
		Events: events,
	}, nil
}

var _ core.WebhookNormalizer = (*Normalizer)(nil)
