package google

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/goliatone/go-pushsync/core"
	"github.com/goliatone/go-pushsync/providers"
)

const (
	headerChannelID     = "X-Goog-Channel-Id"
	headerResourceID    = "X-Goog-Resource-Id"
	headerResourceState = "X-Goog-Resource-State"
	headerMessageNumber = "X-Goog-Message-Number"
	headerResourceURI   = "X-Goog-Resource-Uri"

	// Calendar sends a sync message right after the channel opens. It
	// carries no change; acknowledging it is the whole job.
	resourceStateSync = "sync"

	EventCalendarChanged = "calendar.changed"
)

// Normalizer translates Calendar push messages. All signal travels in
// X-Goog-* headers; bodies are empty.
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
	channelID := providers.HeaderValue(req.Headers, headerChannelID)
	resourceID := providers.HeaderValue(req.Headers, headerResourceID)
	state := strings.ToLower(providers.HeaderValue(req.Headers, headerResourceState))

	if channelID == "" || resourceID == "" {
		return core.Notification{}, fmt.Errorf("google: notification is missing channel or resource headers")
	}

	if state == resourceStateSync {
		return core.Notification{
			Kind: core.NotificationKindHandshake,
			Response: core.InboundResult{
				Accepted:   true,
				StatusCode: http.StatusOK,
			},
		}, nil
	}

	payload := map[string]any{
		"resource_id":    resourceID,
		"channel_id":     channelID,
		"resource_state": state,
	}
	if messageNumber := providers.HeaderValue(req.Headers, headerMessageNumber); messageNumber != "" {
		payload["message_number"] = messageNumber
	}
	if resourceURI := providers.HeaderValue(req.Headers, headerResourceURI); resourceURI != "" {
		payload["resource_uri"] = resourceURI
	}

	return core.Notification{
		Kind: core.NotificationKindEvent,
		Events: []core.ChangeEvent{{
			ResourceID:       resourceID,
			ChannelID:        channelID,
			CorrelationToken: correlationTokenFromChannelID(channelID),
			EventName:        EventCalendarChanged,
			Payload:          payload,
		}},
	}, nil
}

// The channel id is token + "." + uuid; everything before the first dot is
// the correlation token.
func correlationTokenFromChannelID(channelID string) string {
	if index := strings.IndexByte(channelID, '.'); index > 0 {
		return channelID[:index]
	}
	return ""
}

var _ core.WebhookNormalizer = (*Normalizer)(nil)
