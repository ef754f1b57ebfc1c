package core

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// A correlation token is the opaque value round-tripped through a provider so
// an inbound notification can self-identify its owning tenant. The encoded
// form uses the URL-safe alphabet only, so providers may embed it in channel
// identifiers without escaping.
type correlationPayload struct {
	UserID      string `json:"u"`
	DashboardID string `json:"d"`
}

func EncodeCorrelationToken(owner OwnerRef) (string, error) {
	owner = owner.Normalize()
	if err := owner.Validate(); err != nil {
		return "", err
	}
	encoded, err := json.Marshal(correlationPayload{
		UserID:      owner.UserID,
		DashboardID: owner.DashboardID,
	})
	if err != nil {
		return "", fmt.Errorf("core: encode correlation token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(encoded), nil
}

func DecodeCorrelationToken(token string) (OwnerRef, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return OwnerRef{}, fmt.Errorf("core: correlation token is required")
	}
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return OwnerRef{}, fmt.Errorf("core: decode correlation token: %w", err)
	}
	payload := correlationPayload{}
	if err := json.Unmarshal(decoded, &payload); err != nil {
		return OwnerRef{}, fmt.Errorf("core: decode correlation token payload: %w", err)
	}
	owner := OwnerRef{UserID: payload.UserID, DashboardID: payload.DashboardID}.Normalize()
	if err := owner.Validate(); err != nil {
		return OwnerRef{}, err
	}
	return owner, nil
}
