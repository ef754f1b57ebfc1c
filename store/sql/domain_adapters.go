package sqlstore

import (
	"time"

	"github.com/goliatone/go-pushsync/core"
)

func newSubscriptionRecord(in core.CreateSubscriptionInput, now time.Time) *subscriptionRecord {
	record := &subscriptionRecord{
		ResourceID:  in.ResourceID,
		UserID:      in.Owner.UserID,
		DashboardID: in.Owner.DashboardID,
		ProviderID:  in.ProviderID,
		TargetID:    in.TargetID,
		ChannelID:   in.ChannelID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if !in.ExpiresAt.IsZero() {
		expires := in.ExpiresAt.UTC()
		record.ExpiresAt = &expires
	}
	return record
}

func (r *subscriptionRecord) toDomain() core.Subscription {
	if r == nil {
		return core.Subscription{}
	}
	subscription := core.Subscription{
		ResourceID:  r.ResourceID,
		UserID:      r.UserID,
		DashboardID: r.DashboardID,
		ProviderID:  r.ProviderID,
		TargetID:    r.TargetID,
		ChannelID:   r.ChannelID,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.ExpiresAt != nil {
		subscription.ExpiresAt = r.ExpiresAt.UTC()
	}
	return subscription
}

// toDomain returns the credential with already-decrypted secrets supplied by
// the caller; the record itself never exposes plaintext.
func (r *credentialRecord) toDomain(accessSecret, refreshSecret string) core.Credential {
	if r == nil {
		return core.Credential{}
	}
	credential := core.Credential{
		ID:             r.ID,
		UserID:         r.UserID,
		DashboardID:    r.DashboardID,
		ProviderID:     r.ProviderID,
		AccessSecret:   accessSecret,
		RefreshSecret:  refreshSecret,
		InstallationID: r.InstallationID,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
	if r.ExpiresAt != nil {
		credential.ExpiresAt = r.ExpiresAt.UTC()
	}
	return credential
}
