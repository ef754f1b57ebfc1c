package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type credentialRecord struct {
	bun.BaseModel `bun:"table:push_credentials,alias:pc"`

	ID                     string     `bun:"id,pk"`
	UserID                 string     `bun:"user_id,notnull"`
	DashboardID            string     `bun:"dashboard_id,notnull"`
	ProviderID             string     `bun:"provider_id,notnull"`
	EncryptedAccessSecret  []byte     `bun:"encrypted_access_secret,notnull"`
	EncryptedRefreshSecret []byte     `bun:"encrypted_refresh_secret"`
	ExpiresAt              *time.Time `bun:"expires_at,nullzero"`
	InstallationID         string     `bun:"installation_id"`
	CreatedAt              time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt              time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// subscriptionRecord is keyed by the provider-assigned resource id: inbound
// notifications carry that id and nothing else usable as a primary key.
type subscriptionRecord struct {
	bun.BaseModel `bun:"table:push_subscriptions,alias:ps"`

	ResourceID  string     `bun:"resource_id,pk"`
	UserID      string     `bun:"user_id,notnull"`
	DashboardID string     `bun:"dashboard_id,notnull"`
	ProviderID  string     `bun:"provider_id,notnull"`
	TargetID    string     `bun:"target_id,notnull"`
	ChannelID   string     `bun:"channel_id"`
	ExpiresAt   *time.Time `bun:"expires_at,nullzero"`
	CreatedAt   time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt   time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
