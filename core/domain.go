package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidOwner          = errors.New("core: invalid owner reference")
	ErrCredentialNotFound    = errors.New("core: credential not found")
	ErrSubscriptionNotFound  = errors.New("core: subscription not found")
	ErrProviderNotRegistered = errors.New("core: provider not registered")
)

// DashboardAll is the sentinel dashboard id that addresses every live
// connection a user holds, regardless of dashboard.
const DashboardAll = "all"

// OwnerRef identifies the tenant a credential or subscription belongs to.
type OwnerRef struct {
	UserID      string
	DashboardID string
}

func (o OwnerRef) Validate() error {
	if strings.TrimSpace(o.UserID) == "" {
		return fmt.Errorf("%w: empty user id", ErrInvalidOwner)
	}
	if strings.TrimSpace(o.DashboardID) == "" {
		return fmt.Errorf("%w: empty dashboard id", ErrInvalidOwner)
	}
	return nil
}

func (o OwnerRef) Normalize() OwnerRef {
	return OwnerRef{
		UserID:      strings.TrimSpace(o.UserID),
		DashboardID: strings.TrimSpace(o.DashboardID),
	}
}

func (o OwnerRef) String() string {
	return o.UserID + "/" + o.DashboardID
}

// Credential is one (user, dashboard, provider) OAuth secret pair. Secrets are
// plaintext on this struct; they only ever exist decrypted in memory — the
// store encrypts before persisting and decrypts after loading.
type Credential struct {
	ID             string
	UserID         string
	DashboardID    string
	ProviderID     string
	AccessSecret   string
	RefreshSecret  string
	ExpiresAt      time.Time
	InstallationID string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (c Credential) Owner() OwnerRef {
	return OwnerRef{UserID: c.UserID, DashboardID: c.DashboardID}
}

// RefreshDeadline is the instant at which the access secret should be
// proactively rotated: expiry minus the provider's buffer window.
func (c Credential) RefreshDeadline(buffer time.Duration) time.Time {
	if buffer < 0 {
		buffer = 0
	}
	return c.ExpiresAt.Add(-buffer)
}

// Subscription tracks one provider-side push registration by the resource id
// the provider assigned. At most one active subscription exists per
// (user, dashboard, provider, target); the coordinator enforces that rule.
type Subscription struct {
	ResourceID  string
	UserID      string
	DashboardID string
	ProviderID  string
	TargetID    string
	ChannelID   string
	ExpiresAt   time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (s Subscription) Owner() OwnerRef {
	return OwnerRef{UserID: s.UserID, DashboardID: s.DashboardID}
}

// ProviderDescriptor is the static per-provider configuration supplied at
// startup. Buffer windows and lifetimes are tunable configuration, not
// load-bearing constants.
type ProviderDescriptor struct {
	ID                      string
	AuthURL                 string
	TokenURL                string
	APIBaseURL              string
	ClientID                string
	ClientSecret            string
	Scopes                  []string
	MaxSubscriptionLifetime time.Duration
	RefreshBufferWindow     time.Duration
}

func (d ProviderDescriptor) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("core: provider descriptor id is required")
	}
	if strings.TrimSpace(d.TokenURL) == "" {
		return fmt.Errorf("core: provider descriptor token url is required for %q", d.ID)
	}
	if d.MaxSubscriptionLifetime <= 0 {
		return fmt.Errorf("core: provider descriptor subscription lifetime is required for %q", d.ID)
	}
	return nil
}

// ProviderToken is the outcome of a code exchange or refresh call.
type ProviderToken struct {
	AccessSecret   string
	RefreshSecret  string
	ExpiresAt      time.Time
	InstallationID string
}

// ProviderSubscription is the provider's view of a created push registration.
type ProviderSubscription struct {
	ResourceID string
	ChannelID  string
	ExpiresAt  time.Time
}
