package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultRenewalLeadWindow is how far ahead of a subscription's hard
	// ceiling the periodic sweep renews it.
	DefaultRenewalLeadWindow = 6 * time.Hour
	// DefaultRefreshLockTTL bounds how long a single refresh attempt may hold
	// the per-credential advisory lock.
	DefaultRefreshLockTTL = 30 * time.Second
)

type RenewalConfig struct {
	LeadWindow time.Duration `koanf:"lead_window" mapstructure:"lead_window"`
}

type WebhookConfig struct {
	CallbackBaseURL string `koanf:"callback_base_url" mapstructure:"callback_base_url"`
}

type Config struct {
	ServiceName string        `koanf:"service_name" mapstructure:"service_name"`
	Webhook     WebhookConfig `koanf:"webhook" mapstructure:"webhook"`
	Renewal     RenewalConfig `koanf:"renewal" mapstructure:"renewal"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "pushsync",
		Renewal: RenewalConfig{
			LeadWindow: DefaultRenewalLeadWindow,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Renewal.LeadWindow < 0 {
		return fmt.Errorf("core: renewal lead_window must not be negative")
	}
	return nil
}

// CallbackURL composes the provider-facing webhook endpoint for one provider.
func (c Config) CallbackURL(providerID string) string {
	base := strings.TrimRight(strings.TrimSpace(c.Webhook.CallbackBaseURL), "/")
	providerID = strings.TrimSpace(providerID)
	if base == "" || providerID == "" {
		return ""
	}
	return base + "/webhooks/" + providerID
}
