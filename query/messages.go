package query

import (
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-pushsync/core"
)

const (
	TypeGetCredential             = "pushsync.query.credential.get"
	TypeGetSubscription           = "pushsync.query.subscription.get"
	TypeListOwnerSubscriptions    = "pushsync.query.subscription.list"
	TypeListExpiringSubscriptions = "pushsync.query.subscription.expiring"
)

type GetCredentialMessage struct {
	Owner      core.OwnerRef
	ProviderID string
}

func (GetCredentialMessage) Type() string { return TypeGetCredential }

func (m GetCredentialMessage) Validate() error {
	if err := m.Owner.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(m.ProviderID) == "" {
		return fmt.Errorf("query: provider id is required")
	}
	return nil
}

type GetSubscriptionMessage struct {
	ResourceID string
}

func (GetSubscriptionMessage) Type() string { return TypeGetSubscription }

func (m GetSubscriptionMessage) Validate() error {
	if strings.TrimSpace(m.ResourceID) == "" {
		return fmt.Errorf("query: resource id is required")
	}
	return nil
}

type ListOwnerSubscriptionsMessage struct {
	Owner core.OwnerRef
}

func (ListOwnerSubscriptionsMessage) Type() string { return TypeListOwnerSubscriptions }

func (m ListOwnerSubscriptionsMessage) Validate() error {
	return m.Owner.Validate()
}

type ListExpiringSubscriptionsMessage struct {
	Window time.Duration
}

func (ListExpiringSubscriptionsMessage) Type() string { return TypeListExpiringSubscriptions }

func (m ListExpiringSubscriptionsMessage) Validate() error {
	if m.Window <= 0 {
		return fmt.Errorf("query: window must be positive")
	}
	return nil
}
