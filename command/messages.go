package command

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-pushsync/core"
)

const (
	TypeCompleteAuthorization = "pushsync.command.authorization.complete"
	TypeSubscribe             = "pushsync.command.subscription.subscribe"
	TypeRenewSubscription     = "pushsync.command.subscription.renew"
	TypeCancelSubscription    = "pushsync.command.subscription.cancel"
	TypeRenewOwner            = "pushsync.command.owner.renew"
	TypeCleanupOwner          = "pushsync.command.owner.cleanup"
)

type CompleteAuthorizationMessage struct {
	Request core.CompleteAuthorizationRequest
}

func (CompleteAuthorizationMessage) Type() string { return TypeCompleteAuthorization }

func (m CompleteAuthorizationMessage) Validate() error {
	return m.Request.Validate()
}

type SubscribeMessage struct {
	Request core.SubscribeRequest
}

func (SubscribeMessage) Type() string { return TypeSubscribe }

func (m SubscribeMessage) Validate() error {
	return m.Request.Validate()
}

type RenewSubscriptionMessage struct {
	ResourceID string
}

func (RenewSubscriptionMessage) Type() string { return TypeRenewSubscription }

func (m RenewSubscriptionMessage) Validate() error {
	if strings.TrimSpace(m.ResourceID) == "" {
		return fmt.Errorf("command: resource id is required")
	}
	return nil
}

type CancelSubscriptionMessage struct {
	ResourceID string
}

func (CancelSubscriptionMessage) Type() string { return TypeCancelSubscription }

func (m CancelSubscriptionMessage) Validate() error {
	if strings.TrimSpace(m.ResourceID) == "" {
		return fmt.Errorf("command: resource id is required")
	}
	return nil
}

// RenewOwnerMessage re-registers every subscription an owner holds with one
// provider; the renewal sweep enqueues these.
type RenewOwnerMessage struct {
	Owner      core.OwnerRef
	ProviderID string
}

func (RenewOwnerMessage) Type() string { return TypeRenewOwner }

func (m RenewOwnerMessage) Validate() error {
	if err := m.Owner.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(m.ProviderID) == "" {
		return fmt.Errorf("command: provider id is required")
	}
	return nil
}

// CleanupOwnerMessage tears down every credential and subscription for one
// (user, dashboard) pair.
type CleanupOwnerMessage struct {
	Owner core.OwnerRef
}

func (CleanupOwnerMessage) Type() string { return TypeCleanupOwner }

func (m CleanupOwnerMessage) Validate() error {
	return m.Owner.Validate()
}
