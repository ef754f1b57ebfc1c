package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-pushsync/core"
)

// LifecycleService is the mutating surface the commands drive; *core.Service
// satisfies it.
type LifecycleService interface {
	CompleteAuthorization(ctx context.Context, req core.CompleteAuthorizationRequest) (core.Credential, error)
	Subscribe(ctx context.Context, req core.SubscribeRequest) (core.Subscription, error)
	RenewSubscription(ctx context.Context, resourceID string) (core.Subscription, error)
	Unsubscribe(ctx context.Context, resourceID string) error
	RenewOwnerSubscriptions(ctx context.Context, owner core.OwnerRef, providerID string) error
	CleanupOwner(ctx context.Context, owner core.OwnerRef) (core.CleanupSummary, error)
}

type CompleteAuthorizationCommand struct {
	service LifecycleService
}

func NewCompleteAuthorizationCommand(service LifecycleService) *CompleteAuthorizationCommand {
	return &CompleteAuthorizationCommand{service: service}
}

func (c *CompleteAuthorizationCommand) Execute(ctx context.Context, msg CompleteAuthorizationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: authorization service is required")
	}
	if err := msg.Validate(); err != nil {
		return commandWrapValidation(err, "command: complete authorization rejected")
	}
	out, err := c.service.CompleteAuthorization(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type SubscribeCommand struct {
	service LifecycleService
}

func NewSubscribeCommand(service LifecycleService) *SubscribeCommand {
	return &SubscribeCommand{service: service}
}

func (c *SubscribeCommand) Execute(ctx context.Context, msg SubscribeMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: subscribe service is required")
	}
	if err := msg.Validate(); err != nil {
		return commandWrapValidation(err, "command: subscribe rejected")
	}
	out, err := c.service.Subscribe(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RenewSubscriptionCommand struct {
	service LifecycleService
}

func NewRenewSubscriptionCommand(service LifecycleService) *RenewSubscriptionCommand {
	return &RenewSubscriptionCommand{service: service}
}

func (c *RenewSubscriptionCommand) Execute(ctx context.Context, msg RenewSubscriptionMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: renew service is required")
	}
	if err := msg.Validate(); err != nil {
		return commandWrapValidation(err, "command: renew rejected")
	}
	out, err := c.service.RenewSubscription(ctx, msg.ResourceID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CancelSubscriptionCommand struct {
	service LifecycleService
}

func NewCancelSubscriptionCommand(service LifecycleService) *CancelSubscriptionCommand {
	return &CancelSubscriptionCommand{service: service}
}

func (c *CancelSubscriptionCommand) Execute(ctx context.Context, msg CancelSubscriptionMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: cancel service is required")
	}
	if err := msg.Validate(); err != nil {
		return commandWrapValidation(err, "command: cancel rejected")
	}
	return c.service.Unsubscribe(ctx, msg.ResourceID)
}

type RenewOwnerCommand struct {
	service LifecycleService
}

func NewRenewOwnerCommand(service LifecycleService) *RenewOwnerCommand {
	return &RenewOwnerCommand{service: service}
}

func (c *RenewOwnerCommand) Execute(ctx context.Context, msg RenewOwnerMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: owner renew service is required")
	}
	if err := msg.Validate(); err != nil {
		return commandWrapValidation(err, "command: owner renew rejected")
	}
	return c.service.RenewOwnerSubscriptions(ctx, msg.Owner, msg.ProviderID)
}

type CleanupOwnerCommand struct {
	service LifecycleService
}

func NewCleanupOwnerCommand(service LifecycleService) *CleanupOwnerCommand {
	return &CleanupOwnerCommand{service: service}
}

func (c *CleanupOwnerCommand) Execute(ctx context.Context, msg CleanupOwnerMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: cleanup service is required")
	}
	if err := msg.Validate(); err != nil {
		return commandWrapValidation(err, "command: cleanup rejected")
	}
	out, err := c.service.CleanupOwner(ctx, msg.Owner)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
