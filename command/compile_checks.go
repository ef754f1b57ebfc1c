package command

import (
	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-pushsync/core"
)

var _ LifecycleService = (*core.Service)(nil)

var (
	_ gocmd.Commander[CompleteAuthorizationMessage] = (*CompleteAuthorizationCommand)(nil)
	_ gocmd.Commander[SubscribeMessage]             = (*SubscribeCommand)(nil)
	_ gocmd.Commander[RenewSubscriptionMessage]     = (*RenewSubscriptionCommand)(nil)
	_ gocmd.Commander[CancelSubscriptionMessage]    = (*CancelSubscriptionCommand)(nil)
	_ gocmd.Commander[RenewOwnerMessage]            = (*RenewOwnerCommand)(nil)
	_ gocmd.Commander[CleanupOwnerMessage]          = (*CleanupOwnerCommand)(nil)
)
