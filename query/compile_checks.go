package query

import (
	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-pushsync/core"
)

var (
	_ CredentialReader = (*core.Service)(nil)

	_ gocmd.Querier[GetCredentialMessage, core.Credential]                 = (*GetCredentialQuery)(nil)
	_ gocmd.Querier[GetSubscriptionMessage, core.Subscription]             = (*GetSubscriptionQuery)(nil)
	_ gocmd.Querier[ListOwnerSubscriptionsMessage, []core.Subscription]    = (*ListOwnerSubscriptionsQuery)(nil)
	_ gocmd.Querier[ListExpiringSubscriptionsMessage, []core.Subscription] = (*ListExpiringSubscriptionsQuery)(nil)
)
