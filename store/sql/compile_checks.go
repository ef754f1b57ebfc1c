package sqlstore

import "github.com/goliatone/go-pushsync/core"

var (
	_ core.CredentialStore   = (*CredentialStore)(nil)
	_ core.SubscriptionStore = (*SubscriptionStore)(nil)
	_ core.SubscriptionStore = (*CachedSubscriptionStore)(nil)
)
