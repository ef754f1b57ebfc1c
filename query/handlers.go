package query

import (
	"context"
	"time"

	"github.com/goliatone/go-pushsync/core"
)

// CredentialReader is the read-only slice of the lifecycle service the
// credential query needs; *core.Service satisfies it.
type CredentialReader interface {
	Credential(ctx context.Context, owner core.OwnerRef, providerID string) (core.Credential, error)
}

// SubscriptionReader is the read-only slice of the subscription store the
// subscription queries need.
type SubscriptionReader interface {
	FindByResourceID(ctx context.Context, resourceID string) (core.Subscription, error)
	FindByOwner(ctx context.Context, owner core.OwnerRef) ([]core.Subscription, error)
	FindExpiringWithin(ctx context.Context, window time.Duration) ([]core.Subscription, error)
}

type GetCredentialQuery struct {
	reader CredentialReader
}

func NewGetCredentialQuery(reader CredentialReader) *GetCredentialQuery {
	return &GetCredentialQuery{reader: reader}
}

func (q *GetCredentialQuery) Query(ctx context.Context, msg GetCredentialMessage) (core.Credential, error) {
	if q == nil || q.reader == nil {
		return core.Credential{}, queryDependencyError("query: credential reader is required")
	}
	if err := msg.Validate(); err != nil {
		return core.Credential{}, queryWrapValidation(err, "query: invalid credential lookup")
	}
	return q.reader.Credential(ctx, msg.Owner, msg.ProviderID)
}

type GetSubscriptionQuery struct {
	reader SubscriptionReader
}

func NewGetSubscriptionQuery(reader SubscriptionReader) *GetSubscriptionQuery {
	return &GetSubscriptionQuery{reader: reader}
}

func (q *GetSubscriptionQuery) Query(ctx context.Context, msg GetSubscriptionMessage) (core.Subscription, error) {
	if q == nil || q.reader == nil {
		return core.Subscription{}, queryDependencyError("query: subscription reader is required")
	}
	if err := msg.Validate(); err != nil {
		return core.Subscription{}, queryWrapValidation(err, "query: invalid subscription lookup")
	}
	return q.reader.FindByResourceID(ctx, msg.ResourceID)
}

type ListOwnerSubscriptionsQuery struct {
	reader SubscriptionReader
}

func NewListOwnerSubscriptionsQuery(reader SubscriptionReader) *ListOwnerSubscriptionsQuery {
	return &ListOwnerSubscriptionsQuery{reader: reader}
}

func (q *ListOwnerSubscriptionsQuery) Query(ctx context.Context, msg ListOwnerSubscriptionsMessage) ([]core.Subscription, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: subscription reader is required")
	}
	if err := msg.Validate(); err != nil {
		return nil, queryWrapValidation(err, "query: invalid owner listing")
	}
	return q.reader.FindByOwner(ctx, msg.Owner.Normalize())
}

type ListExpiringSubscriptionsQuery struct {
	reader SubscriptionReader
}

func NewListExpiringSubscriptionsQuery(reader SubscriptionReader) *ListExpiringSubscriptionsQuery {
	return &ListExpiringSubscriptionsQuery{reader: reader}
}

func (q *ListExpiringSubscriptionsQuery) Query(ctx context.Context, msg ListExpiringSubscriptionsMessage) ([]core.Subscription, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: subscription reader is required")
	}
	if err := msg.Validate(); err != nil {
		return nil, queryWrapValidation(err, "query: invalid expiry window")
	}
	return q.reader.FindExpiringWithin(ctx, msg.Window)
}
