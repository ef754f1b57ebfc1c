package pushsync

import "github.com/goliatone/go-pushsync/core"

type Config = core.Config
type RenewalConfig = core.RenewalConfig
type WebhookConfig = core.WebhookConfig

type Option = core.Option

type Service = core.Service

type OwnerRef = core.OwnerRef
type Credential = core.Credential
type Subscription = core.Subscription
type ProviderDescriptor = core.ProviderDescriptor
type Provider = core.Provider
type Registry = core.Registry

type CredentialStore = core.CredentialStore
type SubscriptionStore = core.SubscriptionStore
type SecretCipher = core.SecretCipher
type KeyedLocker = core.KeyedLocker
type EventRouter = core.EventRouter
type WebhookNormalizer = core.WebhookNormalizer
type JobEnqueuer = core.JobEnqueuer

type CompleteAuthorizationRequest = core.CompleteAuthorizationRequest
type SubscribeRequest = core.SubscribeRequest
type SweepSummary = core.SweepSummary
type CleanupSummary = core.CleanupSummary

type InboundRequest = core.InboundRequest
type InboundResult = core.InboundResult
type ChangeEvent = core.ChangeEvent
type Notification = core.Notification

var (
	WithLogger            = core.WithLogger
	WithLoggerProvider    = core.WithLoggerProvider
	WithErrorFactory      = core.WithErrorFactory
	WithErrorMapper       = core.WithErrorMapper
	WithConfigProvider    = core.WithConfigProvider
	WithOptionsResolver   = core.WithOptionsResolver
	WithRegistry          = core.WithRegistry
	WithCredentialStore   = core.WithCredentialStore
	WithSubscriptionStore = core.WithSubscriptionStore
	WithRefreshLocker     = core.WithRefreshLocker
	WithEventRouter       = core.WithEventRouter
	WithJobEnqueuer       = core.WithJobEnqueuer
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}
