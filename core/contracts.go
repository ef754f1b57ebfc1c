package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// SecretCipher is the authenticated encrypt/decrypt primitive credentials are
// stored behind. Implementations must produce a different ciphertext for every
// call, even for identical plaintext.
type SecretCipher interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

type SaveCredentialInput struct {
	Owner          OwnerRef
	ProviderID     string
	AccessSecret   string
	RefreshSecret  string
	ExpiresAt      time.Time
	InstallationID string
}

type RotateCredentialInput struct {
	ID            string
	AccessSecret  string
	ExpiresAt     time.Time
	RefreshSecret string // empty keeps the current refresh secret
}

// CredentialStore persists credentials encrypted at rest. Reads return
// decrypted secrets; a decryption failure is fatal for the record and
// surfaces as an encryption error, never as a silently empty secret.
type CredentialStore interface {
	Save(ctx context.Context, in SaveCredentialInput) (Credential, error)
	Find(ctx context.Context, owner OwnerRef, providerID string) (Credential, error)
	FindAllForDashboard(ctx context.Context, owner OwnerRef) ([]Credential, error)
	Rotate(ctx context.Context, in RotateCredentialInput) (Credential, error)
	// Delete is idempotent: deleting an absent credential is not an error.
	Delete(ctx context.Context, owner OwnerRef, providerID string) error
}

type CreateSubscriptionInput struct {
	ResourceID string
	Owner      OwnerRef
	ProviderID string
	TargetID   string
	ChannelID  string
	ExpiresAt  time.Time
}

type UpdateSubscriptionInput struct {
	ExpiresAt *time.Time
	ChannelID *string
}

// SubscriptionStore is a plain keyed store. It enforces no lifecycle
// invariants itself; the coordinator owns the at-most-one-active rule.
type SubscriptionStore interface {
	Create(ctx context.Context, in CreateSubscriptionInput) (Subscription, error)
	FindByResourceID(ctx context.Context, resourceID string) (Subscription, error)
	FindByOwner(ctx context.Context, owner OwnerRef) ([]Subscription, error)
	FindExpiringWithin(ctx context.Context, window time.Duration) ([]Subscription, error)
	// DeleteByResourceID is idempotent.
	DeleteByResourceID(ctx context.Context, resourceID string) error
	// DeleteForOwner removes every subscription for the owner; a non-empty
	// providerID narrows the purge to that provider. Returns rows removed.
	DeleteForOwner(ctx context.Context, owner OwnerRef, providerID string) (int, error)
	Update(ctx context.Context, resourceID string, in UpdateSubscriptionInput) (Subscription, error)
}

type ExchangeCodeRequest struct {
	Code        string
	RedirectURI string
}

type RefreshTokenRequest struct {
	RefreshSecret  string
	InstallationID string
}

type SubscribeCall struct {
	AccessSecret     string
	TargetID         string
	CallbackURL      string
	CorrelationToken string
	InstallationID   string
	Lifetime         time.Duration
}

type CancelCall struct {
	AccessSecret   string
	ResourceID     string
	ChannelID      string
	TargetID       string
	InstallationID string
}

type FetchResourceCall struct {
	AccessSecret   string
	TargetID       string
	ResourceID     string
	InstallationID string
}

// Provider is the single capability surface every external service variant
// implements: token exchange/refresh plus push-subscription lifecycle.
type Provider interface {
	ID() string
	Descriptor() ProviderDescriptor

	ExchangeCode(ctx context.Context, req ExchangeCodeRequest) (ProviderToken, error)
	Refresh(ctx context.Context, req RefreshTokenRequest) (ProviderToken, error)
	Subscribe(ctx context.Context, call SubscribeCall) (ProviderSubscription, error)
	Cancel(ctx context.Context, call CancelCall) error
	FetchResource(ctx context.Context, call FetchResourceCall) (map[string]any, error)
}

type Registry interface {
	Register(provider Provider) error
	Get(providerID string) (Provider, bool)
	List() []Provider
}

// InboundRequest is a provider notification as received on the wire, already
// detached from any particular HTTP framework.
type InboundRequest struct {
	ProviderID string
	Headers    map[string]string
	Query      map[string]string
	Body       []byte
}

// InboundResult is what the webhook surface must answer with. Providers
// disable subscriptions that are not acknowledged inside their window, so
// handlers return an acceptable result even when internal processing failed.
type InboundResult struct {
	Accepted    bool
	StatusCode  int
	Body        []byte
	ContentType string
	Metadata    map[string]any
}

type NotificationKind string

const (
	// NotificationKindEvent carries one or more resource change events.
	NotificationKindEvent NotificationKind = "event"
	// NotificationKindHandshake must be answered synchronously with the
	// normalizer-provided response body; no routing happens.
	NotificationKindHandshake NotificationKind = "handshake"
)

type ChangeEvent struct {
	ResourceID       string
	ChannelID        string
	CorrelationToken string
	EventName        string
	Payload          map[string]any
}

type Notification struct {
	Kind     NotificationKind
	Response InboundResult // populated for handshake kinds
	Events   []ChangeEvent
}

// WebhookNormalizer translates one provider's wire shape into the neutral
// Notification form the router consumes.
type WebhookNormalizer interface {
	ProviderID() string
	Normalize(req InboundRequest) (Notification, error)
}

// EventRouter delivers an event to every live connection bound to the tenant.
// The DashboardAll sentinel fans out to every dashboard of the user. Returns
// the number of connections reached.
type EventRouter interface {
	Route(ctx context.Context, userID string, dashboardID string, eventName string, payload map[string]any) int
}

type LockHandle interface {
	Unlock(ctx context.Context) error
}

// KeyedLocker serializes refresh attempts per (user, dashboard, provider).
// Losing the race is a liveness cost, not a correctness defect; callers that
// cannot acquire the lock fall back to the stored credential.
type KeyedLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (LockHandle, error)
}

type JobExecutionMessage struct {
	JobID          string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}
