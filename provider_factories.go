package pushsync

import (
	"github.com/goliatone/go-pushsync/core"
	"github.com/goliatone/go-pushsync/providers"
	"github.com/goliatone/go-pushsync/providers/google"
	"github.com/goliatone/go-pushsync/providers/msgraph"
	"github.com/goliatone/go-pushsync/providers/smartthings"
)

func GoogleProvider(descriptor core.ProviderDescriptor, opts ...providers.ClientOption) (core.Provider, error) {
	return google.New(descriptor, opts...)
}

func MicrosoftGraphProvider(descriptor core.ProviderDescriptor, opts ...providers.ClientOption) (core.Provider, error) {
	return msgraph.New(descriptor, opts...)
}

func SmartThingsProvider(descriptor core.ProviderDescriptor, opts ...providers.ClientOption) (core.Provider, error) {
	return smartthings.New(descriptor, opts...)
}

// DefaultNormalizers returns one webhook normalizer per built-in provider.
func DefaultNormalizers() []core.WebhookNormalizer {
	return []core.WebhookNormalizer{
		google.NewNormalizer(),
		msgraph.NewNormalizer(),
		smartthings.NewNormalizer(),
	}
}
