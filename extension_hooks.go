package pushsync

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-pushsync/core"
	"github.com/goliatone/go-pushsync/webhooks"
)

// ProviderPack is a named bundle of providers a host registers as one unit,
// typically one pack per deployment tier or integration family.
type ProviderPack struct {
	Name      string
	Providers []core.Provider
}

// NormalizerPack is the webhook-side counterpart of a ProviderPack.
type NormalizerPack struct {
	Name        string
	Normalizers []core.WebhookNormalizer
}

// NormalizerRegistrar is satisfied by webhooks.Router.
type NormalizerRegistrar interface {
	RegisterNormalizer(normalizer core.WebhookNormalizer) error
}

var _ NormalizerRegistrar = (*webhooks.Router)(nil)

// ExtensionHooks collects provider and normalizer packs contributed by host
// extensions before the service and router are assembled. Registration order
// across packs is name order, so composition is deterministic.
type ExtensionHooks struct {
	mu sync.RWMutex

	providerPacks   map[string]ProviderPack
	normalizerPacks map[string]NormalizerPack
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		providerPacks:   map[string]ProviderPack{},
		normalizerPacks: map[string]NormalizerPack{},
	}
}

func (h *ExtensionHooks) RegisterProviderPack(pack ProviderPack) error {
	if h == nil {
		return fmt.Errorf("pushsync: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("pushsync: provider pack name is required")
	}
	if len(pack.Providers) == 0 {
		return fmt.Errorf("pushsync: provider pack %q has no providers", name)
	}

	normalized := ProviderPack{
		Name:      name,
		Providers: append([]core.Provider(nil), pack.Providers...),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.providerPacks[name]; exists {
		return fmt.Errorf("pushsync: provider pack %q already registered", name)
	}
	h.providerPacks[name] = normalized
	return nil
}

func (h *ExtensionHooks) RegisterNormalizerPack(pack NormalizerPack) error {
	if h == nil {
		return fmt.Errorf("pushsync: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("pushsync: normalizer pack name is required")
	}
	if len(pack.Normalizers) == 0 {
		return fmt.Errorf("pushsync: normalizer pack %q has no normalizers", name)
	}

	normalized := NormalizerPack{
		Name:        name,
		Normalizers: append([]core.WebhookNormalizer(nil), pack.Normalizers...),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.normalizerPacks[name]; exists {
		return fmt.Errorf("pushsync: normalizer pack %q already registered", name)
	}
	h.normalizerPacks[name] = normalized
	return nil
}

func (h *ExtensionHooks) ApplyProviderPacks(registry core.Registry) error {
	if h == nil {
		return nil
	}
	if registry == nil {
		return fmt.Errorf("pushsync: registry is required")
	}

	for _, pack := range h.ProviderPacks() {
		for _, provider := range pack.Providers {
			if provider == nil {
				return fmt.Errorf("pushsync: provider pack %q contains nil provider", pack.Name)
			}
			if err := registry.Register(provider); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *ExtensionHooks) ApplyNormalizerPacks(registrar NormalizerRegistrar) error {
	if h == nil {
		return nil
	}
	if registrar == nil {
		return fmt.Errorf("pushsync: normalizer registrar is required")
	}

	for _, pack := range h.NormalizerPacks() {
		for _, normalizer := range pack.Normalizers {
			if normalizer == nil {
				return fmt.Errorf("pushsync: normalizer pack %q contains nil normalizer", pack.Name)
			}
			if err := registrar.RegisterNormalizer(normalizer); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *ExtensionHooks) ProviderPacks() []ProviderPack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.providerPacks))
	for name := range h.providerPacks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]ProviderPack, 0, len(names))
	for _, name := range names {
		pack := h.providerPacks[name]
		out = append(out, ProviderPack{
			Name:      pack.Name,
			Providers: append([]core.Provider(nil), pack.Providers...),
		})
	}
	return out
}

func (h *ExtensionHooks) NormalizerPacks() []NormalizerPack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.normalizerPacks))
	for name := range h.normalizerPacks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]NormalizerPack, 0, len(names))
	for _, name := range names {
		pack := h.normalizerPacks[name]
		out = append(out, NormalizerPack{
			Name:        pack.Name,
			Normalizers: append([]core.WebhookNormalizer(nil), pack.Normalizers...),
		})
	}
	return out
}
