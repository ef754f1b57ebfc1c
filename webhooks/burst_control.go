package webhooks

import (
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-pushsync/core"
)

// BurstDecision reports whether one normalized change event should be routed
// or coalesced into a delivery that already went out moments ago.
type BurstDecision struct {
	Allow    bool
	Metadata map[string]any
}

// BurstController suppresses notification storms. Providers fire one message
// per mutation; a bulk edit on a watched calendar can produce dozens of
// identical change signals inside a second.
type BurstController interface {
	Allow(providerID string, event core.ChangeEvent) BurstDecision
}

type BurstOptions struct {
	Window     time.Duration
	MaxEntries int
	Now        func() time.Time
}

type CoalescingBurstController struct {
	window     time.Duration
	maxEntries int
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]time.Time
}

func NewCoalescingBurstController(opts BurstOptions) *CoalescingBurstController {
	window := opts.Window
	if window <= 0 {
		window = 2 * time.Second
	}
	maxEntries := opts.MaxEntries
	if maxEntries <= 0 {
		maxEntries = 4096
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &CoalescingBurstController{
		window:     window,
		maxEntries: maxEntries,
		now:        now,
		entries:    map[string]time.Time{},
	}
}

func (c *CoalescingBurstController) Allow(providerID string, event core.ChangeEvent) BurstDecision {
	if c == nil {
		return BurstDecision{Allow: true}
	}
	key := burstKey(providerID, event)
	if key == "" {
		return BurstDecision{Allow: true}
	}

	now := c.now().UTC()
	c.mu.Lock()
	defer c.mu.Unlock()

	lastSeen, exists := c.entries[key]
	c.entries[key] = now
	c.cleanup(now)
	if !exists || now.Sub(lastSeen) >= c.window {
		return BurstDecision{Allow: true}
	}

	return BurstDecision{
		Allow: false,
		Metadata: map[string]any{
			"coalesced":       true,
			"burst_key":       key,
			"burst_window_ms": c.window.Milliseconds(),
		},
	}
}

func (c *CoalescingBurstController) cleanup(now time.Time) {
	if len(c.entries) <= c.maxEntries {
		for key, seenAt := range c.entries {
			if now.Sub(seenAt) > c.window*4 {
				delete(c.entries, key)
			}
		}
		return
	}
	for key, seenAt := range c.entries {
		if now.Sub(seenAt) > c.window {
			delete(c.entries, key)
		}
		if len(c.entries) <= c.maxEntries {
			break
		}
	}
}

func burstKey(providerID string, event core.ChangeEvent) string {
	providerID = strings.TrimSpace(strings.ToLower(providerID))
	if providerID == "" {
		return ""
	}
	for _, value := range []string{event.ResourceID, event.ChannelID} {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return providerID + ":" + strings.ToLower(trimmed) + ":" + event.EventName
		}
	}
	return ""
}

var _ BurstController = (*CoalescingBurstController)(nil)
