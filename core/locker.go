package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MemoryKeyedLocker is a process-local advisory lock keyed by
// (user, dashboard, provider). It collapses concurrent refresh attempts for
// the same credential inside one process; a multi-instance deployment wanting
// the same guarantee must externalize the lock.
type MemoryKeyedLocker struct {
	mu    sync.Mutex
	locks map[string]time.Time
	nowFn func() time.Time
}

func NewMemoryKeyedLocker() *MemoryKeyedLocker {
	return &MemoryKeyedLocker{
		locks: make(map[string]time.Time),
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

func RefreshLockKey(owner OwnerRef, providerID string) string {
	return strings.Join([]string{
		strings.TrimSpace(owner.UserID),
		strings.TrimSpace(owner.DashboardID),
		strings.TrimSpace(providerID),
	}, "::")
}

func (l *MemoryKeyedLocker) Acquire(_ context.Context, key string, ttl time.Duration) (LockHandle, error) {
	if l == nil {
		return nil, fmt.Errorf("core: keyed locker is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("core: lock key is required")
	}
	if ttl <= 0 {
		ttl = DefaultRefreshLockTTL
	}

	now := l.nowFn()
	l.mu.Lock()
	defer l.mu.Unlock()

	if until, ok := l.locks[key]; ok && now.Before(until) {
		return nil, fmt.Errorf("core: refresh lock already held for %q", key)
	}
	l.locks[key] = now.Add(ttl)
	return &memoryLockHandle{locker: l, key: key}, nil
}

type memoryLockHandle struct {
	locker *MemoryKeyedLocker
	key    string
	once   sync.Once
}

func (h *memoryLockHandle) Unlock(_ context.Context) error {
	if h == nil || h.locker == nil {
		return nil
	}
	h.once.Do(func() {
		h.locker.mu.Lock()
		delete(h.locker.locks, h.key)
		h.locker.mu.Unlock()
	})
	return nil
}
