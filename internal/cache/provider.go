// Package cache holds the byte-oriented cache used for storage query results.
package cache

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// Provider defines the minimal cache operations needed by the service.
type Provider interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Close() error
}

// ErrCacheMiss signals that a cache key was not found.
var ErrCacheMiss = errors.New("cache miss")

// NoopProvider implements Provider but never stores data.
type NoopProvider struct{}

// Get always returns ErrCacheMiss.
func (NoopProvider) Get(context.Context, string) ([]byte, error) {
	return nil, ErrCacheMiss
}

// Set discards the value and returns nil.
func (NoopProvider) Set(context.Context, string, []byte, time.Duration) error {
	return nil
}

// Del is a no-op for the noop cache.
func (NoopProvider) Del(context.Context, string) error { return nil }

// Close is a no-op.
func (NoopProvider) Close() error { return nil }

// DefaultMemoryMaxEntries caps NewMemoryProvider.
const DefaultMemoryMaxEntries = 4096

// memorySweepInterval is the minimum gap between expiry sweeps run from Set.
const memorySweepInterval = time.Minute

// MemoryProvider is an in-process Provider with per-key expiry, used when no
// Valkey address is configured. Expired keys are swept from Set at most once
// per memorySweepInterval; past maxEntries the oldest writes are evicted.
type MemoryProvider struct {
	mu         sync.Mutex
	data       map[string]memoryItem
	now        func() time.Time
	maxEntries int
	seq        uint64
	lastSweep  time.Time
}

type memoryItem struct {
	value     []byte
	expiresAt time.Time
	seq       uint64
}

// NewMemoryProvider creates an empty in-memory cache holding at most
// DefaultMemoryMaxEntries keys.
func NewMemoryProvider() *MemoryProvider {
	return NewMemoryProviderWithLimit(DefaultMemoryMaxEntries)
}

// NewMemoryProviderWithLimit creates an empty in-memory cache. A
// non-positive maxEntries disables the size cap.
func NewMemoryProviderWithLimit(maxEntries int) *MemoryProvider {
	return &MemoryProvider{data: make(map[string]memoryItem), now: time.Now, maxEntries: maxEntries}
}

// Get returns a copy of the stored value unless it has expired.
func (m *MemoryProvider) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.data[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	if it.expired(m.now()) {
		delete(m.data, key)
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), it.value...), nil
}

// Set stores a copy of value; a non-positive ttl never expires.
func (m *MemoryProvider) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var expires time.Time
	if ttl > 0 {
		expires = now.Add(ttl)
	}
	m.seq++
	m.data[key] = memoryItem{value: append([]byte(nil), value...), expiresAt: expires, seq: m.seq}

	overCap := m.maxEntries > 0 && len(m.data) > m.maxEntries
	if overCap || now.Sub(m.lastSweep) >= memorySweepInterval {
		m.sweep(now)
	}
	if m.maxEntries > 0 && len(m.data) > m.maxEntries {
		m.evictOldest(len(m.data) - m.maxEntries)
	}
	return nil
}

// Len reports the number of stored keys, expired or not.
func (m *MemoryProvider) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

func (m *MemoryProvider) sweep(now time.Time) {
	for key, it := range m.data {
		if it.expired(now) {
			delete(m.data, key)
		}
	}
	m.lastSweep = now
}

func (m *MemoryProvider) evictOldest(n int) {
	victims := make([]string, 0, len(m.data))
	for key := range m.data {
		victims = append(victims, key)
	}
	sort.Slice(victims, func(i, j int) bool { return m.data[victims[i]].seq < m.data[victims[j]].seq })
	for _, key := range victims[:n] {
		delete(m.data, key)
	}
}

func (it memoryItem) expired(now time.Time) bool {
	return !it.expiresAt.IsZero() && now.After(it.expiresAt)
}

// Del removes an entry.
func (m *MemoryProvider) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Close drops all entries.
func (m *MemoryProvider) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string]memoryItem)
	return nil
}
