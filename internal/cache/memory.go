package cache

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
)

type entry struct {
	value     string
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Memory is a size-bounded LRU. The LRU evicts by defaultTtl, which caps
// every entry; entries with a shorter TTL are treated as absent once they
// expire. Use CoverTtls to size defaultTtl for the TTLs callers will ask for.
type Memory struct {
	mu         sync.Mutex
	lru        *expirable.LRU[string, entry]
	defaultTtl time.Duration
	now        func() time.Time
	capped     map[time.Duration]bool
}

var _ Cache = (*Memory)(nil)

func NewMemory(size int, defaultTtl time.Duration) *Memory {
	if size <= 0 {
		size = 1024
	}
	if defaultTtl <= 0 {
		defaultTtl = time.Hour
	}
	return &Memory{
		lru:        expirable.NewLRU[string, entry](size, nil, defaultTtl),
		defaultTtl: defaultTtl,
		now:        time.Now,
		capped:     make(map[time.Duration]bool),
	}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.lookup(key)
	return e.value, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lru.Add(key, m.entry(value, ttl))
	return nil
}

func (m *Memory) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.lookup(key); ok {
		return false, nil
	}
	m.lru.Add(key, m.entry(value, ttl))
	return true, nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lru.Remove(key)
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lru.Purge()
	return nil
}

// lookup must be called with mu held.
func (m *Memory) lookup(key string) (entry, bool) {
	e, ok := m.lru.Get(key)
	if !ok {
		return entry{}, false
	}
	if e.expired(m.now()) {
		m.lru.Remove(key)
		return entry{}, false
	}
	return e, true
}

// entry must be called with mu held.
func (m *Memory) entry(value string, ttl time.Duration) entry {
	if ttl > m.defaultTtl {
		if !m.capped[ttl] {
			m.capped[ttl] = true
			zap.L().Warn("Cache TTL exceeds the memory cache default, capping",
				zap.Duration("ttl", ttl),
				zap.Duration("default_ttl", m.defaultTtl))
		}
		ttl = m.defaultTtl
	}
	if ttl <= 0 {
		ttl = m.defaultTtl
	}
	return entry{value: value, expiresAt: m.now().Add(ttl)}
}
