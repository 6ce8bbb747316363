package cache

import (
	"context"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const (
	defaultMemoryTTL     = 24 * time.Hour
	defaultCleanupPeriod = 10 * time.Minute
)

// MemoryCache 进程内缓存，基于go-cache
type MemoryCache struct {
	items  *gocache.Cache
	prefix string
}

// NewMemoryCache 创建内存缓存
func NewMemoryCache(config Config) (Cache, error) {
	ttl, cleanup := config.DefaultTTL, config.CleanupInterval
	if ttl <= 0 {
		ttl = defaultMemoryTTL
	}
	if cleanup <= 0 {
		cleanup = defaultCleanupPeriod
	}
	return &MemoryCache{items: gocache.New(ttl, cleanup), prefix: config.KeyPrefix}, nil
}

// Get 返回值的副本
func (m *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	raw, ok := m.items.Get(namespaced(m.prefix, key))
	if !ok {
		return nil, false, nil
	}
	data, ok := raw.([]byte)
	if !ok {
		return nil, false, nil
	}
	return clone(data), true, nil
}

func (m *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	m.items.Set(namespaced(m.prefix, key), clone(value), ttl)
	return nil
}

func (m *MemoryCache) Delete(_ context.Context, key string) error {
	m.items.Delete(namespaced(m.prefix, key))
	return nil
}

func (m *MemoryCache) Clear(_ context.Context) error {
	if m.prefix == "" {
		m.items.Flush()
		return nil
	}
	ns := m.prefix + ":"
	for key := range m.items.Items() {
		if strings.HasPrefix(key, ns) {
			m.items.Delete(key)
		}
	}
	return nil
}

// Len 当前未过期的条目数
func (m *MemoryCache) Len() int {
	return m.items.ItemCount()
}

func (m *MemoryCache) Close() error {
	return nil
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}

func init() {
	RegisterCache("memory", NewMemoryCache)
}
