package cache

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Cache 键值缓存，用于复用文本的嵌入向量
type Cache interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	// Set ttl为0时使用默认过期时间
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Clear 只清空KeyPrefix命名空间下的键
	Clear(ctx context.Context) error
	Close() error
}

// Config 缓存配置
type Config struct {
	Type            string        // memory 或 redis，为空时使用memory
	KeyPrefix       string        // 命名空间
	RedisAddr       string        // 仅redis
	RedisPassword   string        // 仅redis
	RedisDB         int           // 仅redis
	DefaultTTL      time.Duration // 默认过期时间
	CleanupInterval time.Duration // 过期清理间隔，仅memory
}

// Factory 按配置创建缓存
type Factory func(config Config) (Cache, error)

var registry = map[string]Factory{}

// RegisterCache 注册缓存实现
func RegisterCache(name string, factory Factory) {
	registry[name] = factory
}

// NewCache 按Type创建缓存，未知类型返回错误
func NewCache(config Config) (Cache, error) {
	if config.Type == "" {
		config.Type = "memory"
	}
	factory, ok := registry[config.Type]
	if !ok {
		known := make([]string, 0, len(registry))
		for name := range registry {
			known = append(known, name)
		}
		sort.Strings(known)
		return nil, fmt.Errorf("unknown cache type %q (supported: %s)", config.Type, strings.Join(known, ", "))
	}
	return factory(config)
}

// GenerateCacheKey 用冒号连接各部分
func GenerateCacheKey(prefix string, parts ...string) string {
	return strings.Join(append([]string{prefix}, parts...), ":")
}

func namespaced(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return GenerateCacheKey(prefix, key)
}
