package embedding

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Client 把文本转换为向量
type Client interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch 结果顺序与输入一致
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Name() string
	Dimension() int
}

// Config 嵌入客户端配置
type Config struct {
	APIKey     string        // API密钥
	BaseURL    string        // API基础URL
	Model      string        // 模型名称
	Timeout    time.Duration // 请求超时时间
	MaxRetries int           // 最大重试次数
	RetryDelay time.Duration // 首次重试等待，之后翻倍
	Dimensions int           // 向量维度
	BatchSize  int           // 单次请求的最大文本数
}

// Option 修改Config的选项函数
type Option func(*Config)

func WithAPIKey(apiKey string) Option { return func(c *Config) { c.APIKey = apiKey } }
func WithBaseURL(url string) Option { return func(c *Config) { c.BaseURL = url } }
func WithModel(model string) Option { return func(c *Config) { c.Model = model } }
func WithTimeout(timeout time.Duration) Option { return func(c *Config) { c.Timeout = timeout } }
func WithMaxRetries(retries int) Option { return func(c *Config) { c.MaxRetries = retries } }
func WithRetryDelay(delay time.Duration) Option { return func(c *Config) { c.RetryDelay = delay } }
func WithDimensions(dimensions int) Option { return func(c *Config) { c.Dimensions = dimensions } }
func WithBatchSize(size int) Option { return func(c *Config) { c.BatchSize = size } }

// NewConfig 在默认配置上依次应用选项
func NewConfig(opts ...Option) *Config {
	cfg := &Config{
		BaseURL:    "https://api.openai.com/v1",
		Model:      "text-embedding-3-small",
		Timeout:    30 * time.Second,
		MaxRetries: 3,
		RetryDelay: time.Second,
		Dimensions: 1536,
		BatchSize:  100,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return NewConfig()
}

// Factory 按选项构造客户端
type Factory func(opts ...Option) (Client, error)

var (
	factoriesMu sync.RWMutex
	factories   = map[string]Factory{}
)

// RegisterClient 注册提供方，同名注册会覆盖
func RegisterClient(name string, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = factory
}

// Providers 返回已注册的提供方名称
func Providers() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewClient 按提供方名称创建客户端
func NewClient(name string, opts ...Option) (Client, error) {
	factoriesMu.RLock()
	factory, ok := factories[name]
	factoriesMu.RUnlock()
	if !ok {
		return nil, NewEmbeddingError(ErrCodeInvalidRequest,
			fmt.Sprintf("unknown embedding provider %q, available: %v", name, Providers()))
	}
	return factory(opts...)
}
