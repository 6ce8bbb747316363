package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/fyerfyer/study-buddy/internal/cache"
	"github.com/sirupsen/logrus"
)

// CachedClient 带缓存的嵌入客户端
// 相同模型下相同文本的向量只计算一次
type CachedClient struct {
	client Client
	cache  cache.Cache
	ttl    time.Duration
	logger *logrus.Logger
}

// NewCachedClient 用缓存包装嵌入客户端
func NewCachedClient(client Client, c cache.Cache, ttl time.Duration, logger *logrus.Logger) *CachedClient {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &CachedClient{client: client, cache: c, ttl: ttl, logger: logger}
}

// Name 返回底层模型名称
func (c *CachedClient) Name() string {
	return c.client.Name()
}

// Dimension 返回底层向量维度
func (c *CachedClient) Dimension() int {
	return c.client.Dimension()
}

// Embed 优先从缓存读取单条文本的向量
func (c *CachedClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch 只对未命中缓存的文本调用底层客户端
func (c *CachedClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))

	var missing []string
	var missingIdx []int
	for i, text := range texts {
		if vec, ok := c.lookup(ctx, text); ok {
			results[i] = vec
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) == 0 {
		return results, nil
	}

	vectors, err := c.client.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}

	for j, vec := range vectors {
		results[missingIdx[j]] = vec
		c.store(ctx, missing[j], vec)
	}

	c.logger.WithFields(logrus.Fields{
		"model": c.client.Name(),
		"hits":  len(texts) - len(missing),
		"miss":  len(missing),
	}).Debug("Embedding cache lookup")

	return results, nil
}

func (c *CachedClient) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return cache.GenerateCacheKey("embedding", c.client.Name(), hex.EncodeToString(sum[:]))
}

// lookup 读取缓存，缓存故障只记日志，不影响主流程
func (c *CachedClient) lookup(ctx context.Context, text string) ([]float32, bool) {
	data, found, err := c.cache.Get(ctx, c.key(text))
	if err != nil {
		c.logger.WithError(err).Warn("Failed to read embedding cache")
		return nil, false
	}
	if !found {
		return nil, false
	}

	var vec []float32
	if err := json.Unmarshal(data, &vec); err != nil {
		return nil, false
	}
	return vec, true
}

func (c *CachedClient) store(ctx context.Context, text string, vec []float32) {
	data, err := json.Marshal(vec)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, c.key(text), data, c.ttl); err != nil {
		c.logger.WithError(err).Warn("Failed to write embedding cache")
	}
}
