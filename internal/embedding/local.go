package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// LocalClient 基于特征哈希的本地嵌入客户端
// 不依赖外部服务，适合离线调试和命令行工具。同一文本总是得到相同的向量，
// 共享词语越多的文本余弦相似度越高
type LocalClient struct {
	dimension int
}

// NewLocalClient 创建本地嵌入客户端
func NewLocalClient(opts ...Option) (Client, error) {
	config := NewConfig(opts...)
	if config.Dimensions <= 0 {
		return nil, NewEmbeddingError(ErrCodeInvalidRequest, "dimensions must be positive")
	}
	return &LocalClient{dimension: config.Dimensions}, nil
}

// Name 返回模型名称
func (c *LocalClient) Name() string {
	return "local-hash"
}

// Dimension 返回向量维度
func (c *LocalClient) Dimension() int {
	return c.dimension
}

// Embed 生成单条文本的向量
func (c *LocalClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float32, c.dimension)
	for _, token := range tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(token))
		sum := h.Sum32()
		// 最高位决定符号，减少哈希冲突带来的偏差
		sign := float32(1)
		if sum&(1<<31) != 0 {
			sign = -1
		}
		vec[int(sum%uint32(c.dimension))] += sign
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec, nil
}

// EmbedBatch 批量生成向量
func (c *LocalClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := c.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// tokenize 按非字母数字字符切词并转小写
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func init() {
	RegisterClient("local", NewLocalClient)
}
