package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAIClient OpenAI嵌入向量客户端
type OpenAIClient struct {
	client *openai.Client // OpenAI API客户端
	config Config         // 客户端配置
}

// NewOpenAIClient 创建一个新的OpenAI嵌入客户端
func NewOpenAIClient(opts ...Option) (Client, error) {
	config := NewConfig(opts...)

	// 检查必要配置
	if config.APIKey == "" {
		return nil, ErrInvalidAPIKey
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultConfig().BatchSize
	}

	// 创建OpenAI客户端配置
	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(config.BaseURL, "/")
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientConfig),
		config: *config,
	}, nil
}

// Name 返回模型名称
func (c *OpenAIClient) Name() string {
	return c.config.Model
}

// Dimension 返回向量维度
func (c *OpenAIClient) Dimension() int {
	return c.config.Dimensions
}

// Embed 对单个文本生成嵌入向量
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch 对多个文本生成嵌入向量
func (c *OpenAIClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if len(texts) > c.config.BatchSize {
		return nil, ErrBatchTooLarge
	}
	for _, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, ErrEmptyText
		}
	}

	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(c.config.Model),
	}
	// 只有text-embedding-3系列支持自定义维度
	if strings.HasPrefix(c.config.Model, "text-embedding-3") && c.config.Dimensions > 0 {
		req.Dimensions = c.config.Dimensions
	}

	var resp openai.EmbeddingResponse
	err := c.withRetry(ctx, func(ctx context.Context) error {
		var err error
		resp, err = c.client.CreateEmbeddings(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Data) != len(texts) {
		return nil, NewEmbeddingError(ErrCodeServerError,
			fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(resp.Data)))
	}

	// 按返回的index排序，保证与输入顺序一致
	sort.Slice(resp.Data, func(i, j int) bool {
		return resp.Data[i].Index < resp.Data[j].Index
	})
	vectors := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		vectors[i] = data.Embedding
	}
	return vectors, nil
}

// withRetry 对限流和服务端错误进行指数退避重试
func (c *OpenAIClient) withRetry(ctx context.Context, call func(ctx context.Context) error) error {
	delay := c.config.RetryDelay
	if delay <= 0 {
		delay = time.Second
	}

	for attempt := 0; ; attempt++ {
		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if c.config.Timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		}
		err := call(callCtx)
		cancel()
		if err == nil {
			return nil
		}

		embedErr := classifyError(err)
		if !embedErr.Retryable() || attempt >= c.config.MaxRetries {
			if embedErr.Code == ErrCodeRateLimited {
				return ErrRateLimited
			}
			return embedErr
		}

		select {
		case <-ctx.Done():
			return NewEmbeddingError(ErrCodeTimeout, ctx.Err().Error())
		case <-time.After(delay << attempt):
		}
	}
}

// classifyError 把OpenAI SDK返回的错误转换为EmbeddingError
func classifyError(err error) EmbeddingError {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return NewEmbeddingError(ErrCodeInvalidAPIKey, err.Error())
	case status == http.StatusTooManyRequests:
		return NewEmbeddingError(ErrCodeRateLimited, err.Error())
	case status >= http.StatusInternalServerError:
		return NewEmbeddingError(ErrCodeServerError, err.Error())
	case status >= http.StatusBadRequest:
		return NewEmbeddingError(ErrCodeInvalidRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return NewEmbeddingError(ErrCodeTimeout, err.Error())
	default:
		return NewEmbeddingError(ErrCodeNetworkError, err.Error())
	}
}

// 在包初始化时注册OpenAI客户端
func init() {
	RegisterClient("openai", NewOpenAIClient)
}
