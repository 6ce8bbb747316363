package embedding

import "fmt"

// ErrorCode 嵌入错误码
type ErrorCode int

const (
	ErrCodeInvalidAPIKey ErrorCode = 1001 + iota
	ErrCodeInvalidRequest
	ErrCodeNetworkError
	ErrCodeRateLimited
	ErrCodeServerError
	ErrCodeTimeout
	ErrCodeEmptyInput
	ErrCodeBatchTooLarge
)

var codeNames = map[ErrorCode]string{
	ErrCodeInvalidAPIKey:  "invalid_api_key",
	ErrCodeInvalidRequest: "invalid_request",
	ErrCodeNetworkError:   "network_error",
	ErrCodeRateLimited:    "rate_limited",
	ErrCodeServerError:    "server_error",
	ErrCodeTimeout:        "timeout",
	ErrCodeEmptyInput:     "empty_input",
	ErrCodeBatchTooLarge:  "batch_too_large",
}

func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("code_%d", int(c))
}

// EmbeddingError 嵌入服务返回的错误
type EmbeddingError struct {
	Code    ErrorCode
	Message string
}

func (e EmbeddingError) Error() string {
	return fmt.Sprintf("embedding %s (%d): %s", e.Code, int(e.Code), e.Message)
}

// Is 错误码相同即视为同一类错误
func (e EmbeddingError) Is(target error) bool {
	t, ok := target.(EmbeddingError)
	return ok && t.Code == e.Code
}

// Retryable 限流和服务端错误可以重试
func (e EmbeddingError) Retryable() bool {
	return e.Code == ErrCodeRateLimited || e.Code == ErrCodeServerError
}

// NewEmbeddingError 创建嵌入错误
func NewEmbeddingError(code ErrorCode, message string) EmbeddingError {
	return EmbeddingError{Code: code, Message: message}
}

var (
	ErrEmptyText     = NewEmbeddingError(ErrCodeEmptyInput, "input text cannot be empty")
	ErrRateLimited   = NewEmbeddingError(ErrCodeRateLimited, "too many requests, rate limit exceeded")
	ErrBatchTooLarge = NewEmbeddingError(ErrCodeBatchTooLarge, "batch exceeds the maximum size")
	ErrInvalidAPIKey = NewEmbeddingError(ErrCodeInvalidAPIKey, "invalid API key")
)
