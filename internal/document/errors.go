package document

import "errors"

var (
	// ErrInvalidInput 输入文本无效（例如不是合法的UTF-8）
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidConfig 分段配置无效
	ErrInvalidConfig = errors.New("invalid chunking config")

	// ErrUnsupportedFormat 不支持的文档格式
	ErrUnsupportedFormat = errors.New("unsupported document type")

	// ErrEmptyDocument 文档中没有可提取的文本
	ErrEmptyDocument = errors.New("no text content found in document")
)
