package document

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
)

// Parser 把PDF、Markdown或纯文本解析为Document
type Parser interface {
	Parse(filePath string) (*Document, error)
	// ParseReader filename只用于推导标题
	ParseReader(r io.Reader, filename string) (*Document, error)
}

// ContentType 文档内容类型
type ContentType string

const (
	PDF       ContentType = "pdf"
	Markdown  ContentType = "markdown"
	PlainText ContentType = "plaintext"
	Unknown   ContentType = "unknown"
)

// 扩展名到内容类型的映射
var extensionTypes = map[string]ContentType{
	".pdf":      PDF,
	".md":       Markdown,
	".markdown": Markdown,
	".txt":      PlainText,
	".text":     PlainText,
}

// 内容类型到解析器构造函数的映射
var parserConstructors = map[ContentType]func() Parser{
	PDF:       NewPDFParser,
	Markdown:  NewMarkdownParser,
	PlainText: NewPlainTextParser,
}

// ParserFactory 按文件扩展名选择解析器
func ParserFactory(filePath string) (Parser, error) {
	newParser, ok := parserConstructors[DetectContentType(filePath)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(filePath))
	}
	return newParser(), nil
}

// DetectContentType 根据文件扩展名检测内容类型
func DetectContentType(filePath string) ContentType {
	if ct, ok := extensionTypes[strings.ToLower(filepath.Ext(filePath))]; ok {
		return ct
	}
	return Unknown
}

// SupportedExtensions 返回所有可解析的扩展名，按字母排序
func SupportedExtensions() []string {
	exts := make([]string, 0, len(extensionTypes))
	for ext := range extensionTypes {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Document 解析后的文档结构
type Document struct {
	Content   string            // 全文文本
	Pages     []string          // 按页拆分的文本，解析器无法区分页面时为空
	PageCount int               // 总页数（未知时为0）
	Title     string            // 文档标题
	Source    string            // 源文件信息
	Meta      map[string]string // 元数据（可选，例如作者、日期等）
}

// HasPages 是否带有真实的页边界
func (d *Document) HasPages() bool {
	return len(d.Pages) > 0
}

// TitleFromFilename 用去掉扩展名的文件名作为标题
func TitleFromFilename(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Content 分段后的一段文本
type Content struct {
	Text  string
	Index int
}

// Splitter 将长文本切成适合向量化的片段
type Splitter interface {
	Split(text string) ([]Content, error)
}
