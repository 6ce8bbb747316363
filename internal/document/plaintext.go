package document

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// PlainTextParser 纯文本解析器，要求内容为UTF-8
type PlainTextParser struct{}

// NewPlainTextParser 创建纯文本解析器
func NewPlainTextParser() Parser {
	return &PlainTextParser{}
}

func (p *PlainTextParser) Parse(filePath string) (*Document, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open text file: %w", err)
	}
	defer f.Close()

	return p.ParseReader(f, filePath)
}

// ParseReader 读取全部文本，去掉BOM并统一换行符
func (p *PlainTextParser) ParseReader(r io.Reader, filename string) (*Document, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read text file: %w", err)
	}

	raw = bytes.TrimPrefix(raw, utf8BOM)
	if !utf8.Valid(raw) {
		return nil, fmt.Errorf("%w: %s is not valid UTF-8", ErrInvalidInput, filename)
	}
	raw = bytes.ReplaceAll(raw, []byte("\r\n"), []byte("\n"))
	raw = bytes.ReplaceAll(raw, []byte("\r"), []byte("\n"))

	return &Document{
		Content: string(raw),
		Title:   TitleFromFilename(filename),
		Source:  filename,
		Meta:    map[string]string{"type": string(PlainText)},
	}, nil
}
