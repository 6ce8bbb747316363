package document

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/ast"
	"github.com/gomarkdown/markdown/parser"
)

// MarkdownParser Markdown文档解析器
type MarkdownParser struct{}

// NewMarkdownParser 创建新的Markdown解析器
func NewMarkdownParser() Parser {
	return &MarkdownParser{}
}

// Parse 解析Markdown文件
func (p *MarkdownParser) Parse(filePath string) (*Document, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open markdown file: %w", err)
	}
	defer f.Close()

	return p.ParseReader(f, filePath)
}

// ParseReader 从Reader解析Markdown，遍历语法树输出纯文本
func (p *MarkdownParser) ParseReader(r io.Reader, filename string) (*Document, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read markdown content: %w", err)
	}

	root := markdown.Parse(src, parser.NewWithExtensions(parser.CommonExtensions))
	text, headings := renderPlainText(root)

	return &Document{
		Content: text,
		Title:   TitleFromFilename(filename),
		Source:  filename,
		Meta: map[string]string{
			"type":     string(Markdown),
			"headings": fmt.Sprint(headings),
		},
	}, nil
}

// renderPlainText 把语法树转为纯文本
// 标题和段落各占一行，HTML节点直接丢弃
func renderPlainText(root ast.Node) (string, int) {
	var sb strings.Builder
	headings := 0

	ast.WalkFunc(root, func(node ast.Node, entering bool) ast.WalkStatus {
		switch n := node.(type) {
		case *ast.Heading:
			if entering {
				headings++
				sb.WriteString("\n\n")
			} else {
				sb.WriteString("\n\n")
			}
		case *ast.Paragraph, *ast.BlockQuote:
			if !entering {
				sb.WriteString("\n\n")
			}
		case *ast.ListItem:
			if entering {
				sb.WriteString("- ")
			} else {
				sb.WriteString("\n")
			}
		case *ast.TableCell:
			if !entering {
				sb.WriteString(" ")
			}
		case *ast.TableRow:
			if !entering {
				sb.WriteString("\n")
			}
		case *ast.Hardbreak:
			sb.WriteString("\n")
		case *ast.Softbreak:
			sb.WriteString(" ")
		case *ast.Text:
			sb.Write(n.Literal)
		case *ast.Code:
			sb.Write(n.Literal)
		case *ast.CodeBlock:
			if entering {
				sb.WriteString("\n")
				sb.Write(n.Literal)
				sb.WriteString("\n")
			}
		case *ast.HTMLBlock, *ast.HTMLSpan:
			return ast.SkipChildren
		}
		return ast.GoToNext
	})

	return normalizeWhitespace(sb.String()), headings
}

// normalizeWhitespace 行内空白合并为一个空格，连续空行最多保留一个
func normalizeWhitespace(text string) string {
	var out []string
	prevBlank := true
	for _, line := range strings.Split(text, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if !prevBlank {
				out = append(out, "")
			}
			prevBlank = true
			continue
		}
		prevBlank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
