package document

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultSeparators 默认分隔符优先级：段落、换行、句号、空格、任意字符
var DefaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// SplitterConfig 递归分段器配置
type SplitterConfig struct {
	ChunkSize      int      // 分块大小（按字符数）
	ChunkOverlap   int      // 分块重叠大小（字符数）
	Separators     []string // 分隔符，按从粗到细排列；为空时使用DefaultSeparators
	KeepWhitespace bool     // 保留分块首尾空白
}

// DefaultSplitterConfig 返回默认分段器配置
func DefaultSplitterConfig() SplitterConfig {
	return SplitterConfig{
		ChunkSize:    1000,
		ChunkOverlap: 200,
		Separators:   append([]string(nil), DefaultSeparators...),
	}
}

// Validate 校验分段器配置
func (c SplitterConfig) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfig, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 {
		return fmt.Errorf("%w: chunk overlap must not be negative, got %d", ErrInvalidConfig, c.ChunkOverlap)
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk overlap %d must be smaller than chunk size %d",
			ErrInvalidConfig, c.ChunkOverlap, c.ChunkSize)
	}
	return nil
}

// Span 分段结果及其在原文中的字节区间 [Start, End)
type Span struct {
	Text  string
	Start int
	End   int
}

// piece 切分过程中的最小片段
type piece struct {
	start, end int // 字节区间
	runes      int // 字符数
}

// RecursiveSplitter 递归字符分段器
// 依次尝试分隔符，把片段贪心合并到ChunkSize以内，超长片段改用更细的分隔符继续切分。
// 分段器不持有可变状态，可以在多个goroutine间共享。
type RecursiveSplitter struct {
	config SplitterConfig
}

// NewRecursiveSplitter 创建新的递归分段器
func NewRecursiveSplitter(config SplitterConfig) (*RecursiveSplitter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if len(config.Separators) == 0 {
		config.Separators = DefaultSeparators
	}
	config.Separators = append([]string(nil), config.Separators...)
	return &RecursiveSplitter{config: config}, nil
}

// Config 返回分段器配置的副本
func (s *RecursiveSplitter) Config() SplitterConfig {
	c := s.config
	c.Separators = append([]string(nil), s.config.Separators...)
	return c
}

// Split 将文本分割成内容段落
func (s *RecursiveSplitter) Split(text string) ([]Content, error) {
	spans, err := s.SplitSpans(text)
	if err != nil {
		return nil, err
	}

	contents := make([]Content, 0, len(spans))
	for i, span := range spans {
		contents = append(contents, Content{Text: span.Text, Index: i})
	}
	return contents, nil
}

// SplitSpans 分割文本并返回每个分块在原文中的位置
func (s *RecursiveSplitter) SplitSpans(text string) ([]Span, error) {
	if !utf8.ValidString(text) {
		return nil, fmt.Errorf("%w: text is not valid UTF-8", ErrInvalidInput)
	}
	if text == "" {
		return []Span{}, nil
	}

	spans := s.splitRange(text, 0, len(text), s.config.Separators)
	if spans == nil {
		spans = []Span{}
	}
	return spans, nil
}

// splitRange 递归切分text[start:end]
func (s *RecursiveSplitter) splitRange(text string, start, end int, separators []string) []Span {
	segment := text[start:end]

	// 选出片段中出现的第一个分隔符
	separator := separators[len(separators)-1]
	var finer []string
	for i, sep := range separators {
		if sep == "" {
			separator = sep
			break
		}
		if strings.Contains(segment, sep) {
			separator = sep
			finer = separators[i+1:]
			break
		}
	}

	var result []Span
	var good []piece
	for _, p := range splitKeepSeparator(segment, start, separator) {
		if p.runes < s.config.ChunkSize {
			good = append(good, p)
			continue
		}

		if len(good) > 0 {
			result = append(result, s.merge(text, good)...)
			good = nil
		}

		if len(finer) == 0 {
			// 没有更细的分隔符，整体保留，不截断
			if span, ok := s.makeSpan(text, p.start, p.end); ok {
				result = append(result, span)
			}
			continue
		}
		result = append(result, s.splitRange(text, p.start, p.end, finer)...)
	}

	if len(good) > 0 {
		result = append(result, s.merge(text, good)...)
	}
	return result
}

// merge 把小片段贪心合并为分块，并保留不超过ChunkOverlap的尾部作为下一块的开头
func (s *RecursiveSplitter) merge(text string, pieces []piece) []Span {
	var spans []Span
	var current []piece
	total := 0

	for _, p := range pieces {
		if total+p.runes > s.config.ChunkSize && len(current) > 0 {
			if span, ok := s.makeSpan(text, current[0].start, current[len(current)-1].end); ok {
				spans = append(spans, span)
			}
			for total > s.config.ChunkOverlap || (total+p.runes > s.config.ChunkSize && total > 0) {
				total -= current[0].runes
				current = current[1:]
			}
		}
		current = append(current, p)
		total += p.runes
	}

	if len(current) > 0 {
		if span, ok := s.makeSpan(text, current[0].start, current[len(current)-1].end); ok {
			spans = append(spans, span)
		}
	}
	return spans
}

// makeSpan 构造分块，按配置去除首尾空白；结果为空时返回false
func (s *RecursiveSplitter) makeSpan(text string, start, end int) (Span, bool) {
	if !s.config.KeepWhitespace {
		chunk := text[start:end]
		left := strings.TrimLeftFunc(chunk, unicode.IsSpace)
		start += len(chunk) - len(left)
		end = start + len(strings.TrimRightFunc(left, unicode.IsSpace))
	}
	if start >= end {
		return Span{}, false
	}
	return Span{Text: text[start:end], Start: start, End: end}, true
}

// splitKeepSeparator 在每个分隔符出现的位置之前切开，分隔符保留在后一个片段开头。
// 空分隔符表示按字符切分。base是segment在原文中的起始字节偏移。
func splitKeepSeparator(segment string, base int, separator string) []piece {
	var pieces []piece

	if separator == "" {
		for i, r := range segment {
			size := utf8.RuneLen(r)
			pieces = append(pieces, piece{start: base + i, end: base + i + size, runes: 1})
		}
		return pieces
	}

	last := 0
	for from := 1; from < len(segment); {
		idx := strings.Index(segment[from:], separator)
		if idx < 0 {
			break
		}
		cut := from + idx
		pieces = append(pieces, newPiece(segment, base, last, cut))
		last = cut
		from = cut + 1
	}
	return append(pieces, newPiece(segment, base, last, len(segment)))
}

func newPiece(segment string, base, start, end int) piece {
	return piece{
		start: base + start,
		end:   base + end,
		runes: utf8.RuneCountInString(segment[start:end]),
	}
}
