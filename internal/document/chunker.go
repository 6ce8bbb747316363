package document

import (
	"fmt"
	"unicode/utf8"
)

// DefaultCharsPerPage 估算页码时每页的平均字符数
const DefaultCharsPerPage = 2000

// ChunkMetadata 分块的位置元数据，零值表示缺失
type ChunkMetadata struct {
	PageNumber   int    `json:"pageNumber,omitempty"`
	Section      string `json:"section,omitempty"`
	ChapterTitle string `json:"chapterTitle,omitempty"`
}

// Chunk 带元数据的文本分块
type Chunk struct {
	Content  string        `json:"content"`
	Start    int           `json:"start"` // 分块在原文中的字符偏移
	Metadata ChunkMetadata `json:"metadata"`
}

// ChunkerConfig 分块器配置
type ChunkerConfig struct {
	Splitter     SplitterConfig
	CharsPerPage int             // 页码估算用的每页字符数
	Policy       StructurePolicy // 章节识别策略
}

// DefaultChunkerConfig 返回默认分块器配置
func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{
		Splitter:     DefaultSplitterConfig(),
		CharsPerPage: DefaultCharsPerPage,
		Policy:       FirstMatchWins,
	}
}

// Validate 校验分块器配置
func (c ChunkerConfig) Validate() error {
	if err := c.Splitter.Validate(); err != nil {
		return err
	}
	if c.CharsPerPage <= 0 {
		return fmt.Errorf("%w: chars per page must be positive, got %d", ErrInvalidConfig, c.CharsPerPage)
	}
	return nil
}

// Chunker 文本分块器
// 识别章节结构、递归切分文本，并为每个分块标注页码和章节。
// 不做任何I/O，可以并发处理不同文档。
type Chunker struct {
	splitter     *RecursiveSplitter
	charsPerPage int
	policy       StructurePolicy
}

// NewChunker 创建新的分块器
func NewChunker(config ChunkerConfig) (*Chunker, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	splitter, err := NewRecursiveSplitter(config.Splitter)
	if err != nil {
		return nil, err
	}
	return &Chunker{
		splitter:     splitter,
		charsPerPage: config.CharsPerPage,
		policy:       config.Policy,
	}, nil
}

// Chunk 按章节结构模式分块
func (c *Chunker) Chunk(text string) ([]Chunk, error) {
	spans, err := c.splitter.SplitSpans(text)
	if err != nil {
		return nil, err
	}

	sections := ExtractStructure(text, c.policy)
	counter := newRuneCounter(text)

	chunks := make([]Chunk, 0, len(spans))
	for _, span := range spans {
		start := counter.offset(span.Start)
		meta := ChunkMetadata{PageNumber: c.estimatePage(start)}
		if section, ok := sectionAt(sections, start); ok {
			meta.Section = section.Title
			meta.ChapterTitle = section.Chapter
		}
		chunks = append(chunks, Chunk{Content: span.Text, Start: start, Metadata: meta})
	}
	return chunks, nil
}

// ChunkByPages 按固定字符数的估算页切分，每页再递归分块
// 该模式下分块只有页码，没有章节
func (c *Chunker) ChunkByPages(text string) ([]Chunk, error) {
	if !utf8.ValidString(text) {
		return nil, fmt.Errorf("%w: text is not valid UTF-8", ErrInvalidInput)
	}

	var pages []string
	for rest := text; rest != ""; {
		cut := byteIndexOfRune(rest, c.charsPerPage)
		pages = append(pages, rest[:cut])
		rest = rest[cut:]
	}
	return c.ChunkPages(pages)
}

// ChunkPages 按真实页边界分块，第i页（从0开始）的分块页码为i+1
func (c *Chunker) ChunkPages(pages []string) ([]Chunk, error) {
	for i, page := range pages {
		if !utf8.ValidString(page) {
			return nil, fmt.Errorf("%w: page %d is not valid UTF-8", ErrInvalidInput, i+1)
		}
	}

	chunks := []Chunk{}
	base := 0
	for i, page := range pages {
		spans, err := c.splitter.SplitSpans(page)
		if err != nil {
			return nil, err
		}
		counter := newRuneCounter(page)
		for _, span := range spans {
			chunks = append(chunks, Chunk{
				Content:  span.Text,
				Start:    base + counter.offset(span.Start),
				Metadata: ChunkMetadata{PageNumber: i + 1},
			})
		}
		base += utf8.RuneCountInString(page)
	}
	return chunks, nil
}

// Outline 返回文本的章节结构
func (c *Chunker) Outline(text string) ([]Section, error) {
	if !utf8.ValidString(text) {
		return nil, fmt.Errorf("%w: text is not valid UTF-8", ErrInvalidInput)
	}
	return ExtractStructure(text, c.policy), nil
}

func (c *Chunker) estimatePage(offset int) int {
	return offset/c.charsPerPage + 1
}

// runeCounter 把递增的字节偏移换算为字符偏移
type runeCounter struct {
	text     string
	lastByte int
	lastRune int
}

func newRuneCounter(text string) *runeCounter {
	return &runeCounter{text: text}
}

func (rc *runeCounter) offset(byteOffset int) int {
	if byteOffset < rc.lastByte {
		rc.lastByte, rc.lastRune = 0, 0
	}
	rc.lastRune += utf8.RuneCountInString(rc.text[rc.lastByte:byteOffset])
	rc.lastByte = byteOffset
	return rc.lastRune
}

// byteIndexOfRune 返回第n个字符的字节位置，不足n个字符时返回len(s)
func byteIndexOfRune(s string, n int) int {
	count := 0
	for i := range s {
		if count == n {
			return i
		}
		count++
	}
	return len(s)
}
