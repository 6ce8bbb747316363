package document

import (
	"strings"
	"sync"
	"testing"
	"unicode"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lorem 生成长度恰好为n个字符的填充文本
func lorem(n int) string {
	const sentence = "Lorem ipsum dolor sit amet consectetur adipiscing elit. "
	text := strings.Repeat(sentence, n/len(sentence)+1)
	return strings.TrimSpace(text[:n])
}

// assertCovered 检查原文中每个非空白字符都落在某个分块的区间内
func assertCovered(t *testing.T, text string, chunks []Chunk) {
	t.Helper()
	runes := []rune(text)
	covered := make([]bool, len(runes))
	for _, c := range chunks {
		end := c.Start + utf8.RuneCountInString(c.Content)
		for i := c.Start; i < end && i < len(runes); i++ {
			covered[i] = true
		}
	}
	for i, r := range runes {
		if !unicode.IsSpace(r) && !covered[i] {
			t.Errorf("字符 %q (偏移 %d) 不在任何分块内", r, i)
			return
		}
	}
}

func newTestChunker(t *testing.T, config ChunkerConfig) *Chunker {
	t.Helper()
	chunker, err := NewChunker(config)
	require.NoError(t, err)
	return chunker
}

func TestChunkerChapterScenario(t *testing.T) {
	chunker := newTestChunker(t, DefaultChunkerConfig())

	text := "Chapter 1: Intro\n" + lorem(1500) + "\nChapter 2: Basics\n" + lorem(800)
	basicsStart := utf8.RuneCountInString(text[:strings.Index(text, "Chapter 2")])

	chunks, err := chunker.Chunk(text)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 2)

	assert.Equal(t, "Intro", chunks[0].Metadata.Section)
	assert.Equal(t, "Basics", chunks[len(chunks)-1].Metadata.Section)

	for i, c := range chunks {
		if c.Start < basicsStart {
			assert.Equal(t, "Intro", c.Metadata.Section, "分块 %d 应该属于第一章", i)
		} else {
			assert.Equal(t, "Basics", c.Metadata.Section, "分块 %d 应该属于第二章", i)
		}
		assert.Empty(t, c.Metadata.ChapterTitle)
		if i > 0 {
			assert.GreaterOrEqual(t, c.Metadata.PageNumber, chunks[i-1].Metadata.PageNumber)
		}
	}
}

func TestChunkerEmptyInput(t *testing.T) {
	chunker := newTestChunker(t, DefaultChunkerConfig())

	chunks, err := chunker.Chunk("")
	assert.NoError(t, err)
	assert.Empty(t, chunks)

	chunks, err = chunker.ChunkByPages("")
	assert.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunkerWithoutHeadings(t *testing.T) {
	chunker := newTestChunker(t, DefaultChunkerConfig())

	text := buildParagraphs(6, 25)
	chunks, err := chunker.Chunk(text)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	for _, c := range chunks {
		assert.Empty(t, c.Metadata.Section)
		assert.Equal(t, c.Start/DefaultCharsPerPage+1, c.Metadata.PageNumber)
	}
	assert.Equal(t, 1, chunks[0].Metadata.PageNumber)
	assert.Greater(t, chunks[len(chunks)-1].Metadata.PageNumber, 1)
}

func TestChunkerProperties(t *testing.T) {
	config := DefaultChunkerConfig()
	chunker := newTestChunker(t, config)

	var b strings.Builder
	for i, title := range []string{"Cells", "Energy", "Genetics", "Evolution"} {
		b.WriteString("Chapter ")
		b.WriteString(string(rune('1' + i)))
		b.WriteString(": ")
		b.WriteString(title)
		b.WriteString("\n\n")
		b.WriteString(buildParagraphs(3, 20))
		b.WriteString("\n\n")
	}
	text := b.String()

	chunks, err := chunker.Chunk(text)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 4)

	t.Run("deterministic", func(t *testing.T) {
		again, err := chunker.Chunk(text)
		require.NoError(t, err)
		assert.Equal(t, chunks, again)
	})

	t.Run("content matches offsets", func(t *testing.T) {
		runes := []rune(text)
		for _, c := range chunks {
			length := utf8.RuneCountInString(c.Content)
			assert.Equal(t, c.Content, string(runes[c.Start:c.Start+length]))
		}
	})

	t.Run("coverage", func(t *testing.T) {
		assertCovered(t, text, chunks)
	})

	t.Run("bounded size and overlap", func(t *testing.T) {
		for i, c := range chunks {
			assert.LessOrEqual(t, utf8.RuneCountInString(c.Content), config.Splitter.ChunkSize)
			if i == 0 {
				continue
			}
			prev := chunks[i-1]
			prevEnd := prev.Start + utf8.RuneCountInString(prev.Content)
			if c.Start < prevEnd {
				assert.LessOrEqual(t, prevEnd-c.Start, config.Splitter.ChunkOverlap)
			}
		}
	})

	t.Run("monotonic pages", func(t *testing.T) {
		for i := 1; i < len(chunks); i++ {
			assert.LessOrEqual(t, chunks[i-1].Metadata.PageNumber, chunks[i].Metadata.PageNumber)
		}
	})

	t.Run("section containment", func(t *testing.T) {
		sections, err := chunker.Outline(text)
		require.NoError(t, err)
		require.Len(t, sections, 4)

		for _, c := range chunks {
			require.NotEmpty(t, c.Metadata.Section)
			found := false
			for _, s := range sections {
				if s.Title == c.Metadata.Section && s.Contains(c.Start) {
					found = true
				}
			}
			assert.True(t, found, "分块起点 %d 不在章节 %q 内", c.Start, c.Metadata.Section)
		}
	})
}

func TestChunkerCoverageCharacterFallback(t *testing.T) {
	text := "Chapter 1: Optics\n\n" + strings.Repeat("光的折射", 30) + "\n" +
		strings.Repeat("x", 75) + " refraction index. " + lorem(120)

	tests := []struct {
		name       string
		separators []string
	}{
		{"default separators", nil},
		{"characters only", []string{""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultChunkerConfig()
			config.Splitter = SplitterConfig{ChunkSize: 24, ChunkOverlap: 5, Separators: tt.separators}
			chunker := newTestChunker(t, config)

			chunks, err := chunker.Chunk(text)
			require.NoError(t, err)
			require.NotEmpty(t, chunks)
			assertCovered(t, text, chunks)
			for _, c := range chunks {
				assert.LessOrEqual(t, utf8.RuneCountInString(c.Content), 24)
			}
		})
	}
}

func TestChunkerDuplicateParagraphs(t *testing.T) {
	config := DefaultChunkerConfig()
	config.Splitter = SplitterConfig{ChunkSize: 40, ChunkOverlap: 0}
	chunker := newTestChunker(t, config)

	const para = "Repeated boilerplate paragraph text."
	text := "Chapter 1: Alpha\n\n" + para + "\n\nChapter 2: Beta\n\n" + para

	chunks, err := chunker.Chunk(text)
	require.NoError(t, err)
	require.Len(t, chunks, 4)

	// 内容相同的两个分块各自保留真实位置
	assert.Equal(t, chunks[1].Content, chunks[3].Content)
	assert.Equal(t, 18, chunks[1].Start)
	assert.Equal(t, 73, chunks[3].Start)
	assert.Equal(t, "Alpha", chunks[1].Metadata.Section)
	assert.Equal(t, "Beta", chunks[3].Metadata.Section)
}

func TestChunkerMergeAllPolicy(t *testing.T) {
	config := DefaultChunkerConfig()
	config.Splitter = SplitterConfig{ChunkSize: 20, ChunkOverlap: 0}
	config.Policy = MergeAll
	chunker := newTestChunker(t, config)

	text := "Chapter 1: Cells\n\n1. Membranes\n\nChapter 2: Energy\n\n1. Glycolysis"
	chunks, err := chunker.Chunk(text)
	require.NoError(t, err)
	require.Len(t, chunks, 4)

	assert.Equal(t, "Membranes", chunks[1].Metadata.Section)
	assert.Equal(t, "Cells", chunks[1].Metadata.ChapterTitle)
	assert.Equal(t, "Glycolysis", chunks[3].Metadata.Section)
	assert.Equal(t, "Energy", chunks[3].Metadata.ChapterTitle)
}

func TestChunkerByPages(t *testing.T) {
	chunker := newTestChunker(t, DefaultChunkerConfig())

	text := "Chapter 1: Ignored\n" + lorem(4500)
	chunks, err := chunker.ChunkByPages(text)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	assert.Equal(t, 1, chunks[0].Metadata.PageNumber)
	assert.Equal(t, 3, chunks[len(chunks)-1].Metadata.PageNumber)
	for i, c := range chunks {
		assert.Empty(t, c.Metadata.Section, "按页模式不标注章节")
		assert.Equal(t, c.Start/DefaultCharsPerPage+1, c.Metadata.PageNumber)
		if i > 0 {
			assert.GreaterOrEqual(t, c.Metadata.PageNumber, chunks[i-1].Metadata.PageNumber)
		}
	}
}

func TestChunkerTruePages(t *testing.T) {
	chunker := newTestChunker(t, DefaultChunkerConfig())

	chunks, err := chunker.ChunkPages([]string{"page one text", "", "page three text"})
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Equal(t, 1, chunks[0].Metadata.PageNumber)
	assert.Equal(t, 3, chunks[1].Metadata.PageNumber)
	assert.Equal(t, utf8.RuneCountInString("page one text"), chunks[1].Start)
}

func TestChunkerErrors(t *testing.T) {
	t.Run("invalid config", func(t *testing.T) {
		config := DefaultChunkerConfig()
		config.CharsPerPage = 0
		_, err := NewChunker(config)
		assert.ErrorIs(t, err, ErrInvalidConfig)

		config = DefaultChunkerConfig()
		config.Splitter.ChunkOverlap = config.Splitter.ChunkSize
		_, err = NewChunker(config)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("invalid input", func(t *testing.T) {
		chunker := newTestChunker(t, DefaultChunkerConfig())

		chunks, err := chunker.Chunk("bad \xff text")
		assert.ErrorIs(t, err, ErrInvalidInput)
		assert.Nil(t, chunks)

		chunks, err = chunker.ChunkByPages("bad \xff text")
		assert.ErrorIs(t, err, ErrInvalidInput)
		assert.Nil(t, chunks)

		_, err = chunker.ChunkPages([]string{"ok", "\xff"})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestChunkerConcurrentUse(t *testing.T) {
	chunker := newTestChunker(t, DefaultChunkerConfig())

	texts := []string{
		buildParagraphs(4, 20),
		"Chapter 1: Intro\n" + lorem(3000),
		"Section 1: Setup\n" + lorem(2500) + "\nSection 2: Usage\n" + lorem(900),
	}
	expected := make([][]Chunk, len(texts))
	for i, text := range texts {
		chunks, err := chunker.Chunk(text)
		require.NoError(t, err)
		expected[i] = chunks
	}

	var wg sync.WaitGroup
	results := make([][]Chunk, len(texts)*4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = chunker.Chunk(texts[i%len(texts)])
		}(i)
	}
	wg.Wait()

	for i, got := range results {
		assert.Equal(t, expected[i%len(texts)], got)
	}
}

func TestRuneCounter(t *testing.T) {
	text := "ab中文cd"
	counter := newRuneCounter(text)
	assert.Equal(t, 2, counter.offset(2))
	assert.Equal(t, 3, counter.offset(5))
	assert.Equal(t, 5, counter.offset(9))
	// 回退时重新计数
	assert.Equal(t, 1, counter.offset(1))
}

func TestByteIndexOfRune(t *testing.T) {
	assert.Equal(t, 0, byteIndexOfRune("abc", 0))
	assert.Equal(t, 3, byteIndexOfRune("中文", 1))
	assert.Equal(t, 6, byteIndexOfRune("中文", 5))
}
