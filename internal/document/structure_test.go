package document

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractStructureFirstMatchWins(t *testing.T) {
	t.Run("chapters take priority", func(t *testing.T) {
		text := "Chapter 1: Cells\nSection 1: Membranes\n1. Lipids\nChapter 2: Energy\n"
		sections := ExtractStructure(text, FirstMatchWins)
		require.Len(t, sections, 2)

		assert.Equal(t, "Cells", sections[0].Title)
		assert.Equal(t, HeadingChapter, sections[0].Kind)
		assert.Equal(t, 0, sections[0].Start)
		assert.Equal(t, sections[1].Start, sections[0].End)
		assert.Equal(t, "Energy", sections[1].Title)
		assert.Equal(t, utf8.RuneCountInString(text), sections[1].End)
	})

	t.Run("falls back to sections", func(t *testing.T) {
		text := "Preface\nSection 1: Setup\ntext\nSection 2: Usage\n1. Step one\n"
		sections := ExtractStructure(text, FirstMatchWins)
		require.Len(t, sections, 2)
		assert.Equal(t, "Setup", sections[0].Title)
		assert.Equal(t, "Usage", sections[1].Title)
		assert.Equal(t, 8, sections[0].Start)
	})

	t.Run("numbered headings", func(t *testing.T) {
		sections := ExtractStructure("1. First\nbody\n2. Second\nbody", FirstMatchWins)
		require.Len(t, sections, 2)
		assert.Equal(t, HeadingNumbered, sections[0].Kind)
		assert.Equal(t, "Second", sections[1].Title)
	})

	t.Run("case insensitive and trimmed", func(t *testing.T) {
		sections := ExtractStructure("CHAPTER 3:   Loud Title   \nbody", FirstMatchWins)
		require.Len(t, sections, 1)
		assert.Equal(t, "Loud Title", sections[0].Title)
	})

	t.Run("no headings", func(t *testing.T) {
		sections := ExtractStructure("just some text\nwith lines", FirstMatchWins)
		assert.NotNil(t, sections)
		assert.Empty(t, sections)
	})
}

func TestExtractStructureCharacterOffsets(t *testing.T) {
	text := "前言\nChapter 1: Intro\n内容"
	sections := ExtractStructure(text, FirstMatchWins)
	require.Len(t, sections, 1)

	assert.Equal(t, 3, sections[0].Start)
	assert.Equal(t, utf8.RuneCountInString(text), sections[0].End)
}

func TestExtractStructureMergeAll(t *testing.T) {
	text := "Chapter 1: Basics\n1. First\n1. Second\nChapter 2: Next\nSection 1: Detail\n"
	sections := ExtractStructure(text, MergeAll)
	require.Len(t, sections, 5)

	titles := make([]string, len(sections))
	chapters := make([]string, len(sections))
	for i, s := range sections {
		titles[i] = s.Title
		chapters[i] = s.Chapter
		if i > 0 {
			assert.Equal(t, s.Start, sections[i-1].End)
		}
	}
	assert.Equal(t, []string{"Basics", "First", "Second", "Next", "Detail"}, titles)
	assert.Equal(t, []string{"Basics", "Basics", "Basics", "Next", "Next"}, chapters)
}

func TestSectionAt(t *testing.T) {
	sections := []Section{
		{Title: "A", Start: 10, End: 20},
		{Title: "B", Start: 20, End: 30},
	}

	_, ok := sectionAt(sections, 5)
	assert.False(t, ok, "第一个标题之前的文本不属于任何章节")

	s, ok := sectionAt(sections, 10)
	assert.True(t, ok)
	assert.Equal(t, "A", s.Title)

	s, ok = sectionAt(sections, 20)
	assert.True(t, ok)
	assert.Equal(t, "B", s.Title)

	_, ok = sectionAt(sections, 30)
	assert.False(t, ok)

	_, ok = sectionAt(nil, 0)
	assert.False(t, ok)
}

func TestParseStructurePolicy(t *testing.T) {
	assert.Equal(t, MergeAll, ParseStructurePolicy("merge_all"))
	assert.Equal(t, MergeAll, ParseStructurePolicy(" MERGE_ALL "))
	assert.Equal(t, FirstMatchWins, ParseStructurePolicy("first_match_wins"))
	assert.Equal(t, FirstMatchWins, ParseStructurePolicy(""))
	assert.Equal(t, "first_match_wins", FirstMatchWins.String())
}
