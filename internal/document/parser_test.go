package document

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/jung-kurt/gofpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTempFile(t *testing.T, content, ext string) string {
	t.Helper()
	tmpFile, err := os.CreateTemp("", "studybuddy-test-*"+ext)
	require.NoError(t, err)
	_, err = tmpFile.Write([]byte(content))
	require.NoError(t, err)
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpFile.Name()) })
	return tmpFile.Name()
}

// createTempPDF 生成一个PDF文件，每个参数占一页
func createTempPDF(t *testing.T, pages ...string) string {
	t.Helper()
	tmpFile, err := os.CreateTemp("", "studybuddy-test-*.pdf")
	require.NoError(t, err)
	defer tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpFile.Name()) })

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	for _, text := range pages {
		pdf.AddPage()
		pdf.MultiCell(0, 10, text, "", "", false)
	}
	require.NoError(t, pdf.Output(tmpFile))
	return tmpFile.Name()
}

func TestPlainTextParser(t *testing.T) {
	content := "Hello, this is a plain text file.\r\nSecond line."
	file := createTempFile(t, content, ".txt")

	doc, err := NewPlainTextParser().Parse(file)
	require.NoError(t, err)
	assert.Equal(t, "Hello, this is a plain text file.\nSecond line.", doc.Content)
	assert.False(t, doc.HasPages())
	assert.Equal(t, TitleFromFilename(file), doc.Title)

	t.Run("reader", func(t *testing.T) {
		doc, err := NewPlainTextParser().ParseReader(strings.NewReader("abc"), "notes.txt")
		require.NoError(t, err)
		assert.Equal(t, "abc", doc.Content)
		assert.Equal(t, "notes", doc.Title)
	})

	t.Run("bom and old mac newlines", func(t *testing.T) {
		raw := append([]byte{0xEF, 0xBB, 0xBF}, []byte("one\rtwo")...)
		doc, err := NewPlainTextParser().ParseReader(bytes.NewReader(raw), "mac.txt")
		require.NoError(t, err)
		assert.Equal(t, "one\ntwo", doc.Content)
	})

	t.Run("invalid utf8", func(t *testing.T) {
		_, err := NewPlainTextParser().ParseReader(bytes.NewReader([]byte{0xff, 0xfe}), "bad.txt")
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestMarkdownParser(t *testing.T) {
	content := "# Title\n\nThis is a **markdown** file.\n\n- Item 1\n- Item 2"
	file := createTempFile(t, content, ".md")

	doc, err := NewMarkdownParser().Parse(file)
	require.NoError(t, err)
	assert.Contains(t, doc.Content, "markdown file")
	assert.Contains(t, doc.Content, "Item 1")
	assert.NotContains(t, doc.Content, "<")
}

func TestMarkdownKeepsHeadingLines(t *testing.T) {
	content := "# Chapter 1: Intro\n\nBody text here.\n\n# Chapter 2: More\n\nMore body."
	doc, err := NewMarkdownParser().ParseReader(strings.NewReader(content), "book.md")
	require.NoError(t, err)

	// 标题仍然独占一行，章节识别可以正常工作
	sections := ExtractStructure(doc.Content, FirstMatchWins)
	require.Len(t, sections, 2)
	assert.Equal(t, "Intro", sections[0].Title)
	assert.Equal(t, "More", sections[1].Title)
	assert.Equal(t, "book", doc.Title)
	assert.Equal(t, "2", doc.Meta["headings"])
}

func TestMarkdownDropsHTMLAndKeepsCode(t *testing.T) {
	content := "Intro\n\n<div>hidden</div>\n\nUse `go test` here.\n\n```\nfmt.Println(1)\n```\n"
	doc, err := NewMarkdownParser().ParseReader(strings.NewReader(content), "code.md")
	require.NoError(t, err)
	assert.NotContains(t, doc.Content, "hidden")
	assert.Contains(t, doc.Content, "Use go test here.")
	assert.Contains(t, doc.Content, "fmt.Println(1)")
}

func TestDetectContentType(t *testing.T) {
	assert.Equal(t, PDF, DetectContentType("a/B.PDF"))
	assert.Equal(t, Markdown, DetectContentType("notes.markdown"))
	assert.Equal(t, PlainText, DetectContentType("notes.text"))
	assert.Equal(t, Unknown, DetectContentType("slides.pptx"))
	assert.Equal(t, []string{".markdown", ".md", ".pdf", ".text", ".txt"}, SupportedExtensions())

	_, err := ParserFactory("slides.pptx")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestPDFParser(t *testing.T) {
	file := createTempPDF(t, "This is a PDF test.", "Second page here.")

	doc, err := NewPDFParser().Parse(file)
	require.NoError(t, err)

	assert.Equal(t, 2, doc.PageCount)
	assert.Len(t, doc.Pages, 2)
	assert.Contains(t, doc.Content, "PDF test")

	t.Run("reader", func(t *testing.T) {
		data, err := os.ReadFile(file)
		require.NoError(t, err)

		doc, err := NewPDFParser().ParseReader(bytes.NewReader(data), "biology.pdf")
		require.NoError(t, err)
		assert.Equal(t, "biology", doc.Title)
		assert.Equal(t, 2, doc.PageCount)
	})

	t.Run("page count", func(t *testing.T) {
		count, err := CountPDFPages(file)
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})

	t.Run("not a pdf", func(t *testing.T) {
		_, err := NewPDFParser().ParseReader(strings.NewReader("plain text"), "fake.pdf")
		assert.Error(t, err)
	})
}

func TestParserFactory(t *testing.T) {
	txtFile := createTempFile(t, "plain text", ".txt")
	mdFile := createTempFile(t, "# Markdown", ".md")
	pdfFile := createTempPDF(t, "PDF content")

	tests := []struct {
		file     string
		expected string
	}{
		{txtFile, "plain text"},
		{mdFile, "Markdown"},
		{pdfFile, "PDF content"},
	}

	for _, tt := range tests {
		parser, err := ParserFactory(tt.file)
		require.NoError(t, err, "ParserFactory failed for %s", tt.file)

		doc, err := parser.Parse(tt.file)
		require.NoError(t, err, "Parse failed for %s", tt.file)
		assert.Contains(t, doc.Content, tt.expected)
	}

	_, err := ParserFactory("slides.pptx")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestTitleFromFilename(t *testing.T) {
	assert.Equal(t, "biology", TitleFromFilename("biology.pdf"))
	assert.Equal(t, "notes.v2", TitleFromFilename("/tmp/notes.v2.md"))
	assert.Equal(t, "README", TitleFromFilename("README"))
}
