package document

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	pdflib "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// pageFilePattern 匹配pdfcpu导出的分页内容文件名中的页码
var pageFilePattern = regexp.MustCompile(`_(\d+)\.txt$`)

// PDFParser PDF文档解析器
// 优先用ledongthuc/pdf逐页提取文本，失败时退回pdfcpu的内容导出
type PDFParser struct{}

// NewPDFParser 创建一个新的PDF解析器
func NewPDFParser() Parser {
	return &PDFParser{}
}

// Parse 解析PDF文件并提取其文本内容
func (p *PDFParser) Parse(filePath string) (*Document, error) {
	pageCount, err := CountPDFPages(filePath)
	if err != nil {
		return nil, err
	}

	pages, err := extractPages(filePath)
	if err != nil || joinPages(pages) == "" {
		pages, err = extractPagesWithPdfcpu(filePath)
		if err != nil {
			return nil, err
		}
	}

	content := joinPages(pages)
	if content == "" {
		return nil, ErrEmptyDocument
	}

	return &Document{
		Content:   content,
		Pages:     pages,
		PageCount: pageCount,
		Title:     TitleFromFilename(filePath),
		Source:    filePath,
		Meta:      map[string]string{"type": string(PDF)},
	}, nil
}

// ParseReader 从Reader解析PDF
// 两个PDF库都需要可随机访问的文件，这里先写入临时文件
func (p *PDFParser) ParseReader(r io.Reader, filename string) (*Document, error) {
	tmpPath, err := writeTempPDF(r)
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmpPath)

	doc, err := p.Parse(tmpPath)
	if err != nil {
		return nil, err
	}
	doc.Title = TitleFromFilename(filename)
	doc.Source = filename
	return doc, nil
}

// CountPDFPages 读取PDF页数，同时校验文件结构
func CountPDFPages(filePath string) (int, error) {
	count, err := api.PageCountFile(filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to read PDF page count: %w", err)
	}
	return count, nil
}

// CountPDFPagesReader 从Reader读取PDF页数
func CountPDFPagesReader(r io.Reader) (int, error) {
	tmpPath, err := writeTempPDF(r)
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmpPath)

	return CountPDFPages(tmpPath)
}

func writeTempPDF(r io.Reader) (string, error) {
	tmp, err := os.CreateTemp("", "studybuddy-pdf-*.pdf")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	return tmp.Name(), nil
}

// extractPages 逐页提取纯文本，空页保留为空字符串以维持页码
func extractPages(filePath string) ([]string, error) {
	f, reader, err := pdflib.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	numPages := reader.NumPage()
	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to extract text from page %d: %w", i, err)
		}
		pages = append(pages, normalizePageText(text))
	}
	return pages, nil
}

// extractPagesWithPdfcpu 用pdfcpu把每页内容导出到临时目录再读回
func extractPagesWithPdfcpu(filePath string) ([]string, error) {
	tmpDir, err := os.MkdirTemp("", "pdfcpu_extract_")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	conf := model.NewDefaultConfiguration()
	if err := api.ExtractContentFile(filePath, tmpDir, nil, conf); err != nil {
		return nil, fmt.Errorf("failed to extract text from PDF: %w", err)
	}

	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read extracted text dir: %w", err)
	}

	type pageFile struct {
		number int
		name   string
	}
	var files []pageFile
	for _, e := range entries {
		m := pageFilePattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		files = append(files, pageFile{number: n, name: e.Name()})
	}
	// 按页码数字排序，避免page_10排在page_2之前
	sort.Slice(files, func(i, j int) bool {
		return files[i].number < files[j].number
	})

	pages := make([]string, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(filepath.Join(tmpDir, f.name))
		if err != nil {
			continue
		}
		pages = append(pages, normalizePageText(string(data)))
	}
	return pages, nil
}

// joinPages 用空行连接各页文本
func joinPages(pages []string) string {
	var b strings.Builder
	for _, page := range pages {
		if page == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(page)
	}
	return b.String()
}

func normalizePageText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\f", "\n")
	return strings.TrimSpace(text)
}
