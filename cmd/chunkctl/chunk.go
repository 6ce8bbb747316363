package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fyerfyer/study-buddy/internal/document"
	"github.com/gammazero/workerpool"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	chunkWorkers int
	pageMode     bool
	noProgress   bool
)

var chunkCmd = &cobra.Command{
	Use:   "chunk <glob>...",
	Short: "Chunk files matching the given patterns",
	Long: `Expand each pattern (doublestar syntax, e.g. "notes/**/*.md"), parse the
matching files in parallel and print one JSON object per chunk.

Examples:
  chunkctl chunk "**/*.pdf"
  chunkctl chunk --pages --workers 8 lecture1.pdf lecture2.pdf`,
	Args: cobra.MinimumNArgs(1),
	RunE: runChunk,
}

func init() {
	chunkCmd.Flags().IntVarP(&chunkWorkers, "workers", "w", runtime.NumCPU(), "number of files processed in parallel")
	chunkCmd.Flags().BoolVar(&pageMode, "pages", false, "chunk page by page instead of by detected structure")
	chunkCmd.Flags().BoolVar(&noProgress, "no-progress", false, "disable the progress bar")
	rootCmd.AddCommand(chunkCmd)
}

// chunkLine 输出的一行JSON
type chunkLine struct {
	File       string `json:"file"`
	Index      int    `json:"index"`
	Start      int    `json:"start"`
	PageNumber int    `json:"pageNumber,omitempty"`
	Section    string `json:"section,omitempty"`
	Chapter    string `json:"chapter,omitempty"`
	Content    string `json:"content"`
}

// fileResult 单个文件的分块结果
type fileResult struct {
	path   string
	chunks []document.Chunk
	err    error
}

func runChunk(cmd *cobra.Command, args []string) error {
	files, err := expandPatterns(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no files matched %v", args)
	}

	chunker, err := newChunker()
	if err != nil {
		return err
	}

	var bar *progressbar.ProgressBar
	if !noProgress {
		bar = progressbar.NewOptions(len(files),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("Chunking"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(40),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprintln(os.Stderr)
			}),
		)
	}

	results := chunkFiles(chunker, files, chunkWorkers, pageMode, func() {
		if bar != nil {
			bar.Add(1)
		}
	})

	failed := 0
	for _, res := range results {
		if res.err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "%s: %v\n", res.path, res.err)
			continue
		}
		if err := writeChunks(cmd.OutOrStdout(), res); err != nil {
			return err
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(files))
	}
	return nil
}

// expandPatterns 展开doublestar模式，结果去重并排序
func expandPatterns(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		for _, match := range matches {
			if document.DetectContentType(match) == document.Unknown {
				continue
			}
			abs, err := filepath.Abs(match)
			if err != nil {
				return nil, err
			}
			if !seen[abs] {
				seen[abs] = true
				files = append(files, match)
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

// chunkFiles 并行解析并分块，结果顺序与输入一致
func chunkFiles(chunker *document.Chunker, files []string, workers int, pages bool, done func()) []fileResult {
	if workers <= 0 {
		workers = 1
	}
	results := make([]fileResult, len(files))

	wp := workerpool.New(workers)
	for i, path := range files {
		i, path := i, path
		wp.Submit(func() {
			chunks, err := chunkFile(chunker, path, pages)
			results[i] = fileResult{path: path, chunks: chunks, err: err}
			done()
		})
	}
	wp.StopWait()

	return results
}

// chunkFile 解析单个文件并分块
func chunkFile(chunker *document.Chunker, path string, pages bool) ([]document.Chunk, error) {
	doc, err := parseFile(path)
	if err != nil {
		return nil, err
	}

	var chunks []document.Chunk
	switch {
	case pages && doc.HasPages():
		chunks, err = chunker.ChunkPages(doc.Pages)
	case pages:
		chunks, err = chunker.ChunkByPages(doc.Content)
	default:
		chunks, err = chunker.Chunk(doc.Content)
	}
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, document.ErrEmptyDocument
	}
	return chunks, nil
}

// writeChunks 以JSON lines格式输出分块
func writeChunks(w io.Writer, res fileResult) error {
	enc := json.NewEncoder(w)
	for i, chunk := range res.chunks {
		line := chunkLine{
			File:       res.path,
			Index:      i,
			Start:      chunk.Start,
			PageNumber: chunk.Metadata.PageNumber,
			Section:    chunk.Metadata.Section,
			Chapter:    chunk.Metadata.ChapterTitle,
			Content:    chunk.Content,
		}
		if err := enc.Encode(line); err != nil {
			return err
		}
	}
	return nil
}
