package main

import (
	"os"

	"github.com/fyerfyer/study-buddy/internal/document"
	"github.com/spf13/cobra"
)

var (
	chunkSize    int
	chunkOverlap int
	charsPerPage int
	policyName   string
)

var rootCmd = &cobra.Command{
	Use:   "chunkctl",
	Short: "Chunk study documents offline",
	Long: `chunkctl parses PDF, Markdown and text files with the same chunker the
server uses, so chunk boundaries and detected sections can be inspected
without uploading anything.

Example usage:
  chunkctl chunk "notes/**/*.pdf"     # Print chunks as JSON lines
  chunkctl outline notes/biology.md   # Print detected chapters and sections`,
	SilenceUsage: true,
}

func init() {
	defaults := document.DefaultChunkerConfig()
	rootCmd.PersistentFlags().IntVar(&chunkSize, "chunk-size", defaults.Splitter.ChunkSize, "chunk size in characters")
	rootCmd.PersistentFlags().IntVar(&chunkOverlap, "chunk-overlap", defaults.Splitter.ChunkOverlap, "overlap between chunks in characters")
	rootCmd.PersistentFlags().IntVar(&charsPerPage, "chars-per-page", defaults.CharsPerPage, "characters per estimated page")
	rootCmd.PersistentFlags().StringVar(&policyName, "policy", defaults.Policy.String(), "heading policy (first_match_wins, merge_all)")
}

// newChunker 按命令行参数创建分块器
func newChunker() (*document.Chunker, error) {
	config := document.DefaultChunkerConfig()
	config.Splitter.ChunkSize = chunkSize
	config.Splitter.ChunkOverlap = chunkOverlap
	config.CharsPerPage = charsPerPage
	config.Policy = document.ParseStructurePolicy(policyName)
	return document.NewChunker(config)
}

// parseFile 按扩展名选择解析器并解析文件
func parseFile(path string) (*document.Document, error) {
	parser, err := document.ParserFactory(path)
	if err != nil {
		return nil, err
	}
	return parser.Parse(path)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
