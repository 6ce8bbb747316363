package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fyerfyer/study-buddy/internal/document"
	"github.com/spf13/cobra"
)

var outlineJSON bool

var outlineCmd = &cobra.Command{
	Use:   "outline <file>",
	Short: "Print the chapters and sections detected in a file",
	Args:  cobra.ExactArgs(1),
	RunE:  runOutline,
}

func init() {
	outlineCmd.Flags().BoolVar(&outlineJSON, "json", false, "print sections as a JSON array")
	rootCmd.AddCommand(outlineCmd)
}

func runOutline(cmd *cobra.Command, args []string) error {
	chunker, err := newChunker()
	if err != nil {
		return err
	}

	doc, err := parseFile(args[0])
	if err != nil {
		return err
	}

	sections, err := chunker.Outline(doc.Content)
	if err != nil {
		return err
	}
	return printOutline(cmd.OutOrStdout(), sections, outlineJSON)
}

// printOutline 输出章节结构，节缩进显示在所属章之下
func printOutline(w io.Writer, sections []document.Section, asJSON bool) error {
	if asJSON {
		if sections == nil {
			sections = []document.Section{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(sections)
	}

	if len(sections) == 0 {
		_, err := fmt.Fprintln(w, "no sections detected")
		return err
	}
	for _, s := range sections {
		indent := ""
		if s.Kind != document.HeadingChapter {
			indent = strings.Repeat(" ", 2)
		}
		if _, err := fmt.Fprintf(w, "%s%s [%d-%d]\n", indent, s.Title, s.Start, s.End); err != nil {
			return err
		}
	}
	return nil
}
