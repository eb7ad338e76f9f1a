package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cascadedocs/cascade/internal/output"
	"github.com/cascadedocs/cascade/pkg/docengine"
)

type searchOptions struct {
	docName    string
	maxResults int
	threshold  float64
	format     string // "text", "json"
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search ingested documentation",
		Long: `Search ingested documentation using the cascade pipeline: query cache,
metadata match, full-text search, and hybrid semantic rerank, in that
order, stopping at the first confident match.

Examples:
  cascade-docs search "useEffect cleanup"
  cascade-docs search "routing" --doc react-router --limit 3
  cascade-docs search "hooks" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd, query, opts)
		},
	}

	cmd.Flags().StringVar(&opts.docName, "doc", "", "restrict the search to one document by name")
	cmd.Flags().IntVarP(&opts.maxResults, "limit", "n", 0, "maximum number of results (0 uses the configured default)")
	cmd.Flags().Float64Var(&opts.threshold, "threshold", 0, "minimum similarity score for hybrid-layer results (0 uses the configured default)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "output format: text, json")

	return cmd
}

func runSearch(cmd *cobra.Command, query string, opts searchOptions) error {
	engine, err := openEngine()
	if err != nil {
		return fmt.Errorf("failed to open engine: %w", err)
	}
	defer func() { _ = engine.Close() }()

	result, err := engine.Search(cmd.Context(), query, opts.docName, opts.maxResults, opts.threshold)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	return formatSearchResult(output.New(cmd.OutOrStdout()), query, result)
}

func formatSearchResult(out *output.Writer, query string, result docengine.SearchResult) error {
	if !result.Found {
		out.Status("", fmt.Sprintf("No results found for %q", query))
		return nil
	}

	out.Statusf("", "Found %d result(s) for %q via %s (%.1fms)", len(result.Results), query,
		result.Transparency.Method, result.Transparency.LatencyMS)
	out.Dim(fmt.Sprintf("search path: %s", strings.Join(result.Transparency.SearchPath, " -> ")))
	out.Newline()

	for i, sec := range result.Results {
		header := fmt.Sprintf("%d. %s / %s", i+1, sec.DocName, sec.Title)
		if sec.SimilarityScore != nil {
			header = fmt.Sprintf("%s (similarity: %.3f)", header, *sec.SimilarityScore)
		}
		out.Status("", header)
		if sec.Path != "" {
			out.Dim("   " + sec.Path)
		}
		out.Indented(snippet(sec.Content, 3))
		out.Newline()
	}
	return nil
}

// snippet returns the first n lines of content, dropping trailing blanks.
func snippet(content string, n int) string {
	lines := strings.Split(content, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}
