package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cascadedocs/cascade/internal/output"
)

func newContextCmd() *cobra.Command {
	var docName string
	var format string

	cmd := &cobra.Command{
		Use:   "context <query>",
		Short: "Search and estimate a token budget for the matched content",
		Long: `context runs the same retrieval as search, then additionally estimates
how many tokens the returned content would cost a caller pasting it
into a prompt.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			engine, err := openEngine()
			if err != nil {
				return fmt.Errorf("failed to open engine: %w", err)
			}
			defer func() { _ = engine.Close() }()

			result, err := engine.ShowContext(cmd.Context(), query, docName)
			if err != nil {
				return fmt.Errorf("context lookup failed: %w", err)
			}

			if format == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}

			out := output.New(cmd.OutOrStdout())
			out.Statusf("", "~%d tokens across %d section(s)", result.PreviewTokens, len(result.Results))
			out.Newline()
			for i, sec := range result.Results {
				out.Status("", fmt.Sprintf("%d. %s / %s", i+1, sec.DocName, sec.Title))
				out.Indented(sec.Content)
				out.Newline()
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&docName, "doc", "", "restrict the search to one document by name")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format: text, json")

	return cmd
}
