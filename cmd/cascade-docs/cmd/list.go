package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cascadedocs/cascade/internal/output"
)

func newListCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List ingested documents",
		RunE: func(cmd *cobra.Command, _ []string) error {
			engine, err := openEngine()
			if err != nil {
				return fmt.Errorf("failed to open engine: %w", err)
			}
			defer func() { _ = engine.Close() }()

			docs, err := engine.ListDocuments(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list documents: %w", err)
			}

			if format == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(docs)
			}

			out := output.New(cmd.OutOrStdout())
			if len(docs) == 0 {
				out.Status("", "No documents ingested yet")
				return nil
			}
			for _, d := range docs {
				out.Statusf("", "%-24s %-10s %d section(s)  %s", d.Name, d.Version, d.Sections, d.DisplayName)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format: text, json")
	return cmd
}
