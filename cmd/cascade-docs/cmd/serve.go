package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cascadedocs/cascade/internal/mcpserver"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `serve exposes search_docs, show_context, list_documents, and
add_document as MCP tools over the configured transport (stdio by
default).

Nothing other than the MCP protocol itself is written to stdout: all
diagnostics go to the log file, the same as every other command.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			engine, err := openEngineFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("failed to open engine: %w", err)
			}
			defer func() { _ = engine.Close() }()

			server, err := mcpserver.NewServer(engine)
			if err != nil {
				return fmt.Errorf("failed to create MCP server: %w", err)
			}

			return server.Serve(cmd.Context(), cfg.Server.Transport)
		},
	}

	return cmd
}
