// Package cmd provides the CLI commands for cascade-docs.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/cascadedocs/cascade/internal/logging"
	"github.com/cascadedocs/cascade/pkg/version"
)

var (
	debugMode      bool
	dataDirFlag    string
	loggingCleanup func()
)

// NewRootCmd creates the root command for the cascade-docs CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cascade-docs",
		Short: "Local-first documentation retrieval for AI coding assistants",
		Long: `cascade-docs indexes versioned library documentation and serves it
through a four-layer cascade (query cache, metadata match, full-text
search, and hybrid semantic rerank) that returns the first confident
match instead of always paying for the most expensive layer.

Run 'cascade-docs serve' to expose it as an MCP server, or use the
ingest/search/context/list/inspect subcommands directly.`,
		Version: version.Version,
	}

	cmd.SetVersionTemplate("cascade-docs version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug logging to the log directory")
	cmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "override the configured data directory")

	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newContextCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newInspectCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func startLogging(cmd *cobra.Command, _ []string) error {
	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false
	if debugMode {
		logCfg = logging.DebugConfig()
		logCfg.WriteToStderr = false
	}

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		// Logging is diagnostic, not essential: a broken log directory
		// should never block a search or ingest from running.
		slog.Warn("failed to set up file logging", slog.String("error", err.Error()))
		return nil
	}
	slog.SetDefault(logger)
	loggingCleanup = cleanup
	return nil
}

func stopLogging(cmd *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		return fmt.Errorf("cascade-docs: %w", err)
	}
	return nil
}
