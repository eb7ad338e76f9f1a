package cmd

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/cascadedocs/cascade/internal/ui"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Open an interactive TUI for browsing documents and trying queries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			engine, err := openEngine()
			if err != nil {
				return fmt.Errorf("failed to open engine: %w", err)
			}
			defer func() { _ = engine.Close() }()

			program := tea.NewProgram(ui.New(engine))
			_, err = program.Run()
			return err
		},
	}
}
