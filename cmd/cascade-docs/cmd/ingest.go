package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/cascadedocs/cascade/internal/output"
	"github.com/cascadedocs/cascade/pkg/docengine"
)

func newIngestCmd() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "ingest <document.json>",
		Short: "Ingest or replace a document from a JSON file",
		Long: `ingest reads a Document JSON file and upserts it by name, replacing
any sections previously ingested under that name.

With --watch, cascade-docs keeps running and re-ingests the file every
time it changes on disk, which is convenient while hand-editing a
document's sections.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]

			engine, err := openEngine()
			if err != nil {
				return fmt.Errorf("failed to open engine: %w", err)
			}
			defer func() { _ = engine.Close() }()

			out := output.New(cmd.OutOrStdout())
			if err := ingestFile(cmd.Context(), engine, out, path); err != nil {
				return err
			}
			if !watch {
				return nil
			}
			return watchAndIngest(cmd.Context(), engine, out, path)
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "keep running and re-ingest the file on every change")
	return cmd
}

func ingestFile(ctx context.Context, engine *docengine.Engine, out *output.Writer, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	result, err := engine.AddDocument(ctx, data)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	out.Statusf("", "Ingested %q: %d section(s)", result.Name, result.SectionsAdded)
	return nil
}

func watchAndIngest(ctx context.Context, engine *docengine.Engine, out *output.Writer, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to start file watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	out.Statusf("", "Watching %s for changes (ctrl-c to stop)", path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := ingestFile(ctx, engine, out, path); err != nil {
				out.Error(err.Error())
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			out.Error(fmt.Sprintf("watch error: %s", err))
		}
	}
}
