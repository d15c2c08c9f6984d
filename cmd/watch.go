package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/conneroisu/sfclive/internal/logging"
	"github.com/conneroisu/sfclive/internal/validation"
	"github.com/conneroisu/sfclive/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch <file.vue>",
	Short: "Re-render a component whenever it changes",
	Long: `Render a single-file component and render it again every time the file
changes on disk. Each render is printed in the selected output format.
This is useful for checking a component from the terminal without the
preview server.

Examples:
  sfclive watch Hello.vue                  # Print the trace of every render
  sfclive watch Hello.vue --output html    # Print the document of every render`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

var watchFlags *RenderFlags

func init() {
	rootCmd.AddCommand(watchCmd)
	watchFlags = AddRenderFlags(watchCmd)
	watchFlags.Output = OutputTrace
	watchCmd.Flags().Lookup("output").DefValue = OutputTrace
}

func runWatch(cmd *cobra.Command, args []string) error {
	if err := watchFlags.ValidateFlags(); err != nil {
		return err
	}
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	props, err := watchFlags.ParseProps()
	if err != nil {
		return err
	}
	path := args[0]
	if err := validation.ValidateSourceFile(path); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := newSession(cfg, logger, watchFlags, cmd.OutOrStdout(), cmd.ErrOrStderr())
	defer s.close()

	fileWatcher, err := watchSource(ctx, s, logger, path, props, cfg.Watch.Debounce)
	if err != nil {
		return err
	}
	defer fileWatcher.Stop()

	fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s (Ctrl+C to stop)\n", path)
	<-ctx.Done()
	return nil
}

// renderPath reads path and renders it through s.
func renderPath(ctx context.Context, s *session, path string, props map[string]any) error {
	source, err := validation.ReadSource(path)
	if err != nil {
		return err
	}
	return s.write(s.render(ctx, source, props))
}

// watchSource renders path once and again after every debounced change. The
// returned watcher must be stopped by the caller.
func watchSource(ctx context.Context, s *session, logger logging.Logger, path string, props map[string]any, debounce time.Duration) (*watcher.FileWatcher, error) {
	fileWatcher, err := watcher.NewFileWatcher(debounce, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fileWatcher.AddFile(path); err != nil {
		_ = fileWatcher.Stop()
		return nil, err
	}
	fileWatcher.AddFilter(watcher.SourceFilter)
	fileWatcher.AddFilter(watcher.NoHiddenFilter)
	fileWatcher.AddHandler(func(ctx context.Context, events []watcher.ChangeEvent) error {
		for _, event := range events {
			if event.Type == watcher.EventTypeDeleted {
				logger.Info(ctx, "Component source removed", "path", event.Path)
				continue
			}
			logger.Debug(ctx, "Component source changed", "path", event.Path, "change", event.Type.String())
			if err := renderPath(ctx, s, event.Path, props); err != nil {
				return err
			}
		}
		return nil
	})

	if err := renderPath(ctx, s, path, props); err != nil {
		_ = fileWatcher.Stop()
		return nil, err
	}
	if err := fileWatcher.Start(ctx); err != nil {
		_ = fileWatcher.Stop()
		return nil, err
	}
	return fileWatcher, nil
}
