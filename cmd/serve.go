package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/sfclive/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the preview server",
	Long: `Start the preview server. The server renders components posted to
/api/render, serves the mounted component at /preview and streams paced
trace events and updates to websocket clients at /ws.

With --watch the given file is rendered at startup and again every time
it changes.

Examples:
  sfclive serve                          # Serve on localhost:8080
  sfclive serve --port 3000              # Serve on another port
  sfclive serve --watch Hello.vue        # Render and follow a file`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var serveFlags *ServerFlags

func init() {
	rootCmd.AddCommand(serveCmd)
	serveFlags = AddServerFlags(serveCmd)

	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if serveFlags.Watch != "" {
		if err := srv.WatchFile(ctx, serveFlags.Watch); err != nil {
			_ = srv.Shutdown(context.Background())
			return fmt.Errorf("failed to watch %s: %w", serveFlags.Watch, err)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Starting sfclive preview at http://%s/preview\n", cfg.Server.Addr())
	if cfg.Scheduler.Enabled {
		fmt.Fprintf(cmd.OutOrStdout(), "Trace events paced between %s and %s\n",
			cfg.Scheduler.MinDelay, cfg.Scheduler.MaxDelay)
	}

	return srv.Start(ctx)
}
