package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/user/ptyhub/internal/config"
	"github.com/user/ptyhub/internal/server"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the session server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath, cmd.Flags())
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if err := setupLogging(cfg, opts.stdout); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv, err := server.New(ctx, cfg, server.Options{})
			if err != nil {
				return err
			}
			fmt.Fprintf(opts.stdout, "\nptyhub running at %s\n\n", cfg.BaseURL())
			return srv.Start(ctx)
		},
	}

	f := cmd.Flags()
	f.String("host", config.DefaultHost, "listen address")
	f.Int("port", config.DefaultPort, "server port (1-65535)")
	f.Int("cols", config.DefaultCols, "initial terminal columns")
	f.Int("rows", config.DefaultRows, "initial terminal rows")
	f.Int("max-lines", 0, "completed lines kept per session (0 keeps all)")
	f.Int("max-bytes", 0, "raw output bytes kept per session (0 keeps all)")
	f.String("history-db", "", "session history database (empty disables history)")
	f.String("webhook-url", "", "POST exit notifications to this URL")
	f.String("log-level", "info", "log level: debug, info, warn or error")
	f.String("log-format", "text", "log format: text or json")
	return cmd
}

func setupLogging(cfg *config.Config, w io.Writer) error {
	level, err := cfg.SlogLevel()
	if err != nil {
		return err
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(w, handlerOpts)
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(w, handlerOpts)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}
