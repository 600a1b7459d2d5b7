package cli

import (
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/quorum/internal/serve"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the consensus HTTP API",
		Long: `Start an HTTP server exposing the consensus pipeline.

Endpoints:
  GET  /api/v1/health     liveness check
  POST /api/v1/consensus  run a consensus session

Example:
  quorum serve --addr 127.0.0.1:8787
  curl -s localhost:8787/api/v1/consensus -d '{"query":"is the sky blue?"}'`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger := setupLogger(cfg)

			if addr == "" {
				addr = cfg.Serve.Addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			runner := newSessionBuilder(cfg, logger)
			server := serve.NewServer(runner, cfg.RequestTimeout(), logger)
			if err := server.ListenAndServe(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			logger.Info("api server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")

	return cmd
}
