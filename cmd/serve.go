package main

import (
	"context"
	"time"

	"github.com/glefebvre/vodharvest/internal/api"
	"github.com/glefebvre/vodharvest/internal/config"
	"github.com/glefebvre/vodharvest/internal/database"
	"github.com/glefebvre/vodharvest/internal/errors"
	"github.com/glefebvre/vodharvest/internal/logger"
	"github.com/glefebvre/vodharvest/internal/metrics"
	"github.com/glefebvre/vodharvest/internal/shutdown"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the latest harvest snapshot over HTTP",
	Long: `Start a read-only HTTP API over the snapshot database written by
"harvest --save-snapshot". Routes:

  GET /health
  GET /metrics
  GET /api/v1/runs/latest
  GET /api/v1/shows?category=&kind=&limit=&offset=
  GET /api/v1/shows/:id
  GET /api/v1/categories`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().Int("port", 0, "listen port (overrides api.port)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	if cmd.Flags().Changed("port") {
		cfg.API.Port, _ = cmd.Flags().GetInt("port")
	}
	log := logger.AppLogger()

	if err := database.Initialize(); err != nil {
		return errors.DatabaseError("failed to open snapshot database", err)
	}
	if err := database.HealthCheck(); err != nil {
		database.Close()
		return errors.DatabaseError("snapshot database unreachable", err)
	}

	srv := api.NewServer(database.NewStore(database.Get()), metrics.New(), cfg.API)

	sh := shutdown.New(10 * time.Second)
	sh.Register("database", func(ctx context.Context) error {
		return database.Close()
	})
	sh.Register("http server", srv.Shutdown)

	ctx, stop := sh.Context(cmd.Context())
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run(cfg.API.Port)
	}()

	select {
	case err := <-errCh:
		sh.Shutdown()
		return err
	case <-ctx.Done():
		log.Info("shutting down API server")
		return sh.Shutdown()
	}
}
