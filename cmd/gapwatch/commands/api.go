package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/gapwatch/internal/api"
	"github.com/wonny/gapwatch/internal/api/handlers"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the dashboard API server",
	Long: `Starts the read-only REST API used by the dashboard.

Endpoints:
  GET  /health                                  - Health check
  GET  /metrics                                 - Prometheus metrics
  GET  /api/datasets/{date}                     - Dataset as JSON
  GET  /api/datasets/{date}/csv                 - Dataset as stored CSV
  GET  /api/datasets/{date}/qualified           - Qualified symbols (?checkpoint=HH:MM)
  GET  /api/scheduler/jobs                      - Job statistics (--with-scheduler)

Example:
  go run ./cmd/gapwatch api
  go run ./cmd/gapwatch api --port 8090 --with-scheduler`,
	RunE: runAPIServer,
}

var (
	apiPort          string
	apiWithScheduler bool
)

func init() {
	rootCmd.AddCommand(apiCmd)

	// Flags
	apiCmd.Flags().StringVar(&apiPort, "port", "", "API server port (default PORT)")
	apiCmd.Flags().BoolVar(&apiWithScheduler, "with-scheduler", false, "also run the checkpoint scheduler in this process")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== gapwatch API Server ===")

	app, err := bootstrap(cmd.Context(), appOptions{})
	if err != nil {
		return err
	}
	defer app.Close()

	// Override port if flag is set
	if apiPort != "" {
		app.Config.Port = apiPort
	}
	log := app.Logger

	deps := api.RouterDeps{
		Datasets: handlers.NewDatasetHandler(app.Store, log),
		Metrics:  app.Metrics,
		Checks:   app.Checks,
		Logger:   log,
	}

	if apiWithScheduler {
		sched, err := app.NewScheduler()
		if err != nil {
			return fmt.Errorf("init scheduler: %w", err)
		}
		sched.Start()
		defer sched.Stop()

		deps.Scheduler = handlers.NewSchedulerHandler(sched)
		log.WithField("jobs", sched.GetAllJobs()).Info("Scheduler started alongside API")
	}

	server := api.New(app.Config, log, api.NewRouter(deps), apiWithScheduler)

	// Start server with graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	fmt.Printf("\n✅ Server running on http://localhost:%s\n", app.Config.Port)
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal or a failed listen
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		if err != nil {
			return err
		}
		return nil
	}

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}
