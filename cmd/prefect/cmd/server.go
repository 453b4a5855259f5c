package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/hboehmer-IW/prefect/internal/engine"
	"github.com/hboehmer-IW/prefect/internal/taskqueue"
	"github.com/hboehmer-IW/prefect/pkg/api"
	"github.com/hboehmer-IW/prefect/pkg/metrics"
	"github.com/hboehmer-IW/prefect/pkg/repostats"
	"github.com/hboehmer-IW/prefect/pkg/server"
	"github.com/hboehmer-IW/prefect/pkg/worker"
)

var (
	serverAddr     string
	serverDatabase string
	serverDBPath   string
	serverDSN      string
	serverWorkers  int
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the flow engine HTTP API",
	Long: `Starts the HTTP API with a durable run store and a pool of workers
for scheduled runs.

A "fetch-repo-stats" flow is registered out of the box so the server is
usable immediately:

  curl -X POST localhost:8080/flows/fetch-repo-stats/runs \
    -d '{"parameters":{"owner":"golang","repo":"go"}}'`,
	RunE: runServer,
}

func init() {
	serverCmd.Flags().StringVar(&serverAddr, "addr", ":8080", "listen address")
	serverCmd.Flags().StringVar(&serverDatabase, "database", "sqlite", "run store backend: sqlite, postgres or memory")
	serverCmd.Flags().StringVar(&serverDBPath, "db-path", "prefect.db", "SQLite database path")
	serverCmd.Flags().StringVar(&serverDSN, "dsn", "", "Postgres connection string")
	serverCmd.Flags().IntVar(&serverWorkers, "workers", 2, "number of workers for scheduled runs")
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	obs := api.NewCompositeObserver(
		api.NewLoggingObserver(logger),
		metrics.NewPrometheusObserver(nil),
	)

	var (
		eng   api.Engine
		queue taskqueue.Queue
	)
	switch serverDatabase {
	case "sqlite":
		db, err := sql.Open("sqlite", serverDBPath)
		if err != nil {
			return fmt.Errorf("open sqlite database: %w", err)
		}
		defer db.Close()
		eng, err = engine.NewSQLiteEngineWithObserver(db, obs)
		if err != nil {
			return fmt.Errorf("init engine: %w", err)
		}
		queue, err = taskqueue.NewSQLiteQueue(db)
		if err != nil {
			return fmt.Errorf("init task queue: %w", err)
		}
	case "postgres":
		if serverDSN == "" {
			return fmt.Errorf("--dsn is required with --database=postgres")
		}
		db, err := sql.Open("postgres", serverDSN)
		if err != nil {
			return fmt.Errorf("open postgres database: %w", err)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		eng, err = engine.NewPostgresEngineWithObserver(db, obs)
		if err != nil {
			return fmt.Errorf("init engine: %w", err)
		}
		queue = taskqueue.NewInMemoryQueue(256)
	case "memory":
		eng = engine.NewInMemoryEngineWithObserver(obs)
		queue = taskqueue.NewInMemoryQueue(256)
	default:
		return fmt.Errorf("unknown database backend %q", serverDatabase)
	}

	if err := registerBuiltinFlows(eng); err != nil {
		return err
	}

	w := worker.New(eng, queue)
	h := server.New(eng, logger)
	h.SetWorker(w)

	r := mux.NewRouter()
	h.RegisterRoutes(r)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for i := 0; i < serverWorkers; i++ {
		go w.Run(ctx, func(err error) {
			logger.Error("worker task failed", "error", err)
		})
	}

	srv := &http.Server{
		Addr:    serverAddr,
		Handler: r,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", serverAddr, "database", serverDatabase, "workers", serverWorkers)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

// registerBuiltinFlows registers the flows the server binary ships with.
// Embedders register their own flows programmatically instead.
func registerBuiltinFlows(eng api.Engine) error {
	client := &repostats.Client{}
	return eng.RegisterFlow(api.FlowDefinition{
		Name:        "fetch-repo-stats",
		Description: "Fetch star and fork counts for a GitHub repository",
		Tags:        []string{"builtin", "github"},
		Fn:          client.FlowFn(),
		Retry: &api.RetryPolicy{
			Retries:    3,
			RetryDelay: 2 * time.Second,
		},
		Timeout: 30 * time.Second,
	})
}
