package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/renalert/renalert/internal/alerting"
	"github.com/renalert/renalert/internal/config"
	"github.com/renalert/renalert/internal/decoder"
	"github.com/renalert/renalert/internal/domain/patient"
	"github.com/renalert/renalert/internal/ingest"
	"github.com/renalert/renalert/internal/platform/db"
	"github.com/renalert/renalert/internal/platform/metrics"
	"github.com/renalert/renalert/internal/platform/middleware"
	"github.com/renalert/renalert/internal/sequencer"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "renalert",
		Short: "Clinical message ingestion and AKI risk alerting service",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(loadHistoryCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Connect to the hospital feed and run the alerting pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func loadHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load-history",
		Short: "Bulk-load historical creatinine results from a CSV file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if path == "" {
				path = cfg.HistoryPath
			}
			if path == "" {
				return fmt.Errorf("--file or HISTORY_PATH is required")
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("open history file: %w", err)
			}
			defer f.Close()

			patients, results, err := patient.LoadHistory(ctx, f, patient.NewRepoPG(pool))
			if err != nil {
				return fmt.Errorf("load history: %w", err)
			}

			fmt.Printf("Loaded %d patient(s), %d result(s).\n", patients, results)
			return nil
		},
	}
	cmd.Flags().String("file", "", "Path to the history CSV (defaults to HISTORY_PATH)")
	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Database
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	repo := patient.NewRepoPG(pool)

	// Historical preload: run once against an empty patients table.
	if cfg.HistoryPath != "" {
		if err := preloadHistory(ctx, pool, repo, cfg.HistoryPath, logger); err != nil {
			logger.Fatal().Err(err).Msg("historical preload failed")
		}
	}

	m := metrics.New()

	// Page recorder (optional)
	var recorder *alerting.PageLog
	if cfg.PageLogPath != "" {
		recorder, err = alerting.OpenPageLog(cfg.PageLogPath)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to open page log")
		}
		defer recorder.Close()
	}

	// Risk pipeline
	pager := alerting.NewHTTPPager(cfg.PagerAddress, cfg.PagerTimeout)
	classifier := alerting.NewHTTPClassifier(cfg.ClassifierURL, cfg.ClassifierTimeout)
	deliverer := alerting.NewDeliverer(pager, alerting.SystemClock(), cfg.PageRetryWait, logger, m)
	evaluator := alerting.NewEvaluator(repo, classifier, deliverer, recorder, cfg.AlertBudget, logger, m)

	// Ingestion. The sequencer outlives the ingest context so queued
	// events still reach the store during shutdown drain.
	seq := sequencer.New(repo, evaluator, logger, m, cfg.EventQueueSize)
	seq.Start(context.Background())
	ingestor := ingest.New(cfg.MLLPAddress, decoder.New(), seq, cfg.MLLPReadTimeout, logger, m)

	ingestDone := make(chan struct{})
	go func() {
		defer close(ingestDone)
		if err := ingestor.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("feed ingestion stopped")
		}
	}()

	// Ops HTTP surface
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(pool))
	e.GET("/metrics", m.Handler())

	go func() {
		addr := ":" + cfg.OpsPort
		logger.Info().Str("addr", addr).Msg("starting ops server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("ops server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")

	// Stop reading from the feed, drain the sequencer queue, then give
	// in-flight alert deliveries a bounded window to finish.
	cancel()
	<-ingestDone
	seq.Close()

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer closeCancel()
	if err := evaluator.Close(closeCtx); err != nil {
		logger.Warn().Err(err).Msg("alert deliveries abandoned at shutdown")
	}

	if err := e.Shutdown(closeCtx); err != nil {
		logger.Error().Err(err).Msg("ops server shutdown failed")
	}
	logger.Info().Msg("stopped")
	return nil
}

// preloadHistory loads the historical CSV exactly once: it is skipped
// whenever the patients table already has rows.
func preloadHistory(ctx context.Context, pool *pgxpool.Pool, repo patient.Repository, path string, logger zerolog.Logger) error {
	var empty bool
	if err := pool.QueryRow(ctx, `SELECT NOT EXISTS (SELECT 1 FROM patients)`).Scan(&empty); err != nil {
		return fmt.Errorf("check patients table: %w", err)
	}
	if !empty {
		logger.Info().Msg("patients table already populated, skipping historical preload")
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open history file: %w", err)
	}
	defer f.Close()

	patients, results, err := patient.LoadHistory(ctx, f, repo)
	if err != nil {
		return err
	}
	logger.Info().Int("patients", patients).Int("results", results).Msg("historical results loaded")
	return nil
}
