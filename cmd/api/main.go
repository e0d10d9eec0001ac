package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"

	"github.com/atria-app/backend/internal/auth"
	"github.com/atria-app/backend/internal/config"
	"github.com/atria-app/backend/internal/distribution"
	"github.com/atria-app/backend/internal/notify"
	"github.com/atria-app/backend/internal/repository"
	"github.com/atria-app/backend/internal/services"
	"github.com/atria-app/backend/internal/sweep"
)

func main() {
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			os.Exit(1)
		}
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.URL())
	if err != nil {
		logger.Error("unable to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Error("cannot reach PostgreSQL, ensure it is running (e.g. docker-compose up -d)", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to PostgreSQL")

	// River migrations
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		logger.Error("failed to create River migrator", "error", err)
		os.Exit(1)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		logger.Error("River migrate up failed", "error", err)
		os.Exit(1)
	}
	logger.Info("River migrations applied")

	// Repositories
	jobRepo := repository.NewJobRepo(pool)
	providerRepo := repository.NewProviderRepo(pool)
	customerRepo := repository.NewCustomerRepo(pool)
	walletRepo := repository.NewWalletRepo(pool)
	transactionRepo := repository.NewTransactionRepo(pool)
	debtRepo := repository.NewDebtRepo(pool)
	rateRepo := repository.NewRateRepo(pool)
	auditRepo := repository.NewAuditRepo(pool)

	// Notification and distribution publishers, log-only when no broker is
	// configured.
	var notifier services.Notifier = &notify.LogNotifier{Logger: logger}
	if url := cfg.RabbitMQ.BrokerURL(); url != "" {
		pub, err := notify.NewPublisher(url, cfg.RabbitMQ.NotifyExchange, logger)
		if err != nil {
			logger.Warn("RabbitMQ unavailable, notifications go to the log", "error", err)
		} else {
			defer pub.Close()
			notifier = pub
		}
	}

	var distributor services.DistributionNotifier
	if url := cfg.RabbitMQ.BrokerURL(); url != "" {
		pub, err := distribution.NewPublisher(url, cfg.RabbitMQ.DistributionExchange)
		if err != nil {
			logger.Warn("RabbitMQ unavailable, distribution events disabled", "error", err)
		} else {
			defer pub.Close()
			distributor = pub
		}
	}

	// Core services
	calculator := services.NewCalculator(jobRepo, providerRepo, rateRepo, cfg.Commission.DefaultRate)
	arbitrator := services.NewArbitrator(pool, jobRepo, providerRepo, customerRepo, auditRepo, notifier, cfg.Dispatch, logger)
	settlement := services.NewSettlement(pool, jobRepo, walletRepo, debtRepo, transactionRepo, auditRepo, calculator, distributor, notifier, logger)
	lifecycle := services.NewLifecycle(jobRepo, settlement, logger)

	// Background workers: the sweep pass and the daily counter reset, both on
	// a single-worker queue so runs never overlap.
	workers := river.NewWorkers()
	river.AddWorker(workers, sweep.NewSweepWorker(arbitrator, jobRepo, cfg.Sweep.GracePeriod, cfg.Sweep.BatchSize, logger))
	river.AddWorker(workers, sweep.NewDailyResetWorker(providerRepo, logger))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			sweep.QueueName: {MaxWorkers: 1},
		},
		Workers: workers,
		PeriodicJobs: []*river.PeriodicJob{
			river.NewPeriodicJob(
				river.PeriodicInterval(cfg.Sweep.Interval),
				func() (river.JobArgs, *river.InsertOpts) {
					return sweep.SweepArgs{}, &river.InsertOpts{Queue: sweep.QueueName}
				},
				&river.PeriodicJobOpts{RunOnStart: true},
			),
			river.NewPeriodicJob(
				river.PeriodicInterval(24*time.Hour),
				func() (river.JobArgs, *river.InsertOpts) {
					return sweep.DailyResetArgs{}, &river.InsertOpts{Queue: sweep.QueueName}
				},
				nil,
			),
		},
	})
	if err != nil {
		logger.Error("failed to create River client", "error", err)
		os.Exit(1)
	}

	// Auth
	authRepo := auth.NewRepository(pool)
	authSvc := auth.NewService(authRepo)
	authHandler := auth.NewHandler(authSvc, logger)

	mux := http.NewServeMux()
	RegisterRoutes(mux, authHandler, authSvc, jobRepo, walletRepo, transactionRepo, debtRepo, arbitrator, lifecycle, logger)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(mux)

	go func() {
		if err := riverClient.Start(ctx); err != nil && ctx.Err() == nil {
			logger.Error("River client stopped", "error", err)
		}
	}()

	server := &http.Server{
		Addr:         fmt.Sprintf("0.0.0.0:%d", cfg.Server.Port),
		Handler:      corsHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}
	if err := riverClient.Stop(shutdownCtx); err != nil {
		logger.Error("River client shutdown failed", "error", err)
	}
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	if cfg.Format == "console" {
		return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		}))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
