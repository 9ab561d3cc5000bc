package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/cuongbtq/recording-worker/internal/api/handler"
	"github.com/cuongbtq/recording-worker/internal/api/router"
	"github.com/cuongbtq/recording-worker/internal/config"
	"github.com/cuongbtq/recording-worker/internal/lifecycle"
	"github.com/cuongbtq/recording-worker/internal/storage"
	"github.com/cuongbtq/recording-worker/internal/worker"
	"github.com/cuongbtq/recording-worker/internal/worker/cleaner"
	"github.com/cuongbtq/recording-worker/internal/worker/recorder"
	"github.com/cuongbtq/recording-worker/internal/worker/uploader"
	"github.com/cuongbtq/recording-worker/shared/logger"
	"github.com/cuongbtq/recording-worker/shared/postgresql"
	"github.com/cuongbtq/recording-worker/shared/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file (empty to use environment only)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("queue", cfg.RabbitMQ.Queue),
	)

	rec, err := recorder.New(recorder.Config{
		Dir:        cfg.Recorder.Dir,
		Command:    cfg.Recorder.Command,
		Args:       cfg.Recorder.Args,
		OutputDir:  cfg.Recorder.OutputDir,
		OutputFile: cfg.Recorder.OutputFile,
		Timeout:    cfg.Recorder.Timeout,
	}, appLogger.WithComponent("recorder"))
	if err != nil {
		return fmt.Errorf("failed to initialize recorder: %w", err)
	}

	// The run ledger is optional; the pipeline never depends on it
	var (
		dbClient *postgresql.Client
		ledger   worker.Ledger
	)
	if cfg.Database.Enabled {
		dbClient, err = initPostgreSQL(&cfg.Database, appLogger.WithComponent("postgresql"))
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer dbClient.Close()

		ledger = storage.NewStorage(dbClient.GetDB(), appLogger.WithComponent("storage"))
		appLogger.Info("Run ledger enabled")
	}

	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.WithComponent("rabbitmq"))
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}

	appLogger.Info("RabbitMQ connection established")

	// Signals close the broker handle; the consume loop then drains and returns
	coordinator := lifecycle.NewCoordinator(rabbitClient.Close, appLogger.WithComponent("lifecycle"))
	coordinator.Trap()
	defer coordinator.Stop()

	if cfg.Server.Port > 0 {
		srv := startHealthServer(cfg, appLogger.Logger, rabbitClient, dbClient)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				appLogger.Warn("Health server shutdown failed", slog.Any("error", err))
			}
		}()
	}

	workerInstance := worker.NewWorker(&worker.Config{
		Logger:            appLogger.WithComponent("worker"),
		Broker:            rabbitClient,
		Recorder:          rec,
		Uploader:          uploader.New(cfg.Upload.Timeout, appLogger.WithComponent("uploader")),
		Clean:             cleaner.Clean,
		Ledger:            ledger,
		UploadURITemplate: cfg.Upload.URI,
		UploadSecret:      cfg.Upload.Secret,
		Placeholder:       cfg.Upload.Placeholder,
		RequeueOnFailure:  cfg.RequeueOnFailure(),
		ConsumerTag:       cfg.RabbitMQ.Consumer.Tag,
	})

	appLogger.Info("Worker service started successfully",
		slog.String("artifact", rec.ArtifactPath()),
	)

	runErr := workerInstance.Start(context.Background())

	// A signal-driven close must settle before the exit status is decided
	if err := coordinator.Wait(); err != nil {
		return err
	}

	if runErr != nil {
		appLogger.Error("Worker stopped unexpectedly", slog.Any("error", runErr))
		if closeErr := rabbitClient.Close(); closeErr != nil {
			appLogger.Warn("Failed to close RabbitMQ client", slog.Any("error", closeErr))
		}
		return fmt.Errorf("worker stopped: %w", runErr)
	}

	appLogger.Info("Worker service shutdown complete",
		slog.String("state", coordinator.State().String()),
	)
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.AddSource,
		TimeFormat:   time.RFC3339,
	})
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	return postgresql.NewClient(&postgresql.Config{
		URL:             cfg.URL,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}, logger)
}

// initRabbitMQ connects, declares the durable queue and sets prefetch to one
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	return rabbitmq.NewClient(&rabbitmq.Config{
		URI:           cfg.URI,
		QueueName:     cfg.Queue,
		RetryAttempts: cfg.Connection.RetryAttempts,
		RetryInterval: cfg.Connection.RetryInterval,
		Heartbeat:     cfg.Connection.Heartbeat,
	}, logger)
}

// startHealthServer serves /health and /metrics in the background
func startHealthServer(cfg *config.Config, logger *slog.Logger, rabbitClient *rabbitmq.Client, dbClient *postgresql.Client) *http.Server {
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	checks := map[string]handler.HealthCheck{
		"rabbitmq": func(context.Context) error {
			if !rabbitClient.IsConnected() {
				return rabbitmq.ErrNotConnected
			}
			return nil
		},
	}
	if dbClient != nil {
		checks["database"] = dbClient.HealthCheck
	}

	srv := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router.SetupHealthRouter(&handler.Dependencies{
			Logger:  logger,
			Service: cfg.App.Name,
			Checks:  checks,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Health server failed", slog.Any("error", err))
		}
	}()

	logger.Info("Health server listening", slog.String("address", srv.Addr))
	return srv
}
