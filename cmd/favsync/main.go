package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"favsync/internal/api/handler"
	"favsync/internal/api/router"
	"favsync/internal/catalog"
	"favsync/internal/config"
	"favsync/internal/downloader"
	"favsync/internal/engine"
	"favsync/internal/events"
	"favsync/internal/store"
	"favsync/shared/logger"
	"favsync/shared/postgresql"
	"favsync/shared/rabbitmq"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
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

	// Parse command-line flags
	defaultConfigPath := os.Getenv("FAVSYNC_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting favsync",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	// Initialize task store
	taskStore, dbClient, err := initStore(cfg, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize task store: %w", err)
	}

	appLogger.Info("Task store initialized", slog.String("driver", cfg.Database.Driver))

	// Initialize lifecycle event publisher
	publisher, rabbitClient, err := initPublisher(cfg, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize event publisher: %w", err)
	}

	// Catalog client handles both listing and postprocess mutations
	bili := catalog.NewBilibiliClient(cfg.Credential, cfg.Sync.RequestTimeout, "", appLogger.Logger)

	yutto := downloader.NewYuttoDownloader(cfg.Downloader.Binary, cfg.Credential.Sessdata, appLogger.Logger)

	// Create the sync engine
	syncEngine := engine.New(&engine.Options{
		Logger:     appLogger.Logger,
		Config:     cfg,
		Store:      taskStore,
		Catalog:    bili,
		Mutator:    bili,
		Downloader: yutto,
		Publisher:  publisher,
	})

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	syncEngine.Start(ctx)

	// Initialize router and HTTP server
	r := initRouter(cfg, appLogger.Logger, taskStore)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed to start",
				slog.Any("error", err),
			)
			os.Exit(1)
		}
	}()

	appLogger.Info("favsync is running",
		slog.String("address", addr),
	)

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	appLogger.Info("Received signal, shutting down gracefully",
		slog.String("signal", sig.String()),
	)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
	}

	// Stop the engine: cancel its loops, then wait for in-flight tasks
	cancel()

	done := make(chan struct{})
	go func() {
		syncEngine.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Engine stopped gracefully")
	case <-shutdownCtx.Done():
		appLogger.Warn("Engine shutdown timeout exceeded, forcing exit")
	}

	// Cleanup function to close all resources
	cleanup := func() {
		if dbClient != nil {
			dbClient.Close()
		}
		if rabbitClient != nil {
			rabbitClient.Close()
		}
	}
	cleanup()

	appLogger.Info("favsync shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initStore builds the task store for the configured driver. The returned
// postgresql client is nil for the memory driver.
func initStore(cfg *config.Config, logger *slog.Logger) (store.Store, *postgresql.Client, error) {
	switch cfg.Database.Driver {
	case "memory":
		return store.NewMemoryStore(), nil, nil
	case "postgres":
		dbClient, err := postgresql.NewClient(&postgresql.Config{
			Host:            cfg.Database.Host,
			Port:            cfg.Database.Port,
			User:            cfg.Database.User,
			Password:        cfg.Database.Password,
			Database:        cfg.Database.Database,
			SSLMode:         cfg.Database.SSLMode,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		}, logger)
		if err != nil {
			return nil, nil, err
		}

		pgStore, err := store.NewPostgresStore(dbClient, logger)
		if err != nil {
			dbClient.Close()
			return nil, nil, err
		}
		return pgStore, dbClient, nil
	default:
		return nil, nil, fmt.Errorf("unknown database driver: %s", cfg.Database.Driver)
	}
}

// initPublisher builds the lifecycle event publisher. With RabbitMQ disabled
// events are dropped.
func initPublisher(cfg *config.Config, logger *slog.Logger) (events.Publisher, *rabbitmq.Client, error) {
	if !cfg.RabbitMQ.Enabled {
		logger.Info("RabbitMQ disabled, task lifecycle events will not be published")
		return events.NoopPublisher{}, nil, nil
	}

	rabbitClient, err := rabbitmq.NewClient(&rabbitmq.Config{
		Host:               cfg.RabbitMQ.Host,
		Port:               cfg.RabbitMQ.Port,
		User:               cfg.RabbitMQ.User,
		Password:           cfg.RabbitMQ.Password,
		VHost:              cfg.RabbitMQ.VHost,
		ExchangeName:       cfg.RabbitMQ.Exchange.Name,
		ExchangeType:       cfg.RabbitMQ.Exchange.Type,
		ExchangeDurable:    cfg.RabbitMQ.Exchange.Durable,
		ExchangeAutoDelete: cfg.RabbitMQ.Exchange.AutoDelete,
		RoutingKey:         cfg.RabbitMQ.RoutingKey,
		RetryAttempts:      cfg.RabbitMQ.Connection.RetryAttempts,
		RetryInterval:      cfg.RabbitMQ.Connection.RetryInterval,
		Heartbeat:          cfg.RabbitMQ.Connection.Heartbeat,
		ConnectionTimeout:  cfg.RabbitMQ.Connection.ConnectionTimeout,
		PublishRetries:     cfg.RabbitMQ.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.RabbitMQ.Publish.RetryInterval,
		PublishBackoffMult: cfg.RabbitMQ.Publish.BackoffMultiplier,
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	return events.NewRabbitMQPublisher(rabbitClient, logger), rabbitClient, nil
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(cfg *config.Config, logger *slog.Logger, taskStore store.Store) *gin.Engine {
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	return router.SetupRouter(&handler.Dependencies{
		Logger: logger,
		Config: cfg,
		Store:  taskStore,
	})
}
