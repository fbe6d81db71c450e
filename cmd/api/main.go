package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/invoices-service/cmd/api/config"
	"github.com/invoices-service/cmd/api/database"
	"github.com/invoices-service/cmd/api/events"
	invoicehttp "github.com/invoices-service/cmd/api/http"
	"github.com/invoices-service/cmd/api/inmemory"
	"github.com/invoices-service/cmd/api/invoice"
	"github.com/invoices-service/cmd/api/logging"
	"github.com/invoices-service/cmd/api/notifications"
	"github.com/invoices-service/cmd/api/pagecache"

	"github.com/golang-migrate/migrate/v4"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to a YAML config file")
	flag.Parse()

	err := run(*configPath)
	if err != nil {
		log.Println(err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.New(logging.Config{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer logger.Sync()

	repo, closeRepo, err := openRepository(cfg.Database, logger)
	if err != nil {
		return err
	}
	defer closeRepo()

	pages, err := pagecache.New(cfg.Cache.Size, logger)
	if err != nil {
		return err
	}
	invalidators := invoice.Invalidators{pages}

	if len(cfg.Kafka.Brokers) > 0 {
		publisher := events.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		defer publisher.Close()
		invalidators = append(invalidators, publisher)
		logger.Info("publishing invalidations to kafka",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic))
	}

	if cfg.Notifications.Enabled {
		ntfy := notifications.NewNtfy(true, cfg.Notifications.Timeout, cfg.Notifications.BaseURL, &http.Client{})
		invalidators = append(invalidators, ntfy)
		logger.Info("notifying invalidations to ntfy", zap.String("base_url", cfg.Notifications.BaseURL))
	}

	invoiceService := invoice.NewService(repo, invalidators, logger, invoice.WithInvalidationTimeout(cfg.Server.InvalidationTimeout))

	serverConfig := invoicehttp.ServerConfig{
		Port:           cfg.Server.Port,
		RequestTimeout: cfg.Server.RequestTimeout,
		ExposeErrors:   cfg.Server.ExposeErrors,
	}
	invoiceHandler := invoicehttp.NewInvoiceHandler(invoiceService, pages, logger, serverConfig)

	//create and init http server:
	server := invoicehttp.NewServer(serverConfig, invoiceHandler)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", server.Addr))
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("unexpected http server error: %w", err)
		}
		close(serverErr)
	}()

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sc:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-serverErr:
		return err
	}

	ctx, shutdownRelease := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownRelease()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP shutdown error: %w", err)
	}
	logger.Info("Graceful shutdown complete.")
	return nil
}

/* Connects to Postgres and applies the migrations, or falls back to the in-memory store when no database URL is configured. */
func openRepository(cfg config.DatabaseConfig, logger *zap.Logger) (invoice.Repository, func(), error) {
	if cfg.URL == "" {
		logger.Warn("no database url configured, using the in-memory store")
		store, err := inmemory.NewInMemoryStore()
		if err != nil {
			return nil, nil, fmt.Errorf("creating in-memory store: %w", err)
		}
		return store, func() {}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	dbObject, err := database.ConnectDb(ctx, cfg.URL, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting with db: %w", err)
	}

	//apply migrations:
	store := database.NewStore(dbObject)
	err = database.MigrationUp(store, cfg.MigrationsPath)
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		dbObject.Close()
		return nil, nil, fmt.Errorf("migrating: %w", err)
	}

	return store, func() { dbObject.Close() }, nil
}
