package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/saturnino-fabrica-de-software/vigia/internal/api"
	"github.com/saturnino-fabrica-de-software/vigia/internal/audit"
	"github.com/saturnino-fabrica-de-software/vigia/internal/config"
	"github.com/saturnino-fabrica-de-software/vigia/internal/database"
	"github.com/saturnino-fabrica-de-software/vigia/internal/generator"
	"github.com/saturnino-fabrica-de-software/vigia/internal/repository"
	"github.com/saturnino-fabrica-de-software/vigia/internal/service"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := config.NewLogger(cfg.Environment)
	slog.SetDefault(logger)

	logger.Info("starting Vigia CAPTCHA",
		slog.String("environment", cfg.Environment),
		slog.String("storage", cfg.StorageBackend),
		slog.Int("port", cfg.Port),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	gen := generator.NewDefaultRegistry(generator.Config{
		Width:       cfg.ImageWidth,
		Height:      cfg.ImageHeight,
		MaxAttempts: cfg.MaxAttempts,
	})

	captchaService := service.NewCaptchaService(store, gen, audit.NewSlogLogger(logger), logger).
		WithTicketTTL(cfg.TicketTTL).
		WithStorageTimeout(cfg.StorageTimeout)

	router := api.NewRouter(logger, &api.Dependencies{
		Service:            captchaService,
		BlockWindow:        cfg.BlockWindow,
		ChallengeRateLimit: cfg.ChallengeRateLimit,
		CleanupInterval:    cfg.CleanupInterval,
	})
	router.Setup()

	errChan := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.Info("server listening", slog.String("addr", addr))
		if err := router.Listen(addr); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("shutting down server...")
	done := make(chan error, 1)
	go func() { done <- router.Shutdown() }()

	select {
	case err := <-done:
		if err != nil {
			logger.Error("shutdown error", slog.Any("error", err))
		}
	case <-time.After(10 * time.Second):
		logger.Warn("shutdown timed out")
	}

	logger.Info("server stopped")
	return nil
}

// openStore builds the configured storage backend and returns its closer.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repository.StorageRepository, func(), error) {
	policy := repository.BlockPolicy{
		Threshold: cfg.BlockThreshold,
		Window:    cfg.BlockWindow,
	}

	switch cfg.StorageBackend {
	case config.BackendRedis:
		client, err := repository.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return repository.NewRedisStore(client, policy), func() { _ = client.Close() }, nil

	case config.BackendPostgres:
		poolCfg := database.DefaultPoolConfig(cfg.DatabaseURL)
		if cfg.AutoMigrate {
			db, err := database.NewPool(poolCfg)
			if err != nil {
				return nil, nil, err
			}
			if err := database.MigrateUp(db, "vigia"); err != nil {
				return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
			}
			logger.Info("migrations applied")
		}

		pool, err := database.NewPgxPool(ctx, poolCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		return repository.NewPostgresStore(pool, policy), pool.Close, nil

	default:
		return repository.NewMemoryStore(policy), func() {}, nil
	}
}
