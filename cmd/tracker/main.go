package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/selivandex/price-tracker/internal/adapters/clickhouse"
	"github.com/selivandex/price-tracker/internal/adapters/config"
	"github.com/selivandex/price-tracker/internal/adapters/database"
	"github.com/selivandex/price-tracker/internal/adapters/price"
	redisAdapter "github.com/selivandex/price-tracker/internal/adapters/redis"
	"github.com/selivandex/price-tracker/internal/api"
	"github.com/selivandex/price-tracker/internal/assets"
	"github.com/selivandex/price-tracker/internal/health"
	"github.com/selivandex/price-tracker/internal/ingest"
	"github.com/selivandex/price-tracker/internal/prices"
	"github.com/selivandex/price-tracker/internal/projection"
	"github.com/selivandex/price-tracker/internal/workers"
	"github.com/selivandex/price-tracker/pkg/logger"
	"github.com/selivandex/price-tracker/pkg/worker"
)

func main() {
	// Setup signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nReceived interrupt signal, shutting down...")
		cancel()
	}()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := initConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	// Prices go over the wire as JSON numbers, not strings
	decimal.MarshalJSONWithoutQuotes = true

	logger.Info("price tracker starting...",
		zap.String("price_source", cfg.CoinGecko.BaseURL),
		zap.Duration("update_interval", cfg.Updater.Interval),
	)

	db, err := initDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	assetRepo := assets.NewRepository(db.DB())
	priceRepo := prices.NewRepository(db.DB())

	if err := seedRegistry(ctx, cfg, assetRepo); err != nil {
		return err
	}

	redisClient := initRedis(cfg)
	if redisClient != nil {
		defer redisClient.Close()
	}

	chWriter, chDB := initClickHouse(ctx, cfg, assetRepo)
	if chWriter != nil {
		defer chDB.Close()
		defer chWriter.Close()
	}

	fetcher := price.NewCoinGeckoFetcher(&cfg.CoinGecko)

	var engineOpts []ingest.Option
	var projectionOpts []projection.Option
	checks := []health.Check{{Name: "database", Func: db.Health}}

	if redisClient != nil {
		viewCache := redisClient.ViewCache()
		engineOpts = append(engineOpts,
			ingest.WithLocker(redisClient.UpdateLock()),
			ingest.WithInvalidator(viewCache),
		)
		projectionOpts = append(projectionOpts, projection.WithCache(viewCache))
		checks = append(checks, health.Check{Name: "redis", Func: redisClient.Health})
	}
	if chWriter != nil {
		engineOpts = append(engineOpts, ingest.WithSink(chWriter))
		checks = append(checks, health.Check{Name: "clickhouse", Func: chDB.Health})
	}

	engine := ingest.NewEngine(assetRepo, priceRepo, fetcher, engineOpts...)
	projector := projection.NewService(assetRepo, priceRepo, projectionOpts...)
	checker := health.NewChecker(checks...)

	server := api.NewServer(cfg.HTTP.Port, engine, projector, checker)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	workerGroup := worker.NewWorkerGroup(ctx)
	if cfg.Updater.Interval > 0 {
		workerGroup.Add(workers.NewPriceUpdateWorker(engine), cfg.Updater.Interval)
		workerGroup.Start()
	} else {
		logger.Info("periodic updates disabled, waiting for POST /api/crypto/update-prices")
	}

	checker.SetReady(true)

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			logger.Error("api server failed", zap.Error(err))
		}
	}

	return performGracefulShutdown(cfg, checker, server, workerGroup)
}

// initConfig loads configuration and initializes logger
func initConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return cfg, nil
}

// initDatabase initializes database connection with sqlx and applies migrations
func initDatabase(cfg *config.Config) (*database.DB, error) {
	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := database.RunMigrations(db.Conn(), cfg.Database.MigrationsPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// seedRegistry adds assets configured via ASSET_SEED on top of migration seed data
func seedRegistry(ctx context.Context, cfg *config.Config, repo *assets.Repository) error {
	if len(cfg.Registry.Seed) == 0 {
		return nil
	}

	extra, err := assets.ParseSeed(cfg.Registry.Seed)
	if err != nil {
		return fmt.Errorf("invalid ASSET_SEED: %w", err)
	}

	if _, err := repo.SeedAssets(ctx, extra); err != nil {
		return fmt.Errorf("failed to seed asset registry: %w", err)
	}

	return nil
}

// initRedis connects Redis for update lock and view cache; nil when disabled or unreachable
func initRedis(cfg *config.Config) *redisAdapter.Client {
	if !cfg.Redis.Enabled {
		return nil
	}

	redisClient, err := redisAdapter.New(&cfg.Redis)
	if err != nil {
		logger.Warn("redis not available, running without update lock and cache", zap.Error(err))
		return nil
	}

	logger.Info("redis connection established (redlock)",
		zap.String("addr", cfg.Redis.Addr()),
	)

	return redisClient
}

// initClickHouse sets up the observation mirror; nil when disabled or unreachable
func initClickHouse(ctx context.Context, cfg *config.Config, assetRepo *assets.Repository) (*clickhouse.ObservationBatchWriter, *database.DB) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}

	chDB, err := database.NewClickHouse(&cfg.ClickHouse)
	if err != nil {
		logger.Warn("ClickHouse not available, mirror disabled", zap.Error(err))
		return nil, nil
	}

	repo := clickhouse.NewRepository(chDB.DB())
	if err := repo.EnsureSchema(ctx, cfg.ClickHouse.SchemaPath); err != nil {
		logger.Warn("ClickHouse schema setup failed, mirror disabled", zap.Error(err))
		chDB.Close()
		return nil, nil
	}

	registry, err := assetRepo.ListAssets(ctx)
	if err != nil {
		logger.Warn("failed to load assets for ClickHouse mirror", zap.Error(err))
		chDB.Close()
		return nil, nil
	}

	writer := clickhouse.NewObservationBatchWriter(repo, registry, cfg.ClickHouse.BatchSize, cfg.ClickHouse.FlushInterval)
	logger.Info("✅ ClickHouse observation mirror enabled")

	return writer, chDB
}

// performGracefulShutdown stops accepting traffic, then drains workers
func performGracefulShutdown(cfg *config.Config, checker *health.Checker, server *api.Server, workerGroup *worker.WorkerGroup) error {
	logger.Info("🛑 Shutdown signal received, starting graceful shutdown...")

	checker.SetReady(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("api server stop error", zap.Error(err))
	}

	if workerGroup.Len() > 0 {
		workerGroup.Stop(10 * time.Second)
	}

	select {
	case <-shutdownCtx.Done():
		logger.Warn("⚠️ shutdown timeout exceeded")
		return fmt.Errorf("graceful shutdown timeout")
	default:
		logger.Info("✅ shutdown completed successfully")
	}

	return nil
}
