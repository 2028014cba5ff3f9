package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aescanero/dagrun/internal/config"
	blobmemory "github.com/aescanero/dagrun/pkg/adapters/blob/memory"
	s3blob "github.com/aescanero/dagrun/pkg/adapters/blob/s3"
	eventsmemory "github.com/aescanero/dagrun/pkg/adapters/events/memory"
	redisevents "github.com/aescanero/dagrun/pkg/adapters/events/redis"
	promcollector "github.com/aescanero/dagrun/pkg/adapters/metrics/prometheus"
	storagememory "github.com/aescanero/dagrun/pkg/adapters/storage/memory"
	redisstorage "github.com/aescanero/dagrun/pkg/adapters/storage/redis"
	"github.com/aescanero/dagrun/pkg/api/grpc"
	"github.com/aescanero/dagrun/pkg/api/http"
	"github.com/aescanero/dagrun/pkg/api/websocket"
	"github.com/aescanero/dagrun/pkg/ports"
)

func runServe(cmd *cobra.Command, _ []string) error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize logger
	logger := initLogger(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	logger.Info("starting dagrun",
		zap.String("version", Version),
		zap.String("build_time", BuildTime))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var redisClient *goredis.Client
	if cfg.UsesRedis() {
		redisClient = newRedisClient(cfg.Redis)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error("Redis close error", zap.Error(err))
			}
		}()
		logger.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))
	}

	// Initialize adapters
	storage := newRunStore(cfg, redisClient, logger)

	eventBus, err := newEventBus(cfg, redisClient, logger)
	if err != nil {
		return err
	}

	blobs, err := newBlobStore(ctx, cfg, logger)
	if err != nil {
		return err
	}

	metricsCollector := promcollector.NewCollector(prometheus.DefaultRegisterer)

	eng, err := newEngine(cfg, logger, storage, eventBus, blobs, metricsCollector)
	if err != nil {
		return err
	}

	// Initialize API servers
	httpServer := http.NewServer(&http.Config{
		Port:         cfg.HTTPPort,
		Orchestrator: eng.manager,
		Health:       eng.pool,
		Blobs:        blobs,
		Logger:       logger,
	})
	httpServer.SetupWebSocket(websocket.NewHandler(eventBus, logger).HandleRunStream)

	grpcServer, err := grpc.NewServer(&grpc.Config{
		Port:   cfg.GRPCPort,
		Health: eng.pool,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	logger.Info("dagrun started",
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("grpc_port", cfg.GRPCPort),
		zap.String("storage", cfg.Backends.Storage),
		zap.String("events", cfg.Backends.Events),
		zap.String("artifacts", cfg.Artifacts.Backend),
		zap.Int("worker_pool_size", cfg.Workers.PoolSize))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(httpServer.Start)
	g.Go(grpcServer.Start)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("received shutdown signal")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.ShutdownTimeout)
		defer cancel()

		// Stop intake first, then let active runs wind down.
		return errors.Join(
			httpServer.Shutdown(shutdownCtx),
			grpcServer.Shutdown(shutdownCtx),
			eng.shutdown(shutdownCtx),
			eventBus.Close(),
		)
	})

	if err := g.Wait(); err != nil {
		logger.Error("dagrun stopped with error", zap.Error(err))
		return err
	}

	logger.Info("dagrun shut down complete")
	return nil
}

func newRedisClient(cfg config.RedisConfig) *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
}

func newRunStore(cfg *config.Config, client *goredis.Client, logger *zap.Logger) ports.RunStore {
	if cfg.Backends.Storage == "redis" {
		return redisstorage.NewReportStorage(client, cfg.Backends.ReportTTL, logger)
	}
	return storagememory.NewReportStorage()
}

func newEventBus(cfg *config.Config, client *goredis.Client, logger *zap.Logger) (ports.EventBus, error) {
	if cfg.Backends.Events == "redis" {
		// Broadcast mode: every replica's websocket clients see every event.
		bus, err := redisevents.NewStreamsEventBus(client, "", "", cfg.Backends.StreamMaxLen, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create event bus: %w", err)
		}
		return bus, nil
	}
	return eventsmemory.NewInMemoryEventBus(logger), nil
}

func newBlobStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ports.BlobStore, error) {
	if cfg.Artifacts.Backend == "s3" {
		store, err := s3blob.New(ctx, s3blob.Config{
			Bucket:   cfg.Artifacts.Bucket,
			Region:   cfg.Artifacts.Region,
			Prefix:   cfg.Artifacts.Prefix,
			Endpoint: cfg.Artifacts.Endpoint,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create artifact store: %w", err)
		}
		return store, nil
	}
	return blobmemory.NewBlobStore(), nil
}
