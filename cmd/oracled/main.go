package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/mohamedkhairy/price-oracle/internal/api"
	"github.com/mohamedkhairy/price-oracle/internal/config"
	"github.com/mohamedkhairy/price-oracle/internal/keeper"
	"github.com/mohamedkhairy/price-oracle/internal/notify"
	"github.com/mohamedkhairy/price-oracle/internal/pubsub"
	"github.com/mohamedkhairy/price-oracle/internal/registry"
	"github.com/mohamedkhairy/price-oracle/internal/storage"
	"github.com/mohamedkhairy/price-oracle/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Init(cfg.LogLevel, cfg.Environment); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting price oracle service",
		logger.String("oracles", cfg.OraclesPath),
		logger.Int("port", cfg.API.Port),
		logger.Int("health_port", cfg.API.HealthCheckPort),
		logger.Duration("keeper_interval", cfg.Keeper.Interval),
	)

	oracles, err := config.LoadOracles(cfg.OraclesPath)
	if err != nil {
		logger.Fatal("Failed to load oracle definitions", logger.ErrorField(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checks := make(map[string]api.ReadinessCheck)

	// Redis is optional: without it there are no redis feeds, no event
	// stream and no status keys
	var redisClient storage.RedisClient
	if cfg.Redis.Enabled {
		client, err := pubsub.NewRedisClient(cfg.Redis)
		if err != nil {
			logger.Fatal("Failed to initialize Redis client", logger.ErrorField(err))
		}
		defer client.Close()
		redisClient = client
		checks["redis"] = client.Ping
	}

	// The event store is optional as well
	var eventStore storage.EventStore
	if cfg.Database.Enabled {
		store, err := storage.NewPostgresEventStore(cfg.Database, storage.WriteConfigFromEventStoreConfig(cfg.EventStore))
		if err != nil {
			logger.Fatal("Failed to initialize event store", logger.ErrorField(err))
		}
		if err := store.Start(); err != nil {
			logger.Fatal("Failed to start event store", logger.ErrorField(err))
		}
		defer store.Close()
		eventStore = store
		checks["event_store"] = func(ctx context.Context) error {
			if !store.IsRunning() {
				return fmt.Errorf("event store is not running")
			}
			return nil
		}
	}

	notifier := notify.NewNotifier()

	var publisher *pubsub.EventPublisher
	if redisClient != nil || eventStore != nil {
		publisher = pubsub.NewEventPublisher(redisClient, eventStore, pubsub.EventPublisherConfigFrom(cfg.Publisher))
		publisher.Start()
		notifier.Subscribe(publisher.Listener())
	}

	built, err := registry.Build(ctx, oracles, registry.Dependencies{
		Notifier: notifier,
		Redis:    redisClient,
	})
	if err != nil {
		logger.Fatal("Failed to build oracles", logger.ErrorField(err))
	}
	reg := built.Registry

	hooks := []keeper.Option{
		keeper.WithRunHook(func(ctx context.Context, results []keeper.Result) {
			reg.Record(results)
		}),
	}
	if redisClient != nil {
		statusWriter := pubsub.StatusWriterFrom(redisClient, cfg.Publisher)
		hooks = append(hooks, keeper.WithRunHook(func(ctx context.Context, results []keeper.Result) {
			// Errors are logged by the writer
			_ = statusWriter.Write(ctx, reg.Statuses())
		}))
	}

	k, err := keeper.NewKeeper(keeper.ConfigFrom(cfg.Keeper), built.Jobs, hooks...)
	if err != nil {
		logger.Fatal("Failed to create keeper", logger.ErrorField(err))
	}
	if err := k.Start(); err != nil {
		logger.Fatal("Failed to start keeper", logger.ErrorField(err))
	}
	checks["keeper"] = func(ctx context.Context) error {
		if !k.IsRunning() {
			return fmt.Errorf("keeper is not running")
		}
		return nil
	}

	logger.Info("Price oracle service started",
		logger.Int("oracles", reg.Len()),
		logger.Int("jobs", len(built.Jobs)),
		logger.Bool("redis", redisClient != nil),
		logger.Bool("event_store", eventStore != nil),
	)

	// Set up router
	router := mux.NewRouter()
	api.NewOracleHandler(reg, eventStore).RegisterRoutes(router)

	middlewares := api.ChainMiddleware(
		api.CORSMiddleware(cfg.API.AllowedOrigins),
		api.RequestIDMiddleware(),
		api.LoggingMiddleware(),
		api.ErrorHandlingMiddleware(),
		api.RateLimitMiddleware(ctx, cfg.API.RateLimitRPS),
	)

	apiServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.API.Port),
		Handler:      middlewares(router),
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	healthServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.API.HealthCheckPort),
		Handler:      api.NewHealthRouter(checks),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	var wg sync.WaitGroup
	for _, srv := range []*http.Server{apiServer, healthServer} {
		wg.Add(1)
		go func(srv *http.Server) {
			defer wg.Done()
			logger.Info("Starting HTTP server", logger.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP server failed",
					logger.String("addr", srv.Addr),
					logger.ErrorField(err),
				)
			}
		}(srv)
	}

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	logger.Info("Shutting down price oracle service")

	// Stop updates first so no events are emitted after the publisher closes
	k.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	for _, srv := range []*http.Server{apiServer, healthServer} {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown failed",
				logger.String("addr", srv.Addr),
				logger.ErrorField(err),
			)
		}
	}
	wg.Wait()

	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error("Failed to flush events on shutdown", logger.ErrorField(err))
		}
	}

	stats := k.GetStats()
	logger.Info("Price oracle service stopped",
		logger.Int("runs", int(stats.Runs)),
		logger.Int("updates", int(stats.Updates)),
		logger.Int("errors", int(stats.Errors)),
	)
}
