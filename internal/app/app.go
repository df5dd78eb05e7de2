package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ayo6706/fx-wallet/internal/api"
	"github.com/ayo6706/fx-wallet/internal/api/middleware"
	"github.com/ayo6706/fx-wallet/internal/config"
	"github.com/ayo6706/fx-wallet/internal/db"
	"github.com/ayo6706/fx-wallet/internal/fx"
	"github.com/ayo6706/fx-wallet/internal/idempotency"
	"github.com/ayo6706/fx-wallet/internal/notify"
	"github.com/ayo6706/fx-wallet/internal/observability"
	"github.com/ayo6706/fx-wallet/internal/repository"
	"github.com/ayo6706/fx-wallet/internal/service"
	"github.com/ayo6706/fx-wallet/internal/worker"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// walletStore is everything the process needs from a storage backend.
// *repository.Store and *repository.MemoryStore both satisfy it.
type walletStore interface {
	service.WalletStore
	api.Store
	repository.RateHistory
	repository.NotificationWriter
}

// Run wires the ledger, the HTTP server and the background workers, blocking
// until shutdown.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, idemBackend, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	logger.Info("wallet store ready", zap.String("backend", cfg.StoreBackend))

	// redisClient stays a nil interface when REDIS_URL is unset.
	var redisClient redis.Cmdable
	if cfg.RedisURL != "" {
		client, err := newRedisClient(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer client.Close()
		redisClient = client
	} else {
		logger.Warn("REDIS_URL not set; fx cache and notification pub/sub disabled")
	}

	resolverOpts := []service.RateResolverOption{
		service.WithLiveRates(fx.NewFrankfurter(cfg.FXAPIURL, cfg.FXHTTPTimeout)),
		service.WithRateHistory(store, cfg.FXMaxStaleness),
		service.WithFreshHistory(cfg.FXCacheTTL),
		service.WithFallbackRates(fx.NewStatic()),
	}
	if redisClient != nil {
		resolverOpts = append(resolverOpts, service.WithRateCache(fx.NewCache(redisClient, cfg.FXCacheTTL)))
	}
	rates := service.NewRateResolver(resolverOpts...)

	outbox := notify.NewOutbox(cfg.NotificationBuffer)
	sinks := notify.Fanout{notify.NewLogSink(logger), notify.NewStoreSink(store)}
	if redisClient != nil {
		sinks = append(sinks, notify.NewRedisSink(redisClient))
	}

	engine := service.NewEngine(store, rates,
		service.WithFeeSchedule(service.BasisPointFee{BPS: cfg.ExchangeFeeBPS}),
		service.WithPublisher(outbox),
		service.WithTxTimeout(cfg.TxTimeout),
	)
	wallets := service.NewWalletService(store, cfg.SupportedCurrencies)
	reconciliation := service.NewReconciliationService(store)

	stopNotifications := worker.NewNotificationWorker(outbox, sinks).Run(ctx)
	stopRates := worker.NewRateRefreshWorker(rates, cfg.FXBaseCurrencies).
		WithInterval(cfg.FXRefreshInterval).
		Run(ctx)
	stopReconciliation := worker.NewReconciliationWorker(reconciliation).
		WithInterval(cfg.ReconciliationInterval).
		Run(ctx)
	logger.Info("workers started",
		zap.Duration("fx_refresh_interval", cfg.FXRefreshInterval),
		zap.Strings("fx_bases", cfg.FXBaseCurrencies),
		zap.Duration("reconciliation_interval", cfg.ReconciliationInterval),
	)

	router := api.NewRouter(api.Dependencies{
		Logger:         logger,
		JWT:            middleware.NewJWTConfig(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience),
		PublicRPS:      cfg.PublicRateLimitRPS,
		WalletRPS:      cfg.AuthRateLimitRPS,
		Store:          store,
		Redis:          redisClient,
		Idempotency:    idempotency.NewStore(redisClient, idemBackend, cfg.IdempotencyTTL),
		Engine:         engine,
		Wallets:        wallets,
		Rates:          rates,
		Reconciliation: reconciliation,
		Currencies:     cfg.SupportedCurrencies,
	})

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("port", cfg.HTTPPort))
		serverErr <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			runErr = fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	logger.Info("stopping workers")
	stopRates()
	stopReconciliation()
	// Last, so notifications from in-flight requests are flushed.
	stopNotifications()

	logger.Info("shutdown complete")
	return runErr
}

// openStore returns the configured wallet store, the backend for idempotency
// keys and a close func.
func openStore(ctx context.Context, cfg *config.Config) (walletStore, idempotency.Backend, func(), error) {
	if cfg.StoreBackend == config.StoreBackendMemory {
		zap.L().Warn("using in-memory wallet store; balances are lost on restart")
		mem := repository.NewMemoryStore()
		return mem, mem, func() {}, nil
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL, db.WithMaxConns(int32(cfg.DBMaxConns)))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect database: %w", err)
	}
	if err := db.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("migrate database: %w", err)
	}
	store := repository.NewStore(pool, repository.WithMaxRetries(cfg.TxMaxRetries))
	return store, store.Queries(), pool.Close, nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build(zap.Fields(zap.String("service", "fx-wallet")))
}

func newRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
