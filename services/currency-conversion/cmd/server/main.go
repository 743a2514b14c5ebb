// services/currency-conversion/cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ulule/limiter/v3"
	"go.uber.org/zap"

	"globalpay/services/currency-conversion/internal/config"
	"globalpay/services/currency-conversion/internal/handler"
	"globalpay/services/currency-conversion/internal/models"
	"globalpay/services/currency-conversion/internal/repository"
	"globalpay/services/currency-conversion/internal/service"
	"globalpay/shared/pkg/database"
	"globalpay/shared/pkg/logger"
	"globalpay/shared/pkg/middleware"
	"globalpay/shared/pkg/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Options{
		Service:     "currency-conversion",
		Environment: cfg.Environment,
		Level:       cfg.LogLevel,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid logger configuration: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx := context.Background()

	// Redis is optional; without it quotes stay local to this replica
	var store service.KeyValueStore
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = redis.NewRedisClient(cfg.RedisURL, cfg.RedisPassword)
		if err != nil {
			log.Fatal("failed to create redis client", zap.Error(err))
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = redisClient.Ping(pingCtx)
		cancel()
		if err != nil {
			log.Fatal("failed to connect to redis", zap.Error(err))
		}
		store = redisClient
	}

	// Initialize repositories
	var (
		db           *database.PostgresDB
		balanceStore repository.BalanceStore
		recorder     service.RateRecorder
	)
	switch cfg.LedgerBackend {
	case config.LedgerMemory:
		log.Warn("using in-memory ledger; balances are lost on restart")
		balanceStore = repository.NewMemoryBalanceRepository()
	default:
		db, err = database.NewPostgresDB(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal("failed to connect to database", zap.Error(err))
		}
		if err := db.ApplySchema(ctx, models.BalanceSchema, models.ExchangeRateSchema); err != nil {
			log.Fatal("failed to apply schema", zap.Error(err))
		}
		balanceStore = repository.NewBalanceRepository(db.DB)
		recorder = repository.NewRateRepository(db.DB)
	}

	// Initialize services
	source, err := service.NewRateSource(cfg.RateProvider, cfg.ExchangeAPIURL, cfg.ExchangeAPIKey, cfg.FetchTimeout, log)
	if err != nil {
		log.Fatal("failed to create rate source", zap.Error(err))
	}

	quoteCache := service.NewQuoteCache(store, log)
	quoteManager := service.NewQuoteManager(source, quoteCache, recorder, cfg.CurrencyPairs, cfg.QuoteTTL, cfg.FetchTimeout, log)
	ledger := service.NewLedger(balanceStore, log)
	engine := service.NewConversionEngine(quoteManager, ledger, service.NewCreditPendingAlerter(store, log), log)

	var idempotency *service.IdempotencyCache
	if store != nil {
		idempotency = service.NewIdempotencyCache(store, cfg.IdempotencyTTL, log)
	}

	conversionLimiter, err := middleware.NewLimiter(cfg.RateLimit)
	if err != nil {
		log.Fatal("invalid rate limit", zap.Error(err))
	}

	// Initialize handlers
	currencyHandler := handler.NewCurrencyHandler(quoteManager, engine, idempotency, log)
	accountHandler := handler.NewAccountHandler(ledger, log)

	// Setup router
	router := setupRouter(routerDeps{
		currency:   currencyHandler,
		account:    accountHandler,
		limiter:    conversionLimiter,
		jwtSecret:  cfg.JWTSecret,
		ready:      readinessCheck(db, redisClient),
		production: cfg.Environment != "development",
	}, log)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("starting currency conversion service",
			zap.String("port", cfg.Port),
			zap.String("ledger", cfg.LedgerBackend),
			zap.String("rate_provider", source.Name()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	quoteCache.Close()
	if db != nil {
		if err := db.Close(); err != nil {
			log.Error("failed to close database", zap.Error(err))
		}
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.Error("failed to close redis", zap.Error(err))
		}
	}

	log.Info("server exited")
}

type routerDeps struct {
	currency   *handler.CurrencyHandler
	account    *handler.AccountHandler
	limiter    *limiter.Limiter
	jwtSecret  string
	ready      func(ctx context.Context) error
	production bool
}

func setupRouter(deps routerDeps, log *zap.Logger) *gin.Engine {
	if deps.production {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(log))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.CORS())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	router.GET("/ready", func(c *gin.Context) {
		if err := deps.ready(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	auth := middleware.Auth(deps.jwtSecret, log)

	v1 := router.Group("/api/v1")
	{
		fx := v1.Group("/fx")
		{
			fx.GET("/rates", deps.currency.GetQuote)
			fx.GET("/rates/history/:from/:to", deps.currency.GetRateHistory)
			fx.GET("/supported", deps.currency.GetSupportedCurrencies)
			fx.POST("/convert", auth, middleware.RateLimit(deps.limiter, log), deps.currency.ConvertCurrency)
		}

		accounts := v1.Group("/accounts", auth)
		{
			accounts.GET("/balances", deps.account.GetBalances)
			accounts.POST("/topup", deps.account.TopUp)
		}
	}

	return router
}

func readinessCheck(db *database.PostgresDB, redisClient *redis.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()

		if db != nil {
			if err := db.PingContext(ctx); err != nil {
				return fmt.Errorf("database: %w", err)
			}
		}
		if redisClient != nil {
			if err := redisClient.Ping(ctx); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
		}
		return nil
	}
}
