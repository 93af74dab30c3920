package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"shopcenter/backend/internal/cache"
	"shopcenter/backend/internal/config"
	"shopcenter/backend/internal/currency"
	"shopcenter/backend/internal/httpapi"
	"shopcenter/backend/internal/ledger"
	"shopcenter/backend/internal/notify"
	"shopcenter/backend/internal/payment"
	"shopcenter/backend/internal/service"
	"shopcenter/backend/internal/store"
	"shopcenter/backend/internal/store/memory"
	pgstore "shopcenter/backend/internal/store/postgres"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback", zap.Error(err))
		}
		repo = pg
		closers = append(closers, pg.Close)
		logger.Info("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		logger.Info("repository: in-memory")
	}

	rateCache := cache.RateCache(cache.NoopRateCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisRateCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, using noop rate cache", zap.Error(err))
		} else {
			rateCache = redisCache
			closers = append(closers, redisCache.Close)
			logger.Info("rate cache: redis")
		}
	} else {
		logger.Info("rate cache: noop")
	}

	creds := payment.NewCredentialProvider(repo, cfg.GatewayDefaults(), logger)
	if err := creds.Reload(ctx); err != nil {
		logger.Warn("gateway credential load failed, using environment defaults only", zap.Error(err))
	}

	gateways := payment.NewRegistry(
		payment.NewCardGateway(creds, logger),
		payment.NewWalletGateway(creds, logger),
		payment.NewMobileGateway(creds, logger),
	)

	rates := currency.NewService(
		cfg.BaseCurrency,
		cfg.ExchangeRateURL,
		time.Duration(cfg.RateCacheTTLMinutes)*time.Minute,
		rateCache,
		logger,
	)

	ldg := ledger.New(repo, logger)
	svc := service.New(repo, ldg, rates, gateways, creds, notify.NewLogNotifier(logger), logger)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.TokenTTLMinutes)*time.Minute, repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, logger)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("commerce backend listening", zap.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Error("close error", zap.Error(err))
		}
	}

	logger.Info("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	return nil
}
