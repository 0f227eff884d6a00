package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	httpHandlers "github.com/greenpay/usage-limiter/internal/adapters/http/handlers"
	"github.com/greenpay/usage-limiter/internal/adapters/metrics"
	memorystorage "github.com/greenpay/usage-limiter/internal/adapters/storage/memory"
	redisstorage "github.com/greenpay/usage-limiter/internal/adapters/storage/redis"
	"github.com/greenpay/usage-limiter/internal/config"
	"github.com/greenpay/usage-limiter/internal/core/ports"
	"github.com/greenpay/usage-limiter/internal/core/services"
	"github.com/greenpay/usage-limiter/internal/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	logger.Init(logger.Config{Level: cfg.App.LogLevel, Environment: cfg.App.Env})

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewRecorder(registry)

	storage, closeFn, err := initStorage(cfg.Storage, recorder)
	if err != nil {
		log.Fatal().Err(err).Str("storage", cfg.Storage.Type).Msg("failed to init storage")
	}
	defer closeFn()

	limiter, err := services.NewUsageLimiterService(storage, services.Config{
		Limits:  cfg.Usage.Limits(),
		Metrics: recorder,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create usage limiter")
	}

	router := httpHandlers.NewRouter(limiter, httpHandlers.RouterConfig{
		IdentityHeader: cfg.Server.IdentityHeader,
		Metrics:        recorder.Handler(),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("storage", cfg.Storage.Type).
			Int("minute_limit", cfg.Usage.MinuteLimit).
			Int("daily_limit", cfg.Usage.DailyLimit).
			Msg("starting usage limiter")
		if err := srv.ListenAndServe(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func initStorage(cfg config.StorageConfig, recorder *metrics.Recorder) (ports.UsageStore, func(), error) {
	switch cfg.Type {
	case "memory":
		storage, err := memorystorage.New(memorystorage.Config{MaxIdentities: cfg.MaxIdentities})
		if err != nil {
			return nil, nil, err
		}
		recorder.TrackIdentities(storage.Len)
		log.Warn().Msg("in-memory usage store: limits are enforced per instance")
		return storage, func() {}, nil
	case "redis":
		storage, err := redisstorage.New(redisstorage.Config{
			Addr:       fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			KeyPrefix:  cfg.Redis.KeyPrefix,
			MaxRetries: cfg.Redis.MaxRetries,
		})
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("host", cfg.Redis.Host).Int("db", cfg.Redis.DB).Msg("connected to redis usage store")
		return storage, func() {
			if err := storage.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close redis storage")
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
