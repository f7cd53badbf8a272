package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"

	"cdcam/internal/audit"
	"cdcam/internal/directory"
	"cdcam/internal/directory/resolver"
	httpapi "cdcam/internal/http"
	"cdcam/internal/lifecycle"
	"cdcam/internal/platform/config"
	"cdcam/internal/platform/httpserver"
	"cdcam/internal/platform/kafka/producer"
	"cdcam/internal/platform/logger"
	"cdcam/internal/platform/metrics"
	platformredis "cdcam/internal/platform/redis"
	"cdcam/internal/registration"
	reghandler "cdcam/internal/registration/handler"
	"cdcam/internal/webhook"
	"cdcam/internal/webhook/keycache"
)

const lifecycleQueueSize = 256

// main wires dependencies and owns the process lifecycle. Business logic
// lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(slog.LevelInfo)
	ctx := context.Background()

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	tracer := otel.Tracer("cdcam")

	redisClient, err := platformredis.NewClient(ctx, log, cfg.Redis.URL)
	if err != nil {
		fatal(log, "redis setup failed", err)
	}

	var notifier producer.Producer = producer.Noop{}
	if cfg.Kafka.Brokers != "" {
		notifier, err = producer.New(log, cfg.Kafka.Brokers)
		if err != nil {
			fatal(log, "kafka setup failed", err)
		}
	}
	defer notifier.Close()

	var recorder audit.Recorder = audit.NewMemoryStore()
	var auditStore *audit.PostgresStore
	if cfg.PostgresURL != "" {
		auditStore, err = audit.NewPostgresStore(ctx, cfg.PostgresURL)
		if err != nil {
			fatal(log, "audit store setup failed", err)
		}
		defer auditStore.Close()
		recorder = auditStore
	}

	dirClient := directory.NewClient(
		&http.Client{Timeout: cfg.Directory.Timeout},
		log, tracer, m,
		directory.Credentials{
			APIKey:  cfg.Directory.APIKey,
			UserKey: cfg.Directory.UserKey,
			Secret:  cfg.Directory.Secret,
		},
	)

	primary := directory.Tenant{Name: config.PrimaryTenantName, APIDomain: cfg.Directory.PrimaryAPIDomain}
	secondary := directory.Tenant{Name: config.SecondaryTenantName, APIDomain: cfg.Directory.SecondaryAPIDomain}
	accounts := resolver.New(dirClient, log, primary, secondary, cfg.SecondarySupported())

	regService := registration.NewService(accounts, dirClient, notifier, recorder, log, tracer, m, registration.Config{
		RequestLimit:    cfg.Reg.RequestLimit,
		EmailValidation: cfg.Reg.EmailValidationEnabled,
		Concurrency:     cfg.Reg.Concurrency,
	})
	regHandler := reghandler.New(regService, log, cfg.Reg.PasswordSetupURL)

	keys := keycache.New(dirClient, redisClient, log, m, cfg.Redis.KeyTTL)
	lifecycleService := lifecycle.NewService(dirClient, primary, notifier, recorder, log)
	pool := lifecycle.NewPool(lifecycleService, log, cfg.WorkerCount, lifecycleQueueSize)
	webhookHandler := webhook.NewHandler(keys, pool, recorder, primary, log, m)

	router := httpapi.NewRouter(log, registry, regHandler, webhookHandler)
	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting cdcam",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
		"secondary_dc", cfg.SecondarySupported(),
	)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(log, "server error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}

	// Finish queued lifecycle work before releasing the producer and stores.
	pool.Close()

	if redisClient != nil {
		_ = redisClient.Close()
	}
}

func fatal(log *slog.Logger, msg string, err error) {
	log.Error(msg, "error", err)
	os.Exit(1)
}
