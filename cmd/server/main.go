package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"github.com/notifyhub/workitems/internal/api"
	"github.com/notifyhub/workitems/internal/api/handler"
	"github.com/notifyhub/workitems/internal/config"
	"github.com/notifyhub/workitems/internal/db"
	"github.com/notifyhub/workitems/internal/detector"
	"github.com/notifyhub/workitems/internal/mailer"
	"github.com/notifyhub/workitems/internal/metrics"
	"github.com/notifyhub/workitems/internal/queue"
	"github.com/notifyhub/workitems/internal/ratelimiter"
	"github.com/notifyhub/workitems/internal/recipient"
	"github.com/notifyhub/workitems/internal/repository"
	"github.com/notifyhub/workitems/internal/service"
	"github.com/notifyhub/workitems/internal/worker"
)

func main() {
	// ---- configuration ----
	cfg, err := config.Load()
	if err != nil {
		boot, _ := zap.NewProduction()
		boot.Fatal("failed to load config", zap.Error(err))
	}

	logger := newLogger(cfg.LogLevel)
	defer logger.Sync() //nolint:errcheck

	// ---- database ----
	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DatabaseEnv)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(cfg.MigrationsDir, cfg.DatabaseURL); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	logger.Info("database migrations applied")

	checks := map[string]handler.Check{"postgres": pool.Ping}

	// ---- notification queue ----
	var q queue.Queue
	switch cfg.QueueBackend {
	case "redis":
		client, err := db.ConnectRedis(ctx, cfg.QueueEnv)
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer client.Close()

		rq := queue.NewRedisQueue(client, cfg.RedisQueueKey, logger.Named("queue"))
		// Jobs a previous process dequeued but never acknowledged.
		moved, err := rq.Recover(ctx)
		if err != nil {
			logger.Fatal("failed to recover in-flight jobs", zap.Error(err))
		}
		if moved > 0 {
			logger.Info("recovered in-flight notification jobs", zap.Int("count", moved))
		}
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		q = rq
	default:
		q = queue.New(cfg.QueueCapacity)
	}

	// ---- core dependencies ----
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	items := repository.NewPgWorkItemRepository(pool)
	users := repository.NewPgUserRepository(pool)
	jobs := repository.NewPgJobRepository(pool, logger)

	det := detector.New(q, cfg.EnqueueTimeout, logger.Named("detector"), m.DetectorHooks())
	svc := service.NewWorkItemService(items, jobs, det, logger.Named("service"))

	// ---- workers ----
	// Context for all background goroutines; cancelled on shutdown signal.
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	deps := worker.Deps{
		Queue:     q,
		Items:     items,
		Jobs:      jobs,
		Resolver:  recipient.NewResolver(users),
		Transport: newTransport(cfg.NotifyEnv, logger),
		Limiter:   ratelimiter.New(cfg.RateLimit),
	}
	settings := worker.Settings{
		MaxAttempts: cfg.MaxAttempts,
		Backoff:     cfg.Backoff,
		MailTimeout: cfg.MailTimeout,
	}
	workers := worker.NewPool(cfg.Workers, deps, settings, logger.Named("worker"), m.WorkerHooks())
	workers.Start(workerCtx)

	var background conc.WaitGroup
	retryW := worker.NewRetryWorker(jobs, q, cfg.RetryInterval, cfg.BatchSize, logger.Named("retry"))
	background.Go(func() { retryW.Run(workerCtx) })

	overdue := worker.NewOverdueScanner(items, det, cfg.OverdueInterval, cfg.BatchSize, logger.Named("overdue"))
	background.Go(func() { overdue.Run(workerCtx) })

	background.Go(func() { m.WatchQueueDepth(workerCtx, q.Depth, 5*time.Second) })

	// ---- HTTP server ----
	router := api.NewRouter(svc, q, reg, api.Options{JWTSecret: cfg.JWTSecret, Checks: checks}, logger)
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	// Start server in a goroutine so it does not block the shutdown listener.
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// ---- graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown signal received")

	// 1. Stop accepting new HTTP requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// 2. Signal all workers to stop taking new jobs.
	cancelWorkers()

	// 3. Wait for in-flight jobs and pollers to finish.
	workers.Wait()
	background.Wait()

	logger.Info("server stopped cleanly")
}

func newLogger(level string) *zap.Logger {
	zcfg := zap.NewProductionConfig()
	if lvl, err := zap.ParseAtomicLevel(level); err == nil {
		zcfg.Level = lvl
	}
	logger, err := zcfg.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}

func newTransport(cfg config.NotifyEnv, logger *zap.Logger) mailer.Transport {
	switch cfg.MailTransport {
	case "smtp":
		return mailer.NewSMTPTransport(mailer.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
		})
	case "webhook":
		return mailer.NewWebhookTransport(cfg.WebhookURL, cfg.MailTimeout)
	default:
		return mailer.NewLogTransport(logger.Named("mail"))
	}
}
