package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"booking-scheduler/internal/calendar"
	"booking-scheduler/internal/config"
	"booking-scheduler/internal/jobs"
	"booking-scheduler/internal/logging"
	"booking-scheduler/internal/metrics"
	"booking-scheduler/internal/server"
	"booking-scheduler/internal/store"
)

// The worker runs queued calendar syncs and schedules the periodic full sync.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	if cfg.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to db", zap.Error(err))
	}
	defer pool.Close()
	st := store.New(pool)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer func() { _ = rdb.Close() }()

	var calClient calendar.Client
	google, err := calendar.NewGoogleClient(calendar.GoogleConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	})
	if err != nil {
		logger.Warn("google calendar client unavailable, syncs will fail", zap.Error(err))
	} else {
		calClient = google
	}
	calSvc := calendar.NewService(calClient, st, calendar.NewRedisStateStore(rdb, calendar.StateTTL), logger, metrics.New(nil),
		calendar.Config{SyncWindow: cfg.SyncWindow(), RefreshMargin: cfg.CalendarRefreshMargin})

	sugar := logger.Sugar()
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 4,
		Queues:      map[string]int{"default": 1},
		Logger:      sugar,
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			logger.Error("task failed", zap.String("type", task.Type()), zap.Error(err))
		}),
	})
	mux := asynq.NewServeMux()
	jobs.NewHandlers(calSvc, logger).Register(mux)

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{Logger: sugar, Location: time.UTC})
	entryID, err := jobs.RegisterSchedule(scheduler, cfg.CalendarSyncCron)
	if err != nil {
		logger.Fatal("register calendar sync schedule", zap.String("cron", cfg.CalendarSyncCron), zap.Error(err))
	}
	logger.Info("calendar sync scheduled", zap.String("cron", cfg.CalendarSyncCron), zap.String("entry_id", entryID))

	if err := srv.Start(mux); err != nil {
		logger.Fatal("start worker", zap.Error(err))
	}
	if err := scheduler.Start(); err != nil {
		logger.Fatal("start scheduler", zap.Error(err))
	}

	if cfg.WorkerMetricsPort != "" {
		go func() {
			if err := server.Run(ctx, cfg.WorkerMetricsPort, promhttp.Handler(), logger); err != nil {
				logger.Error("metrics listener", zap.Error(err))
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down worker")
	scheduler.Shutdown()
	srv.Shutdown()
}
