package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"booking-scheduler/internal/app"
	"booking-scheduler/internal/booking"
	"booking-scheduler/internal/calendar"
	"booking-scheduler/internal/config"
	"booking-scheduler/internal/jobs"
	"booking-scheduler/internal/logging"
	"booking-scheduler/internal/metrics"
	"booking-scheduler/internal/notify"
	"booking-scheduler/internal/payment"
	"booking-scheduler/internal/server"
	"booking-scheduler/internal/store"
)

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

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
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
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable, calendar connect and job queue will fail", zap.Error(err))
	}

	m := metrics.New(nil)

	// The client stays a nil interface when Google is not configured; the
	// calendar service then reports ErrNotConfigured.
	var calClient calendar.Client
	google, err := calendar.NewGoogleClient(calendar.GoogleConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	})
	switch {
	case err == nil:
		calClient = google
	case errors.Is(err, calendar.ErrNotConfigured):
		logger.Warn("Google Calendar not configured, external busy checks limited to cached intervals")
	default:
		logger.Fatal("google calendar client", zap.Error(err))
	}
	calSvc := calendar.NewService(calClient, st, calendar.NewRedisStateStore(rdb, calendar.StateTTL), logger, m,
		calendar.Config{SyncWindow: cfg.SyncWindow(), RefreshMargin: cfg.CalendarRefreshMargin})

	lifecycle := booking.NewLifecycle(st, logger,
		booking.WithBusySource(calSvc),
		booking.WithNotifier(notify.NewService(st, logger)),
		booking.WithMetrics(m),
	)

	queue := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer func() { _ = queue.Close() }()

	webhook := payment.NewWebhookHandler(cfg.StripeWebhookSecret, cfg.StripeWebhookTolerance, lifecycle, st, logger)
	if cfg.StripeWebhookSecret == "" {
		logger.Warn("STRIPE_WEBHOOK_SECRET not set, payment webhooks will be rejected")
	}

	a := app.New(app.Deps{
		Bookings: lifecycle,
		Catalog:  st,
		Calendar: calSvc,
		Queue:    jobs.NewEnqueuer(queue),
		Logger:   logger,
	})
	router := app.NewRouter(a, app.RouterConfig{
		Auth:           app.NewAuthenticator(cfg.JWTHMACSecret, cfg.StaticTokenList()),
		StripeWebhook:  webhook.Handle,
		Metrics:        promhttp.Handler(),
		RequestsPerMin: cfg.MaxRequestsPerMin,
		CORSOrigins:    cfg.CORSOrigins(),
	})

	if err := server.Run(ctx, cfg.AppPort, router, logger); err != nil {
		logger.Fatal("http server", zap.Error(err))
	}
	logger.Info("server stopped")
}
