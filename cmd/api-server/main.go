package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/saraivavision/booking-api/internal/api"
	"github.com/saraivavision/booking-api/internal/booking"
	"github.com/saraivavision/booking-api/internal/config"
	"github.com/saraivavision/booking-api/internal/db"
	"github.com/saraivavision/booking-api/internal/outbox"
	"github.com/saraivavision/booking-api/internal/ratelimit"
	"github.com/saraivavision/booking-api/internal/redisclient"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("config load error")
	}

	logger := newLogger(cfg.Env).With().Str("service", "api-server").Logger()
	logger.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loc, err := time.LoadLocation(cfg.ClinicTimezone)
	if err != nil {
		logger.Fatal().Err(err).Str("timezone", cfg.ClinicTimezone).Msg("load clinic timezone")
	}

	schedule, err := booking.NewWorkSchedule(cfg.ScheduleStart, cfg.ScheduleEnd, cfg.SlotMinutes, loc)
	if err != nil {
		logger.Fatal().Err(err).Msg("build work schedule")
	}

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing redis")
		}
	}()
	logger.Info().Msg("connected to Redis")

	repo := booking.NewPgRepository(pgPool)
	avail := booking.NewAvailabilityStore(repo, schedule)
	tokens := booking.NewTokenService(repo, loc)
	limiter := ratelimit.NewLimiter(rdb, cfg.RateLimitWindow, cfg.RateLimitMax)
	jobs := outbox.NewPgRepository(pgPool)

	svc := booking.NewService(repo, avail, tokens, limiter, jobs, schedule, logger)

	router := api.NewRouter(api.RouterConfig{
		Service:          svc,
		Reconciler:       jobs,
		ClinicLocation:   loc,
		WebhookSecret:    cfg.WebhookSecret,
		WebhookTolerance: cfg.WebhookTolerance,
		PgPool:           pgPool,
		Redis:            rdb,
		Env:              cfg.Env,
		Version:          version,
		Logger:           logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-rootCtx.Done()

	logger.Info().Msg("shutting down api-server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "dev" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
