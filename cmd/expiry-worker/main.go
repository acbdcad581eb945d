package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/saraivavision/booking-api/internal/booking"
	"github.com/saraivavision/booking-api/internal/config"
	"github.com/saraivavision/booking-api/internal/db"
	"github.com/saraivavision/booking-api/internal/outbox"
	"github.com/saraivavision/booking-api/internal/ratelimit"
	"github.com/saraivavision/booking-api/internal/redisclient"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("config load error")
	}

	logger := newLogger(cfg.Env).With().Str("service", "expiry-worker").Logger()
	logger.Info().Str("env", cfg.Env).Dur("interval", cfg.ExpiryInterval).Msg("starting up")

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

	repo := booking.NewPgRepository(pgPool)
	avail := booking.NewAvailabilityStore(repo, schedule)
	tokens := booking.NewTokenService(repo, loc)
	limiter := ratelimit.NewLimiter(rdb, cfg.RateLimitWindow, cfg.RateLimitMax)
	jobs := outbox.NewPgRepository(pgPool)
	svc := booking.NewService(repo, avail, tokens, limiter, jobs, schedule, logger)

	// Run once at startup
	runOnce(rootCtx, svc, logger)

	ticker := time.NewTicker(cfg.ExpiryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info().Msg("shutdown signal received, stopping expiry worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, logger)
		}
	}
}

func runOnce(ctx context.Context, svc *booking.Service, logger zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	n, err := svc.ExpireOverdue(runCtx)
	if err != nil {
		logger.Error().Err(err).Msg("expiry run error")
		return
	}
	logger.Info().Int("expired", n).Dur("took", time.Since(start)).Msg("expiry run complete")
}

func newLogger(env string) zerolog.Logger {
	if env == "dev" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
