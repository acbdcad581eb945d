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
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("config load error")
	}

	logger := newLogger(cfg.Env).With().Str("service", "outbox-worker").Logger()
	logger.Info().Str("env", cfg.Env).Dur("interval", cfg.OutboxInterval).Msg("starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	jobs := outbox.NewPgRepository(pgPool)
	appts := booking.NewPgRepository(pgPool)

	senders := map[outbox.Channel]outbox.Sender{
		outbox.ChannelEmail: outbox.NewEmailSender(
			cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword,
			cfg.EmailFrom, cfg.SiteURL),
		outbox.ChannelMessaging: outbox.NewMessagingSender(
			cfg.MessagingAPIURL, cfg.MessagingAPIKey, cfg.MessagingFrom),
	}

	worker := outbox.NewWorker(jobs, appts, senders, outbox.WorkerConfig{
		MaxTries:    cfg.MaxDeliveryTries,
		BackoffBase: cfg.RetryBackoffBase,
		BatchSize:   cfg.OutboxBatchSize,
	}, logger)

	worker.Run(rootCtx, cfg.OutboxInterval)
}

func newLogger(env string) zerolog.Logger {
	if env == "dev" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
