package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type RouterConfig struct {
	Service          BookingService
	Reconciler       DeliveryReconciler
	ClinicLocation   *time.Location
	WebhookSecret    string
	WebhookTolerance time.Duration
	PgPool           *pgxpool.Pool
	Redis            *redis.Client
	Env              string
	Version          string
	Logger           zerolog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Post("/appointments", createAppointmentHandler(cfg.Service, cfg.Logger))
	r.Get("/appointments/availability", availabilityHandler(cfg.Service, cfg.ClinicLocation))
	r.Get("/appointments/confirm", confirmGetHandler(cfg.Service, cfg.Logger))
	r.Post("/appointments/confirm", confirmPostHandler(cfg.Service, cfg.Logger))

	webhook := NewWebhookHandler(cfg.Reconciler, cfg.WebhookSecret, cfg.WebhookTolerance, cfg.Logger)
	r.Post("/webhooks/notifications", webhook.ServeHTTP)

	return r
}
