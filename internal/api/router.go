package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking-agent/internal/agent"
	"github.com/hackgods/clinic-booking-agent/internal/observability"
	"github.com/hackgods/clinic-booking-agent/internal/registry"
	"github.com/hackgods/clinic-booking-agent/internal/session"
)

type RouterConfig struct {
	Chat           ChatService
	Sessions       session.Store
	Registry       registry.Registry
	Ledger         agent.Ledger
	Authorizations AuthorizationService
	PgPool         *pgxpool.Pool
	Redis          *redis.Client
	Logger         zerolog.Logger
	Metrics        *observability.Metrics
	Gatherer       prometheus.Gatherer
	Env            string
	Version        string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger, cfg.Metrics))
	r.Use(middleware.Recoverer)

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Post("/chat", chatHandler(cfg.Chat))
	r.Get("/sessions/{id}/context", sessionContextHandler(cfg.Sessions))

	r.Get("/specialties", listSpecialtiesHandler(cfg.Registry))
	r.Get("/cities", listCitiesHandler(cfg.Registry))
	r.Route("/doctors", func(r chi.Router) {
		r.Get("/", listDoctorsHandler(cfg.Registry))
		r.Get("/{id}", getDoctorHandler(cfg.Registry))
		r.Get("/{id}/availability", availabilityHandler(cfg.Ledger))
		r.Get("/{id}/free-times", freeTimesHandler(cfg.Ledger))
	})

	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", createAppointmentHandler(cfg.Ledger))
		r.Get("/", listAppointmentsHandler(cfg.Ledger))
		r.Get("/{protocol}", getAppointmentHandler(cfg.Ledger))
		r.Post("/{protocol}/cancel", cancelAppointmentHandler(cfg.Ledger))
	})

	r.Post("/procedures/classify", classifyProcedureHandler(cfg.Authorizations))
	r.Get("/procedures/authorizations/{protocol}", getAuthorizationHandler(cfg.Authorizations))

	return r
}
