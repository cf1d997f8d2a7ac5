package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kestrelhq/callflow/internal/http/handlers"
	httpmiddleware "github.com/kestrelhq/callflow/internal/http/middleware"
	"github.com/kestrelhq/callflow/pkg/logging"
)

const (
	defaultWebhookRate  = 10
	defaultWebhookBurst = 20
)

// Config holds router configuration. Nil handlers leave their routes
// unregistered so binaries can mount only the surface they serve.
type Config struct {
	Logger       *logging.Logger
	Health       *handlers.HealthHandler
	Dispatch     *handlers.DispatchHandler
	Stats        *handlers.StatsHandler
	VoiceWebhook *handlers.VoiceWebhookHandler

	// WebhookSecret guards the provider webhook. Empty disables the route's
	// auth middleware, which in turn answers 401 to everything.
	WebhookSecret string
	AdminJWT      httpmiddleware.AdminJWTConfig

	MetricsHandler http.Handler

	// Webhook rate limit knobs; zero values take the defaults.
	WebhookRate  float64
	WebhookBurst int
}

// New creates a Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(middleware.Timeout(60 * time.Second))

	rate := cfg.WebhookRate
	if rate <= 0 {
		rate = defaultWebhookRate
	}
	burst := cfg.WebhookBurst
	if burst <= 0 {
		burst = defaultWebhookBurst
	}

	// Public endpoints (webhook, health, metrics)
	r.Group(func(public chi.Router) {
		if cfg.Health != nil {
			public.Get("/health", cfg.Health.Health)
		}
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.VoiceWebhook != nil {
			public.With(
				httpmiddleware.WebhookSecret(cfg.WebhookSecret),
				httpmiddleware.RateLimit(rate, burst),
			).Post("/api/v1/webhooks/voice", cfg.VoiceWebhook.HandleVoice)
		}
	})

	// Admin endpoints (protected by bearer JWT)
	r.Route("/api/v1/dispatch", func(admin chi.Router) {
		admin.Use(httpmiddleware.AdminJWT(cfg.AdminJWT))
		if cfg.Dispatch != nil {
			admin.Post("/run", cfg.Dispatch.RunCycle)
			admin.Get("/cycles", cfg.Dispatch.ListCycles)
		}
		if cfg.Stats != nil {
			admin.Get("/stats", cfg.Stats.Stats)
		}
	})

	return r
}
