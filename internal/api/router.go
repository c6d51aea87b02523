// Package api exposes the HTTP surface: public subscription endpoints and
// the admin API for subscribers and campaigns. Handlers are a thin shell
// over the service layer.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/almanara/newsletter/internal/config"
	"github.com/almanara/newsletter/internal/service/campaign"
	"github.com/almanara/newsletter/internal/service/subscriber"
)

// Handlers holds the service dependencies for all HTTP handlers.
type Handlers struct {
	subscribers *subscriber.Service
	campaigns   *campaign.Service
}

// NewHandlers creates the handler set.
func NewHandlers(subs *subscriber.Service, camps *campaign.Service) *Handlers {
	return &Handlers{subscribers: subs, campaigns: camps}
}

// SetupRoutes configures all API routes.
func SetupRoutes(h *Handlers, rl config.RateLimitConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", h.HealthCheck)

	// Public endpoints, rate limited per IP
	limiter := newIPLimiter(rl.RequestsPerMinute, rl.Burst)
	r.Route("/api/newsletter", func(r chi.Router) {
		r.Use(limiter.middleware)
		r.Post("/subscribe", h.Subscribe)
		r.Get("/unsubscribe", h.Unsubscribe)
		r.Post("/unsubscribe", h.Unsubscribe)
		r.Get("/verify", h.VerifyEmail)
	})

	// Admin API
	r.Route("/api", func(r chi.Router) {
		r.Route("/subscribers", func(r chi.Router) {
			r.Get("/", h.ListSubscribers)
			r.Get("/stats", h.SubscriberStats)
			r.Get("/tags", h.SubscriberTags)
			r.Get("/export", h.ExportSubscribers)
			r.Post("/import", h.ImportSubscribers)
			r.Post("/bulk-status", h.BulkUpdateStatus)
		})

		r.Route("/campaigns", func(r chi.Router) {
			r.Get("/", h.ListCampaigns)
			r.Post("/", h.CreateCampaign)
			r.Get("/stats", h.CampaignStats)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetCampaign)
				r.Put("/", h.UpdateCampaign)
				r.Delete("/", h.DeleteCampaign)
				r.Post("/send", h.SendCampaign)
				r.Post("/schedule", h.ScheduleCampaign)
				r.Post("/cancel", h.CancelCampaign)
				r.Post("/events", h.CampaignEvents)
			})
		})
	})

	return r
}

// HealthCheck reports service liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
