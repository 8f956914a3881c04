/**
 * @description
 * This file sets up the HTTP router for the subscription-service using the
 * go-chi/chi router. The current-subscription lookup is public; the list and
 * resign endpoints are CRM-only and rate limited.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/projectshell/subscription-service/internal/app"
)

const (
	crmRateLimit  = 60
	crmRateWindow = time.Minute
)

// NewRouter creates a new Chi router and registers the subscription-service routes.
func NewRouter(h *Handler, accessTokenSecret string, limiter *app.RedisRateLimiter) *chi.Mux {
	r := chi.NewRouter()

	// Setup middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Subscription service is healthy"))
	})

	r.Route("/api/v1/subscriptions", func(r chi.Router) {
		// Public endpoint for high-frequency current-subscription lookups
		r.Get("/profile/{profileId}/current", h.handleGetCurrentByProfile)

		// CRM-only routes
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(accessTokenSecret))
			r.Use(RequireCRM)
			r.Use(RateLimitMiddleware(limiter, "crm_subscriptions", crmRateLimit, crmRateWindow))

			r.Get("/", h.handleGetSubscriptions)
			r.Put("/resign/{profileId}", h.handleResignMembership)
		})
	})

	return r
}
