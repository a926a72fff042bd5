/**
 * @description
 * This file sets up the HTTP router for the promotion-service. It defines the
 * API endpoints, associates them with their corresponding handlers, and applies
 * middleware for logging, panic recovery, CORS, and internal authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// PromotionRoutes creates and returns a new router for the promotion service.
func PromotionRoutes(h *PromotionHandlers, internalAPIKey string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Internal-API-Key"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// All remaining routes are server-to-server (conversational agent layer,
	// operator tooling) and require the internal API key.
	r.Group(func(r chi.Router) {
		r.Use(InternalAuthMiddleware(internalAPIKey))

		// Conversational agent boundary (read-only).
		r.Get("/active", h.ActivePromotionsHandler)
		r.Get("/accounts/{accountID}/enrollments", h.AccountEnrollmentsHandler)
		r.Get("/{promotionID}/enrollments/{accountID}", h.EnrollmentStatusHandler)

		// Management interface.
		r.Get("/", h.ListPromotionsHandler)
		r.Post("/", h.CreatePromotionHandler)
		r.Post("/{promotionID}/deactivate", h.DeactivatePromotionHandler)
	})

	return r
}
