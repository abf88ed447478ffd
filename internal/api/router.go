/**
 * @description
 * This file sets up the HTTP router for the adapter. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies
 * any necessary middleware.
 *
 * The webhook receiver is intentionally outside the token guard: BlockCypher
 * cannot send credentials, so those endpoints authenticate by obscurity of
 * the per-account id plus payload validation in the engine.
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
)

// AdapterRoutes creates and returns the router for the bitcoin adapter.
func AdapterRoutes(h *AdapterHandlers, adapterSecretKey string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Webhook ingestion, called by BlockCypher.
	r.Post("/api/1/hooks/{kind}", h.WebhookHandler)

	// Management endpoints, called by the ledger platform.
	r.Group(func(r chi.Router) {
		r.Use(AdapterTokenMiddleware(adapterSecretKey))

		r.Post("/api/1/send", h.SendHandler)
		r.Get("/api/1/balance", h.BalanceHandler)
		r.Get("/api/1/account", h.OperatingAccountHandler)
		r.Post("/api/1/accounts", h.CreateUserAccountHandler)
	})

	return r
}
