package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Group(func(r chi.Router) {
			r.Use(s.rateLimitMiddleware)

			r.Post("/auth/login", s.handleLogin)

			// WebSocket authenticates with a ticket, validated in the handler.
			r.Get("/ws", s.handleWebSocket)

			r.Group(func(r chi.Router) {
				r.Use(s.authMiddleware)

				r.Post("/auth/ws-ticket", s.handleWSTicket)

				r.Get("/state", s.handleGetState)

				r.Route("/chain", func(r chi.Router) {
					r.Get("/", s.handleListBlocks)
					r.Get("/validate", s.handleValidateChain)
					r.Get("/print", s.handlePrintChain)
				})

				r.Route("/credentials", func(r chi.Router) {
					r.Get("/", s.handleListCredentials)
					r.Post("/", s.handleCreateCredential)
					r.Get("/{alias}", s.handleGetCredential)
					r.Delete("/{alias}", s.handleDeleteCredential)
				})

				r.Route("/thresholds", func(r chi.Router) {
					r.Get("/", s.handleGetThresholds)
					r.Put("/{kind}", s.handleSetThreshold)
				})

				r.Get("/audit", s.handleListAudit)
			})
		})
	})

	return r
}
