package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/postmaster/postmaster-backend/internal/auth"
	"github.com/postmaster/postmaster-backend/internal/tracing"
)

// publish calls LinkedIn several times in sequence; the bound sits above the
// outbound client timeout.
const requestTimeout = 90 * time.Second

func (h *Handler) Routes(m *Middleware, corsOrigins []string, rateLimitRPM int, metricsHandler http.Handler) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(m.RequestID)
	r.Use(tracing.Middleware("postmaster-api"))
	r.Use(m.RequestLogger)
	r.Use(m.Recoverer)
	r.Use(m.SecurityHeaders)
	r.Use(m.Compress)
	r.Use(m.Timeout(requestTimeout))
	r.Use(middleware.Heartbeat("/ping"))

	// CORS and rate limiting - configured from main
	r.Use(m.CORS(corsOrigins))
	r.Use(m.RateLimit(rateLimitRPM))

	// Health endpoints
	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		// The callback validates state against the session itself.
		r.With(auth.Optional(h.Verifier)).Get("/auth/linkedin/callback", h.LinkedInCallback)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(h.Verifier))

			// LinkedIn accounts
			r.Route("/linkedin", func(r chi.Router) {
				r.Get("/connect", h.ConnectLinkedIn)
				r.Delete("/connect", h.DisconnectLinkedIn)
				r.Get("/accounts", h.ListAccounts)
				r.Patch("/accounts", h.UpdateAccount)
				r.Delete("/accounts", h.RemoveAccount)
				r.Post("/set-primary", h.SetPrimaryAccount)
				r.Get("/test", h.TestLinkedIn)
			})

			// Posts
			r.Route("/posts", func(r chi.Router) {
				r.Get("/", h.ListPosts)
				r.Post("/", h.CreatePost)
				r.Post("/publish", h.PublishPost)
				r.Post("/sweep", h.SweepPosts)
				r.Post("/generate", h.GeneratePost)
				r.Get("/{id}", h.GetPost)
				r.Put("/{id}", h.UpdatePost)
				r.Delete("/{id}", h.DeletePost)
				r.Post("/{id}/duplicate", h.DuplicatePost)
				r.Patch("/{id}/status", h.SetPostStatus)
			})

			r.Post("/upload", h.UploadImage)
			r.Get("/dashboard", h.GetDashboard)

			// Live updates
			r.Get("/events", h.HandleSSE)
			r.Get("/ws", h.HandleWebSocket)
		})
	})

	return r
}
