package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/postmaster/postmaster-backend/internal/accounts"
	"github.com/postmaster/postmaster-backend/internal/apperr"
	"github.com/postmaster/postmaster-backend/internal/auth"
	"github.com/postmaster/postmaster-backend/internal/dashboard"
	"github.com/postmaster/postmaster-backend/internal/generator"
	"github.com/postmaster/postmaster-backend/internal/jobs"
	"github.com/postmaster/postmaster-backend/internal/linkedin"
	"github.com/postmaster/postmaster-backend/internal/posts"
	"github.com/postmaster/postmaster-backend/internal/storage"
	"github.com/postmaster/postmaster-backend/internal/ws"
)

const maxJSONBody = 1 << 20

// Pinger is a dependency probed by readiness checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services the HTTP layer serves.
type Deps struct {
	Posts      *posts.Service
	Publisher  *posts.Publisher
	Accounts   *accounts.Service
	Generator  *generator.Generator
	Uploader   *storage.Uploader
	Dashboard  *dashboard.Service
	Sweeper    *jobs.Sweeper
	LinkedIn   *linkedin.Client
	WSHub      *ws.Hub
	SSEHandler *ws.SSEHandler
	Verifier   *auth.Verifier

	// Checks are probed by /readyz, keyed by name.
	Checks map[string]Pinger

	// PublicOrigin is where the OAuth callback redirects the browser.
	PublicOrigin string
}

type Handler struct {
	Deps
	validate *validator.Validate
	logger   *zap.SugaredLogger
}

func NewHandler(deps Deps, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{
		Deps:     deps,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// Health and ops endpoints
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// Readyz probes the database and cache. LinkedIn health is reported but
// does not fail readiness.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := ReadyResponse{Status: "ready", Checks: make(map[string]string, len(h.Checks))}
	for name, check := range h.Checks {
		if err := check.Ping(ctx); err != nil {
			resp.Status = "unavailable"
			resp.Checks[name] = err.Error()
			continue
		}
		resp.Checks[name] = "ok"
	}
	if h.LinkedIn != nil {
		resp.LinkedIn = h.LinkedIn.Health()
	}

	status := http.StatusOK
	if resp.Status != "ready" {
		status = http.StatusServiceUnavailable
	}
	h.writeJSON(w, status, resp)
}

// WebSocket endpoint
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.WSHub.HandleWebSocket(w, r)
}

// SSE endpoint
func (h *Handler) HandleSSE(w http.ResponseWriter, r *http.Request) {
	h.SSEHandler.HandleSSE(w, r)
}

// currentUser returns the session user; routes behind auth.Middleware
// always have one.
func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request) (*auth.User, bool) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		h.writeError(w, r, apperr.New(apperr.CodeUnauthorized, "Unauthorized"))
	}
	return user, ok
}

// decode reads a JSON body into dst and validates it.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, r, apperr.WrapWithCode(err, apperr.CodeInvalidInput, "Invalid request body"))
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.writeError(w, r, apperr.WrapWithCode(err, apperr.CodeInvalidInput, validationMessage(err)))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return "Invalid " + fe.Field() + ": failed " + fe.Tag() + " check"
	}
	return "Invalid request body"
}

// Utility methods
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warnw("Failed to write response", "error", err)
	}
}

// writeError maps err to its status and writes {"error": message}. Server
// errors are logged and reported to Sentry.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	message := apperr.MessageOf(err)

	if status >= http.StatusInternalServerError {
		h.logger.Errorw("API error",
			"request_id", middleware.GetReqID(r.Context()),
			"code", apperr.CodeOf(err),
			"status", status,
			"error", err,
		)
		if hub := sentry.GetHubFromContext(r.Context()); hub != nil {
			hub.CaptureException(err)
		} else {
			sentry.CaptureException(err)
		}
	} else {
		h.logger.Debugw("API error", "code", apperr.CodeOf(err), "status", status, "message", message)
	}

	h.writeJSON(w, status, ErrorResponse{Error: message})
}
