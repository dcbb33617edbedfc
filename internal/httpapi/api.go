// Package httpapi exposes the planning engine over JSON HTTP. Callers are
// identified by the X-User-ID header; authentication itself is handled by the
// gateway in front of this service.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/mealcycle/mealcycle/internal/service"
)

const userIDHeader = "X-User-ID"

// API holds the HTTP handlers for the planning engine.
type API struct {
	orch   *service.Orchestrator
	logger *zap.Logger
}

// New creates the API.
func New(orch *service.Orchestrator, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{orch: orch, logger: logger}
}

// Router builds the route table.
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(a.logRequests)

	r.Get("/healthz", a.handleHealth)
	r.Route("/api/plan", func(r chi.Router) {
		r.Post("/generate", a.handleGenerate)
		r.Get("/weeks/{start}", a.handleGetWeek)
		r.Post("/weeks/{start}/regenerate", a.handleRegenerateWeek)
		r.Post("/regenerate-future", a.handleRegenerateFuture)
		r.Post("/meals/replace", a.handleReplaceMeal)
		r.Put("/preferences", a.handlePutPreferences)
	})
	return r
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// logRequests emits one structured log line per request.
func (a *API) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		a.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
