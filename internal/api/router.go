package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Dependencies holds the handlers and settings mounted on the HTTP listener.
type Dependencies struct {
	MCP            http.Handler // streamable MCP transport
	Metrics        http.Handler // Prometheus exposition
	AllowedHosts   []string
	AllowedOrigins []string
	Logger         *zap.Logger
}

// NewRouter builds the HTTP router with all routes wired up.
func NewRouter(deps *Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return requestLogging(next, deps.Logger)
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	// MCP endpoint, guarded against DNS rebinding
	r.Group(func(r chi.Router) {
		r.Use(hostGuard(deps.AllowedHosts, deps.AllowedOrigins, deps.Logger))
		r.Handle("/mcp", deps.MCP)
	})

	return r
}
