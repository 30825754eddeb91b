package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrorResp is a standard error response body.
type ErrorResp struct {
	Detail string `json:"detail"`
}

// --- Host / Origin allow-list ---

// hostGuard rejects requests whose Host or Origin header is not allow-listed.
// A pattern ending in ":*" matches the bare host and the host with any
// numeric port. Requests without an Origin header pass the origin check.
func hostGuard(hosts, origins []string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !matchAny(hosts, r.Host) {
				logger.Warn("rejected request host", zap.String("host", r.Host))
				writeJSON(w, http.StatusMisdirectedRequest, ErrorResp{Detail: "Invalid Host header"})
				return
			}
			if origin := r.Header.Get("Origin"); origin != "" && !matchAny(origins, origin) {
				logger.Warn("rejected request origin", zap.String("origin", origin))
				writeJSON(w, http.StatusForbidden, ErrorResp{Detail: "Invalid Origin header"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func matchAny(patterns []string, value string) bool {
	value = strings.ToLower(value)
	for _, p := range patterns {
		if matchPattern(strings.ToLower(p), value) {
			return true
		}
	}
	return false
}

func matchPattern(pattern, value string) bool {
	base, wildcard := strings.CutSuffix(pattern, ":*")
	if !wildcard {
		return pattern == value
	}
	if value == base {
		return true
	}
	port, ok := strings.CutPrefix(value, base+":")
	if !ok || port == "" {
		return false
	}
	for _, c := range port {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// --- JSON helpers ---

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

// --- Request logging ---

func requestLogging(next http.Handler, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", sw.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush keeps streamed MCP responses working through the wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
