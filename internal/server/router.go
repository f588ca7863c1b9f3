// Package server is the HTTP surface of the gateway: the mediated
// chat-completions endpoint, the introspection endpoint and health.
package server

import (
	"net/http"
	"time"

	"github.com/the-governor-hq/llm-api/internal/auth"
	"github.com/the-governor-hq/llm-api/internal/chread"
	"github.com/the-governor-hq/llm-api/internal/pipeline"
	"github.com/the-governor-hq/llm-api/internal/provider"
	"github.com/the-governor-hq/llm-api/internal/store"
	"go.uber.org/zap"
)

// Dependencies holds shared state injected into all HTTP handlers.
type Dependencies struct {
	Pipeline *pipeline.Pipeline
	Provider provider.Provider
	Auth     auth.Authenticator // nil disables gateway auth
	Store    *store.Store       // nil disables client admin endpoints
	Reader   *chread.Reader     // nil if ClickHouse unavailable
	Logger   *zap.Logger

	// UpstreamTimeout bounds the materialized upstream exchange. On
	// expiry the request reaches a terminal gateway error, never hangs.
	UpstreamTimeout time.Duration
}

// NewRouter builds the HTTP mux with all routes wired up.
func NewRouter(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/chat/completions", deps.handleChatCompletions)
	mux.HandleFunc("GET /api/governor/status", deps.handleStatus)

	// Client admin (no auth — operator network only)
	mux.HandleFunc("POST /api/governor/clients", deps.handleCreateClient)
	mux.HandleFunc("GET /api/governor/clients", deps.handleListClients)
	mux.HandleFunc("GET /api/governor/clients/{client_id}", deps.handleGetClient)
	mux.HandleFunc("PATCH /api/governor/clients/{client_id}", deps.handleUpdateClient)
	mux.HandleFunc("DELETE /api/governor/clients/{client_id}", deps.handleDeleteClient)
	mux.HandleFunc("POST /api/governor/clients/{client_id}/rotate-key", deps.handleRotateKey)

	// Event inspection (ClickHouse-backed)
	mux.HandleFunc("GET /api/governor/events", deps.handleListEvents)
	mux.HandleFunc("GET /api/governor/events/{request_id}", deps.handleGetEvent)
	mux.HandleFunc("GET /api/governor/analytics", deps.handleAnalytics)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return requestLogging(mux, deps.Logger)
}

// requestLogging wraps the mux with per-request zap logging.
func requestLogging(next http.Handler, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush lets streamed relays reach the client as chunks arrive.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
