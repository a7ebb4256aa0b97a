package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/voyagen/epgvault/internal/fetcher"
	"github.com/voyagen/epgvault/internal/scheduler"
	"github.com/voyagen/epgvault/internal/store"
)

// Cycles is the scheduler surface the API drives.
type Cycles interface {
	Trigger(ctx context.Context, trigger string) (string, error)
	TriggerProvider(ctx context.Context, providerID int64) (string, error)
	Status() scheduler.Status
}

// FeedChecker tests whether a provider feed is reachable.
type FeedChecker interface {
	Check(ctx context.Context, url string) (*fetcher.CheckResult, error)
}

// Server holds dependencies for the HTTP API.
type Server struct {
	store   store.Store
	cycles  Cycles
	checker FeedChecker
	port    string
	now     func() time.Time
	mux     *http.ServeMux
}

// New creates a Server and registers routes.
func New(s store.Store, cycles Cycles, checker FeedChecker, port string) *Server {
	srv := &Server{store: s, cycles: cycles, checker: checker, port: port, now: time.Now, mux: http.NewServeMux()}
	srv.routes()
	return srv
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)

	// Providers
	s.mux.HandleFunc("GET /api/providers", s.handleListProviders)
	s.mux.HandleFunc("POST /api/providers", s.handleCreateProvider)
	s.mux.HandleFunc("GET /api/providers/{id}", s.handleGetProvider)
	s.mux.HandleFunc("PATCH /api/providers/{id}", s.handleUpdateProvider)
	s.mux.HandleFunc("DELETE /api/providers/{id}", s.handleDeleteProvider)
	s.mux.HandleFunc("POST /api/providers/{id}/import", s.handleImportProvider)
	s.mux.HandleFunc("GET /api/providers/{id}/test", s.handleTestProvider)

	// Channels and programs
	s.mux.HandleFunc("GET /api/channels", s.handleListChannels)
	s.mux.HandleFunc("GET /api/channels/{id}", s.handleGetChannel)
	s.mux.HandleFunc("GET /api/channels/{id}/programs", s.handleChannelPrograms)
	s.mux.HandleFunc("GET /api/channels/{id}/aliases", s.handleChannelAliases)
	s.mux.HandleFunc("POST /api/channels/{id}/aliases", s.handleCreateAlias)

	// Aliases
	s.mux.HandleFunc("GET /api/aliases", s.handleListAliases)
	s.mux.HandleFunc("GET /api/aliases/mapping", s.handleAliasMapping)
	s.mux.HandleFunc("DELETE /api/aliases/{id}", s.handleDeleteAlias)

	// Import cycles
	s.mux.HandleFunc("POST /api/import/trigger", s.handleTriggerCycle)
	s.mux.HandleFunc("GET /api/import/status", s.handleImportStatus)
	s.mux.HandleFunc("GET /api/import/logs", s.handleImportLogs)

	s.mux.HandleFunc("GET /api/stats", s.handleStats)

	// Docs
	s.mux.HandleFunc("GET /api/docs", handleSwaggerUI)
	s.mux.HandleFunc("GET /api/docs/openapi.yaml", handleOpenAPISpec)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe starts the HTTP server on the configured port.
// It blocks until the server is shut down or ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := ":" + s.port
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      withCORS(withLogging(s)),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("server shutdown: %v", err)
		}
	}()

	log.Printf("listening on %s", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("ListenAndServe: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeErr(w, http.StatusServiceUnavailable, fmt.Errorf("database: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.store.Stats(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// --- middleware ---

// withCORS adds CORS headers to every response and handles preflight OPTIONS requests.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+requestIDHeader)
		w.Header().Set("Access-Control-Expose-Headers", requestIDHeader)
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// requestIDHeader carries the request id; an incoming value is kept.
const requestIDHeader = "X-Request-ID"

// withLogging tags each request with an id and logs it as one line once the
// handler returns. Health probes are not logged.
func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		if r.URL.Path == "/api/health" && sw.status == http.StatusOK {
			return
		}
		short := id
		if len(short) > 8 {
			short = short[:8]
		}
		log.Printf("http %s %-6s %s %s%d\x1b[0m %s", short, r.Method, r.URL.RequestURI(),
			colorForStatus(sw.status), sw.status, formatDuration(time.Since(start)))
	})
}

func colorForStatus(code int) string {
	switch {
	case code < 300:
		return "\x1b[32m" // green
	case code < 400:
		return "\x1b[36m" // cyan
	case code < 500:
		return "\x1b[33m" // yellow
	default:
		return "\x1b[31m" // red
	}
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%dus", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	default:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
}

// --- helpers ---

// APIError is the standard error envelope for all error responses.
type APIError struct {
	Status int    `json:"status"`
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// parseID extracts a path parameter by name and parses it as int64.
func parseID(r *http.Request, param string) (int64, error) {
	v := r.PathValue(param)
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s: %s", param, v)
	}
	return id, nil
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s: %s", name, v)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("writeJSON: %v", err)
	}
}

func writeErr(w http.ResponseWriter, status int, err error) {
	if status >= 500 {
		log.Printf("ERROR %d: %v", status, err)
	}
	writeJSON(w, status, APIError{
		Status: status,
		Error:  http.StatusText(status),
		Detail: err.Error(),
	})
}
