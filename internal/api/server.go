// Package api serves the station catalog and transition calculations over HTTP.
package api

import (
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/aekmcb/Lunar-Stations/internal/auth"
	"github.com/aekmcb/Lunar-Stations/internal/health"
	"github.com/aekmcb/Lunar-Stations/internal/lunar"
	"github.com/aekmcb/Lunar-Stations/internal/metrics"
	"github.com/aekmcb/Lunar-Stations/internal/store"
)

// publicRoutes need no token when auth is enabled.
var publicRoutes = auth.Policy{
	"/",
	"/index.html",
	"/healthz",
	"/readyz",
	"/metrics",
	"/api/v1/catalog",
	"/api/v1/catalog/",
}

// Options configures the HTTP layer.
type Options struct {
	Auth               auth.Config
	TrustProxy         bool
	MaxConcurrentPerIP int
	Ready              map[string]health.Check // readiness checks by name
	Static             fs.FS                   // request form served at /; nil disables it
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server. results may be nil, in which
// case every request is computed.
func NewServer(addr string, logger *slog.Logger, engine *lunar.Engine, results store.Store, opts Options) *Server {
	mux := http.NewServeMux()

	h := &handlers{
		engine:     engine,
		results:    results,
		limiter:    newLimiter(opts.MaxConcurrentPerIP),
		trustProxy: opts.TrustProxy,
		logger:     logger,
	}

	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(opts.Ready))
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /api/v1/catalog", h.catalog)
	mux.HandleFunc("GET /api/v1/catalog/{index}", h.station)
	mux.HandleFunc("GET /api/v1/transitions", h.transitions)
	if opts.Static != nil {
		mux.Handle("GET /", http.FileServerFS(opts.Static))
	}

	// Build middleware chain: metrics -> logging -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(opts.Auth, publicRoutes)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = metrics.Middleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      5 * time.Minute, // a year at 1s resolution takes a while
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// probePath returns true for health/readiness probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", r.RemoteAddr,
			)
		})
	}
}
