package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/druidgo/druid-boot/internal/autoconfigure"
	"github.com/druidgo/druid-boot/internal/server/middleware"
)

// readyTimeout bounds the data source ping of the readiness probe.
const readyTimeout = 5 * time.Second

// Config holds the HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	CORSOrigins     []string
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		ShutdownTimeout: 30 * time.Second,
		CORSOrigins:     []string{"*"},
	}
}

// Server hosts the registrations produced by the auto-configuration: the
// filters wrap every matching request and the servlets are mounted under
// their URL mappings.
type Server struct {
	cfg        Config
	router     chi.Router
	result     *autoconfigure.Result
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new Server, wires up all routes and middleware, and returns
// it ready to listen. result may be inactive, in which case only the health
// probes are served.
func New(cfg Config, result *autoconfigure.Result, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if result == nil {
		result = &autoconfigure.Result{}
	}
	s := &Server{
		cfg:    cfg,
		result: result,
		logger: logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(chimw.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(chimw.Compress(5))

	// --- Filter registrations ---
	for _, f := range s.result.Filters {
		r.Use(scoped(f))
		s.logger.Debug("filter registered", "name", f.Name, "url_patterns", f.URLPatterns)
	}

	// --- Health checks ---
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)

	// --- Servlet registrations ---
	for _, sv := range s.result.Servlets {
		h := allowMethods(sv.Methods, sv.Handler)
		for _, mapping := range sv.URLMappings {
			prefix := autoconfigure.MountPrefix(mapping)
			if prefix == "/" {
				r.Handle("/*", h)
			} else {
				r.Mount(prefix, h)
			}
			s.logger.Debug("servlet registered", "name", sv.Name, "url_mapping", mapping)
		}
	}

	s.router = r
}

// scoped applies a filter only to requests whose path matches one of its URL
// patterns. A "/*" pattern applies it to everything.
func scoped(f autoconfigure.FilterRegistration) func(http.Handler) http.Handler {
	if slices.Contains(f.URLPatterns, "/*") {
		return f.Middleware
	}
	return func(next http.Handler) http.Handler {
		filtered := f.Middleware(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if middleware.MatchAny(f.URLPatterns, r.URL.Path) {
				filtered.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// allowMethods answers 405 to any method not in methods. An empty list
// allows every method.
func allowMethods(methods []string, next http.Handler) http.Handler {
	if len(methods) == 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !slices.Contains(methods, r.Method) {
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleHealthz is a liveness probe. Returns 200 if the process is running.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReadyz is a readiness probe. Returns 200 when the data source
// answers a ping, or 503 when it does not.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	httpStatus := http.StatusOK
	checks := make(map[string]string)

	if ds := s.result.DataSource; ds != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := ds.PingContext(ctx); err != nil {
			checks[ds.Name()] = "error: " + err.Error()
			status = "degraded"
		} else {
			checks[ds.Name()] = "ok"
		}
	}

	if status != "ok" {
		httpStatus = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]any{
		"status": status,
		"checks": checks,
	})
}

// ListenAndServe starts the HTTP server and blocks until a SIGINT or SIGTERM
// is received. It then performs a graceful shutdown, draining in-flight
// requests before closing the data source.
func (s *Server) ListenAndServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx)
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.result.Close()
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	if err := s.result.Close(); err != nil {
		s.logger.Warn("close data source", "error", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying Chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
