package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/michaelbrown/aether/internal/config"
	"github.com/michaelbrown/aether/internal/relay"
	"github.com/michaelbrown/aether/internal/sandbox"
	"github.com/michaelbrown/aether/internal/storage"
)

// Server is the HTTP gateway in front of the sandbox provider.
type Server struct {
	cfg      *config.Config
	relay    *relay.Relay
	store    storage.Store // nil when history is disabled
	sessions *SessionManager
	health   healthResponse
	logger   zerolog.Logger
	router   chi.Router
	http     *http.Server
}

// New creates a new Server. store may be nil.
func New(cfg *config.Config, provider sandbox.Provider, store storage.Store, logger zerolog.Logger) *Server {
	sessions := NewSessionManager()
	s := &Server{
		cfg:      cfg,
		relay:    relay.New(provider, cfg.SandboxPolicy(), sessions, logger),
		store:    store,
		sessions: sessions,
		health: healthResponse{
			Status:   "ONLINE",
			System:   cfg.Server.System,
			Location: cfg.Server.Location,
		},
		logger: logger,
		router: chi.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := s.router

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(s.corsHandler())

	r.Get("/", s.handleHealth)
	r.Get("/health", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		// Shared by both execute routes. Runs after auth.
		limit := s.executionLimit()

		r.With(s.requireAPIKey, limit, jsonContentType).Post("/execute", s.handleExecute)

		// Browsers cannot set headers on a WebSocket handshake.
		r.With(s.requireAPIKeyOrQuery, limit).Get("/execute/stream", s.handleExecuteStream)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAPIKey, jsonContentType)
			r.Get("/executions", s.handleListExecutions)
			r.Get("/executions/{id}", s.handleGetExecution)
			r.Get("/sandboxes", s.handleListSandboxes)
		})
	})
}

// executionLimit caps in-flight executions at server.max_concurrent.
func (s *Server) executionLimit() func(http.Handler) http.Handler {
	if s.cfg.Server.MaxConcurrent <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return middleware.Throttle(s.cfg.Server.MaxConcurrent)
}

func (s *Server) corsHandler() func(http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   s.cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions, http.MethodHead},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: s.cfg.CORS.AllowCredentials,
	}).Handler
}

// jsonContentType sets Content-Type to application/json for API routes.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// requestLogger writes one log line per request.
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			defer func() {
				logger.Info().
					Str("request_id", middleware.GetReqID(r.Context())).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("remote_addr", r.RemoteAddr).
					Int("status", ww.Status()).
					Int("bytes", ww.BytesWritten()).
					Dur("duration", time.Since(start)).
					Msg("request")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Sessions returns the tracker of open sandbox sessions.
func (s *Server) Sessions() *SessionManager {
	return s.sessions
}

// Start begins listening on the given host and port.
func (s *Server) Start(host string, port int) error {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("AETHER gateway starting")
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return nil
}

// Shutdown stops accepting requests, waits for in-flight ones, then destroys
// any sandbox still open (hijacked WebSocket connections are not waited for).
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var err error
	if s.http != nil {
		err = s.http.Shutdown(shutdownCtx)
	}

	closeCtx, closeCancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer closeCancel()
	if n := s.sessions.Count(); n > 0 {
		s.logger.Warn().Int("sandboxes", n).Msg("Destroying sandboxes left open")
	}
	if cerr := s.sessions.CloseAll(closeCtx); cerr != nil {
		s.logger.Error().Err(cerr).Msg("Failed to destroy sandboxes")
		if err == nil {
			err = cerr
		}
	}
	return err
}
