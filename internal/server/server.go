package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/michaelbrown/pyexec/internal/executor"
	"github.com/michaelbrown/pyexec/internal/storage"
)

// DefaultMaxBodyBytes caps request bodies when Options leaves it unset.
const DefaultMaxBodyBytes = 1 << 20

// Options configures a Server.
type Options struct {
	// Store serves the /executions routes. Nil disables them.
	Store        storage.Store
	Logger       *slog.Logger
	MaxBodyBytes int64
}

// Server is the HTTP front end of the execution pipeline.
type Server struct {
	pipeline *executor.Pipeline
	store    storage.Store
	logger   *slog.Logger
	maxBody  int64
	conns    *ConnManager
	router   chi.Router
	http     *http.Server

	// runCtx outlives individual requests so a client hanging up does
	// not kill its script. It is cancelled only by Shutdown.
	runCtx context.Context
	stop   context.CancelFunc
}

// New creates a new Server.
func New(pipeline *executor.Pipeline, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	runCtx, stop := context.WithCancel(context.Background())
	s := &Server{
		pipeline: pipeline,
		store:    opts.Store,
		logger:   opts.Logger,
		maxBody:  opts.MaxBodyBytes,
		conns:    NewConnManager(),
		router:   chi.NewRouter(),
		runCtx:   runCtx,
		stop:     stop,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Post("/execute", s.handleExecute)
	r.Get("/execute/ws", s.handleExecuteWS)
	r.Get("/status", s.handleStatus)

	r.Route("/executions", func(r chi.Router) {
		r.Get("/", s.handleListExecutions)
		r.Get("/{id}", s.handleGetExecution)
	})
}

// requestLogger logs one line per request once the handler returns.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration", time.Since(start),
					"request_id", middleware.GetReqID(r.Context()),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening on the given port. It returns nil after a
// graceful Shutdown.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("pyexec server starting", "addr", "http://localhost"+addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, waits up to 10s for in-flight
// executions, then kills whatever is still running.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	defer s.stop()
	s.conns.CloseAll()

	if s.http == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return s.http.Shutdown(shutdownCtx)
}
