// Package server exposes blame over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/fastblame/pkg/blame"
	"github.com/Sumatoshi-tech/fastblame/pkg/config"
	"github.com/Sumatoshi-tech/fastblame/pkg/observability"
)

const shutdownTimeout = 10 * time.Second

// ErrBadParameter is returned for a query parameter that is not an integer.
var ErrBadParameter = errors.New("bad query parameter")

// Options wires the server's dependencies. Only Blamer is required.
type Options struct {
	Blamer         blame.Blamer
	Tracer         trace.Tracer
	RED            *observability.REDMetrics
	Logger         *slog.Logger
	MetricsHandler http.Handler
	Version        string
}

// Server routes HTTP requests to a Blamer.
type Server struct {
	router  *chi.Mux
	blamer  blame.Blamer
	logger  *slog.Logger
	version string
}

// BlameResponse is the body of a successful blame request.
type BlameResponse struct {
	Request blame.Request `json:"request"`
	Hunks   []blame.Hunk  `json:"hunks"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// New builds the router: GET /healthz, GET /api/v1/blame and, when a metrics
// handler is given, GET /metrics.
func New(opts Options) *Server {
	if opts.Tracer == nil {
		opts.Tracer = nooptrace.NewTracerProvider().Tracer("")
	}

	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(func(next http.Handler) http.Handler {
		return observability.HTTPMiddleware(opts.Tracer, opts.RED, next)
	})
	router.Use(requestLogger(opts.Logger))

	s := &Server{
		router:  router,
		blamer:  opts.Blamer,
		logger:  opts.Logger,
		version: opts.Version,
	}

	router.Get("/healthz", s.health)
	router.Get("/api/v1/blame", s.blame)

	if opts.MetricsHandler != nil {
		router.Method(http.MethodGet, "/metrics", opts.MetricsHandler)
	}

	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, cfg config.ServerConfig) error {
	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)

	go func() {
		s.logger.InfoContext(ctx, "HTTP server starting", "addr", httpServer.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve %s: %w", httpServer.Addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	s.logger.InfoContext(shutdownCtx, "HTTP server stopping")

	err := httpServer.Shutdown(shutdownCtx)
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	return nil
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": s.version})
}

func (s *Server) blame(w http.ResponseWriter, r *http.Request) {
	req, err := requestFromQuery(r)
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, err)

		return
	}

	err = req.Validate()
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, err)

		return
	}

	it, err := s.blamer.Blame(r.Context(), req)
	if err != nil {
		s.fail(w, r, statusFor(err), err)

		return
	}

	hunks, err := blame.Collect(it)
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, err)

		return
	}

	if hunks == nil {
		hunks = []blame.Hunk{}
	}

	writeJSON(w, http.StatusOK, BlameResponse{Request: req, Hunks: hunks})
}

// statusFor maps blame errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, blame.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, blame.ErrProcessFailure):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func requestFromQuery(r *http.Request) (blame.Request, error) {
	query := r.URL.Query()

	start, err := intParam(query.Get("start"), "start")
	if err != nil {
		return blame.Request{}, err
	}

	lines, err := intParam(query.Get("lines"), "lines")
	if err != nil {
		return blame.Request{}, err
	}

	return blame.Request{
		Path:      query.Get("path"),
		Commit:    query.Get("commit"),
		StartLine: start,
		NumLines:  lines,
	}, nil
}

func intParam(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrBadParameter, name, raw)
	}

	return n, nil
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, status int, err error) {
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}

	s.logger.Log(r.Context(), level, "blame request failed", "status", status, "error", err)

	writeJSON(w, status, ErrorResponse{
		Error:     err.Error(),
		RequestID: observability.RequestIDFrom(r.Context()),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(body) //nolint:errchkjson // the status line is already sent.
}

// requestLogger logs one line per request through slog, so the record picks
// up trace and request IDs from the context.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.InfoContext(r.Context(), "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
			)
		})
	}
}
