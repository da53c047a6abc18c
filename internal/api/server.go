package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/blogboost/ranktracker/internal/config"
	"github.com/blogboost/ranktracker/internal/logging"
	"github.com/blogboost/ranktracker/internal/metrics"
	"github.com/blogboost/ranktracker/internal/rank"
	"github.com/blogboost/ranktracker/internal/sched"
	"github.com/blogboost/ranktracker/internal/tracking"
)

// Server wires HTTP handlers to the collection and tracking services.
type Server struct {
	router    chi.Router
	collector rank.Collector
	trackings *tracking.Service
	scheduler *sched.Scheduler
	ready     func(ctx context.Context) error
	cfg       config.Config
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes. ready is the
// readiness probe's downstream check; nil reports ready unconditionally.
func NewServer(
	collector rank.Collector,
	trackings *tracking.Service,
	scheduler *sched.Scheduler,
	ready func(ctx context.Context) error,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()

	s := &Server{
		collector: collector,
		trackings: trackings,
		scheduler: scheduler,
		ready:     ready,
		cfg:       cfg,
		logger:    logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(60 * time.Second))
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/collect", s.collectKeyword)
		r.Get("/snapshots", s.getSnapshot)
		r.Get("/snapshots/history", s.getSnapshotHistory)

		r.Route("/trackings", func(r chi.Router) {
			r.Post("/", s.createTracking)
			r.Get("/", s.listTrackings)
			r.Get("/limit", s.limitStatus)
			r.Route("/{tracking_id}", func(r chi.Router) {
				r.Get("/", s.getTracking)
				r.Put("/", s.updateTracking)
				r.Patch("/active", s.toggleTracking)
				r.Delete("/", s.deleteTracking)
				r.Get("/ranks", s.trackingRanks)
			})
		})

		r.Route("/tasks/{task}", func(r chi.Router) {
			r.Post("/run", s.runTask)
			r.Get("/runs/latest", s.latestTaskRun)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// ownerFrom resolves the caller identity injected by the upstream
// gateway.
func ownerFrom(r *http.Request) (int64, error) {
	raw := r.Header.Get("X-Owner-ID")
	if raw == "" {
		return 0, errors.New("X-Owner-ID header required")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("X-Owner-ID must be a positive integer")
	}
	return id, nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	return id, nil
}

// writeDomainError maps service errors onto HTTP statuses. Anything
// unrecognized is logged and reported as a 500 without leaking detail.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	var providerErr *rank.ProviderError
	switch {
	case errors.Is(err, rank.ErrTrackingNotFound),
		errors.Is(err, rank.ErrSnapshotNotFound),
		errors.Is(err, rank.ErrBlogNotFound),
		errors.Is(err, rank.ErrTaskRunNotFound),
		errors.Is(err, rank.ErrNoActiveGrant),
		errors.Is(err, sched.ErrUnknownTask):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, rank.ErrForbidden), errors.Is(err, rank.ErrQuotaExceeded):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, rank.ErrDuplicateTracking):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &providerErr):
		writeError(w, http.StatusBadGateway, "search provider unavailable")
	case errors.Is(err, rank.ErrMissingCredentials):
		writeError(w, http.StatusServiceUnavailable, rank.ErrMissingCredentials.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusRequestTimeout, "request timed out")
	default:
		s.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		elapsed := time.Since(start)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		metrics.ObserveHTTPRequest(r.Method, route, ww.status, elapsed)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", elapsed.Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.L.Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
