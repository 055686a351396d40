// Package gateway implements the Streaming Gateway: the HTTP surface
// that accepts turns, streams Trace Hub progress, and exposes the Job
// Registry and Intervention Broker to clients. A *http.Server wired from a
// *http.ServeMux, Prometheus metrics mounted at /metrics, a JSON /healthz,
// and graceful http.Server.Shutdown on teardown.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pandora-run/pandora/internal/config"
	"github.com/pandora-run/pandora/internal/infra"
	"github.com/pandora-run/pandora/internal/intervention"
	"github.com/pandora-run/pandora/internal/jobs"
	"github.com/pandora-run/pandora/internal/ratelimit"
	"github.com/pandora-run/pandora/internal/scheduler"
	"github.com/pandora-run/pandora/internal/tracehub"
)

// Server is the Streaming Gateway.
type Server struct {
	cfg           config.ServerConfig
	traceCfg      config.TraceConfig
	scheduler     *scheduler.Scheduler
	hub           *tracehub.Hub
	jobs          *jobs.Registry
	interventions *intervention.Broker
	profile       string
	logger        *slog.Logger

	// traceJobs maps a trace_id to the job_id that started it, so
	// POST /v1/thinking/{trace_id}/cancel can also cancel the owning job's
	// context. Cancelling by trace or by job must both work.
	traceJobs sync.Map

	metrics HTTPRecorder
	limiter *ratelimit.Limiter
	health  *infra.HealthCheckRegistry

	httpServer   *http.Server
	httpListener net.Listener
}

// Deps bundles the components the gateway fronts.
type Deps struct {
	Scheduler     *scheduler.Scheduler
	Hub           *tracehub.Hub
	Jobs          *jobs.Registry
	Interventions *intervention.Broker
	// Profile is the single on-disk workspace profile this node serves
	// (one namespace directory per profile); a request's own `profile` field,
	// when set, is only used for recall-index bookkeeping tags.
	Profile string
	Logger  *slog.Logger

	// Metrics, when set, observes every HTTP request.
	Metrics HTTPRecorder
}

// HTTPRecorder observes gateway requests; *observability.Metrics satisfies it.
type HTTPRecorder interface {
	RecordHTTPRequest(method, path, statusCode string, durationSeconds float64)
}

// New builds a Server. It does not start listening until Start is called.
func New(serverCfg config.ServerConfig, traceCfg config.TraceConfig, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var limiter *ratelimit.Limiter
	if serverCfg.RateLimit.Enabled {
		limiter = ratelimit.NewLimiter(serverCfg.RateLimit)
	}

	health := infra.NewHealthCheckRegistry()
	health.RegisterSimple("hub", func(context.Context) error {
		if deps.Hub == nil {
			return errors.New("trace hub not wired")
		}
		return nil
	})
	health.RegisterSimple("jobs", func(ctx context.Context) error {
		if deps.Jobs == nil {
			return errors.New("job registry not wired")
		}
		return nil
	})

	return &Server{
		cfg:           serverCfg,
		traceCfg:      traceCfg,
		scheduler:     deps.Scheduler,
		hub:           deps.Hub,
		jobs:          deps.Jobs,
		interventions: deps.Interventions,
		profile:       deps.Profile,
		logger:        logger,
		metrics:       deps.Metrics,
		limiter:       limiter,
		health:        health,
	}
}

// allowTurn applies the per-profile submission rate limit.
func (s *Server) allowTurn(profile string) bool {
	if s.limiter == nil {
		return true
	}
	return s.limiter.Allow(profile)
}

func (s *Server) mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.handleHealthz)

	mux.HandleFunc("/v1/chat/completions", s.handleChatCompletions)
	mux.HandleFunc("/v1/thinking/", s.routeThinking)
	mux.HandleFunc("/v1/response/", s.handleResponsePoll)

	mux.HandleFunc("/jobs/start", s.handleJobStart)
	mux.HandleFunc("/jobs/", s.routeJobs)

	mux.HandleFunc("/interventions/pending", s.handleInterventionsPending)
	mux.HandleFunc("/interventions/", s.handleInterventionResolve)

	mux.Handle("/ws/research/", s.newResearchFeed())
	return mux
}

// statusRecorder captures the response code for the request metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE streaming working through the wrapper.
func (w *statusRecorder) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) withMetrics(next http.Handler) http.Handler {
	if s.metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.metrics.RecordHTTPRequest(r.Method, routePattern(r.URL.Path), fmt.Sprintf("%d", rec.status), time.Since(start).Seconds())
	})
}

// routePattern collapses per-ID paths so the path label stays low-cardinality.
func routePattern(p string) string {
	for _, prefix := range []string{"/v1/thinking/", "/v1/response/", "/jobs/", "/interventions/", "/ws/research/"} {
		if strings.HasPrefix(p, prefix) && len(p) > len(prefix) {
			return prefix + ":id"
		}
	}
	return p
}

// Start binds the listener and begins serving in the background.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.HTTPPort)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("gateway: listen: %w", err)
	}

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.withMetrics(s.mux()),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	s.httpListener = listener

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("gateway server error", "error", err)
		}
	}()
	s.logger.Info("gateway listening", "addr", addr)
	return nil
}

// Shutdown drains in-flight requests within ShutdownGrace. The gateway
// stops accepting new turns before the components underneath it are torn
// down.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	grace := s.cfg.ShutdownGrace
	if grace <= 0 {
		grace = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	report := s.health.CheckAll(r.Context())
	status := http.StatusOK
	if report.Status == infra.ServiceHealthUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}
