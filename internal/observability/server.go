// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

// Package observability serves Prometheus metrics and health checks on a
// listener separate from the public API.
package observability

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"

	"github.com/quillnotes/quill/internal/auth"
)

// ReadinessChecker reports whether the service can take traffic.
type ReadinessChecker func(ctx context.Context) bool

// Metrics holds the Quill application counters.
type Metrics struct {
	AuthFlows    *prometheus.CounterVec
	MailFailures *prometheus.CounterVec
	RateLimited  *prometheus.CounterVec
}

var _ auth.Recorder = (*Metrics)(nil)

// NewMetrics creates the application counters and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AuthFlows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quill_auth_flows_total",
				Help: "Auth flows handled, by flow and result",
			},
			[]string{"flow", "result"},
		),
		MailFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quill_mail_failures_total",
				Help: "Account emails that could not be delivered, by kind",
			},
			[]string{"kind"},
		),
		RateLimited: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quill_http_rate_limited_total",
				Help: "Requests rejected by the rate limiter, by route",
			},
			[]string{"route"},
		),
	}

	reg.MustRegister(m.AuthFlows, m.MailFailures, m.RateLimited)
	return m
}

// RecordFlow implements auth.Recorder.
func (m *Metrics) RecordFlow(flow, result string) {
	m.AuthFlows.WithLabelValues(flow, result).Inc()
}

// RecordMailFailure implements auth.Recorder.
func (m *Metrics) RecordMailFailure(kind string) {
	m.MailFailures.WithLabelValues(kind).Inc()
}

// RecordRateLimited counts a request rejected by the rate limiter.
func (m *Metrics) RecordRateLimited(route string) {
	m.RateLimited.WithLabelValues(route).Inc()
}

// Server exposes /metrics and the /healthz checks.
type Server struct {
	addr       string
	listener   net.Listener
	httpServer *http.Server
	registry   *prometheus.Registry
	metrics    *Metrics
	isReady    ReadinessChecker
	logger     *slog.Logger
	running    atomic.Bool
}

// NewServer creates an observability server listening on addr
// ("127.0.0.1:9100", ":9100"). A nil checker always reports ready.
func NewServer(addr string, ready ReadinessChecker, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	// Private registry, so tests and multiple servers never collide.
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &Server{
		addr:     addr,
		registry: registry,
		metrics:  NewMetrics(registry),
		isReady:  ready,
		logger:   logger,
	}
}

// Metrics returns the application counters.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Start listens and serves in the background. Errors from Serve after
// Start returns are delivered on the returned channel, which is closed
// when the server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Code("OBSERVABILITY_RUNNING").Errorf("observability server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("OBSERVABILITY_LISTEN_FAILED").With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("observability server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("observability server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Handler returns the metrics and health routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/healthz/liveness", s.handleLiveness)
	mux.HandleFunc("/healthz/readiness", s.handleReadiness)
	return mux
}

// Stop shuts the server down. Stopping a stopped server is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown_observability_server").Wrap(err)
		}
	}

	s.logger.Info("observability server stopped")
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	writeProbe(w, http.StatusOK, "ok")
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.isReady == nil || s.isReady(r.Context()) {
		writeProbe(w, http.StatusOK, "ok")
		return
	}
	writeProbe(w, http.StatusServiceUnavailable, "not ready")
}

func writeProbe(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	//nolint:errcheck // client may have disconnected
	w.Write([]byte(body + "\n"))
}
