package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"alertengine/internal/announce"
	"alertengine/internal/api"
	"alertengine/internal/clock"
	"alertengine/internal/config"
	"alertengine/internal/domain"
	"alertengine/internal/engine"
	"alertengine/internal/logging"
	"alertengine/internal/metrics"
	"alertengine/internal/reporter"
	"alertengine/internal/transport"
	"alertengine/internal/watcher"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Service composes runtime dependencies and process lifecycle.
// Params: config snapshot and shared runtime components.
// Returns: runnable alert engine service.
type Service struct {
	cfg       config.Config
	logger    *slog.Logger
	closeLog  func()
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	transport *transport.Transport
	announceQ *announce.Queue
	httpSrv   *http.Server
	readyFlag atomic.Bool
	clock     clock.Clock
}

// NewService builds service instance from config source.
// Params: config source, command-line overrides, and clock implementation.
// Returns: initialized service or setup error.
func NewService(source config.ConfigSource, overrides config.Overrides, clk clock.Clock) (*Service, error) {
	cfg, err := config.LoadSnapshot(source, overrides)
	if err != nil {
		return nil, err
	}

	logger, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	logger = logger.With("service", cfg.Service.Name)

	service := &Service{
		cfg:      cfg,
		logger:   logger,
		closeLog: closeLog,
		registry: prometheus.NewRegistry(),
		clock:    clk,
	}
	service.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	service.metrics = metrics.New(service.registry)

	if err := service.buildTransport(); err != nil {
		service.cleanupInitResources()
		return nil, err
	}
	if err := service.buildAnnounceQueue(); err != nil {
		service.cleanupInitResources()
		return nil, err
	}
	service.buildHTTPServer()

	return service, nil
}

// Run loads the alert set and blocks until every watcher stops or a shutdown signal arrives.
// Params: root context for service runtime.
// Returns: startup error (alert set unavailable or invalid), http failure, or close error.
func (s *Service) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			s.logger.Info("shutdown signal received", "signal", sig.String())
			cancel()
		case <-runCtx.Done():
		}
	}()

	httpErr := make(chan error, 1)
	if s.httpSrv != nil {
		go func() {
			s.logger.Info("http server starting", "listen", s.cfg.HTTP.Listen)
			err := s.httpSrv.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				httpErr <- err
				cancel()
			}
		}()
	}

	announceCtx, announceCancel := context.WithCancel(context.Background())
	announceDone := make(chan struct{})
	go func() {
		defer close(announceDone)
		if s.announceQ != nil {
			s.announceQ.Run(announceCtx)
		}
	}()

	launcher := reporter.NewLauncher(runCtx, s.transport, s.clock, s.logger, s.metrics)
	deps := watcher.Deps{
		Querier: s.transport,
		Spawner: launcher,
		Clock:   s.clock,
		Logger:  s.logger,
		Metrics: s.metrics,
	}
	if s.announceQ != nil {
		deps.Publisher = s.announceQ
	}
	eng := engine.New(s.transport,
		func(def domain.AlertDefinition) engine.Runner { return watcher.New(def, deps) },
		engine.WithLogger(s.logger),
		engine.WithMetrics(s.metrics),
		engine.WithOnLoaded(func(int) { s.readyFlag.Store(true) }),
	)

	runErr := eng.Run(runCtx)
	if runErr != nil && runCtx.Err() != nil && errors.Is(runErr, context.Canceled) {
		runErr = nil
	}
	if runErr != nil {
		runErr = fmt.Errorf("engine startup: %w", runErr)
	}
	select {
	case err := <-httpErr:
		runErr = errors.Join(runErr, fmt.Errorf("http server failed: %w", err))
	default:
	}

	announceCancel()
	<-announceDone
	return errors.Join(runErr, s.shutdown())
}

// Ready reports whether the alert set is loaded and watchers are running.
func (s *Service) Ready() bool {
	return s.readyFlag.Load()
}

// Handler returns the status router; tests use it without binding a port.
func (s *Service) Handler() http.Handler {
	if s.httpSrv == nil {
		return http.NotFoundHandler()
	}
	return s.httpSrv.Handler
}

// shutdown closes runtime resources in dependency order.
// Params: none.
// Returns: first close error.
func (s *Service) shutdown() error {
	s.readyFlag.Store(false)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var firstErr error
	markErr := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("http shutdown failed", "error", err.Error())
			markErr(fmt.Errorf("http shutdown: %w", err))
		}
	}
	if s.announceQ != nil {
		if err := s.announceQ.Close(); err != nil {
			s.logger.Error("announce close failed", "error", err.Error())
			markErr(fmt.Errorf("announce close: %w", err))
		}
	}
	s.logger.Info("service stopped")
	if s.closeLog != nil {
		s.closeLog()
	}
	return firstErr
}

// cleanupInitResources closes partially initialized resources on startup failures.
// Params: none.
// Returns: all acquired resources closed best-effort.
func (s *Service) cleanupInitResources() {
	if s.announceQ != nil {
		_ = s.announceQ.Close()
		s.announceQ = nil
	}
	if s.closeLog != nil {
		s.closeLog()
		s.closeLog = nil
	}
}

// buildTransport wires the HTTP client behind limiter and retry.
// Params: none.
// Returns: setup error.
func (s *Service) buildTransport() error {
	client, err := api.NewClient(s.cfg.Remote.BaseURL, s.cfg.Remote.RequestTimeout(), nil)
	if err != nil {
		return err
	}
	policy, err := s.cfg.Remote.BackoffPolicy()
	if err != nil {
		return err
	}
	s.transport = transport.New(client, transport.Options{
		Limiter: transport.NewLimiter(s.cfg.Remote.MaxConcurrentRequests, s.cfg.Remote.RequestsPerSecond, s.cfg.Remote.Burst),
		Backoff: policy,
		Clock:   s.clock,
		Logger:  s.logger,
		Metrics: s.metrics,
	})
	return nil
}

// buildAnnounceQueue opens enabled announcement sinks.
// Params: none.
// Returns: setup error; no queue is built when every sink is disabled.
func (s *Service) buildAnnounceQueue() error {
	var sinks []announce.Announcer
	closeSinks := func() {
		for _, sink := range sinks {
			_ = sink.Close()
		}
	}

	if s.cfg.Announce.NATS.Enabled {
		sink, err := announce.NewNATSAnnouncer(s.cfg.Announce.NATS)
		if err != nil {
			return err
		}
		sinks = append(sinks, sink)
	}
	if s.cfg.Announce.Telegram.Enabled {
		sink, err := announce.NewTelegramAnnouncer(s.cfg.Announce.Telegram)
		if err != nil {
			closeSinks()
			return err
		}
		sinks = append(sinks, sink)
	}
	if len(sinks) == 0 {
		return nil
	}

	timeout := time.Duration(s.cfg.Announce.TimeoutSec) * time.Second
	s.announceQ = announce.NewQueue(s.cfg.Announce.QueueSize, timeout, s.logger, s.metrics, sinks...)
	return nil
}

// buildHTTPServer wires health, readiness and metrics endpoints.
// Params: none.
// Returns: none; the server is left nil when disabled.
func (s *Service) buildHTTPServer() {
	if !s.cfg.HTTP.Enabled {
		return
	}
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.HTTP.HealthPath, func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusOK)
		_, _ = writer.Write([]byte("ok"))
	})
	mux.HandleFunc(s.cfg.HTTP.ReadyPath, func(writer http.ResponseWriter, _ *http.Request) {
		if !s.readyFlag.Load() {
			writer.WriteHeader(http.StatusServiceUnavailable)
			_, _ = writer.Write([]byte("not-ready"))
			return
		}
		writer.WriteHeader(http.StatusOK)
		_, _ = writer.Write([]byte("ready"))
	})
	mux.Handle(s.cfg.HTTP.MetricsPath, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))

	s.httpSrv = &http.Server{
		Addr:              s.cfg.HTTP.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
