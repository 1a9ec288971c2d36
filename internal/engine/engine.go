package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"alertengine/internal/domain"
	"alertengine/internal/logging"
	"alertengine/internal/metrics"

	"golang.org/x/sync/errgroup"
)

// ErrDuplicateAlert is returned when two definitions share a name.
var ErrDuplicateAlert = errors.New("duplicate alert name")

// Source lists alert definitions, retrying transient failures internally.
type Source interface {
	QueryAlertDefinitions(ctx context.Context) ([]domain.AlertDefinition, error)
}

// Runner is one alert's polling loop.
type Runner interface {
	Run(ctx context.Context) error
}

// RunnerFactory builds the loop for one definition.
type RunnerFactory func(def domain.AlertDefinition) Runner

// Engine loads the alert set once and runs one watcher per alert.
type Engine struct {
	source    Source
	newRunner RunnerFactory
	logger    *slog.Logger
	metrics   *metrics.Metrics
	onLoaded  func(count int)
}

// Option customizes an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithOnLoaded registers a callback fired after the alert set is fetched and watchers are about to start.
func WithOnLoaded(fn func(count int)) Option {
	return func(e *Engine) { e.onLoaded = fn }
}

// New builds an engine.
// Params: definition source, per-alert runner factory, and options.
// Returns: engine ready to Run.
func New(source Source, newRunner RunnerFactory, opts ...Option) *Engine {
	e := &Engine{source: source, newRunner: newRunner}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.OrDiscard(e.logger).With("component", "engine")
	return e
}

// Run fetches definitions and blocks until every watcher has returned.
// A watcher ending early is logged and never stops its siblings.
// Params: context bounding the whole engine.
// Returns: startup error (fetch failure, duplicate names); nil once all watchers have ended,
// immediately so when the remote lists no alerts.
func (e *Engine) Run(ctx context.Context) error {
	defs, err := e.source.QueryAlertDefinitions(ctx)
	if err != nil {
		return fmt.Errorf("fetch alert definitions: %w", err)
	}
	if err := checkDefinitions(defs); err != nil {
		return err
	}

	if len(defs) == 0 {
		e.logger.Warn("remote service lists no alerts, nothing to watch")
	} else {
		e.logger.Info("alert definitions loaded", "count", len(defs))
	}
	if e.onLoaded != nil {
		e.onLoaded(len(defs))
	}

	var group errgroup.Group
	for _, def := range defs {
		runner := e.newRunner(def)
		group.Go(func() error {
			e.runWatcher(ctx, def, runner)
			return nil
		})
	}
	_ = group.Wait()
	e.logger.Info("all watchers stopped")
	return nil
}

// runWatcher runs one watcher, converting a panic into a logged exit.
func (e *Engine) runWatcher(ctx context.Context, def domain.AlertDefinition, runner Runner) {
	logger := e.logger.With("alert", string(def.Name))
	e.metrics.AddWatchersRunning(1)
	defer e.metrics.AddWatchersRunning(-1)

	defer func() {
		if r := recover(); r != nil {
			e.metrics.IncWatcherExit("panic")
			logger.Error("watcher panic recovered", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}
	}()

	err := runner.Run(ctx)
	switch {
	case err == nil || (errors.Is(err, context.Canceled) && ctx.Err() != nil):
		e.metrics.IncWatcherExit("stopped")
		logger.Info("watcher stopped")
	default:
		e.metrics.IncWatcherExit("error")
		logger.Error("watcher terminated, other alerts keep running", "error", err.Error())
	}
}

func checkDefinitions(defs []domain.AlertDefinition) error {
	seen := make(map[domain.AlertName]struct{}, len(defs))
	for _, def := range defs {
		if _, ok := seen[def.Name]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateAlert, def.Name)
		}
		seen[def.Name] = struct{}{}
	}
	return nil
}
