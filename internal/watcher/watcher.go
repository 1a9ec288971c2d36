package watcher

import (
	"context"
	"fmt"
	"log/slog"

	"alertengine/internal/clock"
	"alertengine/internal/domain"
	"alertengine/internal/logging"
	"alertengine/internal/metrics"
	"alertengine/internal/permanent"
)

// Querier evaluates alert queries, retrying transient failures internally.
type Querier interface {
	EvaluateQuery(ctx context.Context, query domain.QueryName) (domain.MetricValue, error)
}

// Spawner starts a reporter for action and returns its cancel function.
type Spawner interface {
	Spawn(ctx context.Context, action domain.NotificationAction) func()
}

// Publisher receives transitions. Publish must not block.
type Publisher interface {
	Publish(transition domain.Transition)
}

// Deps are the collaborators shared by every watcher.
type Deps struct {
	Querier   Querier
	Spawner   Spawner
	Publisher Publisher
	Clock     clock.Clock
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

// Watcher polls one alert and keeps exactly one reporter matching its current state.
type Watcher struct {
	def       domain.AlertDefinition
	querier   Querier
	spawner   Spawner
	publisher Publisher
	clock     clock.Clock
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// New builds a watcher for def.
// Params: alert definition and shared dependencies.
// Returns: watcher ready to Run.
func New(def domain.AlertDefinition, deps Deps) *Watcher {
	clk := deps.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Watcher{
		def:       def,
		querier:   deps.Querier,
		spawner:   deps.Spawner,
		publisher: deps.Publisher,
		clock:     clk,
		logger:    logging.OrDiscard(deps.Logger).With("component", "watcher", "alert", string(def.Name), "query", string(def.Query)),
		metrics:   deps.Metrics,
	}
}

// Name returns the watched alert's name.
func (w *Watcher) Name() domain.AlertName {
	return w.def.Name
}

// Run polls until ctx is cancelled or a query fails permanently.
// The live reporter is cancelled before a new one starts and when Run returns.
// Params: context bounding the watcher and its reporters.
// Returns: context error on shutdown, or the fatal error that ended this alert.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.def.Validate(); err != nil {
		return permanent.Mark("validate alert", err)
	}
	w.logger.Info("watcher started", "poll_interval", w.def.PollInterval.String(), "repeat_interval", w.def.RepeatInterval.String())

	state := domain.Pass()
	var cancelReporter func()
	defer func() {
		if cancelReporter != nil {
			cancelReporter()
		}
	}()

	for {
		value, err := w.querier.EvaluateQuery(ctx, w.def.Query)
		if err != nil {
			return fmt.Errorf("alert %q: evaluate query %q: %w", w.def.Name, w.def.Query, err)
		}
		w.metrics.IncPoll(string(w.def.Name))

		next := domain.Classify(value, w.def.Thresholds)
		if state.Changed(next) {
			if cancelReporter != nil {
				cancelReporter()
				cancelReporter = nil
			}
			cancelReporter = w.spawner.Spawn(ctx, domain.ActionFor(w.def, next))

			transition := domain.NewTransition(w.def, state, next, value, w.clock.Now())
			w.logger.Info("alert transition",
				"from", state.Level.String(),
				"to", next.Level.String(),
				"value", float64(value),
				"transition_id", transition.ID,
			)
			w.metrics.RecordTransition(string(w.def.Name), next.Level.String(), int(next.Level))
			if w.publisher != nil {
				w.publisher.Publish(transition)
			}
			state = next
		}

		if err := clock.Sleep(ctx, w.clock, w.def.PollInterval); err != nil {
			return err
		}
	}
}
