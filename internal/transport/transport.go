package transport

import (
	"context"
	"log/slog"
	"time"

	"alertengine/internal/backoff"
	"alertengine/internal/clock"
	"alertengine/internal/domain"
	"alertengine/internal/logging"
	"alertengine/internal/metrics"
	"alertengine/internal/permanent"
)

// Remote is the single-attempt remote service contract.
type Remote interface {
	QueryAlertDefinitions(ctx context.Context) ([]domain.AlertDefinition, error)
	EvaluateQuery(ctx context.Context, query domain.QueryName) (domain.MetricValue, error)
	Notify(ctx context.Context, alert domain.AlertName, message string) error
	Resolve(ctx context.Context, alert domain.AlertName) error
}

// Options configures retry and limiting behavior.
type Options struct {
	Limiter *Limiter
	Backoff backoff.Policy
	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Transport wraps a Remote so every operation is limited and retried until it succeeds.
// Only permanent errors and context cancellation end a call early.
type Transport struct {
	remote  Remote
	limiter *Limiter
	backoff backoff.Policy
	clock   clock.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New builds a transport over remote.
// Params: single-attempt remote and options; zero options mean unbounded, default backoff, real clock.
// Returns: retrying transport.
func New(remote Remote, opts Options) *Transport {
	clk := opts.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Transport{
		remote:  remote,
		limiter: opts.Limiter,
		backoff: opts.Backoff,
		clock:   clk,
		logger:  logging.OrDiscard(opts.Logger).With("component", "transport"),
		metrics: opts.Metrics,
	}
}

// QueryAlertDefinitions fetches the alert set.
func (t *Transport) QueryAlertDefinitions(ctx context.Context) ([]domain.AlertDefinition, error) {
	return call(ctx, t, "list_alerts", func(ctx context.Context) ([]domain.AlertDefinition, error) {
		return t.remote.QueryAlertDefinitions(ctx)
	})
}

// EvaluateQuery fetches one sample for query.
func (t *Transport) EvaluateQuery(ctx context.Context, query domain.QueryName) (domain.MetricValue, error) {
	return call(ctx, t, "query", func(ctx context.Context) (domain.MetricValue, error) {
		return t.remote.EvaluateQuery(ctx, query)
	})
}

// Notify delivers one notification for alert.
func (t *Transport) Notify(ctx context.Context, alert domain.AlertName, message string) error {
	_, err := call(ctx, t, "notify", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, t.remote.Notify(ctx, alert, message)
	})
	return err
}

// Resolve delivers one resolution for alert.
func (t *Transport) Resolve(ctx context.Context, alert domain.AlertName) error {
	_, err := call(ctx, t, "resolve", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, t.remote.Resolve(ctx, alert)
	})
	return err
}

// call runs fn until it succeeds. Each logical call owns a fresh backoff schedule,
// and no limiter slot is held while sleeping between attempts.
// Params: context, transport, operation label, and single-attempt function.
// Returns: result, permanent error, or context error.
func call[T any](ctx context.Context, t *Transport, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	schedule := t.backoff.Start()
	for attempt := 1; ; attempt++ {
		result, err := tryOnce(ctx, t, op, fn)
		if err == nil {
			if attempt > 1 {
				t.logger.Info("remote call recovered", "op", op, "attempts", attempt)
			}
			return result, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}
		if permanent.Is(err) {
			return zero, err
		}

		wait := schedule.Advance()
		t.metrics.IncRetry(op)
		t.logger.Warn("remote call failed, retrying", "op", op, "attempt", attempt, "retry_in", wait.String(), "error", err.Error())
		if err := clock.Sleep(ctx, t.clock, wait); err != nil {
			return zero, err
		}
	}
}

// tryOnce performs one limited attempt. The slot is released even if fn panics.
func tryOnce[T any](ctx context.Context, t *Transport, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	release, err := t.limiter.Acquire(ctx)
	if err != nil {
		return zero, err
	}
	t.metrics.AddInflight(1)
	defer func() {
		t.metrics.AddInflight(-1)
		release()
	}()

	started := time.Now()
	result, err := fn(ctx)
	t.metrics.ObserveAttempt(op, time.Since(started), err)
	return result, err
}
