package reporter

import (
	"context"
	"errors"
	"log/slog"

	"alertengine/internal/clock"
	"alertengine/internal/domain"
	"alertengine/internal/logging"
	"alertengine/internal/metrics"
)

// Remote delivers notifications and resolutions, retrying internally.
type Remote interface {
	Notify(ctx context.Context, alert domain.AlertName, message string) error
	Resolve(ctx context.Context, alert domain.AlertName) error
}

// Handle is the cancellation capability of one running reporter.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Cancel asks the reporter to stop. It does not wait; see Done.
func (h *Handle) Cancel() {
	h.cancel()
}

// Done is closed once the reporter goroutine has returned.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Launcher starts reporters.
//
// Remote calls run under the launcher's base context, not the reporter's own:
// cancelling a reporter stops it from waiting or repeating, while a call already
// in flight finishes in the background. Cancelling the base context aborts those calls too.
type Launcher struct {
	base    context.Context
	remote  Remote
	clock   clock.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewLauncher builds a launcher.
// Params: base context bounding in-flight calls (the engine lifetime), remote, clock, logger, metrics.
// Returns: launcher.
func NewLauncher(base context.Context, remote Remote, clk clock.Clock, logger *slog.Logger, m *metrics.Metrics) *Launcher {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Launcher{
		base:    base,
		remote:  remote,
		clock:   clk,
		logger:  logging.OrDiscard(logger).With("component", "reporter"),
		metrics: m,
	}
}

// Start runs action in a new goroutine.
// Params: parent context (cancelling it cancels the reporter) and action.
// Returns: handle for cancellation and completion.
func (l *Launcher) Start(parent context.Context, action domain.NotificationAction) *Handle {
	ctx, cancel := context.WithCancel(parent)
	handle := &Handle{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(handle.done)
		defer cancel()
		l.run(ctx, action)
	}()
	return handle
}

// Spawn starts action and returns only its cancel function.
func (l *Launcher) Spawn(parent context.Context, action domain.NotificationAction) func() {
	return l.Start(parent, action).Cancel
}

func (l *Launcher) run(ctx context.Context, action domain.NotificationAction) {
	logger := l.logger.With("alert", string(action.Alert), "action", action.Kind.String())

	switch action.Kind {
	case domain.ActionResolve:
		if err := l.await(ctx, func(callCtx context.Context) error {
			return l.remote.Resolve(callCtx, action.Alert)
		}); err != nil {
			l.logStop(logger, err)
			return
		}
		l.metrics.IncReporterCall("resolve")
		logger.Info("alert resolved")

	case domain.ActionNotify:
		for sent := 1; ; sent++ {
			if err := l.await(ctx, func(callCtx context.Context) error {
				return l.remote.Notify(callCtx, action.Alert, action.Message)
			}); err != nil {
				l.logStop(logger, err)
				return
			}
			l.metrics.IncReporterCall("notify")
			logger.Debug("notification sent", "count", sent, "next_in", action.RepeatInterval.String())

			if err := clock.Sleep(ctx, l.clock, action.RepeatInterval); err != nil {
				l.logStop(logger, err)
				return
			}
		}
	}
}

// await issues call under the base context and waits for it unless ctx is cancelled first.
// Params: reporter context and the remote call.
// Returns: call error, or ctx error when the reporter was cancelled.
func (l *Launcher) await(ctx context.Context, call func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	result := make(chan error, 1)
	go func() {
		result <- call(l.base)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-result:
		return err
	}
}

func (l *Launcher) logStop(logger *slog.Logger, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		logger.Debug("reporter stopped")
		return
	}
	logger.Error("reporter failed", "error", err.Error())
}
