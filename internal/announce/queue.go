package announce

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"alertengine/internal/domain"
	"alertengine/internal/logging"
	"alertengine/internal/metrics"
)

// Announcer publishes one transition to an external channel.
type Announcer interface {
	Name() string
	Announce(ctx context.Context, transition domain.Transition) error
	Close() error
}

// Queue buffers transitions between watchers and announcers.
// Publish never blocks: when the buffer is full the transition is dropped.
type Queue struct {
	events  chan domain.Transition
	sinks   []Announcer
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewQueue builds a queue delivering to sinks.
// Params: buffer size, per-sink delivery timeout, logger, metrics, and sinks.
// Returns: queue; call Run to start delivery.
func NewQueue(size int, timeout time.Duration, logger *slog.Logger, m *metrics.Metrics, sinks ...Announcer) *Queue {
	if size <= 0 {
		size = 1
	}
	return &Queue{
		events:  make(chan domain.Transition, size),
		sinks:   sinks,
		timeout: timeout,
		logger:  logging.OrDiscard(logger).With("component", "announce"),
		metrics: m,
	}
}

// Publish enqueues transition or drops it when the buffer is full.
func (q *Queue) Publish(transition domain.Transition) {
	select {
	case q.events <- transition:
	default:
		q.metrics.IncAnnounceDropped()
		q.logger.Warn("announce queue full, transition dropped", "alert", string(transition.Alert), "transition_id", transition.ID)
	}
}

// Run delivers queued transitions until ctx is done, then flushes what is already buffered.
// Params: context bounding the worker.
// Returns: none.
func (q *Queue) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			q.flush()
			return
		case transition := <-q.events:
			q.deliver(ctx, transition)
		}
	}
}

// flush delivers what is already buffered without waiting for more.
func (q *Queue) flush() {
	for {
		select {
		case transition := <-q.events:
			q.deliver(context.Background(), transition)
		default:
			return
		}
	}
}

// deliver hands one transition to every sink, each bounded by the sink timeout.
// Params: parent context and transition.
// Returns: none; failures are logged and counted per sink.
func (q *Queue) deliver(ctx context.Context, transition domain.Transition) {
	for _, sink := range q.sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, q.timeout)
		err := sink.Announce(sinkCtx, transition)
		cancel()
		if err != nil {
			q.metrics.IncAnnounceFailed(sink.Name())
			q.logger.Warn("announce failed", "sink", sink.Name(), "alert", string(transition.Alert), "transition_id", transition.ID, "error", err.Error())
		}
	}
}

// Close closes every sink.
// Params: none.
// Returns: joined close errors.
func (q *Queue) Close() error {
	var errs []error
	for _, sink := range q.sinks {
		if err := sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
