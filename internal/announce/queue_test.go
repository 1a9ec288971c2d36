package announce

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"alertengine/internal/domain"
	"alertengine/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	name string
	err  error

	mu             sync.Mutex
	items          []domain.Transition
	hasCtxDeadline bool
	closed         bool
}

func (s *captureSink) Name() string { return s.name }

func (s *captureSink) Announce(ctx context.Context, transition domain.Transition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, s.hasCtxDeadline = ctx.Deadline()
	s.items = append(s.items, transition)
	return s.err
}

func (s *captureSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.err
}

func (s *captureSink) snapshot() []domain.Transition {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Transition, len(s.items))
	copy(out, s.items)
	return out
}

func transition(alert string, to domain.Level) domain.Transition {
	def := domain.AlertDefinition{Name: domain.AlertName(alert), Query: domain.QueryName(alert + ".q")}
	return domain.NewTransition(def, domain.Pass(), domain.AlertState{Level: to, Message: "over"}, 95, time.Unix(10, 0).UTC())
}

func TestQueueDeliversToEverySink(t *testing.T) {
	t.Parallel()

	failing := &captureSink{name: "failing", err: errors.New("unreachable")}
	healthy := &captureSink{name: "healthy"}
	queue := NewQueue(8, time.Second, nil, metrics.New(prometheus.NewRegistry()), failing, healthy)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		queue.Run(ctx)
		close(done)
	}()

	queue.Publish(transition("cpu", domain.LevelWarn))
	queue.Publish(transition("cpu", domain.LevelCritical))

	require.Eventually(t, func() bool { return len(healthy.snapshot()) == 2 }, 2*time.Second, time.Millisecond)
	assert.Len(t, failing.snapshot(), 2, "a failing sink must not block the others")
	assert.True(t, healthy.hasCtxDeadline, "each delivery is bounded by the sink timeout")

	cancel()
	<-done

	got := healthy.snapshot()
	assert.Equal(t, domain.LevelWarn, got[0].To.Level)
	assert.Equal(t, domain.LevelCritical, got[1].To.Level)
}

func TestQueuePublishDropsWhenFull(t *testing.T) {
	t.Parallel()

	sink := &captureSink{name: "sink"}
	queue := NewQueue(1, time.Second, nil, nil, sink)

	first := transition("disk", domain.LevelWarn)
	queue.Publish(first)
	queue.Publish(transition("disk", domain.LevelCritical))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	queue.Run(ctx)

	got := sink.snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, first.ID, got[0].ID)
}

func TestQueueCloseJoinsSinkErrors(t *testing.T) {
	t.Parallel()

	closeErr := errors.New("close failed")
	ok := &captureSink{name: "ok"}
	bad := &captureSink{name: "bad", err: closeErr}
	queue := NewQueue(1, time.Second, nil, nil, ok, bad)

	err := queue.Close()
	require.ErrorIs(t, err, closeErr)
	assert.True(t, ok.closed)
	assert.True(t, bad.closed)
}
