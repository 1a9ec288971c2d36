package reporter

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"alertengine/internal/clock"
	"alertengine/internal/domain"
	"alertengine/internal/permanent"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type deliveredCall struct {
	kind    string
	alert   domain.AlertName
	message string
	at      time.Time
}

type fakeRemote struct {
	clock     clock.Clock
	gate      chan struct{}
	entered   chan struct{}
	notifyErr error

	mu    sync.Mutex
	calls []deliveredCall
}

func newFakeRemote(clk clock.Clock) *fakeRemote {
	return &fakeRemote{clock: clk, entered: make(chan struct{}, 64)}
}

func (r *fakeRemote) Notify(ctx context.Context, alert domain.AlertName, message string) error {
	return r.handle(ctx, deliveredCall{kind: "notify", alert: alert, message: message}, r.notifyErr)
}

func (r *fakeRemote) Resolve(ctx context.Context, alert domain.AlertName) error {
	return r.handle(ctx, deliveredCall{kind: "resolve", alert: alert}, nil)
}

func (r *fakeRemote) handle(ctx context.Context, call deliveredCall, failWith error) error {
	call.at = r.clock.Now()
	r.entered <- struct{}{}
	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if failWith != nil {
		return failWith
	}
	r.mu.Lock()
	r.calls = append(r.calls, call)
	r.mu.Unlock()
	return nil
}

func (r *fakeRemote) delivered() []deliveredCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]deliveredCall(nil), r.calls...)
}

func waitCalls(t *testing.T, remote *fakeRemote, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return len(remote.delivered()) >= n }, 2*time.Second, time.Millisecond)
}

func waitDone(t *testing.T, handle *Handle) {
	t.Helper()
	select {
	case <-handle.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("reporter did not stop")
	}
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestNotifyRepeatsAtInterval(t *testing.T) {
	t.Parallel()

	const repeat = time.Minute
	fake := clock.NewFake(epoch)
	remote := newFakeRemote(fake)
	base, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	launcher := NewLauncher(base, remote, fake, nil, nil)

	handle := launcher.Start(base, domain.NotificationAction{
		Kind: domain.ActionNotify, Alert: "cpu", Message: "C", RepeatInterval: repeat,
	})

	waitCalls(t, remote, 1)
	for i := 2; i <= 3; i++ {
		require.NoError(t, fake.BlockUntil(waitCtx(t), 1))
		fake.Advance(repeat)
		waitCalls(t, remote, i)
	}

	handle.Cancel()
	waitDone(t, handle)

	calls := remote.delivered()
	require.Len(t, calls, 3)
	for i, call := range calls {
		assert.Equal(t, "notify", call.kind)
		assert.Equal(t, domain.AlertName("cpu"), call.alert)
		assert.Equal(t, "C", call.message)
		assert.Equal(t, epoch.Add(time.Duration(i)*repeat), call.at, "call %d", i)
	}
}

func TestResolveCallsOnce(t *testing.T) {
	t.Parallel()

	fake := clock.NewFake(epoch)
	remote := newFakeRemote(fake)
	base, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	launcher := NewLauncher(base, remote, fake, nil, nil)

	handle := launcher.Start(base, domain.NotificationAction{Kind: domain.ActionResolve, Alert: "cpu"})
	waitDone(t, handle)

	fake.Advance(24 * time.Hour)
	calls := remote.delivered()
	require.Len(t, calls, 1)
	assert.Equal(t, "resolve", calls[0].kind)
	assert.Zero(t, fake.Pending())
}

func TestCancelStopsRepeating(t *testing.T) {
	t.Parallel()

	fake := clock.NewFake(epoch)
	remote := newFakeRemote(fake)
	base, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	launcher := NewLauncher(base, remote, fake, nil, nil)

	handle := launcher.Start(base, domain.NotificationAction{
		Kind: domain.ActionNotify, Alert: "cpu", Message: "W", RepeatInterval: time.Second,
	})
	waitCalls(t, remote, 1)
	require.NoError(t, fake.BlockUntil(waitCtx(t), 1))

	handle.Cancel()
	waitDone(t, handle)
	assert.Zero(t, fake.Pending(), "repeat sleep must be abandoned")

	fake.Advance(time.Hour)
	assert.Len(t, remote.delivered(), 1)
}

func TestCancelMidCallLetsCallFinishInBackground(t *testing.T) {
	t.Parallel()

	fake := clock.NewFake(epoch)
	remote := newFakeRemote(fake)
	remote.gate = make(chan struct{})
	base, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	launcher := NewLauncher(base, remote, fake, nil, nil)

	handle := launcher.Start(base, domain.NotificationAction{
		Kind: domain.ActionNotify, Alert: "cpu", Message: "C", RepeatInterval: time.Second,
	})
	<-remote.entered

	handle.Cancel()
	waitDone(t, handle)
	assert.Empty(t, remote.delivered(), "call is still in flight")

	close(remote.gate)
	waitCalls(t, remote, 1)
	assert.Zero(t, fake.Pending())
}

func TestBaseCancelAbortsInflightCall(t *testing.T) {
	t.Parallel()

	fake := clock.NewFake(epoch)
	remote := newFakeRemote(fake)
	remote.gate = make(chan struct{})
	base, cancelBase := context.WithCancel(context.Background())
	launcher := NewLauncher(base, remote, fake, nil, nil)

	handle := launcher.Start(base, domain.NotificationAction{Kind: domain.ActionResolve, Alert: "cpu"})
	<-remote.entered
	cancelBase()

	waitDone(t, handle)
	assert.Empty(t, remote.delivered())
}

func TestPermanentErrorEndsReporter(t *testing.T) {
	t.Parallel()

	fake := clock.NewFake(epoch)
	remote := newFakeRemote(fake)
	remote.notifyErr = permanent.Mark("notify", errors.New("bad payload"))
	base, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	launcher := NewLauncher(base, remote, fake, nil, nil)

	handle := launcher.Start(base, domain.NotificationAction{
		Kind: domain.ActionNotify, Alert: "cpu", Message: "C", RepeatInterval: time.Second,
	})
	waitDone(t, handle)
	assert.Zero(t, fake.Pending())
}

func TestSpawnReturnsCancel(t *testing.T) {
	t.Parallel()

	fake := clock.NewFake(epoch)
	remote := newFakeRemote(fake)
	base, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	launcher := NewLauncher(base, remote, fake, nil, nil)

	cancel := launcher.Spawn(base, domain.NotificationAction{
		Kind: domain.ActionNotify, Alert: "cpu", Message: "W", RepeatInterval: time.Second,
	})
	waitCalls(t, remote, 1)
	require.NoError(t, fake.BlockUntil(waitCtx(t), 1))
	cancel()
	require.Eventually(t, func() bool { return fake.Pending() == 0 }, 2*time.Second, time.Millisecond)
}
