package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"alertengine/internal/clock"
	"alertengine/internal/config"
	"alertengine/internal/engine"
	"alertengine/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) config.ConfigSource {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return config.ConfigSource{File: path}
}

func cpuAlert() testutil.RemoteAlert {
	return testutil.RemoteAlert{
		Name:               "cpu",
		Query:              "cpu.q",
		IntervalSecs:       0.01,
		RepeatIntervalSecs: 60,
		Warn:               testutil.RemoteThreshold{Message: "cpu high", Value: 50},
		Critical:           testutil.RemoteThreshold{Message: "cpu critical", Value: 90},
	}
}

const quietConfig = `
[remote]
timeout_sec = 2

[remote.backoff]
steps_ms = [5, 10]

[http]
enabled = true
listen = "127.0.0.1:0"

[log.console]
enabled = true
level = "error"
`

func TestServiceNotifiesAndResolvesAgainstRemote(t *testing.T) {
	remote := testutil.NewFakeRemote(t, cpuAlert())
	remote.SetValue("cpu.q", 95)

	service, err := NewService(writeConfig(t, quietConfig), config.Overrides{BaseURL: remote.URL()}, clock.RealClock{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- service.Run(ctx) }()

	require.Eventually(t, func() bool { return len(remote.Calls()) >= 1 }, 5*time.Second, 5*time.Millisecond)
	first := remote.Calls()[0]
	assert.Equal(t, testutil.RemoteCall{Kind: "notify", Alert: "cpu", Message: "cpu critical"}, first)
	assert.True(t, service.Ready())

	recorder := httptest.NewRecorder()
	service.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, recorder.Code)

	remote.SetValue("cpu.q", 10)
	require.Eventually(t, func() bool {
		for _, call := range remote.Calls() {
			if call.Kind == "resolve" && call.Alert == "cpu" {
				return true
			}
		}
		return false
	}, 5*time.Second, 5*time.Millisecond)

	recorder = httptest.NewRecorder()
	service.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), `alertengine_transitions_total{alert="cpu",to="critical"} 1`)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("service did not stop")
	}
	assert.False(t, service.Ready())
}

func TestServiceStopsCleanlyWithoutAlerts(t *testing.T) {
	remote := testutil.NewFakeRemote(t)

	service, err := NewService(writeConfig(t, quietConfig), config.Overrides{BaseURL: remote.URL()}, clock.RealClock{})
	require.NoError(t, err)

	require.NoError(t, service.Run(context.Background()))
	assert.False(t, service.Ready())
	assert.Empty(t, remote.Calls())
}

func TestServiceRunFailsOnDuplicateAlerts(t *testing.T) {
	remote := testutil.NewFakeRemote(t, cpuAlert(), cpuAlert())

	service, err := NewService(writeConfig(t, quietConfig), config.Overrides{BaseURL: remote.URL()}, clock.RealClock{})
	require.NoError(t, err)

	err = service.Run(context.Background())
	require.ErrorIs(t, err, engine.ErrDuplicateAlert)
	assert.False(t, service.Ready())
}

func TestServiceHealthAndNotReadyBeforeLoad(t *testing.T) {
	t.Parallel()

	service, err := NewService(writeConfig(t, quietConfig), config.Overrides{BaseURL: "http://127.0.0.1:1"}, clock.RealClock{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = service.shutdown() })

	recorder := httptest.NewRecorder()
	service.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "ok", recorder.Body.String())

	recorder = httptest.NewRecorder()
	service.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, recorder.Code)
}

func TestNewServiceRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := NewService(writeConfig(t, quietConfig), config.Overrides{}, clock.RealClock{})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "remote.base_url"), err.Error())

	_, err = NewService(config.ConfigSource{File: filepath.Join(t.TempDir(), "missing.toml")}, config.Overrides{BaseURL: "http://localhost"}, clock.RealClock{})
	require.Error(t, err)
}
