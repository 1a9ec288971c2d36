package testutil

import (
	"net"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
)

const natsStopGrace = 5 * time.Second

// FreePort asks the kernel for an unused loopback TCP port.
func FreePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port, nil
}

// StartLocalNATSServer runs a JetStream-enabled nats-server for one test.
// The test is skipped when the binary is not installed. The server is also stopped by test cleanup.
// Params: test handle.
// Returns: client URL and an idempotent stop callback.
func StartLocalNATSServer(tb testing.TB) (string, func()) {
	tb.Helper()

	port, err := FreePort()
	if err != nil {
		tb.Fatalf("free port: %v", err)
	}
	if _, err := exec.LookPath("nats-server"); err != nil {
		tb.Skipf("nats-server not found in PATH: %v", err)
	}

	cmd := exec.Command("nats-server", "-js", "-a", "127.0.0.1", "-p", strconv.Itoa(port), "-sd", tb.TempDir())
	if err := cmd.Start(); err != nil {
		tb.Skipf("start nats-server: %v", err)
	}

	var once sync.Once
	stop := func() {
		once.Do(func() { terminate(cmd) })
	}
	tb.Cleanup(stop)

	url := "nats://127.0.0.1:" + strconv.Itoa(port)
	WaitForNATSReady(tb, url, 8*time.Second)
	return url, stop
}

// WaitForNATSReady polls url until a client connects or timeout elapses, then fails the test.
func WaitForNATSReady(tb testing.TB, url string, timeout time.Duration) {
	tb.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		nc, err := nats.Connect(url, nats.Timeout(time.Second))
		if err == nil {
			nc.Close()
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	tb.Fatalf("nats at %s not ready after %s", url, timeout)
}

// terminate sends SIGTERM and kills the process if it outlives the grace period.
func terminate(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)
	exited := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(exited)
	}()
	select {
	case <-exited:
	case <-time.After(natsStopGrace):
		_ = cmd.Process.Kill()
		<-exited
	}
}
