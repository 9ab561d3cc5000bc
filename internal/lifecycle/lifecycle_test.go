package lifecycle

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/cuongbtq/recording-worker/internal/worker/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// signalBus stands in for os/signal
type signalBus struct {
	mu         sync.Mutex
	registered []os.Signal
	notifyCall int
	stopCall   int
	ch         chan<- os.Signal
}

func (b *signalBus) notify(c chan<- os.Signal, sig ...os.Signal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notifyCall++
	b.registered = append(b.registered, sig...)
	b.ch = c
}

func (b *signalBus) stop(chan<- os.Signal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopCall++
}

func (b *signalBus) send(sig os.Signal) {
	b.mu.Lock()
	ch := b.ch
	b.mu.Unlock()
	ch <- sig
}

type exitRecorder struct {
	mu    sync.Mutex
	codes []int
}

func (e *exitRecorder) exit(code int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.codes = append(e.codes, code)
}

func (e *exitRecorder) Codes() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]int(nil), e.codes...)
}

func newTestCoordinator(shutdown ShutdownFunc) (*Coordinator, *signalBus, *exitRecorder) {
	bus := &signalBus{}
	exits := &exitRecorder{}
	c := NewCoordinator(shutdown,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithNotify(bus.notify, bus.stop),
		WithExit(exits.exit),
	)
	return c, bus, exits
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 130, ExitCode(syscall.SIGINT))
	assert.Equal(t, 131, ExitCode(syscall.SIGQUIT))
	assert.Equal(t, 143, ExitCode(syscall.SIGTERM))
	assert.Equal(t, 1, ExitCode(customSignal{}))
}

type customSignal struct{}

func (customSignal) String() string { return "custom" }
func (customSignal) Signal()        {}

func TestTrap_RegistersOnce(t *testing.T) {
	c, bus, _ := newTestCoordinator(func() error { return nil })

	c.Trap()
	c.Trap()
	c.Stop()

	assert.Equal(t, 1, bus.notifyCall)
	assert.ElementsMatch(t, []os.Signal{syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM}, bus.registered)
	assert.Equal(t, 1, bus.stopCall)
}

func TestOnShutdownRequested_CleanClose(t *testing.T) {
	for _, sig := range Signals {
		t.Run(sig.String(), func(t *testing.T) {
			calls := 0
			c, _, exits := newTestCoordinator(func() error {
				calls++
				return nil
			})

			c.OnShutdownRequested(sig)

			assert.Equal(t, 1, calls)
			assert.Equal(t, Terminated, c.State())
			assert.Empty(t, exits.Codes())
			assert.NoError(t, c.Wait())
		})
	}
}

func TestOnShutdownRequested_FailedClose(t *testing.T) {
	tests := []struct {
		sig  os.Signal
		code int
	}{
		{syscall.SIGINT, 130},
		{syscall.SIGQUIT, 131},
		{syscall.SIGTERM, 143},
	}

	for _, tt := range tests {
		t.Run(tt.sig.String(), func(t *testing.T) {
			closeErr := errors.New("failed to close channel: connection reset")
			c, _, exits := newTestCoordinator(func() error { return closeErr })

			c.OnShutdownRequested(tt.sig)

			assert.Equal(t, FailedExit, c.State())
			assert.Equal(t, []int{tt.code}, exits.Codes())

			err := c.Wait()
			var shutdownErr *domain.ShutdownError
			require.ErrorAs(t, err, &shutdownErr)
			assert.Equal(t, tt.sig, shutdownErr.Signal)
			assert.ErrorIs(t, err, closeErr)
		})
	}
}

func TestOnShutdownRequested_RepeatedSignalsIgnored(t *testing.T) {
	calls := 0
	c, _, exits := newTestCoordinator(func() error {
		calls++
		return errors.New("boom")
	})

	c.OnShutdownRequested(syscall.SIGTERM)
	c.OnShutdownRequested(syscall.SIGINT)

	assert.Equal(t, 1, calls)
	assert.Equal(t, []int{143}, exits.Codes())
}

func TestTrap_SignalTriggersShutdown(t *testing.T) {
	closed := make(chan struct{})
	c, bus, exits := newTestCoordinator(func() error {
		close(closed)
		return nil
	})
	c.Trap()
	defer c.Stop()

	bus.send(syscall.SIGTERM)

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("shutdown was not invoked")
	}
	require.Eventually(t, func() bool { return c.State() == Terminated }, time.Second, 5*time.Millisecond)
	assert.NoError(t, c.Wait())
	assert.Empty(t, exits.Codes())
}

func TestWait_NoShutdownRequested(t *testing.T) {
	c, _, _ := newTestCoordinator(func() error { return nil })

	assert.Equal(t, Running, c.State())
	assert.NoError(t, c.Wait())
	c.Stop()
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "running", Running.String())
	assert.Equal(t, "shutting_down", ShuttingDown.String())
	assert.Equal(t, "terminated", Terminated.String())
	assert.Equal(t, "failed_exit", FailedExit.String())
	assert.Equal(t, "unknown", State(42).String())
}
