// Package lifecycle turns termination signals into an orderly broker close.
package lifecycle

import (
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/cuongbtq/recording-worker/internal/worker/domain"
)

// State of the coordinator
type State int32

const (
	Running State = iota
	ShuttingDown
	Terminated
	FailedExit
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case ShuttingDown:
		return "shutting_down"
	case Terminated:
		return "terminated"
	case FailedExit:
		return "failed_exit"
	default:
		return "unknown"
	}
}

// Signals are the termination signals the coordinator traps
var Signals = []os.Signal{syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM}

// ShutdownFunc closes the broker channel and connection
type ShutdownFunc func() error

// Option configures a Coordinator
type Option func(*Coordinator)

// WithNotify replaces signal.Notify and signal.Stop
func WithNotify(notify func(chan<- os.Signal, ...os.Signal), stop func(chan<- os.Signal)) Option {
	return func(c *Coordinator) {
		c.notify = notify
		c.stop = stop
	}
}

// WithExit replaces os.Exit
func WithExit(exit func(int)) Option {
	return func(c *Coordinator) {
		c.exit = exit
	}
}

// Coordinator owns the Running → ShuttingDown → {Terminated | FailedExit}
// transition
type Coordinator struct {
	logger   *slog.Logger
	shutdown ShutdownFunc
	notify   func(chan<- os.Signal, ...os.Signal)
	stop     func(chan<- os.Signal)
	exit     func(int)

	state    atomic.Int32
	signals  chan os.Signal
	quit     chan struct{}
	done     chan struct{}
	settled  chan struct{}
	err      error
	trapOnce sync.Once
	stopOnce sync.Once
	trapped  atomic.Bool
}

// NewCoordinator creates a coordinator in the Running state
func NewCoordinator(shutdown ShutdownFunc, logger *slog.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		logger:   logger,
		shutdown: shutdown,
		notify:   signal.Notify,
		stop:     signal.Stop,
		exit:     os.Exit,
		signals:  make(chan os.Signal, 1),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		settled:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Trap registers one handler for SIGINT, SIGQUIT and SIGTERM. Calling it
// again has no effect.
func (c *Coordinator) Trap() {
	c.trapOnce.Do(func() {
		c.notify(c.signals, Signals...)
		c.trapped.Store(true)
		go c.watch()
	})
}

func (c *Coordinator) watch() {
	defer close(c.done)

	for {
		select {
		case sig := <-c.signals:
			c.OnShutdownRequested(sig)
		case <-c.quit:
			c.stop(c.signals)
			return
		}
	}
}

// OnShutdownRequested closes the broker handle once. A failed close ends the
// process with ExitCode(sig); later signals are logged and ignored.
func (c *Coordinator) OnShutdownRequested(sig os.Signal) {
	if !c.state.CompareAndSwap(int32(Running), int32(ShuttingDown)) {
		c.logger.Warn("Shutdown already in progress, ignoring signal",
			slog.String("signal", sig.String()),
			slog.String("state", c.State().String()),
		)
		return
	}

	c.logger.Info("Received shutdown signal", slog.String("signal", sig.String()))

	err := c.shutdown()
	if err == nil {
		c.state.Store(int32(Terminated))
		c.logger.Info("Broker connection closed, worker terminating")
		close(c.settled)
		return
	}

	c.err = &domain.ShutdownError{Signal: sig, Err: err}
	c.state.Store(int32(FailedExit))
	code := ExitCode(sig)
	c.logger.Error("Shutdown failed, exiting",
		slog.Int("exit_code", code),
		slog.Any("error", c.err),
	)
	c.exit(code)
	close(c.settled)
}

// State returns the current state
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Wait blocks until a requested shutdown has finished and returns its error.
// It returns nil immediately when no shutdown was requested.
func (c *Coordinator) Wait() error {
	if c.State() == Running {
		return nil
	}
	<-c.settled
	return c.err
}

// Stop unregisters the signal handler
func (c *Coordinator) Stop() {
	if !c.trapped.Load() {
		return
	}
	c.stopOnce.Do(func() { close(c.quit) })
	<-c.done
}

// ExitCode maps a signal to 128 + its number: SIGINT 130, SIGQUIT 131,
// SIGTERM 143
func ExitCode(sig os.Signal) int {
	if s, ok := sig.(syscall.Signal); ok {
		return 128 + int(s)
	}
	return 1
}
