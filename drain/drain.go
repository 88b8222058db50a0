// Package drain terminates the process only after buffered output streams
// have flushed everything written to them.
//
// os.Exit does not wait for goroutines that are still copying bytes to their
// destination, so output produced through asynchronous writers (see package
// stream) can be truncated, most visibly when it is piped into a slower
// consumer. A Coordinator first suppresses further writes on every stream,
// then waits for each stream that still holds bytes to report that it has
// drained, and calls the exit function exactly once when all have.
//
// There is no timeout: a stream that never drains keeps the process alive.
//
//	fmt.Fprintln(stream.Stdout(), "done")
//	drain.Exit(0)
package drain

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/Paintersrp/drainexit/internal/logging"
	"github.com/Paintersrp/drainexit/internal/metrics"
	"github.com/Paintersrp/drainexit/stream"
)

// Stream is an output stream whose buffered bytes can be waited for.
type Stream interface {
	// Buffered reports the bytes accepted but not yet flushed.
	Buffered() int
	// Suppress permanently turns writes into silent no-ops.
	Suppress()
	// OnceDrain runs fn once the stream has no pending bytes. If nothing is
	// pending at registration, fn runs immediately.
	OnceDrain(fn func())
}

// Coordinator performs drain-then-exit terminations.
type Coordinator struct {
	exit       func(int)
	logger     *slog.Logger
	defaults   func() []Stream
	beforeExit []func(status int)
}

// Option customises a Coordinator.
type Option func(*Coordinator)

// WithExitFunc replaces os.Exit as the termination primitive.
func WithExitFunc(fn func(int)) Option {
	return func(c *Coordinator) {
		if fn != nil {
			c.exit = fn
		}
	}
}

// WithLogger sets the logger used for debug records.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithDefaultStreams sets the streams used by TerminateDefault.
func WithDefaultStreams(fn func() []Stream) Option {
	return func(c *Coordinator) {
		if fn != nil {
			c.defaults = fn
		}
	}
}

// WithBeforeExit registers a hook that runs after the last stream drained
// and right before the exit function.
func WithBeforeExit(fn func(status int)) Option {
	return func(c *Coordinator) {
		if fn != nil {
			c.beforeExit = append(c.beforeExit, fn)
		}
	}
}

// New constructs a Coordinator. Without options it exits through os.Exit and
// defaults to the process-wide stdout and stderr writers, in that order.
func New(opts ...Option) *Coordinator {
	c := &Coordinator{
		exit:     os.Exit,
		logger:   logging.NewNop(),
		defaults: StandardStreams,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// StandardStreams returns stream.Stdout and stream.Stderr.
func StandardStreams() []Stream {
	return []Stream{stream.Stdout(), stream.Stderr()}
}

// Termination tracks one termination request.
type Termination struct {
	status    int
	total     int
	requested time.Time

	mu      sync.Mutex
	drained int
	once    sync.Once
	done    chan struct{}
}

// Status reports the exit status the termination was requested with.
func (t *Termination) Status() int {
	return t.status
}

// Pending reports how many streams have not drained yet.
func (t *Termination) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total - t.drained
}

// Done is closed after the exit function returned. With os.Exit it never is.
func (t *Termination) Done() <-chan struct{} {
	return t.done
}

// Terminate suppresses writes on every stream and arranges for the exit
// function to be called with status once all of them drained. It returns as
// soon as listeners are registered; when nothing is pending the exit function
// has already run by then. An empty streams slice exits immediately.
func (c *Coordinator) Terminate(status int, streams []Stream) *Termination {
	t := &Termination{
		status:    status,
		total:     len(streams),
		requested: time.Now(),
		done:      make(chan struct{}),
	}

	// Suppress everything before the first Buffered call so no writer can
	// raise a pending count that was already observed.
	for _, s := range streams {
		s.Suppress()
	}

	pending := 0
	for _, s := range streams {
		if s.Buffered() == 0 {
			t.increment()
			continue
		}
		pending++
		name := streamName(s)
		s.OnceDrain(func() {
			c.logger.Debug("stream drained", "stream", name)
			if t.increment() {
				c.fire(t)
			}
		})
	}
	metrics.ObserveTerminationRequest(pending)
	c.logger.Debug("termination requested", "status", status, "streams", len(streams), "pending", pending)

	if t.complete() {
		c.fire(t)
	}
	return t
}

// TerminateDefault is Terminate over the default streams.
func (c *Coordinator) TerminateDefault(status int) *Termination {
	return c.Terminate(status, c.defaults())
}

// Exit calls Terminate and then blocks the calling goroutine forever. Other
// goroutines keep running until the exit function ends the process, but
// anything they write to the streams is discarded.
func (c *Coordinator) Exit(status int, streams []Stream) {
	c.Terminate(status, streams)
	select {}
}

// ExitDefault is Exit over the default streams.
func (c *Coordinator) ExitDefault(status int) {
	c.TerminateDefault(status)
	select {}
}

func (c *Coordinator) fire(t *Termination) {
	t.once.Do(func() {
		waited := time.Since(t.requested)
		metrics.ObserveExit(t.status, waited)
		c.logger.Debug("all streams drained", "status", t.status, "waited", waited)
		for _, hook := range c.beforeExit {
			hook(t.status)
		}
		c.exit(t.status)
		close(t.done)
	})
}

// increment counts one drained stream and reports whether all are drained.
func (t *Termination) increment() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.drained++
	return t.drained == t.total
}

func streamName(s Stream) string {
	if named, ok := s.(interface{ Name() string }); ok && named.Name() != "" {
		return named.Name()
	}
	return fmt.Sprintf("%T", s)
}

func (t *Termination) complete() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.drained == t.total
}

var std = New()

// Exit waits for stream.Stdout and stream.Stderr to drain, then calls
// os.Exit(status). It never returns.
func Exit(status int) {
	std.ExitDefault(status)
}

// ExitStreams waits for exactly the given streams to drain, then calls
// os.Exit(status). With no streams it exits immediately. It never returns.
func ExitStreams(status int, streams ...Stream) {
	std.Exit(status, streams)
}
