// Package producer implements the sample log-generating programs used to
// exercise drain-then-exit: they write numbered lines to stdout and/or
// stderr, request termination, then keep writing lines that must never be
// seen.
package producer

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	units "github.com/docker/go-units"

	"github.com/Paintersrp/drainexit/drain"
	"github.com/Paintersrp/drainexit/internal/logging"
)

// Output modes.
const (
	ModeStdout = "stdout"
	ModeStderr = "stderr"
)

// SuppressedMarker is part of every line written after termination was
// requested. The harness fails a run that shows it.
const SuppressedMarker = "fail: this should not display"

// Options selects what a producer writes and how it exits.
type Options struct {
	Status int
	Count  int
	Modes  []string
}

// Has reports whether the producer writes to the named stream.
func (o Options) Has(mode string) bool {
	for _, m := range o.Modes {
		if m == mode {
			return true
		}
	}
	return false
}

// ParseArgs parses "<status> <count> [modes...]". Modes may be given as
// separate arguments or as one space separated argument.
func ParseArgs(args []string) (Options, error) {
	if len(args) < 2 {
		return Options{}, fmt.Errorf("expected <status> <count> [stdout] [stderr], got %d arguments", len(args))
	}
	status, err := strconv.Atoi(args[0])
	if err != nil {
		return Options{}, fmt.Errorf("invalid status %q: %w", args[0], err)
	}
	count, err := strconv.Atoi(args[1])
	if err != nil {
		return Options{}, fmt.Errorf("invalid count %q: %w", args[1], err)
	}
	if count < 0 {
		return Options{}, fmt.Errorf("count must be non-negative, got %d", count)
	}
	opts := Options{Status: status, Count: count}
	for _, arg := range args[2:] {
		for _, mode := range strings.Fields(arg) {
			mode = strings.ToLower(mode)
			if mode != ModeStdout && mode != ModeStderr {
				return Options{}, fmt.Errorf("unknown mode %q", mode)
			}
			opts.Modes = append(opts.Modes, mode)
		}
	}
	return opts, nil
}

// Output is a writer the coordinator can drain.
type Output interface {
	io.Writer
	drain.Stream
}

// Producer writes the sample log lines.
type Producer struct {
	Stdout Output
	Stderr Output
	// Exit is the termination primitive.
	Exit   func(int)
	Logger *slog.Logger
	// BeforeExit runs after the streams drained, before Exit.
	BeforeExit func(status int)
}

// Line formats the i-th line for a stream, e.g. "[stdout] testing 3".
func Line(mode string, i int) string {
	return fmt.Sprintf("[%s] testing %d", mode, i)
}

func (p *Producer) logger() *slog.Logger {
	if p.Logger == nil {
		return logging.NewNop()
	}
	return p.Logger
}

func pendingSize(out Output) string {
	return units.HumanSize(float64(out.Buffered()))
}

func (p *Producer) writeAll(opts Options) {
	for i := 0; i < opts.Count; i++ {
		if opts.Has(ModeStdout) {
			fmt.Fprintln(p.Stdout, Line(ModeStdout, i))
		}
		if opts.Has(ModeStderr) {
			fmt.Fprintln(p.Stderr, Line(ModeStderr, i))
		}
	}
}

func (p *Producer) writeSuppressed(opts Options) {
	if opts.Has(ModeStdout) {
		fmt.Fprintf(p.Stdout, "[%s] %s\n", ModeStdout, SuppressedMarker)
	}
	if opts.Has(ModeStderr) {
		fmt.Fprintf(p.Stderr, "[%s] %s\n", ModeStderr, SuppressedMarker)
	}
}

// Run writes the lines, requests a drain-then-exit termination over the
// producer's two streams and then attempts more writes, which are discarded.
// It returns the termination so callers that stub Exit can wait on it; a real
// caller blocks forever afterwards.
func (p *Producer) Run(opts Options) *drain.Termination {
	p.writeAll(opts)
	p.logger().Debug("lines written", "count", opts.Count, "modes", opts.Modes,
		"stdout_pending", pendingSize(p.Stdout), "stderr_pending", pendingSize(p.Stderr))

	coordOpts := []drain.Option{
		drain.WithExitFunc(p.Exit),
		drain.WithLogger(p.Logger),
	}
	if p.BeforeExit != nil {
		coordOpts = append(coordOpts, drain.WithBeforeExit(p.BeforeExit))
	}
	term := drain.New(coordOpts...).Terminate(opts.Status, []drain.Stream{p.Stdout, p.Stderr})

	p.writeSuppressed(opts)
	return term
}

// RunBroken writes the lines and exits right away without waiting for the
// streams, which truncates whatever is still buffered.
func (p *Producer) RunBroken(opts Options) {
	p.writeAll(opts)
	p.logger().Debug("exiting without drain", "stdout_pending", pendingSize(p.Stdout), "stderr_pending", pendingSize(p.Stderr))
	if p.BeforeExit != nil {
		p.BeforeExit(opts.Status)
	}
	p.Exit(opts.Status)
	p.writeSuppressed(opts)
}
