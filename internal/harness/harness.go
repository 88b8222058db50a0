// Package harness runs producer programs under controlled conditions and
// checks that drain-then-exit kept its promises: every line written before
// termination arrives, nothing written after it does, and the exit status is
// passed through.
package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Paintersrp/drainexit/internal/config"
	"github.com/Paintersrp/drainexit/internal/logging"
	"github.com/Paintersrp/drainexit/internal/metrics"
	"github.com/Paintersrp/drainexit/internal/runtime/process"
)

// ErrMismatch is returned by Summarize when at least one scenario failed.
var ErrMismatch = errors.New("harness: scenario output did not match expectations")

// Result is the outcome of one scenario.
type Result struct {
	Name         string        `json:"name"`
	Passed       bool          `json:"passed"`
	Failures     []string      `json:"failures,omitempty"`
	ExitCode     int           `json:"exitCode"`
	WantExitCode int           `json:"wantExitCode"`
	Lines        int           `json:"lines"`
	WantLines    int           `json:"wantLines"`
	Duration     time.Duration `json:"duration"`
	Command      []string      `json:"command"`
}

func (r *Result) fail(format string, args ...any) {
	r.Passed = false
	r.Failures = append(r.Failures, fmt.Sprintf(format, args...))
}

// RunFunc executes a producer. It matches process.Run.
type RunFunc func(ctx context.Context, spec process.Spec) (*process.Result, error)

// Runner executes scenarios against a producer binary.
type Runner struct {
	// Executable is the binary exposing the log and log-broken commands.
	// Defaults to the running executable.
	Executable string
	// Env is added to every producer's environment.
	Env map[string]string
	// Parallel bounds concurrent scenarios; zero uses the suite's value.
	Parallel int
	Logger   *slog.Logger
	// Run defaults to process.Run.
	Run RunFunc
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return logging.NewNop()
	}
	return r.Logger
}

func (r *Runner) executable() (string, error) {
	if r.Executable != "" {
		return r.Executable, nil
	}
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locate producer executable: %w", err)
	}
	return exe, nil
}

// Command builds the producer argv for a scenario.
func Command(exe string, sc *config.Scenario) []string {
	sub := "log"
	if sc.Broken {
		sub = "log-broken"
	}
	argv := []string{exe, sub}
	if sc.ProducerDelay.Duration > 0 {
		argv = append(argv, "--delay", sc.ProducerDelay.Duration.String())
	}
	// "--" keeps a negative status from being read as a flag.
	argv = append(argv, "--", strconv.Itoa(sc.Status), strconv.Itoa(sc.Count))
	return append(argv, sc.Modes...)
}

// RunSuite runs every scenario, at most Parallel at a time, and returns the
// results in suite order. Only setup failures are returned as errors.
func (r *Runner) RunSuite(ctx context.Context, suite *config.Suite) ([]Result, error) {
	exe, err := r.executable()
	if err != nil {
		return nil, err
	}
	limit := r.Parallel
	if limit <= 0 {
		limit = suite.Parallel
	}
	if limit <= 0 {
		limit = 1
	}

	results := make([]Result, len(suite.Scenarios))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, sc := range suite.Scenarios {
		g.Go(func() error {
			res, err := r.runScenario(gctx, exe, sc)
			if err != nil {
				return fmt.Errorf("scenario %s: %w", sc.Name, err)
			}
			mu.Lock()
			results[i] = res
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// RunScenario runs a single scenario.
func (r *Runner) RunScenario(ctx context.Context, sc *config.Scenario) (Result, error) {
	exe, err := r.executable()
	if err != nil {
		return Result{}, err
	}
	return r.runScenario(ctx, exe, sc)
}

func (r *Runner) runScenario(ctx context.Context, exe string, sc *config.Scenario) (Result, error) {
	run := r.Run
	if run == nil {
		run = process.Run
	}

	spec := process.Spec{
		Command:       Command(exe, sc),
		Env:           r.Env,
		ConsumerDelay: sc.ConsumerDelay.Duration,
	}
	if sc.Pipe {
		spec.Filter = sc.Filter
	}

	timeout := sc.Timeout.Duration
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	log := r.logger().With("scenario", sc.Name)
	log.Debug("starting producer", "argv", spec.Command, "filter", spec.Filter)

	start := time.Now()
	out, err := run(ctx, spec)
	elapsed := time.Since(start)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Name:     sc.Name,
		Passed:   true,
		ExitCode: out.ExitCode,
		Lines:    len(out.Lines),
		Duration: elapsed,
		Command:  spec.Command,
	}
	if ctx.Err() != nil {
		res.fail("timed out after %s: a stream never drained or the producer hung", timeout)
	}
	if err := Check(sc, out, &res); err != nil {
		return Result{}, err
	}

	metrics.ObserveScenario(sc.Name, res.Passed, res.Lines, elapsed)
	if res.Passed {
		log.Info("scenario passed", "lines", res.Lines, "duration", elapsed)
	} else {
		log.Warn("scenario failed", "failures", res.Failures)
	}
	return res, nil
}

// Summarize counts failures and returns ErrMismatch if there are any.
func Summarize(results []Result) (passed, failed int, err error) {
	for _, res := range results {
		if res.Passed {
			passed++
		} else {
			failed++
		}
	}
	if failed > 0 {
		return passed, failed, fmt.Errorf("%w: %d of %d scenarios failed", ErrMismatch, failed, len(results))
	}
	return passed, failed, nil
}
