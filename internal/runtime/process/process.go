package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/Paintersrp/drainexit/internal/logmux"
)

// Spec describes a producer invocation.
type Spec struct {
	// Command is the producer argv.
	Command []string
	// Env entries are appended to the current environment.
	Env map[string]string
	Dir string
	// Filter, when set, receives the producer's merged stdout and stderr on
	// its stdin, like `producer 2>&1 | filter`. Only the filter's stdout is
	// captured.
	Filter []string
	// ConsumerDelay slows the reader down after every captured line so the
	// producer runs into pipe backpressure.
	ConsumerDelay time.Duration
}

// Result is what a finished producer left behind.
type Result struct {
	ExitCode int
	// FilterExitCode is -1 when no filter ran.
	FilterExitCode int
	Lines          []logmux.Line
	Counts         map[string]int
}

// Texts returns the captured line texts in arrival order.
func (r *Result) Texts() []string {
	out := make([]string, len(r.Lines))
	for i, line := range r.Lines {
		out[i] = line.Text
	}
	return out
}

// Run starts the producer, captures its output and waits for it to exit.
// The producer's exit status is reported in Result, not as an error; errors
// are reserved for failures to start or capture. Cancelling ctx kills the
// producer's process group.
func Run(ctx context.Context, spec Spec) (*Result, error) {
	if len(spec.Command) == 0 {
		return nil, errors.New("process: producer command is empty")
	}
	if len(spec.Filter) > 0 {
		return runPiped(ctx, spec)
	}
	return runDirect(ctx, spec)
}

func command(ctx context.Context, argv []string, spec Spec) *exec.Cmd {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if spec.Dir != "" {
		cmd.Dir = spec.Dir
	}
	env := os.Environ()
	for k, v := range spec.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	cmd.Env = env
	configureCmdSysProcAttr(cmd)
	cmd.Cancel = func() error { return killGroup(cmd) }
	return cmd
}

func runDirect(ctx context.Context, spec Spec) (*Result, error) {
	cmd := command(ctx, spec.Command, spec)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("producer stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("producer stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start producer: %w", err)
	}

	mux := logmux.New(64)
	mux.Add(streamLines(stdout, logmux.SourceStdout))
	mux.Add(streamLines(stderr, logmux.SourceStderr))
	go mux.Close()

	lines := collect(mux.Output(), spec.ConsumerDelay)

	// Wait closes the pipes, so it must follow the readers reaching EOF.
	code, err := exitCode(cmd.Wait())
	if err != nil {
		return nil, fmt.Errorf("wait producer: %w", err)
	}
	return &Result{
		ExitCode:       code,
		FilterExitCode: -1,
		Lines:          lines,
		Counts:         mux.Counts(),
	}, nil
}

func runPiped(ctx context.Context, spec Spec) (*Result, error) {
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create pipe: %w", err)
	}

	producer := command(ctx, spec.Command, spec)
	producer.Stdout = pw
	producer.Stderr = pw

	filter := command(ctx, spec.Filter, spec)
	filter.Stdin = pr
	filter.Stderr = io.Discard
	filterOut, err := filter.StdoutPipe()
	if err != nil {
		pr.Close()
		pw.Close()
		return nil, fmt.Errorf("filter stdout: %w", err)
	}

	if err := filter.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, fmt.Errorf("start filter %s: %w", spec.Filter[0], err)
	}
	if err := producer.Start(); err != nil {
		pr.Close()
		pw.Close()
		_ = killGroup(filter)
		_ = filter.Wait()
		return nil, fmt.Errorf("start producer: %w", err)
	}
	// The children hold their own copies; the filter only sees EOF once the
	// producer is gone and ours are closed.
	pr.Close()
	pw.Close()

	var (
		wg      sync.WaitGroup
		prodErr error
		code    int
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		code, prodErr = exitCode(producer.Wait())
	}()

	mux := logmux.New(64)
	mux.Add(streamLines(filterOut, logmux.SourceFilter))
	go mux.Close()
	lines := collect(mux.Output(), spec.ConsumerDelay)

	filterCode, filterErr := exitCode(filter.Wait())
	wg.Wait()
	if prodErr != nil {
		return nil, fmt.Errorf("wait producer: %w", prodErr)
	}
	if filterErr != nil {
		return nil, fmt.Errorf("wait filter: %w", filterErr)
	}
	return &Result{
		ExitCode:       code,
		FilterExitCode: filterCode,
		Lines:          lines,
		Counts:         mux.Counts(),
	}, nil
}

func streamLines(r io.Reader, source string) <-chan logmux.Line {
	ch := make(chan logmux.Line, 64)
	go func() {
		defer close(ch)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			ch <- logmux.Line{Text: scanner.Text(), Source: source}
		}
	}()
	return ch
}

func collect(lines <-chan logmux.Line, delay time.Duration) []logmux.Line {
	var out []logmux.Line
	for line := range lines {
		out = append(out, line)
		if delay > 0 {
			time.Sleep(delay)
		}
	}
	return out
}

// exitCode turns a Wait error into an exit status. Only failures that are not
// a plain non-zero exit are returned as errors.
func exitCode(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}

// LookupFilter resolves the default output filter: grep, or find on Windows.
func LookupFilter(pattern string) ([]string, error) {
	if path, err := exec.LookPath("grep"); err == nil {
		return []string{path, pattern}, nil
	}
	if path, err := exec.LookPath("find"); err == nil && isWindows {
		return []string{path, `"` + pattern + `"`}, nil
	}
	return nil, errors.New(`a suitable "grep" or "find" program was not found in the PATH`)
}
