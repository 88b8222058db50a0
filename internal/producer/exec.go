package producer

import (
	"log/slog"
	"os"
	"time"

	"github.com/Paintersrp/drainexit/internal/metrics"
	"github.com/Paintersrp/drainexit/stream"
)

// Config is the process-level setup of a producer program.
type Config struct {
	Options
	Broken bool
	// Delay slows every chunk the stdio writers flush, leaving bytes pending
	// when termination is requested.
	Delay       time.Duration
	MetricsFile string
	Logger      *slog.Logger
}

// Exec runs a producer over the process's stdout and stderr. It never
// returns: the process ends through os.Exit.
func Exec(cfg Config) {
	out, errOut := stream.Stdout(), stream.Stderr()
	if cfg.Delay > 0 {
		out = stream.New(os.Stdout, stream.WithName("stdout"), stream.WithDelay(cfg.Delay), stream.WithSync())
		errOut = stream.New(os.Stderr, stream.WithName("stderr"), stream.WithDelay(cfg.Delay), stream.WithSync())
	}

	p := &Producer{
		Stdout: out,
		Stderr: errOut,
		Exit:   os.Exit,
		Logger: cfg.Logger,
	}
	if cfg.MetricsFile != "" {
		path := cfg.MetricsFile
		p.BeforeExit = func(int) {
			if err := metrics.WriteTextfile(path); err != nil {
				p.logger().Warn("metrics export failed", "error", err)
			}
		}
	}

	if cfg.Broken {
		p.RunBroken(cfg.Options)
	} else {
		p.Run(cfg.Options)
	}
	select {}
}
