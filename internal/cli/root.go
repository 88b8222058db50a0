package cli

import (
	stdcontext "context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/drainexit/internal/logging"
)

func NewRootCmd() *cobra.Command {
	root, _ := newRootCommand()
	return root
}

func newRootCommand() (*cobra.Command, *context) {
	settings := settingsFromEnv()

	root := &cobra.Command{
		Use:   "drainexit",
		Short: "Exit only after buffered stdout and stderr have drained",
	}

	root.PersistentFlags().
		StringVarP(&settings.SuiteFile, "file", "f", settings.SuiteFile, "Path to harness suite definition")
	root.PersistentFlags().StringVar(&settings.LogLevel, "log-level", settings.LogLevel, "Diagnostic log level (debug, info, warn, error, off)")
	root.PersistentFlags().StringVar(&settings.LogFile, "log-file", settings.LogFile, "Write producer diagnostics to this file (stdout and stderr are measured)")
	root.PersistentFlags().StringVar(&settings.MetricsFile, "metrics-file", settings.MetricsFile, "Write Prometheus metrics to this textfile on exit")

	ctx := &context{settings: &settings}
	root.AddCommand(newLogCmd(ctx, false))
	root.AddCommand(newLogCmd(ctx, true))
	root.AddCommand(newVerifyCmd(ctx))
	root.AddCommand(newConfigCmd(ctx))
	root.AddCommand(newVersionCmd())

	root.SilenceUsage = true
	root.SilenceErrors = true

	return root, ctx
}

// Execute runs the CLI entrypoint.
func Execute() {
	ctx, stop := signal.NotifyContext(stdcontext.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	root.SetContext(ctx)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

type context struct {
	settings *settings
}

type settings struct {
	SuiteFile   string
	LogLevel    string
	LogFile     string
	MetricsFile string
	Parallel    int
}

// logger builds the diagnostic logger. fallback applies when no level was
// configured.
func (c *context) logger(w io.Writer, fallback string) (*slog.Logger, error) {
	value := c.settings.LogLevel
	if value == "" {
		value = fallback
	}
	level, enabled, err := logging.ParseLevel(value)
	if err != nil {
		return nil, err
	}
	if !enabled {
		return logging.NewNop(), nil
	}
	return logging.New(w, level), nil
}

func settingsFromEnv() settings {
	cfg := settings{}
	cfg.SuiteFile = os.Getenv("DRAINEXIT_SUITE")
	cfg.LogLevel = os.Getenv("DRAINEXIT_LOG_LEVEL")
	cfg.LogFile = os.Getenv("DRAINEXIT_LOG_FILE")
	cfg.MetricsFile = os.Getenv("DRAINEXIT_METRICS_FILE")
	if value := os.Getenv("DRAINEXIT_PARALLEL"); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			cfg.Parallel = n
		}
	}
	return cfg
}
