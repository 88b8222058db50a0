package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Paintersrp/drainexit/internal/logging"
	"github.com/Paintersrp/drainexit/internal/producer"
)

func newLogCmd(ctx *context, broken bool) *cobra.Command {
	var delay time.Duration

	use, short := "log", "Write numbered lines, then drain stdout and stderr and exit"
	if broken {
		use, short = "log-broken", "Write numbered lines, then exit without draining"
	}

	cmd := &cobra.Command{
		Use:   use + " [flags] [--] <status> <count> [stdout] [stderr]",
		Short: short,
		// Exit statuses may be negative, which cobra would read as shorthand
		// flags, so arguments are split by splitLogArgs instead.
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			fs := pflag.NewFlagSet(use, pflag.ContinueOnError)
			fs.SetOutput(cmd.ErrOrStderr())
			fs.AddFlagSet(cmd.LocalNonPersistentFlags())
			fs.AddFlagSet(cmd.InheritedFlags())

			flagArgs, positional, err := splitLogArgs(fs, args)
			if err != nil {
				return err
			}
			if err := fs.Parse(flagArgs); err != nil {
				if errors.Is(err, pflag.ErrHelp) {
					return cmd.Help()
				}
				return err
			}

			opts, err := producer.ParseArgs(positional)
			if err != nil {
				return err
			}
			logger, err := ctx.producerLogger()
			if err != nil {
				return err
			}
			producer.Exec(producer.Config{
				Options:     opts,
				Broken:      broken,
				Delay:       delay,
				MetricsFile: ctx.settings.MetricsFile,
				Logger:      logger,
			})
			return nil
		},
	}
	cmd.Flags().DurationVar(&delay, "delay", 0, "Slow down every chunk written to stdout and stderr")
	cmd.Flags().BoolP("help", "h", false, "help for "+use)
	return cmd
}

var negativeInt = regexp.MustCompile(`^-[0-9]+$`)

// splitLogArgs separates flags from positional arguments. A negative integer
// is positional, and everything after "--" is positional.
func splitLogArgs(fs *pflag.FlagSet, args []string) (flagArgs, positional []string, err error) {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--":
			return flagArgs, append(positional, args[i+1:]...), nil
		case negativeInt.MatchString(arg), !strings.HasPrefix(arg, "-"), arg == "-":
			positional = append(positional, arg)
			continue
		}

		flagArgs = append(flagArgs, arg)
		if strings.Contains(arg, "=") {
			continue
		}
		var flag *pflag.Flag
		if name := strings.TrimPrefix(arg, "--"); name != arg {
			flag = fs.Lookup(name)
		} else if len(arg) == 2 {
			flag = fs.ShorthandLookup(arg[1:])
		}
		if flag == nil {
			// Unknown flags and grouped shorthands are reported by Parse.
			continue
		}
		if flag.NoOptDefVal == "" {
			if i+1 >= len(args) {
				return nil, nil, fmt.Errorf("flag needs an argument: %s", arg)
			}
			i++
			flagArgs = append(flagArgs, args[i])
		}
	}
	return flagArgs, positional, nil
}

// producerLogger writes diagnostics to the configured log file. stdout and
// stderr are the measured streams, so without a file nothing is logged.
func (c *context) producerLogger() (*slog.Logger, error) {
	if c.settings.LogFile == "" {
		if _, _, err := logging.ParseLevel(c.settings.LogLevel); err != nil {
			return nil, err
		}
		return logging.NewNop(), nil
	}
	f, err := os.OpenFile(c.settings.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	// The file stays open until the producer exits.
	return c.logger(f, "debug")
}
