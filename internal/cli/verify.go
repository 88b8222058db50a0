package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/drainexit/internal/cliutil"
	"github.com/Paintersrp/drainexit/internal/config"
	"github.com/Paintersrp/drainexit/internal/harness"
	"github.com/Paintersrp/drainexit/internal/metrics"
	"github.com/Paintersrp/drainexit/internal/runtime/process"
)

// loadSuite reads path, or builds the default suite around whichever filter
// program the host provides.
func loadSuite(path string) (*config.Suite, error) {
	if path != "" {
		return config.Load(path)
	}
	filter, err := process.LookupFilter("std")
	if err != nil {
		return nil, fmt.Errorf("default suite: %w", err)
	}
	return config.Default(filter), nil
}

func newVerifyCmd(ctx *context) *cobra.Command {
	var (
		parallel     = ctx.settings.Parallel
		output       string
		producerPath string
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Run producer scenarios and check nothing was truncated",
		Long: "Runs the log producer under each scenario of a suite file (or the built-in\n" +
			"matrix when no file is given) and checks that every line written before\n" +
			"termination arrived, nothing written after it did, and the exit status\n" +
			"was passed through.",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cliutil.ResolveFormat(output, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			logger, err := ctx.logger(cmd.ErrOrStderr(), "warn")
			if err != nil {
				return err
			}

			suite, err := loadSuite(ctx.settings.SuiteFile)
			if err != nil {
				return err
			}

			runner := &harness.Runner{
				Executable: producerPath,
				Parallel:   parallel,
				Logger:     logger,
			}
			results, err := runner.RunSuite(cmd.Context(), suite)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if format == cliutil.FormatJSON {
				enc := json.NewEncoder(out)
				for _, res := range results {
					cliutil.EncodeResult(enc, cmd.ErrOrStderr(), res)
				}
			} else {
				cliutil.WriteTable(out, results)
			}

			if err := metrics.WriteTextfile(ctx.settings.MetricsFile); err != nil {
				logger.Warn("metrics export failed", "error", err)
			}

			_, _, err = harness.Summarize(results)
			return err
		},
	}
	cmd.Flags().IntVar(&parallel, "parallel", parallel, "Maximum scenarios run at once (default from the suite)")
	cmd.Flags().StringVarP(&output, "output", "o", cliutil.FormatAuto, "Result format: auto, text or json")
	cmd.Flags().StringVar(&producerPath, "producer", "", "Binary providing the log commands (default: this executable)")
	return cmd
}
