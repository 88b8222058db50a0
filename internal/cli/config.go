package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/drainexit/internal/config"
)

func newConfigCmd(ctx *context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Work with harness suite files",
	}
	cmd.AddCommand(newConfigLintCmd(ctx))
	return cmd
}

func newConfigLintCmd(ctx *context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lint",
		Short: "Validate a harness suite file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ctx.settings.SuiteFile
			if path == "" {
				err := errors.New("no suite file: pass -f or set DRAINEXIT_SUITE")
				fmt.Fprintln(cmd.ErrOrStderr(), err)
				return err
			}

			suite, err := config.Load(path)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: OK (%d scenarios)\n", path, len(suite.Scenarios))
			return nil
		},
	}
	return cmd
}
