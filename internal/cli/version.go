package cli

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// version is overridden at link time with -X.
var version = "dev"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "drainexit %s\n", version)
			goVersion := runtime.Version()
			revision := ""
			if info, ok := debug.ReadBuildInfo(); ok {
				if info.GoVersion != "" {
					goVersion = info.GoVersion
				}
				for _, setting := range info.Settings {
					if setting.Key == "vcs.revision" {
						revision = setting.Value
					}
				}
			}
			fmt.Fprintf(out, "go: %s\n", goVersion)
			if revision != "" {
				fmt.Fprintf(out, "revision: %s\n", revision)
			}
			return nil
		},
	}
}
