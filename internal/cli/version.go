package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Set via -ldflags at build time.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "vizion %s\n  commit: %s\n  built:  %s\n  go:     %s\n",
			Version, Commit, BuildDate, runtime.Version())
	},
}

// VersionString is the short form reported by /health and the serve log.
func VersionString() string {
	return fmt.Sprintf("%s (%s)", Version, Commit)
}
