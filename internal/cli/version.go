package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Set by the build.
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "metronome %s\ncommit: %s\nbuilt:  %s\n",
			version, gitCommit, buildDate)
	},
}
