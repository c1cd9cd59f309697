// Package cli implements the metronome command tree.
package cli

import (
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "metronome",
	Short: "Performance monitoring and self-optimization agent",
	Long: `Metronome samples runtime performance signals, classifies them
against thresholds, watches for memory leaks, and runs optimization
rules that shrink caches and back the audio pipeline off under
pressure.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (METRONOME_CONFIG when unset)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(versionCmd)
}
