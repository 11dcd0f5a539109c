package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var verbose bool

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "audiocore",
	Short: "Bit-perfect audiophile playback core",
	Long: `audiocore drives a real-time playback pipeline built around a lock-free
SPSC ringbuffer: a decoder worker thread, an optional resampler, an 8-band
EQ, and a gapless-capable PortAudio output stream, all coordinated by a
single command-driven engine.

Commands:
  - play:      play a single file with real-time progress
  - playlist:  play multiple files back to back with gapless preload
  - devices:   list output devices known to PortAudio
  - eq:        inspect or edit the persisted 8-band EQ document
  - transform: offline sample-rate conversion to WAV`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		})))
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (debug logging)")
}
