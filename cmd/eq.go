package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/drgolem/audiocore/pkg/eq"
)

var eqCmd = &cobra.Command{
	Use:   "eq",
	Short: "Inspect or edit the persisted 8-band EQ document",
	Long: `The eq command reads and writes the same on-disk document the running
engine persists to on every SetEQGain/SetEQEnabled command, so changes made
here take effect the next time a play/playlist command starts.`,
}

var eqShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current EQ enabled flag and band gains",
	Run:   runEQShow,
}

var eqSetCmd = &cobra.Command{
	Use:   "set <band> <gain_db>",
	Short: "Set one band's gain in dB",
	Long: `<band> is an index 0-7 or one of the labels: ` + bandLabelList() + `.
Values are clamped to [-12, 12] dB.`,
	Args: cobra.ExactArgs(2),
	Run:  runEQSet,
}

var eqEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Turn the EQ on",
	Run:   func(cmd *cobra.Command, args []string) { runEQSetEnabled(true) },
}

var eqDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Turn the EQ off (bit-perfect passthrough)",
	Run:   func(cmd *cobra.Command, args []string) { runEQSetEnabled(false) },
}

func init() {
	rootCmd.AddCommand(eqCmd)
	eqCmd.AddCommand(eqShowCmd, eqSetCmd, eqEnableCmd, eqDisableCmd)
}

func bandLabelList() string {
	s := ""
	for i, l := range eq.Labels {
		if i > 0 {
			s += ", "
		}
		s += l
	}
	return s
}

func loadEQState() (*eq.SharedState, string) {
	path, err := eq.DefaultPath()
	if err != nil {
		slog.Error("failed to resolve EQ config path", "error", err)
		os.Exit(1)
	}
	s := eq.NewSharedState()
	if err := s.Load(path); err != nil {
		slog.Error("failed to load EQ document", "path", path, "error", err)
		os.Exit(1)
	}
	return s, path
}

func runEQShow(cmd *cobra.Command, args []string) {
	s, path := loadEQState()
	fmt.Printf("config: %s\n", path)
	fmt.Printf("enabled: %v\n", s.Enabled())
	for i, gain := range s.AllGains() {
		fmt.Printf("  %-4s (%6.0fHz): %+.1f dB\n", eq.Labels[i], eq.Frequencies[i], gain)
	}
}

func runEQSet(cmd *cobra.Command, args []string) {
	band, ok := parseBand(args[0])
	if !ok {
		slog.Error("unrecognized band", "band", args[0])
		os.Exit(1)
	}

	gain, err := strconv.ParseFloat(args[1], 32)
	if err != nil {
		slog.Error("invalid gain", "value", args[1], "error", err)
		os.Exit(1)
	}

	s, path := loadEQState()
	s.SetGain(band, float32(gain))
	if err := s.Store(path); err != nil {
		slog.Error("failed to store EQ document", "path", path, "error", err)
		os.Exit(1)
	}
	fmt.Printf("%s set to %+.1f dB\n", eq.Labels[band], s.GainDB(band))
}

func runEQSetEnabled(enabled bool) {
	s, path := loadEQState()
	s.SetEnabled(enabled)
	if err := s.Store(path); err != nil {
		slog.Error("failed to store EQ document", "path", path, "error", err)
		os.Exit(1)
	}
	fmt.Printf("eq enabled: %v\n", s.Enabled())
}

func parseBand(s string) (int, bool) {
	if idx, err := strconv.Atoi(s); err == nil {
		if idx >= 0 && idx < eq.BandCount {
			return idx, true
		}
		return 0, false
	}
	for i, l := range eq.Labels {
		if l == s {
			return i, true
		}
	}
	return 0, false
}
