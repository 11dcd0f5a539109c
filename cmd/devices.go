package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/drgolem/go-portaudio/portaudio"
	"github.com/spf13/cobra"

	"github.com/drgolem/audiocore/pkg/devicebackend"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List output devices known to PortAudio",
	Run:   runDevices,
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}

func runDevices(cmd *cobra.Command, args []string) {
	if err := portaudio.Initialize(); err != nil {
		slog.Error("failed to initialize PortAudio", "error", err)
		os.Exit(1)
	}
	defer portaudio.Terminate()

	backend := devicebackend.New()
	devices, err := backend.RefreshDevices()
	if err != nil {
		slog.Error("failed to enumerate devices", "error", err)
		os.Exit(1)
	}

	current, err := backend.CurrentDevice()
	if err != nil {
		slog.Warn("failed to resolve current device", "error", err)
	}

	for _, d := range devices {
		marker := " "
		if d.ID == current.ID {
			marker = "*"
		}
		defaultTag := ""
		if d.IsDefault {
			defaultTag = " (system default)"
		}
		fmt.Printf("%s [%d] %s%s\n", marker, d.ID, d.Name, defaultTag)
		fmt.Printf("      channels=%d rates=%v exclusive=%v\n", d.MaxChannels, d.SupportedSampleRates, d.SupportsExclusive)
	}
}
