package cmd

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/drgolem/go-portaudio/portaudio"
	"github.com/spf13/cobra"

	"github.com/drgolem/audiocore/pkg/types"
)

var (
	playlistDeviceIdx int
	playlistFrames    int
	playlistExclusive bool
	playlistGapless   bool
)

var playlistCmd = &cobra.Command{
	Use:   "playlist <audio_file> [audio_file...]",
	Short: "Play multiple audio files sequentially",
	Long: `Play multiple audio files one after another on a single engine instance.

With --gapless, each upcoming file is preloaded onto the engine's next-track
slot while the current one is still playing, so the output stream swaps
rings without an audible break (spec §4.H PreloadNext / gapless swap).
Without it, each file is started only after the previous one has fully
ended.

Examples:
  audiocore playlist song1.mp3 song2.flac song3.wav
  audiocore playlist --gapless --device 0 music/*.flac`,
	Args: cobra.MinimumNArgs(1),
	Run:  runPlaylist,
}

func init() {
	rootCmd.AddCommand(playlistCmd)

	playlistCmd.Flags().IntVarP(&playlistDeviceIdx, "device", "d", -1, "Audio output device index (-1 = system default)")
	playlistCmd.Flags().IntVarP(&playlistFrames, "frames", "f", 512, "PortAudio frames per buffer")
	playlistCmd.Flags().BoolVarP(&playlistExclusive, "exclusive", "x", true, "Exclusive (hog) mode flag; the value is not read: every Play requests exclusive mode on the output device")
	playlistCmd.Flags().BoolVarP(&playlistGapless, "gapless", "g", false, "Preload each next file for a gapless swap")
}

func runPlaylist(cmd *cobra.Command, args []string) {
	files := args

	slog.Info("initializing PortAudio")
	if err := portaudio.Initialize(); err != nil {
		slog.Error("failed to initialize PortAudio", "error", err)
		os.Exit(1)
	}
	defer portaudio.Terminate()

	e, sink := newEngine(playlistDeviceIdx, playlistFrames, playlistExclusive)
	defer e.Close()

	e.Submit(types.SetGaplessCommand{Enabled: playlistGapless})
	go printEvents(sink, "playlist")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	e.Submit(types.PlayCommand{Path: files[0]})

	idx := 0
	for idx < len(files) {
		if playlistGapless && idx+1 < len(files) {
			e.Submit(types.PreloadNextCommand{Path: files[idx+1]})
		}

		advanced := sink.NotifyOnAdvance()
		select {
		case <-advanced:
			idx++
			slog.Info("advancing playlist", "index", idx, "total", len(files))
			if !playlistGapless && idx < len(files) {
				e.Submit(types.PlayCommand{Path: files[idx]})
			}
		case sig := <-sigChan:
			slog.Info("signal received, stopping", "signal", sig)
			return
		}
	}

	slog.Info("playlist finished", "total", len(files))
}
