package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/drgolem/go-portaudio/portaudio"
	"github.com/spf13/cobra"

	"github.com/drgolem/audiocore/pkg/decoders"
	"github.com/drgolem/audiocore/pkg/devicebackend"
	"github.com/drgolem/audiocore/pkg/engine"
	"github.com/drgolem/audiocore/pkg/eq"
	"github.com/drgolem/audiocore/pkg/outputstream"
	"github.com/drgolem/audiocore/pkg/paoutput"
	"github.com/drgolem/audiocore/pkg/types"
)

var (
	playDeviceIdx   int
	playFrames      int
	playExclusive   bool
	playGapless     bool
	playStartSec    float64
	playEQGains     []float64
)

var playCmd = &cobra.Command{
	Use:   "play <audio_file>",
	Short: "Play a single audio file",
	Long: `Play a single audio file through the real-time engine: decode thread,
ring buffer, optional resampler, 8-band EQ, and a gapless-capable PortAudio
output stream.

Examples:
  audiocore play music.flac
  audiocore play --device 0 --exclusive music.flac
  audiocore play --start 30.5 music.mp3`,
	Args: cobra.ExactArgs(1),
	Run:  runPlay,
}

func init() {
	rootCmd.AddCommand(playCmd)

	playCmd.Flags().IntVarP(&playDeviceIdx, "device", "d", -1, "Audio output device index (-1 = system default)")
	playCmd.Flags().IntVarP(&playFrames, "frames", "f", 512, "PortAudio frames per buffer")
	playCmd.Flags().BoolVarP(&playExclusive, "exclusive", "x", true, "Exclusive (hog) mode flag; the value is not read: every Play requests exclusive mode on the output device")
	playCmd.Flags().BoolVarP(&playGapless, "gapless", "g", false, "Enable gapless preload (no-op for a single file; kept for symmetry with playlist)")
	playCmd.Flags().Float64VarP(&playStartSec, "start", "s", 0, "Start position in seconds")
	playCmd.Flags().Float64SliceVar(&playEQGains, "eq", nil, "8 comma-separated band gains in dB, e.g. --eq=0,0,2,0,0,-1,0,0")
}

func runPlay(cmd *cobra.Command, args []string) {
	fileName := args[0]
	if _, err := os.Stat(fileName); os.IsNotExist(err) {
		slog.Error("file not found", "path", fileName)
		os.Exit(1)
	}

	slog.Info("initializing PortAudio")
	if err := portaudio.Initialize(); err != nil {
		slog.Error("failed to initialize PortAudio", "error", err)
		os.Exit(1)
	}
	defer portaudio.Terminate()

	e, sink := newEngine(playDeviceIdx, playFrames, playExclusive)
	defer e.Close()

	applyEQFlags(e)

	go printEvents(sink, fileName)

	e.Submit(types.PlayCommand{Path: fileName, StartSeconds: playStartSec})
	ended := sink.NotifyOnAdvance()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-ended:
		slog.Info("playback finished")
	case sig := <-sigChan:
		slog.Info("signal received, stopping", "signal", sig)
	}
}

// newEngine wires the production collaborators (decoders.Probe/NewSampleDecoder,
// a live devicebackend.Backend, a paoutput.Opener) into a running engine.Engine,
// shared by the play and playlist commands.
func newEngine(deviceIdx, framesPerBuffer int, exclusive bool) (*engine.Engine, *eventPrinter) {
	backend := devicebackend.New()
	if _, err := backend.RefreshDevices(); err != nil {
		slog.Warn("failed to enumerate devices", "error", err)
	}
	if deviceIdx >= 0 {
		if err := backend.SetOutputDevice(deviceIdx); err != nil {
			slog.Warn("failed to select device, using default", "device", deviceIdx, "error", err)
		}
	}

	opener := streamOpener{paoutput.New(deviceIdx, framesPerBuffer)}
	eqState := eq.NewSharedState()
	sink := &eventPrinter{ch: make(chan types.Event, 64)}

	e := engine.New(backend, eqState, sink, opener, decoders.Probe, decoders.NewSampleDecoder)

	if path, err := eq.DefaultPath(); err == nil {
		if err := e.SetEQConfigPath(path); err != nil {
			slog.Warn("failed to load persisted EQ state", "path", path, "error", err)
		}
	}

	_ = exclusive // exclusive mode is requested per-Play call inside handlePlay via PrepareForStreaming(true)
	return e, sink
}

func applyEQFlags(e *engine.Engine) {
	if len(playEQGains) == 0 {
		return
	}
	e.Submit(types.SetEQEnabledCommand{Enabled: true})
	for band, gain := range playEQGains {
		if band >= eq.BandCount {
			break
		}
		e.Submit(types.SetEQGainCommand{Band: band, GainDB: float32(gain)})
	}
}

// streamOpener adapts *paoutput.Opener (which knows nothing of the engine
// package) to engine.StreamOpener, whose Handle return type must literally
// be the engine package's interface.
type streamOpener struct{ *paoutput.Opener }

func (s streamOpener) Open(stream *outputstream.Stream, sampleRate, channels int) (engine.Handle, error) {
	return s.Opener.Open(stream, sampleRate, channels)
}

// eventPrinter is a types.EventSink that logs playback events as they arrive
// and lets callers wait for the next track-advancing event (either a clean
// end or a gapless swap), in the spirit of the teacher's ticker-driven
// monitorPlayback but event-driven rather than polled.
type eventPrinter struct {
	ch chan types.Event

	mu      sync.Mutex
	waiters []chan struct{}
}

func (s *eventPrinter) Publish(e types.Event) {
	select {
	case s.ch <- e:
	default:
		slog.Debug("event sink saturated, dropping event", "event", fmt.Sprintf("%T", e))
	}
}

// NotifyOnAdvance returns a channel closed the next time the current track
// ends or a gapless swap happens.
func (s *eventPrinter) NotifyOnAdvance() <-chan struct{} {
	ch := make(chan struct{})
	s.mu.Lock()
	s.waiters = append(s.waiters, ch)
	s.mu.Unlock()
	return ch
}

func (s *eventPrinter) fireAdvance() {
	s.mu.Lock()
	waiters := s.waiters
	s.waiters = nil
	s.mu.Unlock()
	for _, w := range waiters {
		close(w)
	}
}

func printEvents(sink *eventPrinter, fileName string) {
	name := filepath.Base(fileName)
	for ev := range sink.ch {
		switch e := ev.(type) {
		case types.AudioSpecsEvent:
			slog.Info("audio specs",
				"file", name,
				"source_rate", e.SourceRate,
				"source_bit_depth", e.SourceBitDepth,
				"output_rate", e.OutputRate,
				"resampled", e.IsMismatch)
		case types.ProgressEvent:
			slog.Info("progress", "file", name,
				"position", fmt.Sprintf("%.1fs", e.PositionSeconds),
				"duration", fmt.Sprintf("%.1fs", e.DurationSeconds))
		case types.SeekingEvent:
			slog.Info("seeking", "target", fmt.Sprintf("%.1fs", e.TargetSeconds))
		case types.PausedEvent:
			slog.Info("paused")
		case types.ResumedEvent:
			slog.Info("resumed")
		case types.GaplessTransitionEvent:
			slog.Info("gapless transition")
			sink.fireAdvance()
		case types.ErrorEvent:
			slog.Error("playback error", "code", e.Code, "message", e.Message, "details", e.Details)
		case types.EndedEvent:
			slog.Info("track ended", "file", name)
			sink.fireAdvance()
		}
	}
}
