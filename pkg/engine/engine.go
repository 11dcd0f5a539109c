// Package engine implements the spec's coordinator (§4.H): a single
// goroutine consuming a bounded command channel and sequencing device
// preparation, decoder sessions, and the real-time output stream, plus the
// seek and gapless protocols that tie the other components together.
//
// Grounded on the teacher's internal/fileplayer.go Play/Stop orchestration
// (one goroutine owning a PortAudio stream plus a producer goroutine),
// generalized to a command-driven coordinator per the Rust reference's
// engine module.
package engine

import (
	"log/slog"
	"sync"
	"time"

	"github.com/drgolem/audiocore/pkg/decoderworker"
	"github.com/drgolem/audiocore/pkg/devicebackend"
	"github.com/drgolem/audiocore/pkg/eq"
	"github.com/drgolem/audiocore/pkg/outputstream"
	"github.com/drgolem/audiocore/pkg/ringbuffer"
	"github.com/drgolem/audiocore/pkg/streamstate"
	"github.com/drgolem/audiocore/pkg/types"
)

// CommandChannelCapacity is the minimum bound the spec requires for the
// command channel (§6: "capacity ≥ 32").
const CommandChannelCapacity = 32

// RingCapacitySamples is the default ring buffer size (in samples, i.e.
// frames × channels) shared by every decode session this engine starts.
const RingCapacitySamples = 1 << 17 // ~131k samples, ~1.5s stereo at 44.1kHz

// seekMinInterval and seekMinDeltaSeconds implement the spec's seek
// rate-limit ("ignore if < 50 ms since last or < 100 ms change in target").
const (
	seekMinInterval     = 50 * time.Millisecond
	seekMinDeltaSeconds = 0.100
)

// seekWaitTimeout and seekPollInterval implement the coordinator's bounded
// wait for the decoder to clear Seeking after a seek handshake (§4.H step vii).
const (
	seekWaitTimeout  = 2 * time.Second
	seekPollInterval = 5 * time.Millisecond
)

// StreamOpener abstracts constructing and driving a live device stream so
// Engine can be unit-tested without a real PortAudio handle. A production
// binding adapts *outputstream.Stream to an opened PortAudio callback
// stream satisfying this interface.
type StreamOpener interface {
	// Open starts delivering audio pulled from stream at sampleRate/channels
	// on the prepared device, returning a handle to stop it later.
	Open(stream *outputstream.Stream, sampleRate, channels int) (Handle, error)
}

// Handle is a running device stream.
type Handle interface {
	Stop() error

	// Abort flushes any HAL-internal buffering by aborting and restarting
	// the underlying device stream, so no pre-seek audio is still in flight
	// in the hardware once it returns (spec §4.G: "Reset... MUST flush any
	// HAL-internal buffering"). Called alongside Stream.Reset() at the start
	// of the seek handshake.
	Abort() error
}

// DeviceBackend is the subset of *devicebackend.Backend the coordinator
// drives, narrowed to an interface so the coordinator can be unit-tested
// without a real PortAudio device.
type DeviceBackend interface {
	PrepareForStreaming(cfg devicebackend.StreamConfig, wantExclusive bool) (actualRate int, err error)
	Release() error
}

// session is one active (or preloaded) decode session: decoder worker,
// ring, and StreamingState travel together.
type session struct {
	worker *decoderworker.Worker
	ring   *ringbuffer.RingBuffer
	state  *streamstate.State
	path   string
}

// DecoderFactory opens a SampleDecoder for path, mirroring
// decoders.NewSampleDecoder's signature so production code can pass that
// function directly while tests substitute an in-memory fake.
type DecoderFactory func(path string) (types.SampleDecoder, error)

// Engine is the coordinator goroutine plus its command channel.
type Engine struct {
	commands chan types.Command

	backend        DeviceBackend
	eqState        *eq.SharedState
	sink           types.EventSink
	opener         StreamOpener
	probe          types.ProbeFunc
	openDecoder    DecoderFactory

	mu             sync.Mutex
	current        *session
	currentHandle  Handle
	currentStream  *outputstream.Stream
	next           *session
	gaplessEnabled bool

	// volume is written only by the coordinator goroutine (handleSetVolume,
	// under mu) and read under mu by Snapshot; the coordinator's own read in
	// handlePlay needs no lock. It needs no atomic, unlike the gain state
	// eq.SharedState exposes to the real-time callback.
	volume float32

	lastSeekAt     time.Time
	lastSeekTarget float64

	// eqConfigPath, if set, is where EQ state is persisted on every change
	// and loaded from at startup (spec §6, supplemented per eq.rs's shape —
	// see SetEQConfigPath).
	eqConfigPath string

	stopped chan struct{}
}

// New builds an Engine bound to backend/eqState/sink, with gapless disabled
// by default, and starts its coordinator goroutine. probe and openDecoder
// are the spec's external collaborators (§6 "Probe contract"); production
// callers pass decoders.Probe and decoders.NewSampleDecoder.
func New(backend DeviceBackend, eqState *eq.SharedState, sink types.EventSink, opener StreamOpener, probe types.ProbeFunc, openDecoder DecoderFactory) *Engine {
	e := &Engine{
		commands:    make(chan types.Command, CommandChannelCapacity),
		backend:     backend,
		eqState:     eqState,
		sink:        sink,
		opener:      opener,
		probe:       probe,
		openDecoder: openDecoder,
		stopped:     make(chan struct{}),
	}
	e.volume = 1.0
	go e.run()
	return e
}

// SetEQConfigPath sets where EQ state is persisted, loading any existing
// document immediately into eqState. Call before issuing EQ commands.
func (e *Engine) SetEQConfigPath(path string) error {
	e.eqConfigPath = path
	if path == "" {
		return nil
	}
	return e.eqState.Load(path)
}

// Submit enqueues a command for the coordinator, blocking briefly if the
// channel is saturated (spec §6: "back-pressure is not expected").
func (e *Engine) Submit(cmd types.Command) {
	e.commands <- cmd
}

// Close stops the coordinator goroutine and releases the device backend.
func (e *Engine) Close() {
	e.Submit(types.StopCommand{})
	close(e.commands)
	<-e.stopped
	if err := e.backend.Release(); err != nil {
		slog.Warn("error releasing device backend on close", "error", err)
	}
}

func (e *Engine) run() {
	defer close(e.stopped)
	for cmd := range e.commands {
		e.handle(cmd)
	}
}

func (e *Engine) handle(cmd types.Command) {
	switch c := cmd.(type) {
	case types.PlayCommand:
		e.handlePlay(c.Path, c.StartSeconds)
	case types.PauseCommand:
		e.handlePause()
	case types.ResumeCommand:
		e.handleResume()
	case types.StopCommand:
		e.handleStop()
	case types.SeekCommand:
		e.handleSeek(c.Seconds)
	case types.SetVolumeCommand:
		e.handleSetVolume(c.Volume)
	case types.PreloadNextCommand:
		e.handlePreloadNext(c.Path)
	case types.SetGaplessCommand:
		e.handleSetGapless(c.Enabled)
	case types.SetEQGainCommand:
		e.eqState.SetGain(c.Band, c.GainDB)
		e.persistEQ()
	case types.SetEQEnabledCommand:
		e.eqState.SetEnabled(c.Enabled)
		e.persistEQ()
	}
}

// persistEQ saves the current EQ state if an EQConfigPath was configured,
// logging (not failing) on error — persistence is best-effort ambient state,
// never load-bearing for playback correctness.
func (e *Engine) persistEQ() {
	if e.eqConfigPath == "" {
		return
	}
	if err := e.eqState.Store(e.eqConfigPath); err != nil {
		slog.Warn("failed to persist EQ state", "path", e.eqConfigPath, "error", err)
	}
}

// Snapshot reports the engine's current output configuration, mirroring
// types.rs's AudioOutputConfig for CLI status/devices output.
type Snapshot struct {
	Path           string
	SourceRate     int
	OutputRate     int
	Channels       int
	BitDepth       int
	GaplessEnabled bool
	EQEnabled      bool
	Volume         float32
}

// Snapshot returns the engine's current state for display.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := Snapshot{
		GaplessEnabled: e.gaplessEnabled,
		Volume:         e.volume,
	}
	if e.eqState != nil {
		snap.EQEnabled = e.eqState.Enabled()
	}
	if e.current != nil {
		snap.Path = e.current.path
		snap.SourceRate = e.current.state.Info.SourceSampleRate
		snap.OutputRate = e.current.state.Info.OutputSampleRate
		snap.Channels = e.current.state.Info.Channels
		snap.BitDepth = e.current.state.Info.BitDepth
	}
	return snap
}

func (e *Engine) publish(ev types.Event) {
	if e.sink != nil {
		e.sink.Publish(ev)
	}
}

func (e *Engine) publishError(code types.ErrorCode, message string, cause error) {
	berr := types.NewError(code, message, cause)
	e.publish(types.ErrorEventFromBackendError(berr))
}

// handlePlay implements spec §4.H Play.
func (e *Engine) handlePlay(path string, startSeconds float64) {
	e.publish(types.LoadingEvent{Loading: true})

	e.mu.Lock()
	e.next = nil
	if e.currentStream != nil {
		e.currentStream.ClearNextTrack()
	}
	e.mu.Unlock()

	e.stopCurrentLocked()

	info, err := e.probe(path)
	if err != nil {
		e.publishError(types.ErrFileProbeFailed, "failed to probe file", err)
		e.publish(types.LoadingEvent{Loading: false})
		return
	}

	outputRate, err := e.backend.PrepareForStreaming(devicebackend.StreamConfig{
		SampleRate: info.SourceSampleRate,
		Channels:   info.Channels,
	}, true)
	if err != nil {
		e.publishError(types.ErrDeviceSwitchFailed, "failed to prepare device", err)
	}
	if outputRate == 0 {
		outputRate = info.SourceSampleRate
	}

	info.OutputSampleRate = outputRate
	info.IsResampled = outputRate != info.SourceSampleRate
	isMismatch := info.IsResampled

	decoder, err := e.openDecoder(path)
	if err != nil {
		e.publishError(types.ErrDecodeFailed, "failed to open decoder", err)
		e.publish(types.LoadingEvent{Loading: false})
		return
	}

	ring := ringbuffer.New(RingCapacitySamples)
	state := streamstate.New(info, ring.Size())
	worker := decoderworker.Start(decoder, ring, state, startSeconds)

	sess := &session{worker: worker, ring: ring, state: state, path: path}

	stream := outputstream.New(ring, state, e.eqState, e.sink)
	stream.SetVolume(e.volume)

	handle, err := e.opener.Open(stream, outputRate, info.Channels)
	if err != nil {
		e.publishError(types.ErrStreamCreateFailed, "failed to create output stream", err)
		worker.Commands().Stop()
		e.publish(types.LoadingEvent{Loading: false})
		return
	}

	e.mu.Lock()
	e.current = sess
	e.currentStream = stream
	e.currentHandle = handle
	e.mu.Unlock()

	e.publish(types.AudioSpecsEvent{
		SourceRate:     info.SourceSampleRate,
		SourceBitDepth: info.BitDepth,
		SourceChannels: info.Channels,
		OutputRate:     outputRate,
		OutputChannels: info.Channels,
		IsMismatch:     isMismatch,
	})
	e.publish(types.LoadingEvent{Loading: false})
}

// stopCurrentLocked stops the current decoder and output stream, if any,
// waiting briefly for cleanup (spec §4.H Play: "stop and drop the current
// stream (with brief cleanup wait); stop the current decoder").
func (e *Engine) stopCurrentLocked() {
	e.mu.Lock()
	handle := e.currentHandle
	sess := e.current
	e.current = nil
	e.currentHandle = nil
	e.currentStream = nil
	e.mu.Unlock()

	if handle != nil {
		if err := handle.Stop(); err != nil {
			slog.Warn("error stopping output stream", "error", err)
		}
		time.Sleep(20 * time.Millisecond)
	}
	if sess != nil {
		sess.worker.Commands().Stop()
	}
}

func (e *Engine) handlePause() {
	e.mu.Lock()
	stream := e.currentStream
	e.mu.Unlock()
	if stream == nil {
		return
	}
	stream.Pause()
	e.publish(types.PausedEvent{})
}

func (e *Engine) handleResume() {
	e.mu.Lock()
	stream := e.currentStream
	e.mu.Unlock()
	if stream == nil {
		return
	}
	stream.Resume()
	e.publish(types.ResumedEvent{})
}

// handleStop implements spec §4.H Stop. Exclusive mode and the device's
// original sample rate are released on every Stop, not only at coordinator
// shutdown (spec §8.7) — Close's own Release call on top of this one is
// simply a second, idempotent no-op once nothing is left to restore.
func (e *Engine) handleStop() {
	e.stopCurrentLocked()

	e.mu.Lock()
	next := e.next
	e.next = nil
	e.mu.Unlock()
	if next != nil {
		next.worker.Commands().Stop()
	}

	if err := e.backend.Release(); err != nil {
		slog.Warn("error releasing device backend on stop", "error", err)
	}
}

// handleSeek implements the full seek protocol of spec §4.H Seek(t).
func (e *Engine) handleSeek(target float64) {
	now := time.Now()
	if !e.lastSeekAt.IsZero() {
		sinceLast := now.Sub(e.lastSeekAt)
		delta := target - e.lastSeekTarget
		if delta < 0 {
			delta = -delta
		}
		if sinceLast < seekMinInterval || delta < seekMinDeltaSeconds {
			return
		}
	}
	e.lastSeekAt = now
	e.lastSeekTarget = target

	e.mu.Lock()
	sess := e.current
	stream := e.currentStream
	handle := e.currentHandle
	e.mu.Unlock()

	if sess == nil || stream == nil {
		return
	}

	duration := sess.state.Info.DurationSeconds
	if duration > 0 {
		if target < 0 {
			target = 0
		}
		if target > 0.999*duration {
			target = 0.999 * duration
		}
	}

	if sess.state.DecodingComplete.Load() {
		e.handlePlay(sess.path, target)
		return
	}

	sess.state.IsSeekingUI.Store(true)
	sess.state.PlaybackPosition.Store(uint64(target * float64(sess.state.Info.OutputSampleRate) * float64(sess.state.Info.Channels)))

	stream.Reset()
	if handle != nil {
		if err := handle.Abort(); err != nil {
			slog.Warn("failed to abort device stream during seek", "error", err)
		}
	}

	seekPositionSourceSamples := uint64(target * float64(sess.state.Info.Channels) * float64(sess.state.Info.SourceSampleRate))
	sess.state.SeekPosition.Store(seekPositionSourceSamples)
	sess.state.Seeking.Store(true)
	sess.state.FlushBuffer.Store(false)
	sess.state.FlushComplete.Store(false)

	e.publish(types.SeekingEvent{TargetSeconds: target})

	sess.worker.Commands().Seek(target)

	deadline := time.Now().Add(seekWaitTimeout)
	for time.Now().Before(deadline) {
		if !sess.state.Seeking.Load() {
			break
		}
		time.Sleep(seekPollInterval)
	}
	if sess.state.Seeking.Load() {
		e.publishError(types.ErrSeekFailed, "seek did not complete within timeout", nil)
	}

	e.publish(types.ProgressEvent{
		PositionSeconds: target,
		DurationSeconds: duration,
	})
	sess.state.IsSeekingUI.Store(false)
}

func (e *Engine) handleSetVolume(v float32) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	e.mu.Lock()
	e.volume = v
	stream := e.currentStream
	e.mu.Unlock()
	if stream != nil {
		stream.SetVolume(v)
	}
}

// handlePreloadNext implements spec §4.H PreloadNext(path).
func (e *Engine) handlePreloadNext(path string) {
	e.mu.Lock()
	gapless := e.gaplessEnabled
	stream := e.currentStream
	e.mu.Unlock()
	if !gapless || stream == nil {
		return
	}

	e.mu.Lock()
	prevNext := e.next
	e.next = nil
	e.mu.Unlock()
	if prevNext != nil {
		prevNext.worker.Commands().Stop()
		stream.ClearNextTrack()
	}

	info, err := e.probe(path)
	if err != nil {
		e.publishError(types.ErrFileProbeFailed, "failed to probe preload file", err)
		return
	}

	e.mu.Lock()
	targetRate := 0
	if e.current != nil {
		targetRate = e.current.state.Info.OutputSampleRate
	}
	e.mu.Unlock()
	if targetRate == 0 {
		targetRate = info.SourceSampleRate
	}

	info.OutputSampleRate = targetRate
	info.IsResampled = targetRate != info.SourceSampleRate

	decoder, err := e.openDecoder(path)
	if err != nil {
		e.publishError(types.ErrDecodeFailed, "failed to open preload decoder", err)
		return
	}

	ring := ringbuffer.New(RingCapacitySamples)
	state := streamstate.New(info, ring.Size())
	worker := decoderworker.Start(decoder, ring, state, 0)

	sess := &session{worker: worker, ring: ring, state: state, path: path}

	e.mu.Lock()
	e.next = sess
	e.mu.Unlock()

	stream.SetNextTrack(&outputstream.NextTrack{Ring: ring, State: state}, func() {
		e.mu.Lock()
		e.current = sess
		e.next = nil
		e.mu.Unlock()
		e.publish(types.AudioSpecsEvent{
			SourceRate:     info.SourceSampleRate,
			SourceBitDepth: info.BitDepth,
			SourceChannels: info.Channels,
			OutputRate:     info.OutputSampleRate,
			OutputChannels: info.Channels,
			IsMismatch:     info.IsResampled,
		})
	})
}

func (e *Engine) handleSetGapless(enabled bool) {
	e.mu.Lock()
	e.gaplessEnabled = enabled
	stream := e.currentStream
	next := e.next
	if !enabled {
		e.next = nil
	}
	e.mu.Unlock()

	if !enabled {
		if stream != nil {
			stream.ClearNextTrack()
		}
		if next != nil {
			next.worker.Commands().Stop()
		}
	}
}
