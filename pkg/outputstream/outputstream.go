// Package outputstream implements the spec's real-time pull callback
// (§4.G): the PortAudio-driven consumer half of the pipeline. It owns the
// consumer side of the ring buffer, applies EQ and volume, tracks playback
// position, detects end-of-stream, and performs the gapless hand-off to a
// preloaded next track.
//
// Grounded on the teacher's internal/fileplayer.go callback (the
// OpenCallback/StreamCallback pattern against github.com/drgolem/go-portaudio),
// generalized from int16 byte frames to float32 interleaved PCM and
// extended with the seek/gapless state machine the spec requires.
package outputstream

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/drgolem/audiocore/pkg/eq"
	"github.com/drgolem/audiocore/pkg/ringbuffer"
	"github.com/drgolem/audiocore/pkg/streamstate"
	"github.com/drgolem/audiocore/pkg/types"
)

// emptyCallbacksForGaplessSwap is how many consecutive empty pulls the
// callback tolerates before concluding the current track has truly ended
// and a preloaded next track (if any) should take over (spec §4.G).
const emptyCallbacksForGaplessSwap = 3

// progressEveryNFrames approximates "about 30 times a second" (spec §4.G)
// independent of sample rate: rate/30 frames between ProgressEvents.
func progressEveryNFrames(rate int) uint64 {
	if rate <= 0 {
		return 1600
	}
	return uint64(rate / 30)
}

// NextTrack is a preloaded decode session ready to take over gaplessly.
type NextTrack struct {
	Ring  *ringbuffer.RingBuffer
	State *streamstate.State
}

// Stream is one real-time output session bound to a single device stream.
// Its Pull method is called from the audio callback goroutine/thread and
// must never allocate or block.
type Stream struct {
	ring     *ringbuffer.RingBuffer
	state    *streamstate.State
	channels int
	rate     int

	eqProcessor *eq.Processor
	eqShared    *eq.SharedState

	volume atomic.Uint32 // float32 bits, linear gain 0..4
	rms    atomic.Uint32 // float32 bits, RMS of the most recently processed buffer

	paused      atomic.Bool
	endEmitted  atomic.Bool
	emptyPulls  atomic.Uint32
	framesSince atomic.Uint64 // samples (frames × channels) pulled since last ProgressEvent
	hasNext     atomic.Bool

	mu        sync.Mutex
	next      *NextTrack
	onGapless func()

	sink types.EventSink

	scratch []float32
}

// New builds a Stream for a session at the given AudioInfo/ring, with
// volume starting at 1.0 (unity gain).
func New(ring *ringbuffer.RingBuffer, state *streamstate.State, eqShared *eq.SharedState, sink types.EventSink) *Stream {
	channels := state.Info.Channels
	rate := state.Info.OutputSampleRate

	s := &Stream{
		ring:        ring,
		state:       state,
		channels:    channels,
		rate:        rate,
		eqProcessor: eq.NewProcessor(float32(rate)),
		eqShared:    eqShared,
		sink:        sink,
		scratch:     make([]float32, 8192*channels),
	}
	s.volume.Store(float32bits(1.0))
	return s
}

// SetVolume sets linear output gain (not clamped beyond [0, 4] to allow
// modest makeup gain while still bounding runaway values).
func (s *Stream) SetVolume(gain float32) {
	if gain < 0 {
		gain = 0
	}
	if gain > 4 {
		gain = 4
	}
	s.volume.Store(float32bits(gain))
}

// Volume returns the current linear output gain.
func (s *Stream) Volume() float32 {
	return float32frombits(s.volume.Load())
}

// Pause/Resume toggle whether Pull emits silence while leaving the ring
// buffer otherwise untouched (spec §4.G: paused -> silence, no draining).
func (s *Stream) Pause()  { s.paused.Store(true) }
func (s *Stream) Resume() { s.paused.Store(false) }
func (s *Stream) IsPaused() bool {
	return s.paused.Load()
}

// SetNextTrack installs a preloaded next session for gapless hand-off.
// onSwap, if non-nil, is invoked (outside any lock the callback holds) once
// the swap has happened, so the coordinator can promote its own bookkeeping.
func (s *Stream) SetNextTrack(next *NextTrack, onSwap func()) {
	s.mu.Lock()
	s.next = next
	s.onGapless = onSwap
	s.mu.Unlock()
	s.hasNext.Store(next != nil)
}

// ClearNextTrack removes any preloaded next track (e.g. gapless disabled,
// or the queued track changed).
func (s *Stream) ClearNextTrack() {
	s.mu.Lock()
	s.next = nil
	s.onGapless = nil
	s.mu.Unlock()
	s.hasNext.Store(false)
}

// Position returns the current playback position in output-rate samples
// (not frames) and the session duration in seconds.
func (s *Stream) Position() (positionSamples uint64, durationSeconds float64) {
	return s.state.PlaybackPosition.Load(), s.state.Info.DurationSeconds
}

// Reset requests the HAL drop any buffered audio it is holding, called by
// the coordinator at the start of the seek handshake (spec §4.H step iii,
// "stream.reset() to flush HAL buffers"). The actual hardware flush is the
// Abort of the paoutput handle that drives Stream, which the coordinator
// calls right after Reset; Stream itself only clears its own soft state so unit tests can
// exercise the callback logic without a real device.
func (s *Stream) Reset() {
	s.emptyPulls.Store(0)
}

// Pull is the real-time callback body: fills out (interleaved, s.channels
// wide) with the next frames of audio, in effect-chain order: ring read,
// EQ, volume, position/progress bookkeeping. It never allocates: out must
// be sized by the caller and scratch buffers are pre-allocated in New.
//
// frameCount is len(out)/s.channels.
func (s *Stream) Pull(out []float32) {
	frameCount := len(out) / s.channels
	if frameCount == 0 {
		return
	}

	if s.paused.Load() || (s.endEmitted.Load() && !s.hasNext.Load()) {
		zero(out)
		return
	}

	if s.state.FlushBuffer.Load() {
		s.ring.Drain()
		s.Reset()
		s.state.FlushComplete.Store(true)
		zero(out)
		return
	}

	if s.state.Seeking.Load() {
		zero(out)
		return
	}

	n, err := s.ring.Read(out)
	framesRead := n / s.channels

	if err != nil && n == 0 {
		s.handleEmptyPull()
		zero(out)
		return
	}
	s.emptyPulls.Store(0)

	if framesRead < frameCount {
		zero(out[n:])
	}

	s.applyEQAndVolume(out[:n])
	s.rms.Store(float32bits(rmsOf(out[:n])))

	s.advancePosition(uint64(n))

	if framesRead < frameCount && s.state.DecodingComplete.Load() && s.ring.AvailableRead() == 0 && !s.hasNext.Load() {
		s.endEmitted.Store(true)
		if s.sink != nil {
			s.sink.Publish(types.EndedEvent{})
		}
	}
}

// handleEmptyPull tracks consecutive empty pulls and performs the gapless
// swap after emptyCallbacksForGaplessSwap consecutive empties, provided a
// next track is armed and decoding has finished (so "empty" really means
// "ended" rather than "producer is momentarily behind"). The pull that
// triggers the swap still emits silence; real audio starts on the pull
// after. With no next track armed at that point, EndedEvent is published
// instead (once per track). Returns true if a swap happened.
func (s *Stream) handleEmptyPull() bool {
	count := s.emptyPulls.Add(1)
	if count < emptyCallbacksForGaplessSwap {
		return false
	}
	if !s.state.DecodingComplete.Load() {
		return false
	}

	s.mu.Lock()
	next := s.next
	onSwap := s.onGapless
	if next != nil {
		s.ring = next.Ring
		s.state = next.State
		s.next = nil
		s.onGapless = nil
	}
	s.mu.Unlock()

	if next == nil {
		if !s.endEmitted.Swap(true) && s.sink != nil {
			s.sink.Publish(types.EndedEvent{})
		}
		return false
	}
	s.hasNext.Store(false)

	s.emptyPulls.Store(0)
	s.endEmitted.Store(false)
	if s.sink != nil {
		s.sink.Publish(types.GaplessTransitionEvent{})
	}
	if onSwap != nil {
		onSwap()
	}
	return true
}

func (s *Stream) applyEQAndVolume(buf []float32) {
	if s.eqShared != nil {
		s.eqProcessor.ProcessInterleaved(buf, len(buf)/s.channels, s.eqShared)
	}

	gain := s.Volume()
	if gain != 1.0 {
		for i := range buf {
			buf[i] *= gain
		}
	}
}

func (s *Stream) advancePosition(n uint64) {
	pos := s.state.PlaybackPosition.Add(n)

	interval := progressEveryNFrames(s.rate) * uint64(s.channels)
	since := s.framesSince.Add(n)
	if since < interval {
		return
	}
	s.framesSince.Store(0)

	if s.sink == nil {
		return
	}
	positionSeconds := float64(pos/uint64(s.channels)) / float64(s.rate)
	s.sink.Publish(types.ProgressEvent{
		PositionSeconds: positionSeconds,
		DurationSeconds: s.state.Info.DurationSeconds,
		RMS:             float64(s.RMS()),
	})
}

// RMS returns the root-mean-square level of the most recently processed
// buffer (post-EQ, post-volume), for visualizer consumers (spec §4.G step 4).
func (s *Stream) RMS() float32 {
	return float32frombits(s.rms.Load())
}

// rmsOf computes the root-mean-square of buf over its valid prefix. Called
// from the real-time callback: the running sum is a plain stack variable,
// no allocation.
func rmsOf(buf []float32) float32 {
	if len(buf) == 0 {
		return 0
	}
	var sumSq float64
	for _, v := range buf {
		sumSq += float64(v) * float64(v)
	}
	return float32(math.Sqrt(sumSq / float64(len(buf))))
}

func zero(buf []float32) {
	for i := range buf {
		buf[i] = 0
	}
}

func float32bits(f float32) uint32 {
	return math.Float32bits(f)
}

func float32frombits(b uint32) float32 {
	return math.Float32frombits(b)
}

// SleepBetweenSeekPolls is a poll interval for callers that poll
// FlushComplete rather than blocking on a channel. The engine does not use
// it; its seek wait polls with its own seekPollInterval.
const SleepBetweenSeekPolls = 2 * time.Millisecond
