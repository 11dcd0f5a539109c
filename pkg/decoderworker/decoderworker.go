// Package decoderworker implements the spec's decoder thread (§4.C): a
// dedicated goroutine owning the codec decoder, the producer half of the
// ring buffer, an optional resampler, and a command channel for Seek/Stop.
//
// Grounded on the teacher's internal/fileplayer.go producer goroutine
// (decode loop + retry-on-full ring write), generalized to float32 PCM,
// resampling, and the seek handshake the spec requires.
package decoderworker

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/drgolem/audiocore/pkg/resampler"
	"github.com/drgolem/audiocore/pkg/ringbuffer"
	"github.com/drgolem/audiocore/pkg/streamstate"
	"github.com/drgolem/audiocore/pkg/types"
)

// PreRollFraction is the fraction of ring capacity the decoder must fill
// before the session's pre-roll latch fires (spec §4.C.6a).
const PreRollFraction = 0.10

// SeekPrefillMS is the amount of post-seek audio (in ms at the output rate)
// the decoder must push before clearing the session's Seeking flag
// (spec §4.C.6b).
const SeekPrefillMS = 300

// FlushCompleteWait bounds how long the worker waits for the callback to
// acknowledge a seek-flush before proceeding anyway (spec §4.C.2b).
const FlushCompleteWait = 500 * time.Millisecond

// command is the decoder worker's own internal command sum type — distinct
// from types.Command because the worker only understands Seek and Stop.
type command interface{ isWorkerCommand() }

type seekCommand struct{ seconds float64 }
type stopCommand struct{}

func (seekCommand) isWorkerCommand() {}
func (stopCommand) isWorkerCommand() {}

// Commands is the handle the coordinator uses to drive a running Worker.
type Commands struct {
	ch chan command
}

// Seek asks the worker to perform a seek handshake to seconds.
func (c Commands) Seek(seconds float64) {
	select {
	case c.ch <- seekCommand{seconds}:
	default:
		// Channel full: a seek is already pending, the newer one wins by
		// draining first. This matches the coordinator's own rate limiting
		// which should make simultaneous seeks rare.
		select {
		case <-c.ch:
		default:
		}
		c.ch <- seekCommand{seconds}
	}
}

// Stop asks the worker to terminate after marking DecodingComplete.
func (c Commands) Stop() {
	select {
	case c.ch <- stopCommand{}:
	default:
	}
}

// Worker is a single decode session: one goroutine, one decoder, one
// producer half of a ring buffer, an optional resampler.
type Worker struct {
	decoder    types.SampleDecoder
	ring       *ringbuffer.RingBuffer
	resampler  *resampler.Resampler
	state      *streamstate.State
	commands   chan command
	done       chan struct{}
	channels   int
	outputRate int
}

// Start spawns the decoder worker goroutine for an already-open decoder,
// writing into ring, tracking progress in state, and resampling to
// state.Info.OutputSampleRate if it differs from the source rate.
// startSeconds performs an initial coarse seek before the decode loop
// begins.
func Start(decoder types.SampleDecoder, ring *ringbuffer.RingBuffer, state *streamstate.State, startSeconds float64) *Worker {
	var rs *resampler.Resampler
	if state.Info.IsResampled {
		rs = resampler.New(state.Info.SourceSampleRate, state.Info.OutputSampleRate, state.Info.Channels)
	}

	w := &Worker{
		decoder:    decoder,
		ring:       ring,
		resampler:  rs,
		state:      state,
		commands:   make(chan command, 4),
		done:       make(chan struct{}),
		channels:   state.Info.Channels,
		outputRate: state.Info.OutputSampleRate,
	}

	if startSeconds > 0 {
		if err := decoder.SeekSeconds(startSeconds); err != nil {
			slog.Warn("initial seek failed, starting from 0", "seconds", startSeconds, "error", err)
		}
	}

	go w.run()
	return w
}

// Commands returns the handle for sending Seek/Stop to this worker.
func (w *Worker) Commands() Commands {
	return Commands{ch: w.commands}
}

// Done is closed once the worker goroutine has exited.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

func (w *Worker) run() {
	defer close(w.done)
	defer w.state.DecodingComplete.Store(true)

	decodeBuf := make([]float32, 4096*w.channels)
	var preRollFired bool
	preRollThreshold := uint64(float64(w.state.RingCapacity) * PreRollFraction)
	seekPrefillSamples := uint64(SeekPrefillMS) * uint64(w.outputRate) * uint64(w.channels) / 1000

	for {
		if !w.handleCommand(w.pollCommand(), seekPrefillSamples) {
			return
		}

		n, err := w.decoder.DecodeFloat32(decodeBuf)
		if n > 0 {
			produced := decodeBuf[:n*w.channels]
			if w.resampler != nil {
				produced = w.resampler.Process(produced)
			}
			if !w.handleCommand(w.pushToRing(produced, &preRollFired, preRollThreshold, seekPrefillSamples), seekPrefillSamples) {
				return
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				if w.resampler != nil {
					tail := w.resampler.Flush()
					w.handleCommand(w.pushToRing(tail, &preRollFired, preRollThreshold, seekPrefillSamples), seekPrefillSamples)
				}
				return
			}
			slog.Debug("decode error, continuing", "error", err)
		}
	}
}

// pollCommand returns a pending command without blocking, or nil.
func (w *Worker) pollCommand() command {
	select {
	case cmd := <-w.commands:
		return cmd
	default:
		return nil
	}
}

// handleCommand dispatches cmd if non-nil. Returns false if the worker
// should exit (a stopCommand was handled).
func (w *Worker) handleCommand(cmd command, seekPrefillSamples uint64) bool {
	switch c := cmd.(type) {
	case stopCommand:
		return false
	case seekCommand:
		w.handleSeek(c.seconds, seekPrefillSamples)
	}
	return true
}

// pushToRing writes produced to the ring, yielding briefly when full but
// checking for a pending command between retries so a Seek/Stop is never
// starved by a full ring (spec §4.C.5). If a command arrives while blocked,
// it is returned (not lost) so run() can act on it; the part of produced
// not yet written is then discarded.
func (w *Worker) pushToRing(produced []float32, preRollFired *bool, preRollThreshold, seekPrefillSamples uint64) command {
	for len(produced) > 0 {
		n, err := w.ring.Write(produced)
		if n > 0 {
			produced = produced[n:]
			w.state.TotalDecoded.Add(uint64(n))

			if !*preRollFired && w.state.TotalDecoded.Load() >= preRollThreshold {
				*preRollFired = true
				w.state.SignalPreRollReady()
			}

			if w.state.Seeking.Load() {
				since := w.state.SamplesSinceSeek.Add(uint64(n))
				if since >= seekPrefillSamples {
					w.state.Seeking.Store(false)
				}
			}
		}

		if err == nil {
			continue
		}
		if !errors.Is(err, ringbuffer.ErrInsufficientSpace) {
			return nil
		}

		select {
		case cmd := <-w.commands:
			return cmd
		case <-time.After(500 * time.Microsecond):
		}
	}
	return nil
}

// handleSeek runs the flush → format-seek → pre-fill-reset handshake
// (spec §4.C.2).
func (w *Worker) handleSeek(seconds float64, seekPrefillSamples uint64) {
	w.state.FlushBuffer.Store(true)

	deadline := time.After(FlushCompleteWait)
waitFlush:
	for {
		select {
		case <-deadline:
			break waitFlush
		case <-time.After(2 * time.Millisecond):
			if w.state.FlushComplete.Load() {
				break waitFlush
			}
		}
	}

	if err := w.decoder.SeekSeconds(seconds); err != nil {
		slog.Warn("decoder seek failed", "seconds", seconds, "error", err)
	}
	if w.resampler != nil {
		w.resampler = resampler.New(w.state.Info.SourceSampleRate, w.state.Info.OutputSampleRate, w.channels)
	}

	newPosition := uint64(seconds * float64(w.outputRate) * float64(w.channels))
	w.state.ResetSeek(newPosition)
	w.state.PlaybackPosition.Store(newPosition)
	w.state.FlushBuffer.Store(false)
	w.state.FlushComplete.Store(false)
}
