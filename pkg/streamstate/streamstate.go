// Package streamstate holds the single synchronization surface between the
// decoder worker, the real-time output callback and the engine coordinator
// (spec §4.D). It is a pure carrier of atomics: no component "owns" it in a
// tree sense, it is released once the last of {decoder, stream, coordinator
// slot} drops its reference, which in Go simply means the GC collects it
// once nothing still holds a pointer.
package streamstate

import (
	"sync/atomic"

	"github.com/drgolem/audiocore/pkg/types"
)

// State carries AudioInfo plus every atomic field the seek/pre-roll
// handshakes coordinate across goroutines. Counters (TotalDecoded,
// PlaybackPosition, SamplesSinceSeek) are advisory and use relaxed
// ordering semantics everywhere atomics are relaxed by default in Go; the
// handshake fields (Seeking/FlushBuffer/FlushComplete) rely on the
// acquire/release ordering that atomic.Bool's Load/Store already provide.
type State struct {
	Info AudioInfo

	// RingCapacity is the configured ring buffer capacity in samples
	// (frames * channels), for diagnostics and sizing decisions downstream.
	RingCapacity uint64

	DecodingComplete atomic.Bool
	TotalDecoded     atomic.Uint64
	PlaybackPosition atomic.Uint64
	SeekPosition     atomic.Uint64
	Seeking          atomic.Bool
	FlushBuffer      atomic.Bool
	FlushComplete    atomic.Bool
	SamplesSinceSeek atomic.Uint64

	// IsSeekingUI is the coordinator-facing seek flag (spec §4.H step i),
	// distinct from Seeking, which the callback/decoder handshake clears
	// once pre-fill is satisfied. IsSeekingUI only reflects "a Seek command
	// is in flight from the coordinator's point of view."
	IsSeekingUI atomic.Bool

	preRollOnce chan struct{}
	preRollShut atomic.Bool
}

// AudioInfo aliases types.AudioInfo so callers need only import streamstate.
type AudioInfo = types.AudioInfo

// New allocates a State for a session with the given AudioInfo and ring
// buffer capacity (in samples).
func New(info AudioInfo, ringCapacity uint64) *State {
	return &State{
		Info:         info,
		RingCapacity: ringCapacity,
		preRollOnce:  make(chan struct{}),
	}
}

// SignalPreRollReady closes the pre-roll latch exactly once. Safe to call
// repeatedly; only the first call has an effect (spec §4.C step 6a).
func (s *State) SignalPreRollReady() {
	if s.preRollShut.CompareAndSwap(false, true) {
		close(s.preRollOnce)
	}
}

// PreRollReady returns, without blocking, a channel that is closed once
// SignalPreRollReady has been called (already closed if it has been).
// Callers select on this alongside a timeout channel.
func (s *State) PreRollReady() <-chan struct{} {
	return s.preRollOnce
}

// ResetSeek stores the new seek position and zeroes the post-seek pre-fill
// meter (SamplesSinceSeek); it does not touch the flush handshake flags.
// Called by the decoder worker once it has re-positioned.
func (s *State) ResetSeek(newSeekPositionSamples uint64) {
	s.SeekPosition.Store(newSeekPositionSamples)
	s.SamplesSinceSeek.Store(0)
}
