// Package paoutput binds an outputstream.Stream to a live PortAudio callback
// stream, implementing engine.StreamOpener/engine.Handle.
//
// Grounded on the teacher's internal/fileplayer.go initializeStream/
// audioCallback pattern (PaStream.OpenCallback over
// github.com/drgolem/go-portaudio), generalized from the teacher's int16/24/32
// byte buffers to a float32 output format so outputstream.Stream.Pull can
// fill the callback buffer directly without an intermediate format
// conversion on the real-time path.
//
// Handle.Abort uses PaStream.AbortStream, an inferred addition to the
// teacher's go-portaudio binding mirroring the C library's Pa_AbortStream
// (stop immediately, discarding any buffered audio, as opposed to
// Pa_StopStream's drain-then-stop) — see DESIGN.md.
package paoutput

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/drgolem/go-portaudio/portaudio"

	"github.com/drgolem/audiocore/pkg/outputstream"
)

// Opener opens a PortAudio callback stream on a fixed device index with a
// fixed PortAudio frames-per-buffer size, satisfying engine.StreamOpener.
type Opener struct {
	DeviceIndex     int
	FramesPerBuffer int
}

// New returns an Opener targeting deviceIndex with framesPerBuffer PortAudio
// frames per callback (§4.F/§4.G device/stream boundary).
func New(deviceIndex, framesPerBuffer int) *Opener {
	return &Opener{DeviceIndex: deviceIndex, FramesPerBuffer: framesPerBuffer}
}

// Open starts a PortAudio callback stream that pulls its audio from stream.
func (o *Opener) Open(stream *outputstream.Stream, sampleRate, channels int) (*Handle, error) {
	pa := &portaudio.PaStream{
		OutputParameters: &portaudio.PaStreamParameters{
			DeviceIndex:  o.DeviceIndex,
			ChannelCount: channels,
			SampleFormat: portaudio.SampleFmtFloat32,
		},
		SampleRate: float64(sampleRate),
	}

	h := &Handle{stream: pa, pull: stream, channels: channels, scratch: make([]float32, o.FramesPerBuffer*channels)}

	if err := pa.OpenCallback(o.FramesPerBuffer, h.callback); err != nil {
		return nil, fmt.Errorf("open callback stream: %w", err)
	}
	if err := pa.StartStream(); err != nil {
		return nil, fmt.Errorf("start stream: %w", err)
	}
	return h, nil
}

// Handle is a running PortAudio callback stream pulling from one
// outputstream.Stream.
type Handle struct {
	stream   *portaudio.PaStream
	pull     *outputstream.Stream
	channels int
	scratch  []float32
}

// callback is PortAudio's C-thread entry point (not a Go goroutine): it must
// never allocate or block, matching the constraints the teacher's own
// audioCallback documents.
func (h *Handle) callback(
	input, output []byte,
	frameCount uint,
	timeInfo *portaudio.StreamCallbackTimeInfo,
	statusFlags portaudio.StreamCallbackFlags,
) portaudio.StreamCallbackResult {
	samples := int(frameCount) * h.channels
	buf := h.scratch
	if samples > len(buf) {
		samples = len(buf)
	}
	buf = buf[:samples]

	h.pull.Pull(buf)

	for i, s := range buf {
		binary.LittleEndian.PutUint32(output[i*4:], math.Float32bits(s))
	}

	return portaudio.Continue
}

// Stop stops and closes the underlying PortAudio stream.
func (h *Handle) Stop() error {
	if err := h.stream.StopStream(); err != nil {
		return fmt.Errorf("stop stream: %w", err)
	}
	if err := h.stream.CloseCallback(); err != nil {
		return fmt.Errorf("close stream: %w", err)
	}
	return nil
}

// Abort discards any audio PortAudio is still holding in its own internal
// buffering and immediately restarts the stream, satisfying the seek
// protocol's HAL-buffer-flush requirement (spec §4.G). Unlike Stop, the
// stream keeps running afterward — the coordinator calls this mid-playback,
// not at session teardown.
func (h *Handle) Abort() error {
	if err := h.stream.AbortStream(); err != nil {
		return fmt.Errorf("abort stream: %w", err)
	}
	if err := h.stream.StartStream(); err != nil {
		return fmt.Errorf("restart stream after abort: %w", err)
	}
	return nil
}
