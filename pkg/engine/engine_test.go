package engine

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/drgolem/audiocore/pkg/devicebackend"
	"github.com/drgolem/audiocore/pkg/eq"
	"github.com/drgolem/audiocore/pkg/outputstream"
	"github.com/drgolem/audiocore/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSink collects published events for assertions.
type fakeSink struct {
	mu     sync.Mutex
	events []types.Event
}

func (f *fakeSink) Publish(e types.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
}

func (f *fakeSink) all() []types.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.Event(nil), f.events...)
}

func (f *fakeSink) has(want types.Event) bool {
	for _, e := range f.all() {
		if fmt.Sprintf("%T", e) == fmt.Sprintf("%T", want) {
			return true
		}
	}
	return false
}

// fakeDecoder is a minimal in-memory SampleDecoder for engine tests.
type fakeDecoder struct {
	rate, channels int
	frames         int
	pos            int
}

func (f *fakeDecoder) Open(string) error { return nil }
func (f *fakeDecoder) Close() error      { return nil }
func (f *fakeDecoder) Format() (int, int, int) {
	return f.rate, f.channels, 16
}
func (f *fakeDecoder) TotalFrames() uint64 { return uint64(f.frames) }
func (f *fakeDecoder) DecodeFloat32(out []float32) (int, error) {
	if f.pos >= f.frames {
		return 0, io.EOF
	}
	want := len(out) / f.channels
	if f.pos+want > f.frames {
		want = f.frames - f.pos
	}
	f.pos += want
	return want, nil
}
func (f *fakeDecoder) SeekSeconds(seconds float64) error {
	f.pos = int(seconds * float64(f.rate))
	return nil
}

func fakeProbe(rate, channels, frames int) types.ProbeFunc {
	return func(path string) (types.AudioInfo, error) {
		return types.AudioInfo{
			SourceSampleRate: rate,
			OutputSampleRate: rate,
			Channels:         channels,
			BitDepth:         16,
			TotalFrames:      uint64(frames),
			DurationSeconds:  float64(frames) / float64(rate),
		}, nil
	}
}

func fakeDecoderFactory(rate, channels, frames int) DecoderFactory {
	return func(path string) (types.SampleDecoder, error) {
		return &fakeDecoder{rate: rate, channels: channels, frames: frames}, nil
	}
}

// fakeHandle/fakeOpener let the engine construct a stream without a real
// PortAudio device.
type fakeHandle struct {
	stopped chan struct{}
	aborts  atomic.Int32
}

func (h *fakeHandle) Stop() error {
	close(h.stopped)
	return nil
}

func (h *fakeHandle) Abort() error {
	h.aborts.Add(1)
	return nil
}

type fakeOpener struct {
	mu     sync.Mutex
	opened []*outputstream.Stream
}

func (o *fakeOpener) Open(stream *outputstream.Stream, sampleRate, channels int) (Handle, error) {
	o.mu.Lock()
	o.opened = append(o.opened, stream)
	o.mu.Unlock()
	return &fakeHandle{stopped: make(chan struct{})}, nil
}

// fakeBackend stands in for the real PortAudio-backed devicebackend.Backend
// so engine tests never touch actual hardware.
type fakeBackend struct{ rate int }

func (b *fakeBackend) PrepareForStreaming(cfg devicebackend.StreamConfig, wantExclusive bool) (int, error) {
	if b.rate != 0 {
		return b.rate, nil
	}
	return cfg.SampleRate, nil
}

func (b *fakeBackend) Release() error { return nil }

func newTestEngine(rate, channels, frames int) (*Engine, *fakeSink) {
	backend := &fakeBackend{}
	sink := &fakeSink{}
	opener := &fakeOpener{}
	e := New(backend, eq.NewSharedState(), sink, opener, fakeProbe(rate, channels, frames), fakeDecoderFactory(rate, channels, frames))
	return e, sink
}

func TestPlayPublishesAudioSpecsAndClearsLoading(t *testing.T) {
	e, sink := newTestEngine(44100, 2, 44100)
	e.Submit(types.PlayCommand{Path: "track.wav", StartSeconds: 0})

	require.Eventually(t, func() bool {
		return sink.has(types.AudioSpecsEvent{})
	}, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		events := sink.all()
		if len(events) == 0 {
			return false
		}
		_, ok := events[len(events)-1].(types.LoadingEvent)
		return ok
	}, time.Second, 5*time.Millisecond)
}

func TestPauseAndResumePublishEvents(t *testing.T) {
	e, sink := newTestEngine(44100, 2, 44100)
	e.Submit(types.PlayCommand{Path: "track.wav"})
	require.Eventually(t, func() bool { return sink.has(types.AudioSpecsEvent{}) }, 2*time.Second, 5*time.Millisecond)

	e.Submit(types.PauseCommand{})
	require.Eventually(t, func() bool { return sink.has(types.PausedEvent{}) }, time.Second, 5*time.Millisecond)

	e.Submit(types.ResumeCommand{})
	require.Eventually(t, func() bool { return sink.has(types.ResumedEvent{}) }, time.Second, 5*time.Millisecond)
}

func TestSetVolumeClampsToUnitRange(t *testing.T) {
	e, _ := newTestEngine(44100, 2, 44100)
	e.Submit(types.SetVolumeCommand{Volume: 5.0})

	require.Eventually(t, func() bool {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.volume == 1.0
	}, time.Second, 5*time.Millisecond)
}

func TestSeekRateLimitIgnoresRapidRepeat(t *testing.T) {
	e, sink := newTestEngine(44100, 2, 44100*30)
	e.Submit(types.PlayCommand{Path: "track.wav"})
	require.Eventually(t, func() bool { return sink.has(types.AudioSpecsEvent{}) }, 2*time.Second, 5*time.Millisecond)

	e.Submit(types.SeekCommand{Seconds: 10})
	e.Submit(types.SeekCommand{Seconds: 10.05}) // within 100ms delta and issued immediately: rate-limited

	require.Eventually(t, func() bool { return sink.has(types.SeekingEvent{}) }, 3*time.Second, 5*time.Millisecond)

	seekingCount := 0
	for _, ev := range sink.all() {
		if _, ok := ev.(types.SeekingEvent); ok {
			seekingCount++
		}
	}
	assert.Equal(t, 1, seekingCount)

	e.mu.Lock()
	handle := e.currentHandle.(*fakeHandle)
	e.mu.Unlock()
	assert.EqualValues(t, 1, handle.aborts.Load(), "the rate-limited seek must not re-abort the device stream")
}

func TestSetGaplessDisablingClearsNextSlot(t *testing.T) {
	e, _ := newTestEngine(44100, 2, 44100)
	e.Submit(types.PlayCommand{Path: "track.wav"})
	e.Submit(types.SetGaplessCommand{Enabled: true})
	e.Submit(types.PreloadNextCommand{Path: "next.wav"})

	require.Eventually(t, func() bool {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.gaplessEnabled && e.next != nil
	}, time.Second, 5*time.Millisecond)

	e.Submit(types.SetGaplessCommand{Enabled: false})

	require.Eventually(t, func() bool {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.next == nil
	}, time.Second, 5*time.Millisecond)
}

func TestEQCommandsForwardToSharedState(t *testing.T) {
	e, _ := newTestEngine(44100, 2, 44100)
	e.Submit(types.SetEQEnabledCommand{Enabled: true})
	e.Submit(types.SetEQGainCommand{Band: 2, GainDB: 6})

	require.Eventually(t, func() bool {
		return e.eqState.Enabled() && e.eqState.GainDB(2) == 6
	}, time.Second, 5*time.Millisecond)
}
