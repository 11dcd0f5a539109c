package outputstream

import (
	"testing"

	"github.com/drgolem/audiocore/pkg/eq"
	"github.com/drgolem/audiocore/pkg/ringbuffer"
	"github.com/drgolem/audiocore/pkg/streamstate"
	"github.com/drgolem/audiocore/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStream(t *testing.T) (*Stream, *streamstate.State, *ringbuffer.RingBuffer) {
	t.Helper()
	info := types.AudioInfo{SourceSampleRate: 44100, OutputSampleRate: 44100, Channels: 2, BitDepth: 16}
	state := streamstate.New(info, 4096)
	ring := ringbuffer.New(4096)
	s := New(ring, state, eq.NewSharedState(), nil)
	return s, state, ring
}

func TestPullReturnsSilenceWhenPaused(t *testing.T) {
	s, _, ring := newTestStream(t)
	data := make([]float32, 8)
	for i := range data {
		data[i] = 1.0
	}
	_, err := ring.Write(data)
	require.NoError(t, err)

	s.Pause()
	out := make([]float32, 8)
	s.Pull(out)
	for _, v := range out {
		assert.Equal(t, float32(0), v)
	}
}

func TestPullReadsAvailableSamples(t *testing.T) {
	s, _, ring := newTestStream(t)
	data := []float32{0.5, -0.5, 0.25, -0.25}
	_, err := ring.Write(data)
	require.NoError(t, err)

	out := make([]float32, 4)
	s.Pull(out)
	assert.Equal(t, data, out)
}

func TestPullZeroFillsTailWhenRingShort(t *testing.T) {
	s, _, ring := newTestStream(t)
	_, err := ring.Write([]float32{0.1, 0.2})
	require.NoError(t, err)

	out := make([]float32, 8)
	s.Pull(out)
	assert.Equal(t, float32(0.1), out[0])
	assert.Equal(t, float32(0.2), out[1])
	for _, v := range out[2:] {
		assert.Equal(t, float32(0), v)
	}
}

func TestPullAppliesVolume(t *testing.T) {
	s, _, ring := newTestStream(t)
	_, err := ring.Write([]float32{0.5, 0.5})
	require.NoError(t, err)
	s.SetVolume(0.5)

	out := make([]float32, 2)
	s.Pull(out)
	assert.InDelta(t, float32(0.25), out[0], 1e-6)
}

func TestPullAdvancesPlaybackPosition(t *testing.T) {
	s, state, ring := newTestStream(t)
	_, err := ring.Write([]float32{0.1, 0.2, 0.3, 0.4})
	require.NoError(t, err)

	out := make([]float32, 4)
	s.Pull(out)
	assert.Equal(t, uint64(4), state.PlaybackPosition.Load())
}

func TestPullDuringFlushBufferDrainsAndSignalsComplete(t *testing.T) {
	s, state, ring := newTestStream(t)
	_, err := ring.Write([]float32{1, 2, 3, 4})
	require.NoError(t, err)
	state.FlushBuffer.Store(true)

	out := make([]float32, 4)
	s.Pull(out)

	assert.True(t, state.FlushComplete.Load())
	assert.Equal(t, uint64(0), ring.AvailableRead())
	for _, v := range out {
		assert.Equal(t, float32(0), v)
	}
}

func TestPullDuringSeekingEmitsSilenceWithoutDrainingRing(t *testing.T) {
	s, state, ring := newTestStream(t)
	_, err := ring.Write([]float32{1, 2, 3, 4})
	require.NoError(t, err)
	state.Seeking.Store(true)

	out := make([]float32, 4)
	s.Pull(out)

	for _, v := range out {
		assert.Equal(t, float32(0), v)
	}
	assert.Equal(t, uint64(4), ring.AvailableRead())
}

func TestEndEmittedOnceRingDrainsAndDecodingComplete(t *testing.T) {
	s, state, ring := newTestStream(t)
	_, err := ring.Write([]float32{0.1, 0.2})
	require.NoError(t, err)
	state.DecodingComplete.Store(true)

	var published []types.Event
	s.sink = sinkFunc(func(e types.Event) { published = append(published, e) })

	out := make([]float32, 4)
	s.Pull(out)

	require.Len(t, published, 1)
	_, ok := published[0].(types.EndedEvent)
	assert.True(t, ok)
}

func TestGaplessSwapAfterThreeEmptyPulls(t *testing.T) {
	s, state, _ := newTestStream(t)
	state.DecodingComplete.Store(true)

	nextInfo := types.AudioInfo{SourceSampleRate: 44100, OutputSampleRate: 44100, Channels: 2}
	nextState := streamstate.New(nextInfo, 4096)
	nextRing := ringbuffer.New(4096)
	_, err := nextRing.Write([]float32{0.9, 0.9})
	require.NoError(t, err)

	swapped := false
	s.SetNextTrack(&NextTrack{Ring: nextRing, State: nextState}, func() { swapped = true })

	out := make([]float32, 2)
	s.Pull(out) // empty 1
	s.Pull(out) // empty 2
	s.Pull(out) // empty 3 -> swap happens, consumed

	assert.True(t, swapped)

	out2 := make([]float32, 2)
	s.Pull(out2)
	assert.Equal(t, float32(0.9), out2[0])
}

type sinkFunc func(types.Event)

func (f sinkFunc) Publish(e types.Event) { f(e) }
