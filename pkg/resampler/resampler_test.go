package resampler

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsIdentity(t *testing.T) {
	r := New(44100, 44100, 2)
	assert.True(t, r.IsIdentity())

	r2 := New(44100, 48000, 2)
	assert.False(t, r2.IsIdentity())
}

func TestProcessAccumulatesBelowChunkSize(t *testing.T) {
	r := New(44100, 48000, 2)
	out := r.Process(make([]float32, 100)) // 50 frames, well under a chunk
	assert.Empty(t, out)
}

func TestProcessEmitsOnFullChunk(t *testing.T) {
	r := New(44100, 48000, 1)
	in := make([]float32, chunkInFrames)
	for i := range in {
		in[i] = float32(math.Sin(2 * math.Pi * 440 * float64(i) / 44100))
	}

	out := r.Process(in)
	require.NotEmpty(t, out)
	// Upsampling 44100->48000 should produce more frames than went in.
	assert.Greater(t, len(out), len(in))
}

func TestFlushDrainsRemainder(t *testing.T) {
	r := New(44100, 48000, 2)
	r.Process(make([]float32, 200)) // 100 frames pending, short of a chunk

	out := r.Flush()
	require.NotEmpty(t, out)
	assert.Zero(t, r.pendingFrames())
}

func TestFlushWithNothingPendingReturnsEmpty(t *testing.T) {
	r := New(44100, 48000, 2)
	out := r.Flush()
	assert.Empty(t, out)
}

func TestOutputFrameCountMatchesRatio(t *testing.T) {
	r := New(48000, 44100, 1)
	in := make([]float32, chunkInFrames)
	out := r.Process(in)
	expected := int(roundDiv(int64(chunkInFrames)*44100, 48000))
	assert.Equal(t, expected, len(out))
}

func TestDeinterleaveReinterleaveChannelOrder(t *testing.T) {
	r := New(44100, 44100*2, 2)
	in := make([]float32, chunkInFrames*2)
	for f := 0; f < chunkInFrames; f++ {
		in[f*2] = 1.0   // left channel: constant DC
		in[f*2+1] = -1.0 // right channel: constant DC
	}

	out := r.Process(in)
	require.NotEmpty(t, out)

	frames := len(out) / 2
	// DC should survive resampling: left stays positive, right stays negative.
	midFrame := frames / 2
	assert.Greater(t, out[midFrame*2], float32(0))
	assert.Less(t, out[midFrame*2+1], float32(0))
}

func TestTransformRoundTripPowerOfTwo(t *testing.T) {
	in := make([]complex128, 8)
	for i := range in {
		in[i] = complex(float64(i+1), 0)
	}
	spectrum := transform(in, false)
	back := transform(spectrum, true)

	for i := range in {
		assert.InDelta(t, real(in[i]), real(back[i]), 1e-9)
	}
}

func TestTransformRoundTripArbitraryLength(t *testing.T) {
	in := make([]complex128, 11) // not a power of two, exercises Bluestein
	for i := range in {
		in[i] = complex(float64(i)*0.5, 0)
	}
	spectrum := transform(in, false)
	back := transform(spectrum, true)

	for i := range in {
		assert.InDelta(t, real(in[i]), real(back[i]), 1e-6)
	}
}
