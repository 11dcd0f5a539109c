package ringbuffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRoundsUpToPowerOf2(t *testing.T) {
	rb := New(100)
	assert.Equal(t, uint64(128), rb.Size())
}

func TestWriteReadRoundTrip(t *testing.T) {
	rb := New(8)
	in := []float32{0.1, 0.2, 0.3, 0.4}

	n, err := rb.Write(in)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, uint64(4), rb.AvailableRead())

	out := make([]float32, 4)
	n, err = rb.Read(out)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, in, out)
	assert.Equal(t, uint64(0), rb.AvailableRead())
}

func TestWriteFailsWhenFull(t *testing.T) {
	rb := New(4)
	_, err := rb.Write([]float32{1, 2, 3, 4})
	require.NoError(t, err)

	_, err = rb.Write([]float32{5})
	assert.ErrorIs(t, err, ErrInsufficientSpace)
}

func TestReadFailsWhenEmpty(t *testing.T) {
	rb := New(4)
	_, err := rb.Read(make([]float32, 1))
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestReadShortReadIsNotAnError(t *testing.T) {
	rb := New(8)
	_, err := rb.Write([]float32{1, 2, 3})
	require.NoError(t, err)

	out := make([]float32, 8)
	n, err := rb.Read(out)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestWrapAround(t *testing.T) {
	rb := New(4)

	_, err := rb.Write([]float32{1, 2, 3})
	require.NoError(t, err)
	out := make([]float32, 2)
	_, err = rb.Read(out)
	require.NoError(t, err)

	// writePos=3, readPos=2; writing 3 more wraps the buffer around.
	n, err := rb.Write([]float32{4, 5, 6})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	remaining := make([]float32, 4)
	n, err = rb.Read(remaining)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []float32{3, 4, 5, 6}, remaining)
}

func TestReadSlicesAndConsume(t *testing.T) {
	rb := New(4)
	_, err := rb.Write([]float32{1, 2, 3})
	require.NoError(t, err)
	out := make([]float32, 2)
	_, err = rb.Read(out)
	require.NoError(t, err)
	_, err = rb.Write([]float32{4, 5})
	require.NoError(t, err)

	first, second, total := rb.ReadSlices()
	assert.Equal(t, uint64(3), total)
	assert.NotNil(t, second)
	assert.Equal(t, len(first)+len(second), int(total))

	require.NoError(t, rb.Consume(total))
	assert.Equal(t, uint64(0), rb.AvailableRead())
}

func TestDrainEmptiesRing(t *testing.T) {
	rb := New(8)
	_, err := rb.Write([]float32{1, 2, 3, 4, 5})
	require.NoError(t, err)

	rb.Drain()
	assert.Equal(t, uint64(0), rb.AvailableRead())
}

func TestResetClearsPositions(t *testing.T) {
	rb := New(4)
	_, err := rb.Write([]float32{1, 2})
	require.NoError(t, err)

	rb.Reset()
	assert.Equal(t, uint64(0), rb.AvailableRead())
	assert.Equal(t, rb.Size(), rb.AvailableWrite())
}

func TestConcurrentProducerConsumer(t *testing.T) {
	rb := New(64)
	const total = 10000
	done := make(chan struct{})

	go func() {
		defer close(done)
		var buf [7]float32
		for i := 0; i < total; i++ {
			buf[0] = float32(i)
			for {
				if n, _ := rb.Write(buf[:1]); n == 1 {
					break
				}
			}
		}
	}()

	got := make([]float32, 0, total)
	out := make([]float32, 1)
	for len(got) < total {
		if n, err := rb.Read(out); err == nil && n == 1 {
			got = append(got, out[0])
		}
	}
	<-done

	for i, v := range got {
		assert.Equal(t, float32(i), v)
	}
}
