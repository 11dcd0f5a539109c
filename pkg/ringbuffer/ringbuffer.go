package ringbuffer

import (
	"sync/atomic"

	"github.com/drgolem/audiocore/pkg/types"
)

// Re-export common ringbuffer errors for backwards compatibility
var (
	ErrInsufficientSpace = types.ErrInsufficientSpace
	ErrInsufficientData  = types.ErrInsufficientData
)

// RingBuffer is a lock-free single-producer single-consumer ring buffer of
// interleaved float32 PCM samples. It is the sole hand-off between the
// decoder worker and the real-time output callback (spec §4.A): exactly one
// producer, exactly one consumer, no locks, no allocation after New.
//
//   - Write() must only be called by the producer thread (the decoder worker).
//   - Read() must only be called by the consumer thread (the output callback).
type RingBuffer struct {
	buffer   []float32
	size     uint64 // must be power of 2
	mask     uint64 // size - 1, for efficient modulo
	writePos atomic.Uint64
	readPos  atomic.Uint64
}

// New creates a new ring buffer sized to hold at least size samples.
// Size will be rounded up to the next power of 2 for efficiency.
func New(size uint64) *RingBuffer {
	// Round up to next power of 2
	size = nextPowerOf2(size)

	return &RingBuffer{
		buffer: make([]float32, size),
		size:   size,
		mask:   size - 1,
	}
}

// Write writes data to the ring buffer.
//
// Unlike an io.Writer, this method does not perform partial writes. It will
// either write all of data or return ErrInsufficientSpace without writing
// any of it — the decoder worker treats that as "yield and retry", never as
// a fatal error.
//
// This method must only be called by the producer thread.
func (rb *RingBuffer) Write(data []float32) (int, error) {
	dataLen := uint64(len(data))
	if dataLen == 0 {
		return 0, nil
	}

	available := rb.AvailableWrite()
	if dataLen > available {
		return 0, ErrInsufficientSpace
	}

	writePos := rb.writePos.Load()

	// Calculate the actual position in the buffer
	start := writePos & rb.mask
	end := (writePos + dataLen) & rb.mask

	if end > start {
		// Single contiguous write
		copy(rb.buffer[start:end], data)
	} else {
		// Write wraps around the buffer
		firstChunk := rb.size - start
		copy(rb.buffer[start:], data[:firstChunk])
		copy(rb.buffer[:end], data[firstChunk:])
	}

	// Atomic update of write position
	rb.writePos.Store(writePos + dataLen)

	return int(dataLen), nil
}

// Read reads up to len(data) samples from the ring buffer into data.
//
// Read will read as many samples as are available, up to len(data). If
// fewer samples are available than requested, it reads what's available and
// returns the count without error — the output callback fills the remainder
// of its buffer with silence rather than treating a short read as
// exceptional. If the buffer is empty, it returns (0, ErrInsufficientData).
//
// This method must only be called by the consumer thread.
func (rb *RingBuffer) Read(data []float32) (int, error) {
	dataLen := uint64(len(data))
	if dataLen == 0 {
		return 0, nil
	}

	available := rb.AvailableRead()
	if available == 0 {
		return 0, ErrInsufficientData
	}

	// Read only what's available
	toRead := min(dataLen, available)

	readPos := rb.readPos.Load()

	// Calculate the actual position in the buffer
	start := readPos & rb.mask
	end := (readPos + toRead) & rb.mask

	if end > start {
		// Single contiguous read
		copy(data[:toRead], rb.buffer[start:end])
	} else {
		// Read wraps around the buffer
		firstChunk := rb.size - start
		copy(data[:firstChunk], rb.buffer[start:])
		copy(data[firstChunk:toRead], rb.buffer[:end])
	}

	// Atomic update of read position
	rb.readPos.Store(readPos + toRead)

	return int(toRead), nil
}

// AvailableWrite returns the number of samples available for writing
func (rb *RingBuffer) AvailableWrite() uint64 {
	writePos := rb.writePos.Load()
	readPos := rb.readPos.Load()
	return rb.size - (writePos - readPos)
}

// AvailableRead returns the number of samples available for reading
func (rb *RingBuffer) AvailableRead() uint64 {
	writePos := rb.writePos.Load()
	readPos := rb.readPos.Load()
	return writePos - readPos
}

// Size returns the total capacity of the ring buffer, in samples
func (rb *RingBuffer) Size() uint64 {
	return rb.size
}

// ReadSlices returns one or two slices that provide zero-copy access to the
// available data. The data may be split into two slices if it wraps around
// the ring buffer. After processing the data, call Consume() to advance the
// read position. This should only be called by the consumer thread.
//
// Returns:
//   - first: The first (or only) slice of available data
//   - second: The second slice if data wraps around, nil otherwise
//   - total: Total number of samples available across both slices
func (rb *RingBuffer) ReadSlices() (first, second []float32, total uint64) {
	available := rb.AvailableRead()
	if available == 0 {
		return nil, nil, 0
	}

	readPos := rb.readPos.Load()
	start := readPos & rb.mask
	end := (readPos + available) & rb.mask

	if end > start {
		// Data is contiguous
		return rb.buffer[start:end], nil, available
	}

	// Data wraps around
	firstChunk := rb.buffer[start:]
	secondChunk := rb.buffer[:end]
	return firstChunk, secondChunk, available
}

// PeekContiguous returns a slice providing zero-copy access to the
// contiguous portion of available data. This may be less than the total
// available data if the data wraps around the buffer. After processing,
// call Consume() to advance the read position. This should only be called
// by the consumer thread.
func (rb *RingBuffer) PeekContiguous() []float32 {
	available := rb.AvailableRead()
	if available == 0 {
		return nil
	}

	readPos := rb.readPos.Load()
	start := readPos & rb.mask
	end := (readPos + available) & rb.mask

	if end > start {
		// All data is contiguous
		return rb.buffer[start:end]
	}

	// Data wraps around, return only the first contiguous chunk
	return rb.buffer[start:]
}

// Consume advances the read position by n samples without copying data.
// This is used in conjunction with ReadSlices() or PeekContiguous() for
// zero-copy reads. Returns an error if trying to consume more samples than
// are available. This should only be called by the consumer thread.
func (rb *RingBuffer) Consume(n uint64) error {
	if n == 0 {
		return nil
	}

	available := rb.AvailableRead()
	if n > available {
		return ErrInsufficientData
	}

	readPos := rb.readPos.Load()
	rb.readPos.Store(readPos + n)
	return nil
}

// Drain discards every sample currently queued, used by the output stream's
// seek handling to empty stale pre-seek PCM (spec §4.G flush_buffer step).
// Safe to call from the consumer thread only.
func (rb *RingBuffer) Drain() {
	var scratch [1024]float32
	for rb.AvailableRead() > 0 {
		if _, err := rb.Read(scratch[:]); err != nil {
			return
		}
	}
}

// Reset clears the ring buffer by resetting read and write positions. Only
// safe when producer and consumer are both known idle (e.g. before a new
// session starts) — use Drain instead when only the consumer is active.
func (rb *RingBuffer) Reset() {
	rb.readPos.Store(0)
	rb.writePos.Store(0)
}

// nextPowerOf2 rounds up to the next power of 2
func nextPowerOf2(n uint64) uint64 {
	if n == 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	n++
	return n
}
