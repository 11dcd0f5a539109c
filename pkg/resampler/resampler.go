// Package resampler implements the spec's fixed-ratio chunked FFT sample
// rate converter (§4.B): accumulate input, resample whole chunks through
// the frequency domain, and flush the tail at end of stream.
package resampler

// chunkInFrames is the number of source frames per channel processed in one
// FFT step. A power of two keeps the forward transform on the fast radix-2
// path; Bluestein's algorithm (fft.go) only has to run for the output size.
const chunkInFrames = 4096

// Resampler converts interleaved float32 PCM of any channel count from
// sourceRate to targetRate, chunkInFrames frames per channel at a time.
//
// Not safe for concurrent use — the decoder worker is the only caller.
type Resampler struct {
	sourceRate, targetRate, channels int
	chunkOutFrames                   int

	pending [][]float32 // per-channel, de-interleaved, len < chunkInFrames
}

// New builds a Resampler for channels-channel interleaved PCM converting
// sourceRate to targetRate.
func New(sourceRate, targetRate, channels int) *Resampler {
	r := &Resampler{
		sourceRate: sourceRate,
		targetRate: targetRate,
		channels:   channels,
	}
	r.chunkOutFrames = int(roundDiv(int64(chunkInFrames)*int64(targetRate), int64(sourceRate)))
	if r.chunkOutFrames < 1 {
		r.chunkOutFrames = 1
	}

	r.pending = make([][]float32, channels)
	for ch := range r.pending {
		r.pending[ch] = make([]float32, 0, chunkInFrames*2)
	}
	return r
}

// IsIdentity reports whether source and target rates are equal, in which
// case the caller should skip the resampler entirely rather than pay for a
// no-op FFT round trip.
func (r *Resampler) IsIdentity() bool {
	return r.sourceRate == r.targetRate
}

// Process accumulates interleaved input into the pending buffer and, for
// every full chunkInFrames worth of pending samples, runs one FFT-resample
// step. Returns whatever output chunks were produced this call — possibly
// empty if not enough input has accumulated yet.
func (r *Resampler) Process(interleavedInput []float32) []float32 {
	r.deinterleaveAppend(interleavedInput)

	var out []float32
	for r.pendingFrames() >= chunkInFrames {
		out = append(out, r.stepChunk(chunkInFrames)...)
	}
	return out
}

// Flush zero-pads whatever remains in the pending buffer up to one full
// chunk, runs one final resample step, and clears the pending buffer. The
// decoder worker must call this at end-of-file before marking decoding
// complete (spec §4.B).
func (r *Resampler) Flush() []float32 {
	frames := r.pendingFrames()
	if frames == 0 {
		return nil
	}

	for ch := range r.pending {
		padding := chunkInFrames - len(r.pending[ch])
		if padding > 0 {
			r.pending[ch] = append(r.pending[ch], make([]float32, padding)...)
		}
	}

	// The tail chunk is shorter than a full chunk's worth of real audio;
	// scale the output length down proportionally rather than emitting a
	// full chunkOutFrames of mostly silence.
	tailOutFrames := int(roundDiv(int64(frames)*int64(r.targetRate), int64(r.sourceRate)))
	if tailOutFrames < 1 {
		tailOutFrames = 1
	}

	return r.stepChunk(tailOutFrames)
}

func (r *Resampler) pendingFrames() int {
	if len(r.pending) == 0 {
		return 0
	}
	return len(r.pending[0])
}

func (r *Resampler) deinterleaveAppend(interleaved []float32) {
	frames := len(interleaved) / r.channels
	for f := 0; f < frames; f++ {
		base := f * r.channels
		for ch := 0; ch < r.channels; ch++ {
			r.pending[ch] = append(r.pending[ch], interleaved[base+ch])
		}
	}
}

// stepChunk pops the first chunkInFrames frames of pending per channel
// (or everything pending, for the flush's zero-padded tail), resamples each
// channel independently to outFrames frames, and re-interleaves the result.
func (r *Resampler) stepChunk(outFrames int) []float32 {
	out := make([]float32, outFrames*r.channels)

	for ch := 0; ch < r.channels; ch++ {
		chunk := r.pending[ch][:chunkInFrames]
		resampled := resampleChannel(chunk, outFrames)
		for f := 0; f < outFrames; f++ {
			out[f*r.channels+ch] = resampled[f]
		}
		r.pending[ch] = append([]float32(nil), r.pending[ch][chunkInFrames:]...)
	}

	return out
}

// resampleChannel resamples a single real-valued chunk of length N to
// outFrames via the frequency domain: FFT, keep/zero-pad the conjugate-
// symmetric spectrum to the new length, inverse FFT, scale for energy.
func resampleChannel(in []float32, outFrames int) []float32 {
	n := len(in)
	spectrum := make([]complex128, n)
	for i, v := range in {
		spectrum[i] = complex(float64(v), 0)
	}
	spectrum = transform(spectrum, false)

	resized := make([]complex128, outFrames)
	nyquistIn := n / 2
	nyquistOut := outFrames / 2
	keep := min(nyquistIn, nyquistOut)

	resized[0] = spectrum[0]
	for k := 1; k <= keep; k++ {
		if k < outFrames {
			resized[k] = spectrum[k]
		}
		negIdx := outFrames - k
		srcNegIdx := n - k
		if negIdx > 0 && negIdx < outFrames && srcNegIdx >= 0 && srcNegIdx < n && negIdx != k {
			resized[negIdx] = spectrum[srcNegIdx]
		}
	}

	timeDomain := transform(resized, true)

	scale := float64(outFrames) / float64(n)
	result := make([]float32, outFrames)
	for i, v := range timeDomain {
		result[i] = float32(real(v) * scale)
	}
	return result
}

func roundDiv(numerator, denominator int64) int64 {
	if denominator == 0 {
		return 0
	}
	if numerator < 0 {
		return (numerator - denominator/2) / denominator
	}
	return (numerator + denominator/2) / denominator
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
