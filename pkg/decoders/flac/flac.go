package flac

import (
	"fmt"
	"io"

	goflac "github.com/drgolem/go-flac/flac"

	"github.com/drgolem/audiocore/pkg/decoders/pcmconv"
)

// Decoder wraps the go-flac decoder to provide FLAC decoding capabilities.
// Implements types.AudioDecoder interface.
type Decoder struct {
	decoder  *goflac.FlacDecoder
	rate     int
	channels int
	bps      int // bits per sample
}

// NewDecoder creates a new FLAC decoder
// Uses 16-bit output by default
func NewDecoder() *Decoder {
	return &Decoder{}
}

// GetFormat returns the audio format (rate, channels, bits per sample)
func (d *Decoder) GetFormat() (int, int, int) {
	return d.rate, d.channels, d.bps
}

// DecodeSamples decodes the specified number of samples into the audio buffer
func (d *Decoder) DecodeSamples(samples int, audio []byte) (int, error) {
	if d.decoder == nil {
		return 0, fmt.Errorf("decoder not initialized")
	}

	// Decode PCM data from FLAC
	n, err := d.decoder.DecodeSamples(samples, audio)
	return n, err
}

// Open opens and initializes a FLAC file for decoding
func (d *Decoder) Open(fileName string) error {
	// Create new decoder with 16-bit output by default
	// This can be adjusted to 24 or 32 if needed
	decoder, err := goflac.NewFlacFrameDecoder(16)
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}

	// Open the FLAC file
	err = decoder.Open(fileName)
	if err != nil {
		decoder.Delete()
		return fmt.Errorf("failed to open file %s: %w", fileName, err)
	}

	// Get audio format
	rate, channels, bps := decoder.GetFormat()

	d.decoder = decoder
	d.rate = rate
	d.channels = channels
	d.bps = bps

	return nil
}

// Close closes the decoder and releases resources
func (d *Decoder) Close() error {
	if d.decoder != nil {
		d.decoder.Close()
		d.decoder.Delete()
		d.decoder = nil
	}
	return nil
}

// Rate returns the sample rate in Hz
func (d *Decoder) Rate() int {
	return d.rate
}

// Channels returns the number of audio channels
func (d *Decoder) Channels() int {
	return d.channels
}

// Encoding returns the bits per sample (for consistency with MP3 decoder)
func (d *Decoder) Encoding() int {
	return d.bps
}

// BitsPerSample returns the bits per sample
func (d *Decoder) BitsPerSample() int {
	return d.bps
}

// Format implements types.SampleDecoder, aliasing GetFormat.
func (d *Decoder) Format() (rate, channels, bitDepth int) {
	return d.GetFormat()
}

// TotalFrames is best-effort: the go-flac binding used here does not
// surface the STREAMINFO total-samples field, so this returns 0 (unknown).
func (d *Decoder) TotalFrames() uint64 {
	return 0
}

// DecodeFloat32 decodes into out (interleaved, channels per frame),
// converting from the source bit depth to float32 in [-1, 1].
func (d *Decoder) DecodeFloat32(out []float32) (int, error) {
	if d.decoder == nil {
		return 0, fmt.Errorf("decoder not initialized")
	}

	frames := len(out) / d.channels
	if frames == 0 {
		return 0, nil
	}

	bytesPerSample := d.bps / 8
	buf := make([]byte, frames*d.channels*bytesPerSample)

	totalSamples, err := d.DecodeSamples(frames, buf)
	if totalSamples == 0 {
		if err == nil {
			err = io.EOF
		}
		return 0, err
	}

	n := pcmconv.BytesToFloat32(out, buf[:totalSamples*d.channels*bytesPerSample], d.bps)
	return n / d.channels, err
}

// SeekSeconds decodes and discards up to the target offset — FLAC frame
// decoding here is sequential-only, so this is the decode-and-discard
// fallback the spec allows for decoders without native seek.
func (d *Decoder) SeekSeconds(seconds float64) error {
	if d.decoder == nil {
		return fmt.Errorf("decoder not initialized")
	}
	if seconds <= 0 {
		return nil
	}

	targetFrame := uint64(seconds * float64(d.rate))
	const scratchFrames = 4096
	scratch := make([]float32, scratchFrames*d.channels)

	var decoded uint64
	for decoded < targetFrame {
		want := targetFrame - decoded
		if want > scratchFrames {
			want = scratchFrames
		}
		n, err := d.DecodeFloat32(scratch[:int(want)*d.channels])
		if n == 0 {
			return err
		}
		decoded += uint64(n)
		if err != nil && err != io.EOF {
			return err
		}
		if err == io.EOF {
			break
		}
	}
	return nil
}
