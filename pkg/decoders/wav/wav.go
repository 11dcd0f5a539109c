package wav

import (
	"fmt"
	"io"
	"os"

	"github.com/youpy/go-wav"

	"github.com/drgolem/audiocore/pkg/decoders/pcmconv"
)

// Decoder wraps go-wav for decoding WAV audio files.
// Implements types.AudioDecoder interface.
type Decoder struct {
	file     *os.File
	reader   *wav.Reader
	rate     int
	channels int
	bps      int
	format   uint16
}

// NewDecoder creates a new WAV decoder
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Open opens a WAV file for decoding
func (d *Decoder) Open(fileName string) error {
	file, err := os.Open(fileName)
	if err != nil {
		return fmt.Errorf("failed to open WAV file: %w", err)
	}

	reader := wav.NewReader(file)
	format, err := reader.Format()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to read WAV format: %w", err)
	}

	// Validate format
	if format.AudioFormat != wav.AudioFormatPCM {
		file.Close()
		return fmt.Errorf("unsupported WAV format: %d (only PCM supported)", format.AudioFormat)
	}

	d.file = file
	d.reader = reader
	d.rate = int(format.SampleRate)
	d.channels = int(format.NumChannels)
	d.bps = int(format.BitsPerSample)
	d.format = format.AudioFormat

	return nil
}

// Close closes the WAV file
func (d *Decoder) Close() error {
	if d.file != nil {
		return d.file.Close()
	}
	return nil
}

// GetFormat returns the audio format (sample rate, channels, bits per sample)
func (d *Decoder) GetFormat() (rate, channels, bitsPerSample int) {
	return d.rate, d.channels, d.bps
}

// DecodeSamples decodes up to 'samples' audio samples into the provided buffer
//
// Parameters:
//   - samples: number of samples to decode (not bytes)
//   - audio: buffer to write decoded audio data
//
// Returns:
//   - number of samples actually decoded
//   - error if any
//
// The buffer must be large enough to hold: samples * channels * (bitsPerSample/8) bytes
//
// Example:
//
//	decoder.DecodeSamples(1024, buffer)  // Decode 1024 samples
//	bytesWritten := samplesRead * channels * (bitsPerSample/8)
func (d *Decoder) DecodeSamples(samples int, audio []byte) (int, error) {
	if d.reader == nil {
		return 0, fmt.Errorf("decoder not initialized")
	}

	bytesPerSample := d.bps / 8
	totalSamples := 0

	// Read samples one at a time (go-wav reads sample by sample)
	for i := 0; i < samples; i++ {
		samplesData, err := d.reader.ReadSamples(1)
		if err != nil {
			// End of file or error
			return totalSamples, err
		}

		if len(samplesData) == 0 {
			// No more data
			return totalSamples, nil
		}

		// Convert samples to bytes and write to buffer
		// go-wav returns samples as []wav.Sample which contains IntValue for each channel
		for ch := 0; ch < d.channels; ch++ {
			if ch >= len(samplesData[0].Values) {
				break
			}

			value := samplesData[0].Values[ch]
			offset := (totalSamples*d.channels + ch) * bytesPerSample

			// Check buffer bounds
			if offset+bytesPerSample > len(audio) {
				return totalSamples, nil
			}

			// Write sample bytes (little-endian)
			switch d.bps {
			case 8:
				audio[offset] = byte(value)
			case 16:
				audio[offset] = byte(value & 0xFF)
				audio[offset+1] = byte((value >> 8) & 0xFF)
			case 24:
				audio[offset] = byte(value & 0xFF)
				audio[offset+1] = byte((value >> 8) & 0xFF)
				audio[offset+2] = byte((value >> 16) & 0xFF)
			case 32:
				audio[offset] = byte(value & 0xFF)
				audio[offset+1] = byte((value >> 8) & 0xFF)
				audio[offset+2] = byte((value >> 16) & 0xFF)
				audio[offset+3] = byte((value >> 24) & 0xFF)
			default:
				return totalSamples, fmt.Errorf("unsupported bits per sample: %d", d.bps)
			}
		}

		totalSamples++
	}

	return totalSamples, nil
}

// Format implements types.SampleDecoder, aliasing GetFormat.
func (d *Decoder) Format() (rate, channels, bitDepth int) {
	return d.GetFormat()
}

// TotalFrames is best-effort: go-wav does not expose the data chunk's frame
// count directly through Reader, so this returns 0 (unknown), per
// types.SampleDecoder's contract.
func (d *Decoder) TotalFrames() uint64 {
	return 0
}

// DecodeFloat32 decodes into out (interleaved, channels per frame),
// converting from the source bit depth to float32 in [-1, 1].
func (d *Decoder) DecodeFloat32(out []float32) (int, error) {
	if d.reader == nil {
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
	frameCount := n / d.channels
	return frameCount, err
}

// SeekSeconds seeks by decoding and discarding frames up to the target
// offset — go-wav's Reader does not expose native seeking on arbitrary
// readers, so this is the decode-and-discard fallback the spec allows.
func (d *Decoder) SeekSeconds(seconds float64) error {
	if d.reader == nil {
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
