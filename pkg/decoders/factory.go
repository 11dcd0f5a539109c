package decoders

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/drgolem/audiocore/pkg/decoders/flac"
	"github.com/drgolem/audiocore/pkg/decoders/mp3"
	"github.com/drgolem/audiocore/pkg/decoders/opus"
	"github.com/drgolem/audiocore/pkg/decoders/vorbis"
	"github.com/drgolem/audiocore/pkg/decoders/wav"
	"github.com/drgolem/audiocore/pkg/types"
)

// NewDecoder creates and opens the appropriate legacy byte-oriented decoder
// based on file extension. Kept for cmd/transform.go's offline conversion
// path. Supports .mp3, .flac, .fla, and .wav formats.
func NewDecoder(fileName string) (types.AudioDecoder, error) {
	ext := strings.ToLower(filepath.Ext(fileName))

	var decoder types.AudioDecoder

	switch ext {
	case ".mp3":
		decoder = mp3.NewDecoder()
	case ".flac", ".fla":
		decoder = flac.NewDecoder()
	case ".wav":
		decoder = wav.NewDecoder()
	default:
		return nil, fmt.Errorf("unsupported file format: %s (supported: .mp3, .flac, .fla, .wav)", ext)
	}

	if err := decoder.Open(fileName); err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", fileName, err)
	}

	return decoder, nil
}

// NewSampleDecoder creates and opens the appropriate float32-streaming
// decoder based on file extension, for the real-time playback core (decoder
// worker, probe). Supports .mp3, .flac, .fla, .wav, .opus, and .ogg.
func NewSampleDecoder(fileName string) (types.SampleDecoder, error) {
	ext := strings.ToLower(filepath.Ext(fileName))

	var decoder types.SampleDecoder

	switch ext {
	case ".mp3":
		decoder = mp3.NewDecoder()
	case ".flac", ".fla":
		decoder = flac.NewDecoder()
	case ".wav":
		decoder = wav.NewDecoder()
	case ".opus":
		decoder = opus.NewDecoder()
	case ".ogg":
		decoder = vorbis.NewDecoder()
	default:
		return nil, fmt.Errorf("unsupported file format: %s (supported: .mp3, .flac, .fla, .wav, .opus, .ogg)", ext)
	}

	if err := decoder.Open(fileName); err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", fileName, err)
	}

	return decoder, nil
}
