package decoders

import (
	"fmt"

	"github.com/drgolem/audiocore/pkg/types"
)

// Probe opens path just long enough to read its format header and returns
// the resulting AudioInfo, implementing types.ProbeFunc. This is the core's
// local probe collaborator (spec §9 Non-goals: cataloguing/metadata lookup
// is out of scope, but the core still needs its own source of AudioInfo to
// run at all).
func Probe(path string) (types.AudioInfo, error) {
	decoder, err := NewSampleDecoder(path)
	if err != nil {
		return types.AudioInfo{}, fmt.Errorf("probe %s: %w", path, err)
	}
	defer decoder.Close()

	rate, channels, bitDepth := decoder.Format()
	if rate <= 0 || channels <= 0 {
		return types.AudioInfo{}, fmt.Errorf("probe %s: implausible format rate=%d channels=%d", path, rate, channels)
	}

	totalFrames := decoder.TotalFrames()
	info := types.AudioInfo{
		SourceSampleRate: rate,
		OutputSampleRate: rate,
		Channels:         channels,
		BitDepth:         bitDepth,
		TotalFrames:      totalFrames,
	}
	if totalFrames > 0 {
		info.DurationSeconds = float64(totalFrames) / float64(rate)
	}
	return info, nil
}
