package eq

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGainClampsToRange(t *testing.T) {
	s := NewSharedState()
	s.SetGain(0, 100)
	assert.Equal(t, float32(MaxDB), s.GainDB(0))

	s.SetGain(0, -100)
	assert.Equal(t, float32(MinDB), s.GainDB(0))
}

func TestSetGainIgnoresOutOfRangeBand(t *testing.T) {
	s := NewSharedState()
	s.SetGain(BandCount, 5)
	s.SetGain(-1, 5)
	assert.Equal(t, float32(0), s.GainDB(BandCount))
}

func TestFlatEQIsBypassedBitPerfect(t *testing.T) {
	s := NewSharedState()
	s.SetEnabled(true)

	p := NewProcessor(44100)
	samples := []float32{0.5, -0.25, 0.125, 0.0}
	want := append([]float32(nil), samples...)

	p.ProcessInterleaved(samples, 2, s)
	assert.Equal(t, want, samples)
}

func TestDisabledEQIsNoOp(t *testing.T) {
	s := NewSharedState()
	s.SetGain(3, 12)
	s.SetEnabled(false)

	p := NewProcessor(44100)
	samples := []float32{0.5, -0.25}
	want := append([]float32(nil), samples...)

	p.ProcessInterleaved(samples, 1, s)
	assert.Equal(t, want, samples)
}

func TestNonFlatGainChangesSignal(t *testing.T) {
	s := NewSharedState()
	s.SetEnabled(true)
	s.SetGain(3, 12) // 1kHz band boosted

	p := NewProcessor(44100)
	samples := make([]float32, 128)
	samples[0] = 1.0
	want := append([]float32(nil), samples...)

	p.ProcessInterleaved(samples, 64, s)
	assert.NotEqual(t, want, samples)
}

func TestStoreAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "eq.json")

	s := NewSharedState()
	s.SetEnabled(true)
	s.SetGain(0, 6)
	s.SetGain(7, -3)

	require.NoError(t, s.Store(path))

	loaded := NewSharedState()
	require.NoError(t, loaded.Load(path))

	assert.True(t, loaded.Enabled())
	assert.InDelta(t, 6, loaded.GainDB(0), 0.001)
	assert.InDelta(t, -3, loaded.GainDB(7), 0.001)
}

func TestLoadMissingFileIsNotError(t *testing.T) {
	s := NewSharedState()
	err := s.Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.False(t, s.Enabled())
}

func TestDefaultPathHonorsXDGConfigHome(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdgtest")
	path, err := DefaultPath()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/xdgtest/audiocore/eq.json", path)
}

func TestDefaultPathFallsBackToHome(t *testing.T) {
	os.Unsetenv("XDG_CONFIG_HOME")
	path, err := DefaultPath()
	require.NoError(t, err)
	assert.Contains(t, path, filepath.Join(".config", "audiocore", "eq.json"))
}
