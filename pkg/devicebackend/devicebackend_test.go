package devicebackend

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFindBestSupportedRateExactMatch(t *testing.T) {
	got := FindBestSupportedRate([]int{44100, 48000, 96000}, 48000)
	assert.Equal(t, 48000, got)
}

func TestFindBestSupportedRateSmallestAbove(t *testing.T) {
	got := FindBestSupportedRate([]int{44100, 48000, 96000, 192000}, 88200)
	assert.Equal(t, 96000, got)
}

func TestFindBestSupportedRateFallsBackToLargest(t *testing.T) {
	got := FindBestSupportedRate([]int{44100, 48000}, 384000)
	assert.Equal(t, 48000, got)
}

func TestFindBestSupportedRateNoSupportedRatesReturns44100(t *testing.T) {
	got := FindBestSupportedRate(nil, 96000)
	assert.Equal(t, 44100, got)
}

func TestDeviceInfoSupportsSampleRate(t *testing.T) {
	d := DeviceInfo{SupportedSampleRates: []int{44100, 48000}}
	assert.True(t, d.SupportsSampleRate(44100))
	assert.False(t, d.SupportsSampleRate(96000))
}

func TestNewBackendDefaultsToSystemDeviceAndFollowsDefault(t *testing.T) {
	b := New()
	assert.Equal(t, -1, b.DeviceID())
	assert.True(t, b.followDefault)
	assert.Equal(t, Shared, b.ExclusiveModeState())
}

func TestSetOutputDeviceRejectsUnknownDevice(t *testing.T) {
	b := New()
	err := b.SetOutputDevice(7)
	assert.Error(t, err)
}

func TestSetOutputDeviceAcceptsCachedDevice(t *testing.T) {
	b := New()
	b.deviceCache = []DeviceInfo{{ID: 3, Name: "Test Device"}}

	require := assert.New(t)
	require.NoError(b.SetOutputDevice(3))
	require.Equal(3, b.DeviceID())
}
