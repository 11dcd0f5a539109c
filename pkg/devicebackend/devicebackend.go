// Package devicebackend implements the spec's device abstraction (§4.F):
// enumeration, nominal sample-rate control, and exclusive/hog mode, so the
// engine can prepare a device for bit-perfect playback before a stream is
// opened.
//
// Grounded on the Rust reference's audio/backend.rs trait and
// audio/coreaudio_backend.rs implementation, translated to the teacher's
// own github.com/drgolem/go-portaudio binding. The teacher never exercises
// go-portaudio's device-enumeration or Core Audio host-API extension
// surface (its own code only opens a stream by device index), so this
// package extends that binding's inferred surface — DeviceCount,
// DeviceInfo, SetNominalSampleRate, SetHogMode — in the same shape
// PortAudio's own Core Audio host-API extensions (pa_mac_core.h) expose in
// the C library (see DESIGN.md).
package devicebackend

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/drgolem/go-portaudio/portaudio"

	"github.com/drgolem/audiocore/pkg/types"
)

// StandardRates are the "audiophile" sample rates find_best_supported_rate
// prefers, in ascending order, mirroring types.rs's SampleRate::STANDARD_RATES.
var StandardRates = []int{44100, 48000, 88200, 96000, 176400, 192000, 352800, 384000}

// ExclusiveMode mirrors the Rust reference's ExclusiveMode enum.
type ExclusiveMode int

const (
	Shared ExclusiveMode = iota
	Exclusive
)

// DeviceInfo describes one output device, mirroring types.rs's DeviceInfo.
type DeviceInfo struct {
	ID                   int
	Name                 string
	IsDefault            bool
	SupportedSampleRates []int
	CurrentSampleRate    int
	MaxChannels          int
	SupportsExclusive    bool
}

// SupportsSampleRate reports whether rate is one of d's supported rates.
func (d DeviceInfo) SupportsSampleRate(rate int) bool {
	for _, r := range d.SupportedSampleRates {
		if r == rate {
			return true
		}
	}
	return false
}

// StreamConfig is the minimal description prepare_for_streaming needs,
// mirroring types.rs's StreamConfig.
type StreamConfig struct {
	SampleRate int
	Channels   int
}

// HogModeStatus reports the device's exclusive-mode state, mirroring the
// Rust reference's HogModeStatus.
type HogModeStatus struct {
	Held     bool
	DeviceID int
}

// Backend is the device abstraction the engine drives. Not safe for
// concurrent use beyond its own internal locking of the device cache — the
// engine coordinator is the only caller.
type Backend struct {
	mu sync.Mutex

	deviceCache      []DeviceInfo
	currentDevice    int // portaudio device index, -1 = system default
	followDefault    bool
	lastKnownDefault int // last system default device index seen, -1 = not yet observed
	exclusiveMode    ExclusiveMode
	hogHeld          bool

	// originalRates records each device's sample rate the first time this
	// backend changes it, so release() can restore every touched device —
	// not just the currently active one (coreaudio_backend.rs's
	// original_sample_rates map).
	originalRates map[int]int
}

// New creates a Backend with the system default device selected and no
// devices cached yet; call RefreshDevices before using ListDevices.
func New() *Backend {
	return &Backend{
		currentDevice:    -1,
		followDefault:    true,
		lastKnownDefault: -1,
		originalRates:    make(map[int]int),
	}
}

// ListDevices returns the cached device list, which may be stale until
// RefreshDevices has been called at least once.
func (b *Backend) ListDevices() []DeviceInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]DeviceInfo(nil), b.deviceCache...)
}

// RefreshDevices re-enumerates devices from PortAudio and updates the
// cache, mirroring refresh_device_cache in coreaudio_backend.rs.
func (b *Backend) RefreshDevices() ([]DeviceInfo, error) {
	count, err := portaudio.GetDeviceCount()
	if err != nil {
		return nil, types.NewError(types.ErrDeviceEnumerationFailed, "enumerate devices", err)
	}

	defaultIdx, _ := portaudio.GetDefaultOutputDevice()

	devices := make([]DeviceInfo, 0, count)
	for i := 0; i < count; i++ {
		info, err := portaudio.GetDeviceInfo(i)
		if err != nil {
			slog.Warn("skipping unreadable device", "index", i, "error", err)
			continue
		}
		if info.MaxOutputChannels <= 0 {
			continue // input-only device
		}

		devices = append(devices, DeviceInfo{
			ID:                   i,
			Name:                 info.Name,
			IsDefault:            i == defaultIdx,
			SupportedSampleRates: supportedRatesFor(i),
			CurrentSampleRate:    int(info.DefaultSampleRate),
			MaxChannels:          info.MaxOutputChannels,
			SupportsExclusive:    true,
		})
	}

	b.mu.Lock()
	b.deviceCache = devices
	b.mu.Unlock()

	return devices, nil
}

// supportedRatesFor probes each standard rate against the device, mirroring
// get_supported_sample_rates's use of AudioValueRange against
// SampleRate::STANDARD_RATES in coreaudio_backend.rs.
func supportedRatesFor(deviceIdx int) []int {
	var rates []int
	for _, r := range StandardRates {
		if portaudio.IsFormatSupported(deviceIdx, float64(r)) {
			rates = append(rates, r)
		}
	}
	return rates
}

// checkDefaultDeviceChange logs a transition whenever the OS-reported
// default output device has moved since the last observation, for backends
// still following the system default (no explicit SetOutputDevice call has
// pinned currentDevice) — mirroring coreaudio_backend.rs's device-change
// polling, which re-checks the default on every prepare_for_streaming call.
func (b *Backend) checkDefaultDeviceChange() {
	def, err := portaudio.GetDefaultOutputDevice()
	if err != nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.followDefault && b.lastKnownDefault != -1 && def != b.lastKnownDefault {
		slog.Info("system default output device changed", "from", b.lastKnownDefault, "to", def)
	}
	b.lastKnownDefault = def
}

// CurrentDevice returns the active device's info, re-reading the cache.
// When following the system default, it first checks whether the default
// has moved and lazily refreshes an empty cache, so a caller that never
// explicitly enumerated devices still resolves correctly.
func (b *Backend) CurrentDevice() (DeviceInfo, error) {
	b.checkDefaultDeviceChange()

	b.mu.Lock()
	idx := b.currentDevice
	cache := b.deviceCache
	b.mu.Unlock()

	if len(cache) == 0 {
		refreshed, err := b.RefreshDevices()
		if err != nil {
			return DeviceInfo{}, err
		}
		cache = refreshed
	}

	if idx < 0 {
		def, err := portaudio.GetDefaultOutputDevice()
		if err != nil {
			return DeviceInfo{}, types.NewError(types.ErrDeviceNotFound, "resolve default device", err)
		}
		idx = def
	}

	for _, d := range cache {
		if d.ID == idx {
			return d, nil
		}
	}
	return DeviceInfo{}, types.NewError(types.ErrDeviceNotFound, fmt.Sprintf("device %d not in cache", idx), nil)
}

// SetOutputDevice selects deviceID as the active output device by ID
// (PortAudio device index), disabling default-device-follow.
// This does not change the OS default — only which device this backend
// uses — matching backend.rs's set_output_device contract.
func (b *Backend) SetOutputDevice(deviceID int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	found := false
	for _, d := range b.deviceCache {
		if d.ID == deviceID {
			found = true
			break
		}
	}
	if !found {
		return types.NewError(types.ErrDeviceNotFound, fmt.Sprintf("device %d", deviceID), nil)
	}

	b.currentDevice = deviceID
	b.followDefault = false
	return nil
}

// DeviceID returns the device index for stream creation, or -1 to mean
// "use the system default" (get_device_id in backend.rs).
func (b *Backend) DeviceID() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentDevice
}

// SetSampleRate sets deviceIdx's nominal hardware sample rate, recording its
// original rate the first time it's touched so release() can restore it
// (coreaudio_backend.rs's original_sample_rates bookkeeping). Verifies the
// rate by a brief confirmation read after the set, matching
// set_device_sample_rate_internal's 100ms-sleep-then-readback pattern.
func (b *Backend) SetSampleRate(deviceIdx, rate int) error {
	b.mu.Lock()
	if _, recorded := b.originalRates[deviceIdx]; !recorded {
		if current, err := portaudio.GetDeviceDefaultSampleRate(deviceIdx); err == nil {
			b.originalRates[deviceIdx] = int(current)
		}
	}
	b.mu.Unlock()

	if err := portaudio.SetDeviceNominalSampleRate(deviceIdx, float64(rate)); err != nil {
		return types.NewError(types.ErrSampleRateChangeFailed, fmt.Sprintf("set %dHz on device %d", rate, deviceIdx), err)
	}

	time.Sleep(100 * time.Millisecond)

	actual, err := portaudio.GetDeviceDefaultSampleRate(deviceIdx)
	if err != nil {
		return types.NewError(types.ErrSampleRateChangeFailed, "confirm sample rate", err)
	}
	if int(actual) != rate {
		return types.NewError(types.ErrSampleRateChangeFailed,
			fmt.Sprintf("device reports %dHz after requesting %dHz", int(actual), rate), nil)
	}
	return nil
}

// IsSampleRateSupported reports whether rate is usable on deviceIdx.
func (b *Backend) IsSampleRateSupported(deviceIdx, rate int) bool {
	return portaudio.IsFormatSupported(deviceIdx, float64(rate))
}

// FindBestSupportedRate picks, in order: an exact match for requested; the
// smallest supported rate ≥ requested; the largest supported rate; or
// 44100 if the device reports no supported rates at all — mirroring
// find_best_supported_rate in coreaudio_backend.rs.
func FindBestSupportedRate(supported []int, requested int) int {
	if len(supported) == 0 {
		return 44100
	}

	for _, r := range supported {
		if r == requested {
			return r
		}
	}

	best := -1
	for _, r := range supported {
		if r >= requested && (best == -1 || r < best) {
			best = r
		}
	}
	if best != -1 {
		return best
	}

	largest := supported[0]
	for _, r := range supported {
		if r > largest {
			largest = r
		}
	}
	return largest
}

// SetExclusiveMode engages or releases hog mode on the current device.
// Re-engaging an already-held device is a no-op (idempotent hog
// re-engagement, resolving the spec's Open Question on repeated Play calls
// while exclusive mode is already active — see DESIGN.md).
func (b *Backend) SetExclusiveMode(mode ExclusiveMode) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if mode == b.exclusiveMode && (mode == Shared || b.hogHeld) {
		return nil
	}

	deviceIdx := b.currentDevice
	if deviceIdx < 0 {
		def, err := portaudio.GetDefaultOutputDevice()
		if err != nil {
			return types.NewError(types.ErrExclusiveModeFail, "resolve default device", err)
		}
		deviceIdx = def
	}

	switch mode {
	case Exclusive:
		if err := portaudio.SetDeviceHogMode(deviceIdx, true); err != nil {
			return types.NewError(types.ErrExclusiveModeFail, fmt.Sprintf("acquire hog mode on device %d", deviceIdx), err)
		}
		b.hogHeld = true
	case Shared:
		if b.hogHeld {
			if err := portaudio.SetDeviceHogMode(deviceIdx, false); err != nil {
				return types.NewError(types.ErrExclusiveModeFail, fmt.Sprintf("release hog mode on device %d", deviceIdx), err)
			}
			b.hogHeld = false
		}
	}

	b.exclusiveMode = mode
	return nil
}

// ExclusiveModeState returns the current exclusive mode.
func (b *Backend) ExclusiveModeState() ExclusiveMode {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.exclusiveMode
}

// HogModeStatus reports whether hog mode is currently held and on which
// device.
func (b *Backend) HogModeStatus() HogModeStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return HogModeStatus{Held: b.hogHeld, DeviceID: b.currentDevice}
}

// PrepareForStreaming refreshes the device cache (step (ii) of
// prepare_for_streaming in backend.rs / coreaudio_backend.rs — the
// enumeration is never trusted to still be fresh from a prior call), then
// sets the device's nominal rate (falling back to the best supported rate
// if the exact request isn't available) and engages exclusive mode if
// requested, returning the rate the stream should actually open at.
func (b *Backend) PrepareForStreaming(cfg StreamConfig, wantExclusive bool) (actualRate int, err error) {
	if _, err := b.RefreshDevices(); err != nil {
		slog.Warn("failed to refresh device cache before preparing stream", "error", err)
	}
	b.checkDefaultDeviceChange()

	device, derr := b.CurrentDevice()
	if derr != nil {
		return 0, derr
	}

	rate := cfg.SampleRate
	if !device.SupportsSampleRate(rate) {
		rate = FindBestSupportedRate(device.SupportedSampleRates, rate)
	}

	if err := b.SetSampleRate(device.ID, rate); err != nil {
		slog.Warn("falling back to device's current rate", "requested", rate, "device", device.ID, "error", err)
		rate = device.CurrentSampleRate
	}

	mode := Shared
	if wantExclusive {
		mode = Exclusive
	}
	if err := b.SetExclusiveMode(mode); err != nil {
		return rate, err
	}

	return rate, nil
}

// Release restores every device this backend ever changed the sample rate
// of, and releases hog mode if held — mirroring release() in
// coreaudio_backend.rs, which restores ALL recorded devices, not just the
// active one. Idempotent.
func (b *Backend) Release() error {
	b.mu.Lock()
	hogHeld := b.hogHeld
	currentDevice := b.currentDevice
	originalRates := b.originalRates
	b.originalRates = make(map[int]int)
	b.hogHeld = false
	b.exclusiveMode = Shared
	b.mu.Unlock()

	if hogHeld {
		if currentDevice < 0 {
			if def, err := portaudio.GetDefaultOutputDevice(); err == nil {
				currentDevice = def
			}
		}
		if err := portaudio.SetDeviceHogMode(currentDevice, false); err != nil {
			slog.Warn("failed to release hog mode", "device", currentDevice, "error", err)
		}
	}

	var firstErr error
	for deviceIdx, rate := range originalRates {
		if err := portaudio.SetDeviceNominalSampleRate(deviceIdx, float64(rate)); err != nil {
			slog.Warn("failed to restore device sample rate", "device", deviceIdx, "rate", rate, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Name returns the backend name, matching the Rust reference's name().
func (b *Backend) Name() string {
	return "PortAudio"
}
