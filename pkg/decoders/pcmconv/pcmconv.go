// Package pcmconv converts between the legacy byte-oriented PCM the
// teacher's decoders already produce and the interleaved float32 in
// [-1, 1] that types.SampleDecoder promises the rest of the pipeline.
package pcmconv

import "encoding/binary"

// BytesToFloat32 decodes frames*channels samples of bitDepth-bit
// little-endian signed PCM (8-bit is the one unsigned exception, per WAV
// convention) from src into dst, returning the number of samples written.
func BytesToFloat32(dst []float32, src []byte, bitDepth int) int {
	bytesPerSample := bitDepth / 8
	if bytesPerSample == 0 {
		return 0
	}

	count := len(src) / bytesPerSample
	if count > len(dst) {
		count = len(dst)
	}

	for i := 0; i < count; i++ {
		off := i * bytesPerSample
		switch bitDepth {
		case 8:
			// WAV 8-bit PCM is unsigned, centered at 128.
			dst[i] = (float32(src[off]) - 128) / 128
		case 16:
			v := int16(binary.LittleEndian.Uint16(src[off:]))
			dst[i] = float32(v) / 32768
		case 24:
			v := int32(src[off]) | int32(src[off+1])<<8 | int32(src[off+2])<<16
			if v&0x800000 != 0 {
				v |= ^0xFFFFFF // sign-extend
			}
			dst[i] = float32(v) / 8388608
		case 32:
			v := int32(binary.LittleEndian.Uint32(src[off:]))
			dst[i] = float32(v) / 2147483648
		}
	}
	return count
}
