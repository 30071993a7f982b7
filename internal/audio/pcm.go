package audio

import (
	"encoding/binary"
)

// pcm16 converts one float sample to 16-bit signed PCM. The value is clamped
// to [-1, 1], then scaled by 32768 when negative and 32767 otherwise so the
// result stays inside the signed 16-bit range. Zero maps to zero and the
// conversion is monotonic.
func pcm16(v float32) int16 {
	if v < -1 {
		v = -1
	} else if v > 1 {
		v = 1
	}
	if v < 0 {
		return int16(v * 32768)
	}
	return int16(v * 32767)
}

// EncodePCM16LE encodes samples as 16-bit signed little-endian bytes.
func EncodePCM16LE(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}
	return data
}

// DecodePCM16LE decodes 16-bit signed little-endian bytes into samples.
// A trailing odd byte is ignored.
func DecodePCM16LE(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}

// ToFloat32 converts 16-bit PCM samples to floats in [-1, 1).
func ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768
	}
	return out
}
