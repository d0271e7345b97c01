package sink

import "math"

// EncodePCM packs interleaved float32 samples into little-endian bytes, the
// wire format RenderFrame writers hand to the HAL (mirrors
// hal.bytesToFloat32's decode convention in reverse).
func EncodePCM(samples []float32) []byte {
	buf := make([]byte, len(samples)*4)
	for i, s := range samples {
		bits := math.Float32bits(s)
		buf[i*4+0] = byte(bits)
		buf[i*4+1] = byte(bits >> 8)
		buf[i*4+2] = byte(bits >> 16)
		buf[i*4+3] = byte(bits >> 24)
	}
	return buf
}
