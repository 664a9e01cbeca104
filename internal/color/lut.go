package color

import "sync"

// encodeSteps is the resolution of the linear → sRGB byte table. 12 bits
// keep every byte reachable from its own decoded value.
const encodeSteps = 4095

type srgbTables struct {
	decode [256]float32
	encode [encodeSteps + 1]uint8
}

// tables is built from SRGBToLinear and LinearToSRGB on first use.
var tables = sync.OnceValue(func() *srgbTables {
	t := new(srgbTables)
	for i := range t.decode {
		t.decode[i] = SRGBToLinear(float32(i) / 255)
	}
	for i := range t.encode {
		t.encode[i] = unorm8(LinearToSRGB(float32(i) / encodeSteps))
	}
	return t
})

// DecodeSRGB8 converts an 8-bit sRGB component to linear.
func DecodeSRGB8(s uint8) float32 {
	return tables().decode[s]
}

// EncodeSRGB8 converts a linear component to an 8-bit sRGB value.
// Input is clamped to [0,1].
func EncodeSRGB8(l float32) uint8 {
	if !(l > 0) {
		return 0
	}
	if l >= 1 {
		return 255
	}
	return tables().encode[int(l*encodeSteps+0.5)]
}

// ToneMap8 maps linear radiance to an 8-bit sRGB value with the Reinhard
// operator l/(1+l).
func ToneMap8(l float32) uint8 {
	if !(l > 0) {
		return 0
	}
	return EncodeSRGB8(l / (1 + l))
}
