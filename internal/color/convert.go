package color

import "math"

// SRGBToLinear converts an sRGB component to linear (EOTF).
// Formula: if s <= 0.04045: s/12.92; else: pow((s+0.055)/1.055, 2.4)
// Negative input maps to 0. Values above 1 follow the same curve.
func SRGBToLinear(s float32) float32 {
	if s <= 0 {
		return 0
	}
	if s <= 0.04045 {
		return s / 12.92
	}
	return float32(math.Pow(float64((s+0.055)/1.055), 2.4))
}

// LinearToSRGB converts a linear component to sRGB (OETF).
// Formula: if l <= 0.0031308: l*12.92; else: 1.055*pow(l, 1/2.4)-0.055
// Negative input maps to 0. Values above 1 follow the same curve.
func LinearToSRGB(l float32) float32 {
	if l <= 0 {
		return 0
	}
	if l <= 0.0031308 {
		return l * 12.92
	}
	return 1.055*float32(math.Pow(float64(l), 1.0/2.4)) - 0.055
}

// ToLinear decodes the color components from sRGB.
// Alpha remains linear.
func (c RGBA) ToLinear() RGBA {
	return RGBA{SRGBToLinear(c.R), SRGBToLinear(c.G), SRGBToLinear(c.B), c.A}
}

// ToSRGB encodes the color components to sRGB.
// Alpha remains linear.
func (c RGBA) ToSRGB() RGBA {
	return RGBA{LinearToSRGB(c.R), LinearToSRGB(c.G), LinearToSRGB(c.B), c.A}
}

// RGBMRange is the largest color component an RGBM texel represents.
const RGBMRange = 8

// EncodeRGBM packs an HDR color into four bytes: rgb scaled by a shared
// multiplier m stored in alpha, color = rgb * m * RGBMRange.
// Components above RGBMRange saturate.
func EncodeRGBM(c RGBA) [4]uint8 {
	r := clamp01(c.R / RGBMRange)
	g := clamp01(c.G / RGBMRange)
	b := clamp01(c.B / RGBMRange)
	m := clamp01(max(r, g, b, 1e-6))
	m = float32(math.Ceil(float64(m*255))) / 255
	return [4]uint8{
		unorm8(r / m),
		unorm8(g / m),
		unorm8(b / m),
		unorm8(m),
	}
}

// DecodeRGBM unpacks an RGBM texel. Alpha of the result is 0: RGBM
// textures carry only bloom energy.
func DecodeRGBM(p [4]uint8) RGBA {
	m := float32(p[3]) / 255 * RGBMRange
	return RGBA{
		R: float32(p[0]) / 255 * m,
		G: float32(p[1]) / 255 * m,
		B: float32(p[2]) / 255 * m,
	}
}

func clamp01(v float32) float32 {
	if !(v > 0) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// unorm8 maps [0,1] to a byte with rounding.
func unorm8(v float32) uint8 {
	return uint8(clamp01(v)*255 + 0.5)
}
